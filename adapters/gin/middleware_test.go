package gin

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	t402 "github.com/t402-io/t402-go"
)

type stubServerScheme struct{}

func (s *stubServerScheme) Scheme() string { return "exact" }

func (s *stubServerScheme) ParsePrice(ctx context.Context, price t402.Price, network t402.Network) (t402.AssetAmount, error) {
	return t402.AssetAmount{Amount: "1000", Asset: "0xUSDC"}, nil
}

func (s *stubServerScheme) EnhancePaymentRequirements(ctx context.Context, base t402.PaymentRequirements, supported t402.SupportedKind, facilitatorExtensions map[string]interface{}) (t402.PaymentRequirements, error) {
	return base, nil
}

type stubFacClient struct {
	settleResp  t402.SettleResponse
	settleCalls int
}

func (f *stubFacClient) Verify(ctx context.Context, payload t402.PaymentPayload, requirements t402.PaymentRequirements) (t402.VerifyResponse, error) {
	return t402.VerifyResponse{IsValid: true}, nil
}

func (f *stubFacClient) Settle(ctx context.Context, payload t402.PaymentPayload, requirements t402.PaymentRequirements) (t402.SettleResponse, error) {
	f.settleCalls++
	return f.settleResp, nil
}

func (f *stubFacClient) GetSupported(ctx context.Context) (t402.SupportedResponse, error) {
	return t402.SupportedResponse{Kinds: []t402.SupportedKind{
		{T402Version: 2, Scheme: "exact", Network: "eip155:84532"},
	}}, nil
}

func testEngine(fc t402.FacilitatorClient, status int, body string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	gate := t402.NewGate(
		t402.WithRoutes(t402.NewRouteConfig("GET /weather", t402.ResourceConfig{
			Scheme:  "exact",
			Network: "eip155:84532",
			Price:   "$0.001",
			PayTo:   t402.StaticPayTo("0xAAA"),
		})),
		t402.WithServerScheme(t402.V2, "eip155:*", "exact", &stubServerScheme{}),
		t402.WithFacilitators(fc),
	)

	r := gin.New()
	r.Use(Middleware(gate))
	r.GET("/weather", func(c *gin.Context) {
		c.Data(status, "application/json", []byte(body))
	})
	r.GET("/public", func(c *gin.Context) {
		c.String(200, "free")
	})
	return r
}

func payHeader(t *testing.T, server *httptest.Server) string {
	t.Helper()
	resp, err := http.Get(server.URL + "/weather")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusPaymentRequired, resp.StatusCode)

	var pr t402.PaymentRequired
	require.NoError(t, t402.DecodeHeader(resp.Header.Get(t402.HeaderPaymentRequiredV2), &pr))
	require.Len(t, pr.Accepts, 1)

	raw, _ := json.Marshal(map[string]string{"sig": "0xSIGNED"})
	payload := t402.PaymentPayload{
		T402Version: 2,
		Resource:    pr.Resource.URL,
		Accepted:    &pr.Accepts[0],
		Payload:     raw,
	}
	value, err := t402.EncodeHeader(payload)
	require.NoError(t, err)
	return value
}

func TestGinHandshake(t *testing.T) {
	fc := &stubFacClient{settleResp: t402.SettleResponse{Success: true, Transaction: "0xTX", Network: "eip155:84532"}}
	server := httptest.NewServer(testEngine(fc, 200, `{"weather":"foggy"}`))
	defer server.Close()

	header := payHeader(t, server)

	req, _ := http.NewRequest("GET", server.URL+"/weather", nil)
	req.Header.Set(t402.HeaderPaymentSignature, header)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, 200, resp.StatusCode)
	var sr t402.SettleResponse
	require.NoError(t, t402.DecodeHeader(resp.Header.Get(t402.HeaderPaymentResponseV2), &sr))
	assert.Equal(t, "0xTX", sr.Transaction)
}

func TestGinHandlerErrorPassesThrough(t *testing.T) {
	fc := &stubFacClient{settleResp: t402.SettleResponse{Success: true}}
	server := httptest.NewServer(testEngine(fc, 500, `{"error":"down"}`))
	defer server.Close()

	header := payHeader(t, server)

	req, _ := http.NewRequest("GET", server.URL+"/weather", nil)
	req.Header.Set(t402.HeaderPaymentSignature, header)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, 500, resp.StatusCode)
	assert.Empty(t, resp.Header.Get(t402.HeaderPaymentResponseV2))
	assert.Zero(t, fc.settleCalls)
}

func TestGinPublicRouteUntouched(t *testing.T) {
	fc := &stubFacClient{}
	server := httptest.NewServer(testEngine(fc, 200, `{}`))
	defer server.Close()

	resp, err := http.Get(server.URL + "/public")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, 200, resp.StatusCode)
}
