package nethttp

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	t402 "github.com/t402-io/t402-go"
)

// Transport is an http.RoundTripper that pays 402 challenges: it forwards
// the request, and when the response is a 402 it runs the client engine's
// selection pipeline, attaches the payment header, and retries exactly
// once. A 402 on the retry is surfaced as an error, never another retry.
type Transport struct {
	// Base performs the actual requests; http.DefaultTransport if nil.
	Base http.RoundTripper
	// Engine selects and constructs payments.
	Engine *t402.Client
}

// NewHTTPClient wraps the payment engine into a ready-to-use http.Client.
func NewHTTPClient(engine *t402.Client) *http.Client {
	return &http.Client{Transport: &Transport{Engine: engine}}
}

func (t *Transport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.base().RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusPaymentRequired {
		return resp, nil
	}

	challenge, version, err := decodeChallenge(resp)
	resp.Body.Close()
	if err != nil {
		return nil, err
	}

	payload, err := t.Engine.SelectAndPay(req.Context(), version, challenge)
	if err != nil {
		return nil, err
	}
	headerName, headerValue, err := t402.EncodeForRetry(version, payload)
	if err != nil {
		return nil, err
	}

	retry, err := cloneRequest(req)
	if err != nil {
		return nil, err
	}
	retry.Header.Set(headerName, headerValue)
	retry.Header.Set(t402.HeaderExposeHeaders, t402.ExposeHeadersValue())

	retryResp, err := t.base().RoundTrip(retry)
	if err != nil {
		return nil, err
	}
	if retryResp.StatusCode == http.StatusPaymentRequired {
		retryResp.Body.Close()
		return nil, fmt.Errorf("payment was not accepted: got 402 after paying")
	}
	return retryResp, nil
}

// decodeChallenge reads a PaymentRequired from the PAYMENT-REQUIRED header
// (v2) or from the 402 body (v1).
func decodeChallenge(resp *http.Response) (t402.PaymentRequired, t402.ProtocolVersion, error) {
	if encoded := resp.Header.Get(t402.HeaderPaymentRequiredV2); encoded != "" {
		var pr t402.PaymentRequired
		if err := t402.DecodeHeader(encoded, &pr); err != nil {
			return t402.PaymentRequired{}, 0, err
		}
		return pr, t402.V2, nil
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return t402.PaymentRequired{}, 0, err
	}
	var pr t402.PaymentRequired
	if err := json.Unmarshal(body, &pr); err != nil {
		return t402.PaymentRequired{}, 0, fmt.Errorf("402 response carries no decodable challenge: %w", err)
	}
	version := t402.ProtocolVersion(pr.T402Version)
	if version == 0 {
		version = t402.V1
	}
	return pr, version, nil
}

// cloneRequest rebuilds the original request for the retry, replaying the
// body through GetBody when one was attached.
func cloneRequest(req *http.Request) (*http.Request, error) {
	clone := req.Clone(req.Context())
	if req.Body == nil || req.Body == http.NoBody {
		return clone, nil
	}
	if req.GetBody == nil {
		return nil, fmt.Errorf("cannot retry request with unreplayable body")
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, err
	}
	clone.Body = body
	return clone, nil
}

// SettleReceipt extracts the settlement receipt from a paid response,
// checking the v2 header first, then the v1 header.
func SettleReceipt(resp *http.Response) (t402.SettleResponse, error) {
	var sr t402.SettleResponse
	if encoded := resp.Header.Get(t402.HeaderPaymentResponseV2); encoded != "" {
		return sr, t402.DecodeHeader(encoded, &sr)
	}
	if encoded := resp.Header.Get(t402.HeaderPaymentResponseV1); encoded != "" {
		return sr, t402.DecodeHeader(encoded, &sr)
	}
	return sr, fmt.Errorf("no settlement receipt header on response")
}
