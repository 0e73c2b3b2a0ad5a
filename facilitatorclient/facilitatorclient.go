// Package facilitatorclient is the JSON-over-HTTP binding of the
// facilitator contract: POST /verify, POST /settle, GET /supported. The
// core depends only on the three-method FacilitatorClient interface; this
// package is one pluggable implementation of it.
package facilitatorclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	t402 "github.com/t402-io/t402-go"
)

// DefaultFacilitatorURL is the well-known facilitator a gate falls back to
// when no facilitator is attached.
const DefaultFacilitatorURL = "https://facilitator.t402.io"

// DefaultTimeout bounds each facilitator RPC.
const DefaultTimeout = 30 * time.Second

// Config configures a Client.
type Config struct {
	// URL is the facilitator base URL; DefaultFacilitatorURL if empty.
	URL string
	// Timeout is the per-request HTTP timeout; DefaultTimeout if zero.
	Timeout time.Duration
	// CreateAuthHeaders optionally supplies auth headers per operation
	// ("verify", "settle", "supported").
	CreateAuthHeaders func() (map[string]map[string]string, error)
}

// Client implements t402.FacilitatorClient over HTTP.
type Client struct {
	url               string
	httpClient        *http.Client
	createAuthHeaders func() (map[string]map[string]string, error)
}

func NewClient(config Config) *Client {
	baseURL := config.URL
	if baseURL == "" {
		baseURL = DefaultFacilitatorURL
	}
	timeout := config.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		url:               baseURL,
		httpClient:        &http.Client{Timeout: timeout},
		createAuthHeaders: config.CreateAuthHeaders,
	}
}

func init() {
	t402.DefaultFacilitatorFactory = func() t402.FacilitatorClient {
		return NewClient(Config{})
	}
}

func (c *Client) Verify(ctx context.Context, payload t402.PaymentPayload, requirements t402.PaymentRequirements) (t402.VerifyResponse, error) {
	req := t402.VerifyRequest{PaymentPayload: payload, PaymentRequirements: requirements}
	var resp t402.VerifyResponse
	if err := c.doRequest(ctx, http.MethodPost, "/verify", "verify", req, &resp); err != nil {
		return t402.VerifyResponse{}, fmt.Errorf("verify request failed: %w", err)
	}
	return resp, nil
}

func (c *Client) Settle(ctx context.Context, payload t402.PaymentPayload, requirements t402.PaymentRequirements) (t402.SettleResponse, error) {
	req := t402.SettleRequest{PaymentPayload: payload, PaymentRequirements: requirements}
	var resp t402.SettleResponse
	if err := c.doRequest(ctx, http.MethodPost, "/settle", "settle", req, &resp); err != nil {
		return t402.SettleResponse{}, fmt.Errorf("settle request failed: %w", err)
	}
	return resp, nil
}

func (c *Client) GetSupported(ctx context.Context) (t402.SupportedResponse, error) {
	var resp t402.SupportedResponse
	if err := c.doRequest(ctx, http.MethodGet, "/supported", "supported", nil, &resp); err != nil {
		return t402.SupportedResponse{}, fmt.Errorf("supported request failed: %w", err)
	}
	return resp, nil
}

func (c *Client) doRequest(ctx context.Context, method, path, operation string, body any, result any) error {
	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.url+path, bodyReader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	if c.createAuthHeaders != nil {
		headers, err := c.createAuthHeaders()
		if err != nil {
			return fmt.Errorf("create auth headers: %w", err)
		}
		for key, value := range headers[operation] {
			req.Header.Set(key, value)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(respBody))
	}
	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
