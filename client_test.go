package t402

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubClientScheme struct {
	label string
	calls int
	err   error
}

func (s *stubClientScheme) Scheme() string { return "exact" }

func (s *stubClientScheme) CreatePaymentPayload(ctx context.Context, version ProtocolVersion, requirements PaymentRequirements) (PartialPaymentPayload, error) {
	s.calls++
	if s.err != nil {
		return PartialPaymentPayload{}, s.err
	}
	raw, _ := json.Marshal(map[string]string{"signedBy": s.label})
	return PartialPaymentPayload{Payload: raw}, nil
}

func challengeWith(networks ...Network) PaymentRequired {
	pr := PaymentRequired{
		T402Version: 2,
		Resource:    ResourceInfo{URL: "https://api.example.com/weather"},
	}
	for _, n := range networks {
		pr.Accepts = append(pr.Accepts, PaymentRequirements{
			Scheme:            "exact",
			Network:           n,
			Asset:             "0xUSDC",
			Amount:            "1000",
			PayTo:             "0xA",
			MaxTimeoutSeconds: 300,
		})
	}
	return pr
}

func TestClientSelectsFirstCandidate(t *testing.T) {
	scheme := &stubClientScheme{label: "wild"}
	c := NewClient(WithClientScheme(V2, "eip155:*", "exact", scheme))

	payload, err := c.SelectAndPay(context.Background(), V2, challengeWith("eip155:8453", "eip155:1"))
	require.NoError(t, err)
	require.NotNil(t, payload.Accepted)
	assert.Equal(t, Network("eip155:8453"), payload.Accepted.Network)
	assert.Equal(t, "https://api.example.com/weather", payload.Resource)
	assert.Equal(t, 2, payload.T402Version)
	assert.Equal(t, 1, scheme.calls)
}

func TestClientFiltersUnhandledOptions(t *testing.T) {
	scheme := &stubClientScheme{label: "evm"}
	c := NewClient(WithClientScheme(V2, "eip155:8453", "exact", scheme))

	payload, err := c.SelectAndPay(context.Background(), V2, challengeWith("solana:devnet", "eip155:8453"))
	require.NoError(t, err)
	assert.Equal(t, Network("eip155:8453"), payload.Accepted.Network)
}

func TestClientNoHandlerForAnyOption(t *testing.T) {
	c := NewClient()
	_, err := c.SelectAndPay(context.Background(), V2, challengeWith("eip155:8453"))
	var perr *PaymentError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, ErrNoAcceptableOption, perr.Code)
}

func TestClientPolicyFiltersToEmpty(t *testing.T) {
	scheme := &stubClientScheme{label: "evm"}
	c := NewClient(
		WithClientScheme(V2, "eip155:*", "exact", scheme),
		WithPolicy(func(version ProtocolVersion, reqs []PaymentRequirements) []PaymentRequirements {
			return nil
		}),
	)

	_, err := c.SelectAndPay(context.Background(), V2, challengeWith("eip155:8453"))
	var perr *PaymentError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, ErrNoAcceptableOption, perr.Code)
	assert.Zero(t, scheme.calls)
}

func TestClientPoliciesRunInInsertionOrder(t *testing.T) {
	scheme := &stubClientScheme{label: "evm"}
	var order []string
	c := NewClient(
		WithClientScheme(V2, "eip155:*", "exact", scheme),
		WithPolicy(func(version ProtocolVersion, reqs []PaymentRequirements) []PaymentRequirements {
			order = append(order, "first")
			return reqs
		}),
		WithPolicy(func(version ProtocolVersion, reqs []PaymentRequirements) []PaymentRequirements {
			order = append(order, "second")
			// drop eip155:1
			var out []PaymentRequirements
			for _, r := range reqs {
				if r.Network != "eip155:1" {
					out = append(out, r)
				}
			}
			return out
		}),
	)

	payload, err := c.SelectAndPay(context.Background(), V2, challengeWith("eip155:1", "eip155:8453"))
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second"}, order)
	assert.Equal(t, Network("eip155:8453"), payload.Accepted.Network)
}

// The network-specific handler is invoked even when a wildcard handler is
// also registered for the same family.
func TestClientSpecificHandlerBeatsWildcard(t *testing.T) {
	specific := &stubClientScheme{label: "specific"}
	wildcard := &stubClientScheme{label: "wildcard"}
	c := NewClient(
		WithClientScheme(V2, "eip155:8453", "exact", specific),
		WithClientScheme(V2, "eip155:*", "exact", wildcard),
		WithPolicy(func(version ProtocolVersion, reqs []PaymentRequirements) []PaymentRequirements {
			var out []PaymentRequirements
			for _, r := range reqs {
				if r.Network != "eip155:1" {
					out = append(out, r)
				}
			}
			return out
		}),
	)

	payload, err := c.SelectAndPay(context.Background(), V2, challengeWith("eip155:8453", "eip155:1"))
	require.NoError(t, err)
	assert.Equal(t, 1, specific.calls)
	assert.Zero(t, wildcard.calls)

	var blob map[string]string
	require.NoError(t, json.Unmarshal(payload.Payload, &blob))
	assert.Equal(t, "specific", blob["signedBy"])
}

func TestClientV1PayloadShape(t *testing.T) {
	scheme := &stubClientScheme{label: "legacy"}
	c := NewClient(WithClientScheme(V1, "base-sepolia", "exact", scheme))

	payload, err := c.SelectAndPay(context.Background(), V1, PaymentRequired{
		T402Version: 1,
		Accepts: []PaymentRequirements{{
			Scheme: "exact", Network: "base-sepolia", Amount: "1000", PayTo: "0xA", MaxTimeoutSeconds: 300,
		}},
	})
	require.NoError(t, err)
	assert.Nil(t, payload.Accepted)
	assert.Equal(t, "exact", payload.Scheme)
	assert.Equal(t, Network("base-sepolia"), payload.Network)
	assert.Equal(t, 1, payload.T402Version)
}

func TestClientBeforeHookAborts(t *testing.T) {
	scheme := &stubClientScheme{label: "evm"}
	c := NewClient(WithClientScheme(V2, "eip155:*", "exact", scheme))
	c.OnBeforePaymentCreation(func(ctx context.Context, in PaymentCreationIO) BeforeResult {
		return BeforeResult{Abort: true, Reason: "budget exceeded"}
	})

	_, err := c.SelectAndPay(context.Background(), V2, challengeWith("eip155:8453"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "budget exceeded")
	assert.Zero(t, scheme.calls)
}

func TestClientFailureHookRecovers(t *testing.T) {
	scheme := &stubClientScheme{label: "evm", err: errors.New("signer offline")}
	c := NewClient(WithClientScheme(V2, "eip155:*", "exact", scheme))
	c.OnPaymentCreationFailure(func(ctx context.Context, in PaymentCreationIO, err error) FailureResult[PartialPaymentPayload] {
		raw, _ := json.Marshal(map[string]string{"signedBy": "backup"})
		return FailureResult[PartialPaymentPayload]{Recovered: true, Result: PartialPaymentPayload{Payload: raw}}
	})

	payload, err := c.SelectAndPay(context.Background(), V2, challengeWith("eip155:8453"))
	require.NoError(t, err)

	var blob map[string]string
	require.NoError(t, json.Unmarshal(payload.Payload, &blob))
	assert.Equal(t, "backup", blob["signedBy"])
}

func TestEncodeForRetryHeaderNames(t *testing.T) {
	name, _, err := EncodeForRetry(V2, PaymentPayload{T402Version: 2})
	require.NoError(t, err)
	assert.Equal(t, HeaderPaymentSignature, name)

	name, _, err = EncodeForRetry(V1, PaymentPayload{T402Version: 1})
	require.NoError(t, err)
	assert.Equal(t, HeaderPaymentV1, name)
}
