package t402

import (
	"context"

	"github.com/rs/zerolog"
)

// PaymentPolicy filters accepted requirements down to those acceptable to
// the payer, in insertion order. Returning an empty slice fails the
// handshake with NoAcceptableOption.
type PaymentPolicy func(version ProtocolVersion, requirements []PaymentRequirements) []PaymentRequirements

// PaymentSelector picks exactly one requirement from the policy-filtered
// list. The default selects the first remaining entry.
type PaymentSelector func(version ProtocolVersion, requirements []PaymentRequirements) (PaymentRequirements, bool)

func firstSelector(_ ProtocolVersion, requirements []PaymentRequirements) (PaymentRequirements, bool) {
	if len(requirements) == 0 {
		return PaymentRequirements{}, false
	}
	return requirements[0], true
}

type PaymentCreationIO struct {
	Version      ProtocolVersion
	Requirements PaymentRequirements
}

// Client is the payment engine: given a decoded challenge, it filters,
// selects, and constructs a signed payload via the registered scheme
// handler. It does not perform the HTTP retry itself — that belongs to the
// transport the engine is embedded in (see adapters/nethttp's
// RoundTripper) — only the selection pipeline and payload construction.
type Client struct {
	registry  *SchemeRegistry[SchemeNetworkClient]
	policies  []PaymentPolicy
	selector  PaymentSelector
	hooks     *HookSet[PaymentCreationIO, PartialPaymentPayload]
	logger    zerolog.Logger
}

type ClientOption func(*Client)

func WithClientScheme(version ProtocolVersion, network Network, scheme string, handler SchemeNetworkClient) ClientOption {
	return func(c *Client) { c.registry.Register(version, network, scheme, handler) }
}

func WithPolicy(policy PaymentPolicy) ClientOption {
	return func(c *Client) { c.policies = append(c.policies, policy) }
}

func WithSelector(selector PaymentSelector) ClientOption {
	return func(c *Client) { c.selector = selector }
}

func WithClientLogger(logger zerolog.Logger) ClientOption {
	return func(c *Client) { c.logger = logger }
}

func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		registry: NewSchemeRegistry[SchemeNetworkClient](),
		selector: firstSelector,
		hooks:    NewHookSet[PaymentCreationIO, PartialPaymentPayload](),
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) OnBeforePaymentCreation(hook BeforeHook[PaymentCreationIO]) *Client {
	c.hooks.OnBefore(hook)
	return c
}

func (c *Client) OnAfterPaymentCreation(hook AfterHook[PaymentCreationIO, PartialPaymentPayload]) *Client {
	c.hooks.OnAfter(hook)
	return c
}

func (c *Client) OnPaymentCreationFailure(hook FailureHook[PaymentCreationIO, PartialPaymentPayload]) *Client {
	c.hooks.OnFailure(hook)
	return c
}

// SelectAndPay runs the full selection pipeline against a decoded
// challenge and returns the finished PaymentPayload ready to encode onto
// the retry.
func (c *Client) SelectAndPay(ctx context.Context, version ProtocolVersion, challenge PaymentRequired) (PaymentPayload, error) {
	candidates := make([]PaymentRequirements, 0, len(challenge.Accepts))
	for _, req := range challenge.Accepts {
		if _, ok := c.registry.Lookup(version, req.Network, req.Scheme); ok {
			candidates = append(candidates, req)
		}
	}

	for _, policy := range c.policies {
		candidates = policy(version, candidates)
		if len(candidates) == 0 {
			return PaymentPayload{}, NewPaymentError(ErrNoAcceptableOption, "all options filtered out by policy")
		}
	}
	if len(candidates) == 0 {
		return PaymentPayload{}, NewPaymentError(ErrNoAcceptableOption, "no registered client handler for any offered option")
	}

	chosen, ok := c.selector(version, candidates)
	if !ok {
		return PaymentPayload{}, NewPaymentError(ErrNoAcceptableOption, "selector returned no requirement")
	}

	handler, ok := c.registry.Lookup(version, chosen.Network, chosen.Scheme)
	if !ok {
		return PaymentPayload{}, NewPaymentError(ErrNoAcceptableOption, "selected requirement has no registered handler")
	}

	in := PaymentCreationIO{Version: version, Requirements: chosen}
	partial, err := Dispatch(ctx, c.hooks, in, func(ctx context.Context, in PaymentCreationIO) (PartialPaymentPayload, error) {
		return handler.CreatePaymentPayload(ctx, in.Version, in.Requirements)
	})
	if err != nil {
		return PaymentPayload{}, err
	}

	payload := PaymentPayload{
		T402Version: int(version),
		Payload:     partial.Payload,
	}
	if version == V2 {
		payload.Resource = challenge.Resource.URL
		payload.Accepted = &chosen
		payload.Extensions = challenge.Extensions
	} else {
		payload.Scheme = chosen.Scheme
		payload.Network = chosen.Network
	}

	c.logger.Debug().Str("scheme", chosen.Scheme).Str("network", string(chosen.Network)).Msg("payment payload created")
	return payload, nil
}

// EncodeForRetry encodes payload into the header name/value appropriate
// for version, for a transport to attach to the retried request alongside
// Access-Control-Expose-Headers.
func EncodeForRetry(version ProtocolVersion, payload PaymentPayload) (headerName, headerValue string, err error) {
	encoded, err := EncodeHeader(payload)
	if err != nil {
		return "", "", err
	}
	if version == V1 {
		return HeaderPaymentV1, encoded, nil
	}
	return HeaderPaymentSignature, encoded, nil
}
