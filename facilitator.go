package t402

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

// Facilitator is a registry of scheme handlers addressable by (version,
// network, scheme), dispatching verify/settle through the shared hook
// framework. It holds no per-request state — facilitators are pure
// functions of their scheme handlers plus their hooks.
type Facilitator struct {
	registry *SchemeRegistry[SchemeNetworkFacilitator]
	logger   zerolog.Logger

	verifyHooks *HookSet[VerifyHookIO, VerifyResponse]
	settleHooks *HookSet[SettleHookIO, SettleResponse]

	// settleCache, when set, lets the facilitator de-duplicate repeated
	// settle calls for the same payload — the gate itself must never cache
	// payloads (9's design note), but the facilitator is the documented
	// place for replay handling. Only successful receipts are stored, after
	// settlement returns; calls for the same payload that overlap in time
	// each reach the handler.
	settleCache SettleCache
}

type FacilitatorOption func(*Facilitator)

func WithFacilitatorScheme(version ProtocolVersion, network Network, scheme string, handler SchemeNetworkFacilitator) FacilitatorOption {
	return func(f *Facilitator) { f.registry.Register(version, network, scheme, handler) }
}

func WithFacilitatorLogger(logger zerolog.Logger) FacilitatorOption {
	return func(f *Facilitator) { f.logger = logger }
}

func WithSettleCache(cache SettleCache) FacilitatorOption {
	return func(f *Facilitator) { f.settleCache = cache }
}

func NewFacilitator(opts ...FacilitatorOption) *Facilitator {
	f := &Facilitator{
		registry:    NewSchemeRegistry[SchemeNetworkFacilitator](),
		logger:      zerolog.Nop(),
		verifyHooks: NewHookSet[VerifyHookIO, VerifyResponse](),
		settleHooks: NewHookSet[SettleHookIO, SettleResponse](),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *Facilitator) OnBeforeVerify(hook BeforeHook[VerifyHookIO]) *Facilitator {
	f.verifyHooks.OnBefore(hook)
	return f
}

func (f *Facilitator) OnAfterVerify(hook AfterHook[VerifyHookIO, VerifyResponse]) *Facilitator {
	f.verifyHooks.OnAfter(hook)
	return f
}

func (f *Facilitator) OnVerifyFailure(hook FailureHook[VerifyHookIO, VerifyResponse]) *Facilitator {
	f.verifyHooks.OnFailure(hook)
	return f
}

func (f *Facilitator) OnBeforeSettle(hook BeforeHook[SettleHookIO]) *Facilitator {
	f.settleHooks.OnBefore(hook)
	return f
}

func (f *Facilitator) OnAfterSettle(hook AfterHook[SettleHookIO, SettleResponse]) *Facilitator {
	f.settleHooks.OnAfter(hook)
	return f
}

func (f *Facilitator) OnSettleFailure(hook FailureHook[SettleHookIO, SettleResponse]) *Facilitator {
	f.settleHooks.OnFailure(hook)
	return f
}

func (f *Facilitator) resolve(payload PaymentPayload, requirements PaymentRequirements) (SchemeNetworkFacilitator, error) {
	if payload.Scheme != "" && payload.Scheme != requirements.Scheme {
		return nil, NewPaymentError(ErrMalformedWire, "payload and requirements disagree on scheme")
	}
	if payload.Network != "" && payload.Network != requirements.Network {
		return nil, NewPaymentError(ErrMalformedWire, "payload and requirements disagree on network")
	}
	version := ProtocolVersion(payload.T402Version)
	if version == 0 {
		version = V2
	}
	handler, ok := f.registry.Lookup(version, requirements.Network, requirements.Scheme)
	if !ok {
		return nil, NewPaymentError(ErrMissingScheme, fmt.Sprintf("no handler for %s/%s", requirements.Network, requirements.Scheme))
	}
	return handler, nil
}

// Verify rejects immediately when payload and requirements disagree on
// scheme or network; otherwise dispatches to the matched handler through
// the verify hook set.
func (f *Facilitator) Verify(ctx context.Context, payload PaymentPayload, requirements PaymentRequirements) (VerifyResponse, error) {
	handler, err := f.resolve(payload, requirements)
	if err != nil {
		return VerifyResponse{IsValid: false, InvalidReason: err.Error()}, nil
	}
	in := VerifyHookIO{Payload: payload, Requirements: requirements}
	resp, err := Dispatch(ctx, f.verifyHooks, in, func(ctx context.Context, in VerifyHookIO) (VerifyResponse, error) {
		return handler.Verify(ctx, in.Payload, in.Requirements)
	})
	if err != nil {
		return VerifyResponse{IsValid: false, InvalidReason: err.Error()}, nil
	}
	return resp, nil
}

// Settle dispatches the same way as Verify but with a separate hook set. An
// aborting before-hook produces a non-success SettleResponse rather than an
// error. When a settle cache is configured, a repeat of the same payload
// (by content hash) returns the cached receipt instead of re-settling.
func (f *Facilitator) Settle(ctx context.Context, payload PaymentPayload, requirements PaymentRequirements) (SettleResponse, error) {
	handler, err := f.resolve(payload, requirements)
	if err != nil {
		return SettleResponse{Success: false, ErrorReason: err.Error()}, nil
	}

	if f.settleCache != nil {
		if cached, hit := f.settleCache.Get(ctx, payload); hit {
			return cached, nil
		}
	}

	in := SettleHookIO{Payload: payload, Requirements: requirements}
	resp, err := Dispatch(ctx, f.settleHooks, in, func(ctx context.Context, in SettleHookIO) (SettleResponse, error) {
		return handler.Settle(ctx, in.Payload, in.Requirements)
	})
	if err != nil {
		return SettleResponse{Success: false, ErrorReason: err.Error()}, nil
	}
	if f.settleCache != nil && resp.Success {
		f.settleCache.Put(ctx, payload, resp)
	}
	return resp, nil
}

// GetSupported aggregates every registered handler's SupportedKinds, the
// union of advertised extension keys, and a signers map per CAIP family
// pattern. Calling it repeatedly yields the same set because the registry
// is frozen after initialization.
func (f *Facilitator) GetSupported(ctx context.Context) (SupportedResponse, error) {
	entries := f.registry.Enumerate()
	resp := SupportedResponse{Signers: make(map[string][]string)}
	seenKind := make(map[tripleKey]bool)
	seenExt := make(map[string]bool)
	seenSigner := make(map[string]map[string]bool)
	for _, e := range entries {
		for _, kind := range e.Handler.SupportedKinds() {
			key := tripleKey{ProtocolVersion(kind.T402Version), kind.Network, kind.Scheme}
			if seenKind[key] {
				continue
			}
			seenKind[key] = true
			resp.Kinds = append(resp.Kinds, kind)
		}
		if adv, ok := any(e.Handler).(ExtensionAdvertiser); ok {
			for _, ext := range adv.ExtensionKeys() {
				if !seenExt[ext] {
					seenExt[ext] = true
					resp.Extensions = append(resp.Extensions, ext)
				}
			}
		}
		if adv, ok := any(e.Handler).(SignerAdvertiser); ok {
			for pattern, addrs := range adv.Signers() {
				if seenSigner[pattern] == nil {
					seenSigner[pattern] = make(map[string]bool)
				}
				for _, addr := range addrs {
					if !seenSigner[pattern][addr] {
						seenSigner[pattern][addr] = true
						resp.Signers[pattern] = append(resp.Signers[pattern], addr)
					}
				}
			}
		}
	}
	return resp, nil
}

// AsClient adapts this in-process Facilitator to the FacilitatorClient
// interface the gate depends on, so a gate can attach it directly without
// going through HTTP.
func (f *Facilitator) AsClient() FacilitatorClient { return localFacilitatorClient{f} }

type localFacilitatorClient struct{ f *Facilitator }

func (l localFacilitatorClient) Verify(ctx context.Context, payload PaymentPayload, requirements PaymentRequirements) (VerifyResponse, error) {
	return l.f.Verify(ctx, payload, requirements)
}

func (l localFacilitatorClient) Settle(ctx context.Context, payload PaymentPayload, requirements PaymentRequirements) (SettleResponse, error) {
	return l.f.Settle(ctx, payload, requirements)
}

func (l localFacilitatorClient) GetSupported(ctx context.Context) (SupportedResponse, error) {
	return l.f.GetSupported(ctx)
}

// SettleCache is the facilitator-side replay/idempotency extension point;
// see the idempotency package for a concrete in-memory implementation.
type SettleCache interface {
	Get(ctx context.Context, payload PaymentPayload) (SettleResponse, bool)
	Put(ctx context.Context, payload PaymentPayload, response SettleResponse)
}
