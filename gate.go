package t402

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ResponseBuffer captures status, headers, and body writes from the
// downstream handler until the gate decides to flush, splice, or discard
// them. adapters/nethttp and adapters/gin wrap it behind their own
// concrete ResponseWriter types.
type ResponseBuffer struct {
	status  int
	headers Headers
	body    []byte
	written bool
}

func NewResponseBuffer() *ResponseBuffer {
	return &ResponseBuffer{status: 200, headers: NewHeaders()}
}

func (b *ResponseBuffer) WriteHeader(status int) {
	if !b.written {
		b.status = status
		b.written = true
	}
}

func (b *ResponseBuffer) Write(p []byte) (int, error) {
	if !b.written {
		b.WriteHeader(200)
	}
	b.body = append(b.body, p...)
	return len(p), nil
}

func (b *ResponseBuffer) Header() Headers   { return b.headers }
func (b *ResponseBuffer) StatusCode() int   { return b.status }
func (b *ResponseBuffer) Body() []byte      { return b.body }

// GateResult is what the gate decided to send back to the caller; adapters
// translate it into the concrete transport response.
type GateResult struct {
	Status  int
	Headers Headers
	Body    []byte
}

// VerifyHookIO and SettleHookIO are the (input, output) pairs the Gate's
// hook sets dispatch over.
type VerifyHookIO struct {
	Payload      PaymentPayload
	Requirements PaymentRequirements
}

type SettleHookIO = VerifyHookIO

// PaywallProvider renders an HTML paywall for browser callers. Rendering
// internals (templates, branding) are outside the core; the gate only
// decides when to serve HTML instead of the JSON challenge.
type PaywallProvider interface {
	Render(pr PaymentRequired) string
}

// DefaultFacilitatorFactory, when non-nil, constructs the well-known
// fallback facilitator client used when a Gate is configured with no
// attached facilitators. The facilitatorclient package sets this from its
// init() via a blank import, keeping the core free of an HTTP dependency
// (mirrors database/sql driver registration).
var DefaultFacilitatorFactory func() FacilitatorClient

// Gate is the resource-server payment gate: the state machine that turns a
// protected route into a 402 challenge, matches an incoming payment to a
// freshly built requirement, and runs verify -> handler -> settle with the
// handler's output buffered until settlement. It is framework-agnostic;
// adapters/nethttp and adapters/gin drive it from a concrete HTTP stack.
type Gate struct {
	router         *Router
	serverRegistry *SchemeRegistry[SchemeNetworkServer]
	facilitators   []FacilitatorClient
	extensions     map[string]ResourceExtension
	paywall        PaywallProvider
	logger         zerolog.Logger

	verifyHooks *HookSet[VerifyHookIO, VerifyResponse]
	settleHooks *HookSet[SettleHookIO, SettleResponse]

	version ProtocolVersion

	initOnce sync.Once
	initErr  error
	support  *supportIndex
}

type GateOption func(*Gate)

func WithRoutes(routes ...RouteConfig) GateOption {
	return func(g *Gate) { g.router = NewRouter(routes...) }
}

func WithServerScheme(version ProtocolVersion, network Network, scheme string, handler SchemeNetworkServer) GateOption {
	return func(g *Gate) { g.serverRegistry.Register(version, network, scheme, handler) }
}

func WithFacilitators(clients ...FacilitatorClient) GateOption {
	return func(g *Gate) { g.facilitators = append(g.facilitators, clients...) }
}

func WithGateExtension(ext ResourceExtension) GateOption {
	return func(g *Gate) { g.extensions[ext.Key()] = ext }
}

func WithGateLogger(logger zerolog.Logger) GateOption {
	return func(g *Gate) { g.logger = logger }
}

func WithPaywall(provider PaywallProvider) GateOption {
	return func(g *Gate) { g.paywall = provider }
}

func WithProtocolVersion(version ProtocolVersion) GateOption {
	return func(g *Gate) { g.version = version }
}

func NewGate(opts ...GateOption) *Gate {
	g := &Gate{
		router:         NewRouter(),
		serverRegistry: NewSchemeRegistry[SchemeNetworkServer](),
		extensions:     make(map[string]ResourceExtension),
		logger:         zerolog.Nop(),
		verifyHooks:    NewHookSet[VerifyHookIO, VerifyResponse](),
		settleHooks:    NewHookSet[SettleHookIO, SettleResponse](),
		version:        V2,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Gate) OnBeforeVerify(hook BeforeHook[VerifyHookIO]) *Gate {
	g.verifyHooks.OnBefore(hook)
	return g
}

func (g *Gate) OnAfterVerify(hook AfterHook[VerifyHookIO, VerifyResponse]) *Gate {
	g.verifyHooks.OnAfter(hook)
	return g
}

func (g *Gate) OnVerifyFailure(hook FailureHook[VerifyHookIO, VerifyResponse]) *Gate {
	g.verifyHooks.OnFailure(hook)
	return g
}

func (g *Gate) OnBeforeSettle(hook BeforeHook[SettleHookIO]) *Gate {
	g.settleHooks.OnBefore(hook)
	return g
}

func (g *Gate) OnAfterSettle(hook AfterHook[SettleHookIO, SettleResponse]) *Gate {
	g.settleHooks.OnAfter(hook)
	return g
}

func (g *Gate) OnSettleFailure(hook FailureHook[SettleHookIO, SettleResponse]) *Gate {
	g.settleHooks.OnFailure(hook)
	return g
}

func (g *Gate) Router() *Router { return g.router }

// ensureInitialized performs the one-time lazy init: query every attached
// facilitator's getSupported, then validate every declared route against
// the populated maps, surfacing a single RouteConfigurationError. Guarded
// by sync.Once so concurrent first requests observe one completion (5's
// "lazy initialization MUST be guarded").
func (g *Gate) ensureInitialized(ctx context.Context) error {
	g.initOnce.Do(func() {
		if len(g.facilitators) == 0 && DefaultFacilitatorFactory != nil {
			g.facilitators = append(g.facilitators, DefaultFacilitatorFactory())
		}
		idx, err := buildSupportIndex(ctx, g.facilitators)
		if err != nil {
			g.initErr = err
			return
		}
		g.support = idx
		if err := validateRoutes(g.router.Routes(), g.version, g.serverRegistry, idx); err != nil {
			g.initErr = err
			return
		}
		g.logger.Info().Int("routes", len(g.router.Routes())).Msg("gate initialized")
	})
	return g.initErr
}

// challenge builds a fresh 402 PaymentRequired for a route.
func (g *Gate) challenge(ctx context.Context, route *RouteConfig, reqCtx *RequestContext, resourceURL string) (PaymentRequired, error) {
	b := &requirementBuilder{
		version:        g.version,
		serverRegistry: g.serverRegistry,
		extensionByKey: g.extensions,
		support:        g.support,
	}
	return b.build(ctx, route, reqCtx, resourceURL)
}

// challengeResult packages a PaymentRequired into the wire shape for the
// dialect in use: under v2 the PAYMENT-REQUIRED header is authoritative and
// the body repeats it for non-header-aware clients; under v1 the body alone
// carries the challenge.
func challengeResult(version ProtocolVersion, pr PaymentRequired, invalidReason string) (*GateResult, error) {
	if invalidReason != "" {
		pr.Error = invalidReason
	}
	headers := NewHeaders()
	if version != V1 {
		encoded, err := EncodeChallenge(pr)
		if err != nil {
			return nil, err
		}
		headers.Set(HeaderPaymentRequiredV2, encoded)
	}
	headers.Set("Content-Type", "application/json")
	body, _ := json.Marshal(pr)
	return &GateResult{Status: 402, Headers: headers, Body: body}, nil
}

// isBrowserRequest reports whether the caller looks like an interactive
// browser: Accept includes text/html and the User-Agent is Mozilla-like.
func isBrowserRequest(headers Headers) bool {
	accept, _ := headers.Get("Accept")
	ua, _ := headers.Get("User-Agent")
	return strings.Contains(accept, "text/html") && strings.Contains(ua, "Mozilla")
}

// HandlerFunc runs the downstream resource handler with its output
// captured into a ResponseBuffer. It must not write to any real transport
// response; only to the buffer passed to it.
type HandlerFunc func(ctx context.Context, buf *ResponseBuffer) error

// ProcessRequest drives one handshake through verify -> handler -> settle
// for a route already known to require payment (callers check
// Router().Match + requiresPayment first so public routes never enter the
// gate at all).
func (g *Gate) ProcessRequest(ctx context.Context, route *RouteConfig, reqCtx *RequestContext, resourceURL string, headers Headers, handler HandlerFunc) (*GateResult, error) {
	if err := g.ensureInitialized(ctx); err != nil {
		return nil, err
	}

	handshakeID := uuid.NewString()
	log := g.logger.With().Str("handshake", handshakeID).Str("route", route.Pattern).Logger()

	pr, err := g.challenge(ctx, route, reqCtx, resourceURL)
	if err != nil {
		return nil, err
	}

	payload, version, present, decodeErr := DecodeIncomingPayment(headers)
	if decodeErr != nil || !present {
		if !present && g.paywall != nil && isBrowserRequest(headers) {
			html := g.paywall.Render(pr)
			hdrs := NewHeaders()
			hdrs.Set("Content-Type", "text/html; charset=utf-8")
			if g.version != V1 {
				if encoded, err := EncodeChallenge(pr); err == nil {
					hdrs.Set(HeaderPaymentRequiredV2, encoded)
				}
			}
			return &GateResult{Status: 402, Headers: hdrs, Body: []byte(html)}, nil
		}
		log.Debug().Bool("present", present).Msg("no usable payment header, sending challenge")
		return challengeResult(g.version, pr, "")
	}

	matched, ok := matchAccepted(version, payload, pr.Accepts)
	if !ok {
		log.Debug().Msg("payload did not match any current accepts entry")
		return challengeResult(g.version, pr, "")
	}

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	key := tripleKey{version, matched.Network, matched.Scheme}
	fc := g.facilitatorFor(key)
	if fc == nil {
		return challengeResult(g.version, pr, "no facilitator available for this payment kind")
	}

	verifyIn := VerifyHookIO{Payload: payload, Requirements: matched}
	verifyResp, verr := Dispatch(ctx, g.verifyHooks, verifyIn, func(ctx context.Context, in VerifyHookIO) (VerifyResponse, error) {
		return fc.Verify(ctx, in.Payload, in.Requirements)
	})
	if verr != nil {
		log.Debug().Err(verr).Msg("verify failed")
		return challengeResult(g.version, pr, verr.Error())
	}
	if !verifyResp.IsValid {
		log.Debug().Str("reason", verifyResp.InvalidReason).Msg("verify rejected payload")
		return challengeResult(g.version, pr, verifyResp.InvalidReason)
	}

	buf := NewResponseBuffer()
	if err := handler(ctx, buf); err != nil {
		return nil, err
	}

	if buf.StatusCode() >= 400 {
		log.Debug().Int("status", buf.StatusCode()).Msg("handler error, skipping settlement")
		return &GateResult{Status: buf.StatusCode(), Headers: buf.Header(), Body: buf.Body()}, nil
	}

	settleIn := SettleHookIO{Payload: payload, Requirements: matched}
	settleResp, serr := Dispatch(ctx, g.settleHooks, settleIn, func(ctx context.Context, in SettleHookIO) (SettleResponse, error) {
		return fc.Settle(ctx, in.Payload, in.Requirements)
	})
	if serr != nil || !settleResp.Success {
		reason := settleResp.ErrorReason
		if serr != nil {
			reason = serr.Error()
		}
		log.Debug().Str("reason", reason).Msg("settlement failed, discarding buffered response")
		body, _ := json.Marshal(map[string]string{"error": "Settlement failed", "details": reason})
		hdrs := NewHeaders()
		hdrs.Set("Content-Type", "application/json")
		return &GateResult{Status: 402, Headers: hdrs, Body: body}, nil
	}

	settlementHeader, err := EncodeSettlement(settleResp)
	if err != nil {
		return nil, err
	}
	headersOut := buf.Header()
	headersOut.Set(ResponseHeaderFor(version), settlementHeader)
	headersOut.Set(HeaderExposeHeaders, ExposeHeadersValue())
	log.Info().Str("tx", settleResp.Transaction).Msg("settled")
	return &GateResult{Status: buf.StatusCode(), Headers: headersOut, Body: buf.Body()}, nil
}

// facilitatorFor resolves the facilitator bound to a triple, falling back
// to the first attached facilitator. The resolved client instance serves
// both verify and settle within one handshake so the two calls never land
// on different facilitators.
func (g *Gate) facilitatorFor(key tripleKey) FacilitatorClient {
	if fc, ok := g.support.facilitators[key]; ok {
		return fc
	}
	if len(g.facilitators) > 0 {
		return g.facilitators[0]
	}
	return nil
}

// matchAccepted finds the accepts entry a payload resolves to: byte
// (canonical) equality of Accepted under v2, (scheme, network) equality
// under v1. No match means the payload is treated as unpaid — this is what
// prevents a client from pinning a stale offer.
func matchAccepted(version ProtocolVersion, payload PaymentPayload, accepts []PaymentRequirements) (PaymentRequirements, bool) {
	if version == V1 {
		for _, req := range accepts {
			if req.Scheme == payload.Scheme && req.Network == payload.Network {
				return req, true
			}
		}
		return PaymentRequirements{}, false
	}
	if payload.Accepted == nil {
		return PaymentRequirements{}, false
	}
	for _, req := range accepts {
		if CanonicalEqual(*payload.Accepted, req) {
			return req, true
		}
	}
	return PaymentRequirements{}, false
}
