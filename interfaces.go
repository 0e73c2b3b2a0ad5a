package t402

import "context"

// RequestContext is the per-request context passed to dynamic price/payTo
// resolvers and to extension enrichment. It is deliberately minimal and
// transport-agnostic; concrete adapters (adapters/nethttp, adapters/gin)
// populate it from the incoming request.
type RequestContext struct {
	Method  string
	Path    string
	Headers map[string][]string
	Query   map[string][]string
	// Raw carries the transport-specific request object (e.g. *http.Request
	// or *gin.Context) for resolvers that need more than method/path/headers.
	Raw interface{}
}

// TransportMethod and TransportPath implement extensions/discovery's
// TransportContext structural interface.
func (c *RequestContext) TransportMethod() string { return c.Method }
func (c *RequestContext) TransportPath() string   { return c.Path }

// SchemeNetworkClient is the client face of a scheme/network pair: given a
// protocol version and a chosen requirement, produce a signed payload.
type SchemeNetworkClient interface {
	Scheme() string
	CreatePaymentPayload(ctx context.Context, version ProtocolVersion, requirements PaymentRequirements) (PartialPaymentPayload, error)
}

// SchemeNetworkServer is the server face: turn a Price into a concrete
// AssetAmount, then enrich a base requirement with facilitator-reported
// metadata.
type SchemeNetworkServer interface {
	Scheme() string
	ParsePrice(ctx context.Context, price Price, network Network) (AssetAmount, error)
	EnhancePaymentRequirements(ctx context.Context, base PaymentRequirements, supported SupportedKind, facilitatorExtensions map[string]interface{}) (PaymentRequirements, error)
}

// MoneyParserRegistrar is implemented by server faces that accept chained
// fallback money parsers in addition to their built-in parsing.
type MoneyParserRegistrar interface {
	RegisterMoneyParser(parser MoneyParser)
}

// MoneyParser converts a human-readable amount into atomic units for a
// network. Parsers are chained; the first to return a non-nil result wins.
type MoneyParser func(amount float64, network Network) (*AssetAmount, error)

// SchemeNetworkFacilitator is the facilitator face: verify and settle a
// payload against a requirement, and report what this handler supports.
type SchemeNetworkFacilitator interface {
	Scheme() string
	Verify(ctx context.Context, payload PaymentPayload, requirements PaymentRequirements) (VerifyResponse, error)
	Settle(ctx context.Context, payload PaymentPayload, requirements PaymentRequirements) (SettleResponse, error)
	SupportedKinds() []SupportedKind
}

// ExtensionAdvertiser is optionally implemented by facilitator scheme
// handlers that contribute extension keys to the Supported Response.
type ExtensionAdvertiser interface {
	ExtensionKeys() []string
}

// SignerAdvertiser is optionally implemented by facilitator scheme handlers
// that hold on-chain signing addresses, keyed by CAIP family pattern
// ("eip155:*" -> [addresses]).
type SignerAdvertiser interface {
	Signers() map[string][]string
}

// FacilitatorClient is the contract the gate depends on; the core never
// depends on HTTP directly, only on these three methods, so a facilitator
// may be in-process (facilitator.go) or a JSON-RPC client
// (facilitatorclient package).
type FacilitatorClient interface {
	Verify(ctx context.Context, payload PaymentPayload, requirements PaymentRequirements) (VerifyResponse, error)
	Settle(ctx context.Context, payload PaymentPayload, requirements PaymentRequirements) (SettleResponse, error)
	GetSupported(ctx context.Context) (SupportedResponse, error)
}

// ResourceExtension lets the resource server enrich a route's declared
// extension with transport-specific metadata (e.g. absolute resource URL,
// HTTP method) before the 402 challenge is emitted. Declaration and the
// transport context are untyped because each extension defines its own
// declaration shape; see extensions/discovery for a concrete instance.
type ResourceExtension interface {
	Key() string
	EnrichDeclaration(declaration interface{}, transportContext interface{}) interface{}
}
