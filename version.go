package t402

// ProtocolVersion distinguishes the legacy (v1) and CAIP-2 (v2) wire
// dialects. Registries are keyed by version first so both coexist without
// translation; see the Protocol Version Bridge in the package doc.
type ProtocolVersion int

const (
	// V1 is the legacy dialect: short network names, X-PAYMENT* headers,
	// matching by (scheme, network) rather than byte-equality of a
	// requirement echo.
	V1 ProtocolVersion = 1
	// V2 is the CAIP-2 dialect: eip155:8453-style network identifiers,
	// PAYMENT-* headers, matching by echoing the exact accepted requirement.
	V2 ProtocolVersion = 2
)

// Header names for the two wire dialects. v2 headers take precedence when
// both are present on a request.
const (
	HeaderPaymentRequiredV2 = "PAYMENT-REQUIRED"
	HeaderPaymentSignature  = "PAYMENT-SIGNATURE"
	HeaderPaymentResponseV2 = "PAYMENT-RESPONSE"

	HeaderPaymentV1         = "X-PAYMENT"
	HeaderPaymentResponseV1 = "X-PAYMENT-RESPONSE"

	HeaderExposeHeaders = "Access-Control-Expose-Headers"
)

const exposedHeaderList = "PAYMENT-RESPONSE,X-PAYMENT-RESPONSE"
