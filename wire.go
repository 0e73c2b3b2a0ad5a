package t402

import (
	"encoding/base64"
	"encoding/json"
	"net/textproto"
)

// EncodeHeader base64-encodes the canonical (compact, no trailing
// whitespace) JSON serialization of v, suitable for any of the three wire
// headers.
func EncodeHeader(v interface{}) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// DecodeHeader reverses EncodeHeader into dst. It distinguishes a malformed
// value (bad base64 or bad JSON) from an absent one by always returning an
// error for non-empty-but-invalid input; callers check header presence
// before calling this.
func DecodeHeader(encoded string, dst interface{}) error {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return NewPaymentError(ErrMalformedWire, "invalid base64: "+err.Error())
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return NewPaymentError(ErrMalformedWire, "invalid json: "+err.Error())
	}
	return nil
}

// Headers is a minimal transport-agnostic header bag; adapters populate it
// from the concrete request/response object (http.Header, gin.Context,
// ...). Lookups are case-insensitive via MIME canonicalization, matching
// HTTP header semantics.
type Headers map[string]string

func NewHeaders() Headers { return make(Headers) }

func (h Headers) Set(name, value string) {
	h[textproto.CanonicalMIMEHeaderKey(name)] = value
}

func (h Headers) Get(name string) (string, bool) {
	v, ok := h[textproto.CanonicalMIMEHeaderKey(name)]
	return v, ok
}

// DecodeIncomingPayment inspects both header families on an incoming
// request and decodes whichever is present, preferring v2
// (PAYMENT-SIGNATURE) over v1 (X-PAYMENT) when both are present. present is
// false (with a nil error) when neither header is set — the distinct
// "missing" condition the wire codec must surface.
func DecodeIncomingPayment(headers Headers) (payload PaymentPayload, version ProtocolVersion, present bool, err error) {
	if v2, ok := headers.Get(HeaderPaymentSignature); ok && v2 != "" {
		if err := DecodeHeader(v2, &payload); err != nil {
			return PaymentPayload{}, V2, true, err
		}
		return payload, V2, true, nil
	}
	if v1, ok := headers.Get(HeaderPaymentV1); ok && v1 != "" {
		if err := DecodeHeader(v1, &payload); err != nil {
			return PaymentPayload{}, V1, true, err
		}
		payload.T402Version = 1
		return payload, V1, true, nil
	}
	return PaymentPayload{}, 0, false, nil
}

// EncodeChallenge encodes a PaymentRequired for the PAYMENT-REQUIRED header
// (v2) or the 402 response body (v1, where the header is not used).
func EncodeChallenge(pr PaymentRequired) (string, error) {
	return EncodeHeader(pr)
}

// EncodeSettlement encodes a SettleResponse for PAYMENT-RESPONSE (v2) or
// X-PAYMENT-RESPONSE (v1).
func EncodeSettlement(sr SettleResponse) (string, error) {
	return EncodeHeader(sr)
}

// ResponseHeaderFor returns the correct settlement-receipt header name for
// the dialect the handshake was conducted in.
func ResponseHeaderFor(version ProtocolVersion) string {
	if version == V1 {
		return HeaderPaymentResponseV1
	}
	return HeaderPaymentResponseV2
}

// ExposeHeadersValue is the Access-Control-Expose-Headers value naming both
// settlement-receipt headers, so CORS-constrained fetchers can read the
// receipt. The gate sets it on a settled response and the nethttp transport
// on its payment retry.
func ExposeHeadersValue() string { return exposedHeaderList }
