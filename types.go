package t402

import (
	"bytes"
	"encoding/json"
)

// Price is either a concrete AssetAmount or a human-readable quantity such
// as "$0.001" that a scheme's registered MoneyParser resolves to atomic
// units for a given network. Routes declare Price as interface{}; the
// Requirement Builder hands it to the scheme's ParsePrice, which
// type-switches on it.
type Price interface{}

// AssetAmount is an exact, scheme-resolved payment amount.
type AssetAmount struct {
	Amount string                 `json:"amount"` // atomic units, decimal string (bigint-sized)
	Asset  string                 `json:"asset"`
	Extra  map[string]interface{} `json:"extra,omitempty"`
}

// PaymentRequirements is a single offer: this scheme, on this network, for
// this amount, to this recipient. Built by the resource server per request
// and immutable for the lifetime of one handshake.
type PaymentRequirements struct {
	Scheme            string                 `json:"scheme"`
	Network           Network                `json:"network"`
	Asset             string                 `json:"asset"`
	Amount            string                 `json:"amount"`
	PayTo             string                 `json:"payTo"`
	MaxTimeoutSeconds int                    `json:"maxTimeoutSeconds"`
	Resource          string                 `json:"resource,omitempty"`
	Description       string                 `json:"description,omitempty"`
	MimeType          string                 `json:"mimeType,omitempty"`
	Extra             map[string]interface{} `json:"extra,omitempty"`
}

// DefaultMaxTimeoutSeconds is used when a route does not declare one.
const DefaultMaxTimeoutSeconds = 300

// ResourceInfo describes the gated resource in the 402 challenge.
type ResourceInfo struct {
	URL         string `json:"url"`
	Description string `json:"description,omitempty"`
	MimeType    string `json:"mimeType,omitempty"`
}

// PaymentRequired is the 402 challenge body/header (v2) or body (v1).
type PaymentRequired struct {
	T402Version int                    `json:"t402Version"`
	Error       string                 `json:"error,omitempty"`
	Resource    ResourceInfo           `json:"resource"`
	Accepts     []PaymentRequirements  `json:"accepts"`
	Extensions  map[string]interface{} `json:"extensions,omitempty"`
}

// PartialPaymentPayload is what a client scheme handler returns before the
// gate-facing fields (resource/accepted/extensions) are attached.
type PartialPaymentPayload struct {
	Payload json.RawMessage `json:"payload"`
}

// PaymentPayload is the signed acceptance of exactly one requirement. Under
// v2, Accepted is required and compared (CanonicalEqual) against the
// requirements the gate built; Resource is carried but not compared. Under
// v1, the Resource/Accepted echo is absent and matching falls back to
// (scheme, network).
type PaymentPayload struct {
	T402Version int                    `json:"t402Version"`
	Resource    string                 `json:"resource,omitempty"`
	Accepted    *PaymentRequirements   `json:"accepted,omitempty"`
	Scheme      string                 `json:"scheme,omitempty"`
	Network     Network                `json:"network,omitempty"`
	Payload     json.RawMessage        `json:"payload"`
	Extensions  map[string]interface{} `json:"extensions,omitempty"`
}

// VerifyResponse is the facilitator's verdict on a payload.
type VerifyResponse struct {
	IsValid       bool   `json:"isValid"`
	InvalidReason string `json:"invalidReason,omitempty"`
	Payer         string `json:"payer,omitempty"`
}

// SettleResponse is the facilitator's settlement receipt.
type SettleResponse struct {
	Success     bool    `json:"success"`
	ErrorReason string  `json:"errorReason,omitempty"`
	Payer       string  `json:"payer,omitempty"`
	Transaction string  `json:"transaction,omitempty"`
	Network     Network `json:"network,omitempty"`
}

// VerifyRequest and SettleRequest are the facilitator JSON-RPC bodies.
type VerifyRequest struct {
	PaymentPayload      PaymentPayload      `json:"paymentPayload"`
	PaymentRequirements PaymentRequirements `json:"paymentRequirements"`
}

type SettleRequest struct {
	PaymentPayload      PaymentPayload      `json:"paymentPayload"`
	PaymentRequirements PaymentRequirements `json:"paymentRequirements"`
}

// SupportedKind is one (version, scheme, network) a facilitator can serve.
type SupportedKind struct {
	T402Version int                    `json:"t402Version"`
	Scheme      string                 `json:"scheme"`
	Network     Network                `json:"network"`
	Extra       map[string]interface{} `json:"extra,omitempty"`
}

// SupportedResponse bundles every kind a facilitator (or the union of all
// attached facilitators) supports, plus declared extensions and signer
// addresses per CAIP family pattern.
type SupportedResponse struct {
	Kinds      []SupportedKind     `json:"kinds"`
	Extensions []string            `json:"extensions,omitempty"`
	Signers    map[string][]string `json:"signers,omitempty"`
}

// ResourceConfig describes one payment option declared on a route: the
// scheme/network to offer it under, a static or resolver-driven price and
// payee, and an optional per-option timeout override.
type ResourceConfig struct {
	Scheme            string
	Network           Network
	Price             Price
	PayTo             PayToResolver
	Description       string
	MimeType          string
	MaxTimeoutSeconds int
	Extra             map[string]interface{}
}

// PayToResolver yields the recipient address, static or request-derived.
type PayToResolver func(ctx *RequestContext) (string, error)

// StaticPayTo wraps a fixed address as a PayToResolver.
func StaticPayTo(address string) PayToResolver {
	return func(*RequestContext) (string, error) { return address, nil }
}

// canonicalize re-marshals a value through a map[string]interface{} round
// trip so object key order never affects byte comparison. The "accepted"
// echo and the server-built "accepts" entries are always compared after
// canonicalization, never as raw JSON bytes.
func canonicalize(v interface{}) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var generic interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}
	return marshalSorted(generic)
}

func marshalSorted(v interface{}) ([]byte, error) {
	switch val := v.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sortStrings(keys)
		var buf bytes.Buffer
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, _ := json.Marshal(k)
			buf.Write(kb)
			buf.WriteByte(':')
			vb, err := marshalSorted(val[k])
			if err != nil {
				return nil, err
			}
			buf.Write(vb)
		}
		buf.WriteByte('}')
		return buf.Bytes(), nil
	case []interface{}:
		var buf bytes.Buffer
		buf.WriteByte('[')
		for i, e := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			eb, err := marshalSorted(e)
			if err != nil {
				return nil, err
			}
			buf.Write(eb)
		}
		buf.WriteByte(']')
		return buf.Bytes(), nil
	default:
		return json.Marshal(val)
	}
}

func sortStrings(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}

// CanonicalEqual reports whether a and b serialize to identical JSON once
// object keys are sorted recursively — structural equality, independent of
// map iteration order. Used for the "accepted" vs "accepts" entry match
// and anywhere else a requirement echo must be byte-equal.
func CanonicalEqual(a, b interface{}) bool {
	ab, err := canonicalize(a)
	if err != nil {
		return false
	}
	bb, err := canonicalize(b)
	if err != nil {
		return false
	}
	return bytes.Equal(ab, bb)
}
