// Package t402 implements the t402 payment handshake over HTTP 402: a
// resource server advertises price and payment kinds for a resource, a
// client retries with a signed payment authorization, a facilitator
// verifies and settles it on-chain, and the server releases the buffered
// response only after settlement succeeds.
//
// The package is organized around four pieces that share one registry
// shape:
//
//   - the wire codec (wire.go): base64-JSON headers in two dialects, the
//     legacy X-PAYMENT* family (v1) and the PAYMENT-* family (v2)
//   - the resource-server payment gate (gate.go): route matching,
//     requirement building, verify -> handler -> settle with response
//     buffering
//   - the facilitator core (facilitator.go): verify/settle dispatch to
//     scheme handlers with lifecycle hooks
//   - the client payment engine (client.go): policy filtering, scheme
//     selection, payload construction
//
// Scheme handlers are registered under a (protocol version, network,
// scheme) triple, where the network may be a concrete CAIP-2 identifier
// ("eip155:8453"), a family wildcard ("eip155:*"), or a legacy v1 short
// name ("base-sepolia"). Concrete mechanisms live under mechanisms/ (EVM
// EIP-3009, Solana SPL-Token); HTTP bindings under adapters/ and
// facilitatorclient.
package t402
