package evm

import (
	t402 "github.com/t402-io/t402-go"
)

// ClientOptions registers the "exact" EVM client face under the eip155
// wildcard (v2) and every legacy short name (v1).
func ClientOptions(signer ClientSigner) []t402.ClientOption {
	c := NewClient(signer)
	opts := []t402.ClientOption{
		t402.WithClientScheme(t402.V2, "eip155:*", SchemeExact, c),
	}
	for legacy := range V1NetworkNames {
		opts = append(opts, t402.WithClientScheme(t402.V1, t402.Network(legacy), SchemeExact, c))
	}
	return opts
}

// GateOptions registers the "exact" EVM server face the same way.
func GateOptions() []t402.GateOption {
	s := NewServer()
	opts := []t402.GateOption{
		t402.WithServerScheme(t402.V2, "eip155:*", SchemeExact, s),
	}
	for legacy := range V1NetworkNames {
		opts = append(opts, t402.WithServerScheme(t402.V1, t402.Network(legacy), SchemeExact, s))
	}
	return opts
}

// FacilitatorOptions registers the "exact" EVM facilitator face for the
// given networks (all built-in networks when none are named).
func FacilitatorOptions(signer FacilitatorSigner, networks ...string) []t402.FacilitatorOption {
	f := NewFacilitator(signer, networks...)
	opts := []t402.FacilitatorOption{
		t402.WithFacilitatorScheme(t402.V2, "eip155:*", SchemeExact, f),
	}
	for legacy := range V1NetworkNames {
		opts = append(opts, t402.WithFacilitatorScheme(t402.V1, t402.Network(legacy), SchemeExact, f))
	}
	return opts
}
