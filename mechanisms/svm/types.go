// Package svm implements the "exact" payment scheme for Solana-family
// networks (solana:*) as a partially signed SPL-Token TransferChecked
// transaction: the payer signs as token owner, the facilitator co-signs as
// fee payer and submits.
package svm

import (
	"context"

	solana "github.com/gagliardetto/solana-go"
)

const SchemeExact = "exact"

// ExactTransferPayload is the scheme-specific payload blob: the base64
// serialization of a partially signed Solana transaction whose single
// instruction is an SPL-Token TransferChecked paying the requirement.
type ExactTransferPayload struct {
	Transaction string `json:"transaction"`
}

// NetworkConfig describes one Solana network's default asset.
type NetworkConfig struct {
	USDCMint string
	Decimals int
}

var NetworkConfigs = map[string]NetworkConfig{
	"solana:5eykt4UsFv8P8NJdTREpY1vzqKqZKvdp": {USDCMint: "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v", Decimals: 6},
	"solana:EtWTRABZaYq6iMfeYKouRu166VU2xqa1": {USDCMint: "4zMMC9srt5Ri5X14GAgXhaHii3GnPAEERYPJgZJDncDU", Decimals: 6},
}

// V1NetworkNames maps legacy v1 short names to CAIP-2 identifiers so both
// dialects share one config table; the names themselves never change form
// on the wire.
var V1NetworkNames = map[string]string{
	"solana":        "solana:5eykt4UsFv8P8NJdTREpY1vzqKqZKvdp",
	"solana-devnet": "solana:EtWTRABZaYq6iMfeYKouRu166VU2xqa1",
}

func configFor(network string) (NetworkConfig, bool) {
	if caip, ok := V1NetworkNames[network]; ok {
		network = caip
	}
	cfg, ok := NetworkConfigs[network]
	return cfg, ok
}

func IsValidNetwork(network string) bool {
	_, ok := configFor(network)
	return ok
}

// ClientSigner signs transaction messages as the token owner. Key
// management stays outside this package.
type ClientSigner interface {
	Address() solana.PublicKey
	Sign(ctx context.Context, message []byte) (solana.Signature, error)
}

// FacilitatorSigner co-signs as fee payer and submits the transaction,
// returning the base58 signature that identifies it on-chain. Submission
// internals (RPC, confirmation) are outside core scope.
type FacilitatorSigner interface {
	Address() solana.PublicKey
	Settle(ctx context.Context, tx *solana.Transaction, network string) (signature string, err error)
}
