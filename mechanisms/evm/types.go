package evm

import (
	"context"
	"encoding/hex"
	"strings"
)

// ExactEIP3009Authorization is the signed, scheme-specific payload blob for
// the "exact" EVM scheme. All numeric fields are decimal strings so
// bigint-sized values survive the wire without precision loss.
type ExactEIP3009Authorization struct {
	From        string `json:"from"`
	To          string `json:"to"`
	Value       string `json:"value"`
	ValidAfter  string `json:"validAfter"`
	ValidBefore string `json:"validBefore"`
	Nonce       string `json:"nonce"`
	Signature   string `json:"signature"` // 0x-prefixed hex, 65 bytes
}

// NetworkConfig describes one EVM network's EIP-712 domain and default
// asset for money-parsed prices.
type NetworkConfig struct {
	ChainID      int64
	TokenName    string
	TokenVersion string
	USDCAddress  string
	Decimals     int
}

// NetworkConfigs is the built-in set the "exact" scheme knows about. Every
// face (Client, Server, Facilitator) resolves networks through this map
// only, after mapping v1 names; a network absent from it is rejected.
var NetworkConfigs = map[string]NetworkConfig{
	"eip155:8453": {ChainID: 8453, TokenName: "USD Coin", TokenVersion: "2", USDCAddress: "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913", Decimals: 6},
	"eip155:84532": {ChainID: 84532, TokenName: "USDC", TokenVersion: "2", USDCAddress: "0x036CbD53842c5426634e7929541eC2318f3dCF7e", Decimals: 6},
	"eip155:1": {ChainID: 1, TokenName: "USD Coin", TokenVersion: "2", USDCAddress: "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48", Decimals: 6},
}

// V1NetworkNames maps the legacy short names the v1 dialect uses to the
// CAIP-2 identifiers the config table is keyed by. v1 names are never
// rewritten on the wire; the mapping exists only so both dialects share one
// config table.
var V1NetworkNames = map[string]string{
	"base":         "eip155:8453",
	"base-sepolia": "eip155:84532",
	"ethereum":     "eip155:1",
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

// ClientSigner is the capability the client face needs: produce an EIP-712
// signature over a digest, and report the signer's own address (the payer).
// This is the only crypto surface the capability object exposes; key
// management and signing internals stay outside this package.
type ClientSigner interface {
	Address() string
	SignDigest(ctx context.Context, digest []byte) ([]byte, error)
}

// FacilitatorSigner is the capability the facilitator face needs to settle
// a verified authorization on-chain. On-chain transaction construction and
// RPC wallet management are explicitly out of core scope; Settle is an
// external collaborator the facilitator calls into, returning an opaque
// transaction hash. Address reports the submitting account, advertised in
// the Supported Response signers map.
type FacilitatorSigner interface {
	Address() string
	Settle(ctx context.Context, authorization ExactEIP3009Authorization, network string) (txHash string, err error)
}

func HexToBytes(s string) ([]byte, error) {
	return hex.DecodeString(strings.TrimPrefix(s, "0x"))
}

func HexToSignature(s string) ([]byte, error) {
	return HexToBytes(s)
}
