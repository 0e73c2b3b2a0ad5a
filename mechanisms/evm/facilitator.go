package evm

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	t402 "github.com/t402-io/t402-go"
)

// Facilitator implements t402.SchemeNetworkFacilitator for the "exact" EVM
// scheme: it verifies an EIP-3009 authorization off-chain (payee, amount,
// validity window, recovered signer) and delegates settlement to the
// injected FacilitatorSigner.
type Facilitator struct {
	signer   FacilitatorSigner
	networks []string
}

// NewFacilitator builds the facilitator face for the given CAIP-2 networks;
// with none given it serves every network in the built-in table.
func NewFacilitator(signer FacilitatorSigner, networks ...string) *Facilitator {
	if len(networks) == 0 {
		for n := range NetworkConfigs {
			networks = append(networks, n)
		}
	}
	return &Facilitator{signer: signer, networks: networks}
}

func (f *Facilitator) Scheme() string { return SchemeExact }

// Verify checks an authorization against the requirement it claims to pay:
// the destination must be the requirement's payee, the value must equal the
// required amount, the validity window must cover now, and the EIP-712
// signature must recover to the claimed payer.
func (f *Facilitator) Verify(ctx context.Context, payload t402.PaymentPayload, requirements t402.PaymentRequirements) (t402.VerifyResponse, error) {
	var auth ExactEIP3009Authorization
	if err := json.Unmarshal(payload.Payload, &auth); err != nil {
		return invalid("malformed authorization payload"), nil
	}

	cfg, ok := configFor(string(requirements.Network))
	if !ok {
		return invalid(fmt.Sprintf("unknown evm network %s", requirements.Network)), nil
	}

	if !strings.EqualFold(auth.To, requirements.PayTo) {
		return invalid("authorization recipient does not match payTo"), nil
	}

	value, ok := new(big.Int).SetString(auth.Value, 10)
	if !ok {
		return invalid("invalid authorization value"), nil
	}
	required, ok := new(big.Int).SetString(requirements.Amount, 10)
	if !ok {
		return invalid("invalid required amount"), nil
	}
	if value.Cmp(required) != 0 {
		return invalid("authorization value does not match required amount"), nil
	}

	now := time.Now().Unix()
	validAfter, ok := new(big.Int).SetString(auth.ValidAfter, 10)
	if !ok {
		return invalid("invalid validAfter"), nil
	}
	validBefore, ok := new(big.Int).SetString(auth.ValidBefore, 10)
	if !ok {
		return invalid("invalid validBefore"), nil
	}
	if validAfter.Int64() > now {
		return invalid("authorization not yet valid"), nil
	}
	if validBefore.Int64() <= now {
		return invalid("authorization expired"), nil
	}

	tokenName, tokenVersion := cfg.TokenName, cfg.TokenVersion
	if requirements.Extra != nil {
		if n, ok := requirements.Extra["name"].(string); ok && n != "" {
			tokenName = n
		}
		if v, ok := requirements.Extra["version"].(string); ok && v != "" {
			tokenVersion = v
		}
	}

	asset := requirements.Asset
	if asset == "" {
		asset = cfg.USDCAddress
	}

	digest, err := HashEIP3009Authorization(auth, big.NewInt(cfg.ChainID), asset, tokenName, tokenVersion)
	if err != nil {
		return invalid("could not hash authorization: " + err.Error()), nil
	}
	sig, err := HexToSignature(auth.Signature)
	if err != nil {
		return invalid("malformed signature"), nil
	}
	recovered, err := RecoverSigner(digest, sig)
	if err != nil {
		return invalid("signature recovery failed"), nil
	}
	if recovered != common.HexToAddress(auth.From) {
		return invalid("signature does not match payer"), nil
	}

	return t402.VerifyResponse{IsValid: true, Payer: auth.From}, nil
}

func invalid(reason string) t402.VerifyResponse {
	return t402.VerifyResponse{IsValid: false, InvalidReason: reason}
}

// Settle re-verifies, then hands the authorization to the signer for
// on-chain submission. The facilitator (not the gate) owns replay handling;
// a duplicate nonce surfaces as the signer's settlement error.
func (f *Facilitator) Settle(ctx context.Context, payload t402.PaymentPayload, requirements t402.PaymentRequirements) (t402.SettleResponse, error) {
	verdict, err := f.Verify(ctx, payload, requirements)
	if err != nil {
		return t402.SettleResponse{Success: false, ErrorReason: err.Error(), Network: requirements.Network}, nil
	}
	if !verdict.IsValid {
		return t402.SettleResponse{Success: false, ErrorReason: verdict.InvalidReason, Network: requirements.Network}, nil
	}

	var auth ExactEIP3009Authorization
	if err := json.Unmarshal(payload.Payload, &auth); err != nil {
		return t402.SettleResponse{Success: false, ErrorReason: "malformed authorization payload", Network: requirements.Network}, nil
	}

	txHash, err := f.signer.Settle(ctx, auth, string(requirements.Network))
	if err != nil {
		return t402.SettleResponse{Success: false, ErrorReason: err.Error(), Payer: auth.From, Network: requirements.Network}, nil
	}
	return t402.SettleResponse{
		Success:     true,
		Payer:       auth.From,
		Transaction: txHash,
		Network:     requirements.Network,
	}, nil
}

// SupportedKinds reports one v2 kind per configured network, plus a v1 kind
// for every configured network that has a legacy short name.
func (f *Facilitator) SupportedKinds() []t402.SupportedKind {
	kinds := make([]t402.SupportedKind, 0, len(f.networks))
	for _, n := range f.networks {
		kinds = append(kinds, t402.SupportedKind{T402Version: 2, Scheme: SchemeExact, Network: t402.Network(n)})
	}
	for legacy, caip := range V1NetworkNames {
		for _, n := range f.networks {
			if n == caip {
				kinds = append(kinds, t402.SupportedKind{T402Version: 1, Scheme: SchemeExact, Network: t402.Network(legacy)})
			}
		}
	}
	return kinds
}

// Signers advertises the settlement account under the family wildcard.
func (f *Facilitator) Signers() map[string][]string {
	if f.signer == nil {
		return nil
	}
	return map[string][]string{"eip155:*": {f.signer.Address()}}
}
