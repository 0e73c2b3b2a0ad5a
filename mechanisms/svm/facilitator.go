package svm

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"strconv"

	bin "github.com/gagliardetto/binary"
	solana "github.com/gagliardetto/solana-go"

	t402 "github.com/t402-io/t402-go"
)

// transferCheckedIndex is the SPL-Token program's instruction enum index
// for TransferChecked; its data layout is [index u8][amount u64 LE]
// [decimals u8].
const transferCheckedIndex = 12

// Facilitator implements t402.SchemeNetworkFacilitator for the "exact" SVM
// scheme: it decodes the partially signed transaction, checks that its one
// transfer pays the requirement, verifies the owner's ed25519 signature,
// then hands the transaction to the signer for co-signing and submission.
type Facilitator struct {
	signer   FacilitatorSigner
	networks []string
}

func NewFacilitator(signer FacilitatorSigner, networks ...string) *Facilitator {
	if len(networks) == 0 {
		for n := range NetworkConfigs {
			networks = append(networks, n)
		}
	}
	return &Facilitator{signer: signer, networks: networks}
}

func (f *Facilitator) Scheme() string { return SchemeExact }

func (f *Facilitator) Verify(ctx context.Context, payload t402.PaymentPayload, requirements t402.PaymentRequirements) (t402.VerifyResponse, error) {
	_, owner, reason := f.decodeAndCheck(payload, requirements)
	if reason != "" {
		return t402.VerifyResponse{IsValid: false, InvalidReason: reason}, nil
	}
	return t402.VerifyResponse{IsValid: true, Payer: owner.String()}, nil
}

// decodeAndCheck performs every off-chain check shared by Verify and
// Settle, returning the decoded transaction and the paying owner, or a
// non-empty rejection reason.
func (f *Facilitator) decodeAndCheck(payload t402.PaymentPayload, requirements t402.PaymentRequirements) (*solana.Transaction, solana.PublicKey, string) {
	var blob ExactTransferPayload
	if err := json.Unmarshal(payload.Payload, &blob); err != nil {
		return nil, solana.PublicKey{}, "malformed transfer payload"
	}
	raw, err := base64.StdEncoding.DecodeString(blob.Transaction)
	if err != nil {
		return nil, solana.PublicKey{}, "transaction is not valid base64"
	}
	tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(raw))
	if err != nil {
		return nil, solana.PublicKey{}, "transaction does not deserialize"
	}

	mintStr := requirements.Asset
	if mintStr == "" {
		cfg, ok := configFor(string(requirements.Network))
		if !ok {
			return nil, solana.PublicKey{}, fmt.Sprintf("unknown svm network %s", requirements.Network)
		}
		mintStr = cfg.USDCMint
	}
	mint, err := solana.PublicKeyFromBase58(mintStr)
	if err != nil {
		return nil, solana.PublicKey{}, "invalid asset address in requirements"
	}
	payTo, err := solana.PublicKeyFromBase58(requirements.PayTo)
	if err != nil {
		return nil, solana.PublicKey{}, "invalid payTo address in requirements"
	}
	expectedDest, _, err := solana.FindAssociatedTokenAddress(payTo, mint)
	if err != nil {
		return nil, solana.PublicKey{}, "could not derive destination token account"
	}
	required, err := strconv.ParseUint(requirements.Amount, 10, 64)
	if err != nil {
		return nil, solana.PublicKey{}, "invalid required amount"
	}

	keys := tx.Message.AccountKeys
	for _, inst := range tx.Message.Instructions {
		if int(inst.ProgramIDIndex) >= len(keys) {
			continue
		}
		progID := keys[inst.ProgramIDIndex]
		if !progID.Equals(solana.TokenProgramID) && !progID.Equals(solana.Token2022ProgramID) {
			continue
		}
		if len(inst.Data) < 10 || inst.Data[0] != transferCheckedIndex {
			continue
		}
		if len(inst.Accounts) < 4 {
			return nil, solana.PublicKey{}, "transfer instruction has too few accounts"
		}
		for _, idx := range inst.Accounts[:4] {
			if int(idx) >= len(keys) {
				return nil, solana.PublicKey{}, "transfer instruction references unknown account"
			}
		}
		instMint := keys[inst.Accounts[1]]
		dest := keys[inst.Accounts[2]]
		ownerKey := keys[inst.Accounts[3]]

		if !instMint.Equals(mint) {
			return nil, solana.PublicKey{}, "transfer mint does not match required asset"
		}
		if !dest.Equals(expectedDest) {
			return nil, solana.PublicKey{}, "transfer destination does not match payTo"
		}
		amount := binary.LittleEndian.Uint64(inst.Data[1:9])
		if amount != required {
			return nil, solana.PublicKey{}, "transfer amount does not match required amount"
		}

		message, err := tx.Message.MarshalBinary()
		if err != nil {
			return nil, solana.PublicKey{}, "could not serialize message"
		}
		ownerSigned := false
		numRequired := int(tx.Message.Header.NumRequiredSignatures)
		for i := 0; i < numRequired && i < len(keys) && i < len(tx.Signatures); i++ {
			if !keys[i].Equals(ownerKey) {
				continue
			}
			if tx.Signatures[i].Verify(ownerKey, message) {
				ownerSigned = true
			}
		}
		if !ownerSigned {
			return nil, solana.PublicKey{}, "owner signature missing or invalid"
		}
		return tx, ownerKey, ""
	}
	return nil, solana.PublicKey{}, "no TransferChecked instruction found"
}

// Settle re-runs the off-chain checks, then lets the signer co-sign as fee
// payer and submit. Replay of an already-landed transaction surfaces as the
// signer's submission error.
func (f *Facilitator) Settle(ctx context.Context, payload t402.PaymentPayload, requirements t402.PaymentRequirements) (t402.SettleResponse, error) {
	tx, owner, reason := f.decodeAndCheck(payload, requirements)
	if reason != "" {
		return t402.SettleResponse{Success: false, ErrorReason: reason, Network: requirements.Network}, nil
	}
	sig, err := f.signer.Settle(ctx, tx, string(requirements.Network))
	if err != nil {
		return t402.SettleResponse{Success: false, ErrorReason: err.Error(), Payer: owner.String(), Network: requirements.Network}, nil
	}
	return t402.SettleResponse{
		Success:     true,
		Payer:       owner.String(),
		Transaction: sig,
		Network:     requirements.Network,
	}, nil
}

// SupportedKinds advertises one v2 kind per configured network (carrying
// the fee payer the payer must build against) plus v1 kinds for networks
// with legacy names.
func (f *Facilitator) SupportedKinds() []t402.SupportedKind {
	extra := map[string]interface{}{"feePayer": f.signer.Address().String()}
	kinds := make([]t402.SupportedKind, 0, len(f.networks))
	for _, n := range f.networks {
		kinds = append(kinds, t402.SupportedKind{T402Version: 2, Scheme: SchemeExact, Network: t402.Network(n), Extra: extra})
	}
	for legacy, caip := range V1NetworkNames {
		for _, n := range f.networks {
			if n == caip {
				kinds = append(kinds, t402.SupportedKind{T402Version: 1, Scheme: SchemeExact, Network: t402.Network(legacy), Extra: extra})
			}
		}
	}
	return kinds
}

func (f *Facilitator) Signers() map[string][]string {
	if f.signer == nil {
		return nil
	}
	return map[string][]string{"solana:*": {f.signer.Address().String()}}
}
