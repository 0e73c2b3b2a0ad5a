package svm

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"

	solana "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/token"

	t402 "github.com/t402-io/t402-go"
)

// Client implements t402.SchemeNetworkClient for the "exact" SVM scheme.
type Client struct {
	signer ClientSigner
}

func NewClient(signer ClientSigner) *Client {
	return &Client{signer: signer}
}

func (c *Client) Scheme() string { return SchemeExact }

// CreatePaymentPayload builds a TransferChecked transaction paying the
// requirement and signs it as token owner. The fee payer and recent
// blockhash come from the requirement's extra (placed there by the server
// face from facilitator metadata); the fee payer's signature slot is left
// empty for the facilitator to fill at settlement.
func (c *Client) CreatePaymentPayload(ctx context.Context, version t402.ProtocolVersion, requirements t402.PaymentRequirements) (t402.PartialPaymentPayload, error) {
	cfg, ok := configFor(string(requirements.Network))
	if !ok {
		return t402.PartialPaymentPayload{}, fmt.Errorf("unknown svm network %s", requirements.Network)
	}

	mintStr := requirements.Asset
	if mintStr == "" {
		mintStr = cfg.USDCMint
	}
	mint, err := solana.PublicKeyFromBase58(mintStr)
	if err != nil {
		return t402.PartialPaymentPayload{}, fmt.Errorf("invalid asset address: %w", err)
	}
	payTo, err := solana.PublicKeyFromBase58(requirements.PayTo)
	if err != nil {
		return t402.PartialPaymentPayload{}, fmt.Errorf("invalid payTo address: %w", err)
	}

	feePayerStr, _ := requirements.Extra["feePayer"].(string)
	if feePayerStr == "" {
		return t402.PartialPaymentPayload{}, fmt.Errorf("feePayer is required in requirement extra for svm payments")
	}
	feePayer, err := solana.PublicKeyFromBase58(feePayerStr)
	if err != nil {
		return t402.PartialPaymentPayload{}, fmt.Errorf("invalid feePayer address: %w", err)
	}

	amount, err := strconv.ParseUint(requirements.Amount, 10, 64)
	if err != nil {
		return t402.PartialPaymentPayload{}, fmt.Errorf("invalid amount: %w", err)
	}

	decimals := cfg.Decimals
	if d, ok := requirements.Extra["decimals"].(float64); ok {
		decimals = int(d)
	}

	var blockhash solana.Hash
	if bh, ok := requirements.Extra["recentBlockhash"].(string); ok && bh != "" {
		blockhash, err = solana.HashFromBase58(bh)
		if err != nil {
			return t402.PartialPaymentPayload{}, fmt.Errorf("invalid recentBlockhash: %w", err)
		}
	}

	owner := c.signer.Address()
	sourceATA, _, err := solana.FindAssociatedTokenAddress(owner, mint)
	if err != nil {
		return t402.PartialPaymentPayload{}, fmt.Errorf("derive source ata: %w", err)
	}
	destATA, _, err := solana.FindAssociatedTokenAddress(payTo, mint)
	if err != nil {
		return t402.PartialPaymentPayload{}, fmt.Errorf("derive destination ata: %w", err)
	}

	transfer, err := token.NewTransferCheckedInstructionBuilder().
		SetAmount(amount).
		SetDecimals(uint8(decimals)).
		SetSourceAccount(sourceATA).
		SetMintAccount(mint).
		SetDestinationAccount(destATA).
		SetOwnerAccount(owner).
		ValidateAndBuild()
	if err != nil {
		return t402.PartialPaymentPayload{}, fmt.Errorf("build transfer instruction: %w", err)
	}

	tx, err := solana.NewTransactionBuilder().
		AddInstruction(transfer).
		SetRecentBlockHash(blockhash).
		SetFeePayer(feePayer).
		Build()
	if err != nil {
		return t402.PartialPaymentPayload{}, fmt.Errorf("build transaction: %w", err)
	}

	message, err := tx.Message.MarshalBinary()
	if err != nil {
		return t402.PartialPaymentPayload{}, fmt.Errorf("marshal message: %w", err)
	}
	sig, err := c.signer.Sign(ctx, message)
	if err != nil {
		return t402.PartialPaymentPayload{}, fmt.Errorf("sign transaction: %w", err)
	}

	numRequired := int(tx.Message.Header.NumRequiredSignatures)
	tx.Signatures = make([]solana.Signature, numRequired)
	placed := false
	for i := 0; i < numRequired && i < len(tx.Message.AccountKeys); i++ {
		if tx.Message.AccountKeys[i].Equals(owner) {
			tx.Signatures[i] = sig
			placed = true
		}
	}
	if !placed {
		return t402.PartialPaymentPayload{}, fmt.Errorf("owner %s is not a required signer of the built transaction", owner)
	}

	raw, err := tx.MarshalBinary()
	if err != nil {
		return t402.PartialPaymentPayload{}, fmt.Errorf("marshal transaction: %w", err)
	}

	blob, err := json.Marshal(ExactTransferPayload{Transaction: base64.StdEncoding.EncodeToString(raw)})
	if err != nil {
		return t402.PartialPaymentPayload{}, err
	}
	return t402.PartialPaymentPayload{Payload: blob}, nil
}
