package evm

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	t402 "github.com/t402-io/t402-go"
)

const SchemeExact = "exact"

// Client implements t402.SchemeNetworkClient for the "exact" EVM scheme.
type Client struct {
	signer ClientSigner
}

func NewClient(signer ClientSigner) *Client {
	return &Client{signer: signer}
}

func (c *Client) Scheme() string { return SchemeExact }

// CreatePaymentPayload builds and signs an EIP-3009 TransferWithAuthorization
// for the given requirement, producing the bytes the client engine places
// into the payload's Payload field.
func (c *Client) CreatePaymentPayload(ctx context.Context, version t402.ProtocolVersion, requirements t402.PaymentRequirements) (t402.PartialPaymentPayload, error) {
	cfg, ok := configFor(string(requirements.Network))
	if !ok {
		return t402.PartialPaymentPayload{}, t402.NewPaymentError(t402.ErrMissingScheme, fmt.Sprintf("unknown evm network %s", requirements.Network))
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

	now := time.Now()
	validAfter := now.Add(-time.Minute).Unix()
	validBefore := now.Add(time.Duration(requirements.MaxTimeoutSeconds) * time.Second).Unix()
	nonce := make([]byte, 32)
	if _, err := rand.Read(nonce); err != nil {
		return t402.PartialPaymentPayload{}, err
	}

	auth := ExactEIP3009Authorization{
		From:        c.signer.Address(),
		To:          requirements.PayTo,
		Value:       requirements.Amount,
		ValidAfter:  big.NewInt(validAfter).String(),
		ValidBefore: big.NewInt(validBefore).String(),
		Nonce:       "0x" + hex.EncodeToString(nonce),
	}

	digest, err := HashEIP3009Authorization(auth, big.NewInt(cfg.ChainID), requirements.Asset, tokenName, tokenVersion)
	if err != nil {
		return t402.PartialPaymentPayload{}, err
	}
	sig, err := c.signer.SignDigest(ctx, digest)
	if err != nil {
		return t402.PartialPaymentPayload{}, err
	}
	auth.Signature = "0x" + hex.EncodeToString(sig)

	raw, err := json.Marshal(auth)
	if err != nil {
		return t402.PartialPaymentPayload{}, err
	}
	return t402.PartialPaymentPayload{Payload: raw}, nil
}
