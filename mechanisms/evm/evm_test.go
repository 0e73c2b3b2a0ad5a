package evm

import (
	"context"
	"crypto/ecdsa"
	"encoding/hex"
	"encoding/json"
	"math/big"
	"strconv"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	t402 "github.com/t402-io/t402-go"
)

type keySigner struct {
	key *ecdsa.PrivateKey
}

func newKeySigner(t *testing.T) *keySigner {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return &keySigner{key: key}
}

func (s *keySigner) Address() string {
	return crypto.PubkeyToAddress(s.key.PublicKey).Hex()
}

func (s *keySigner) SignDigest(ctx context.Context, digest []byte) ([]byte, error) {
	return crypto.Sign(digest, s.key)
}

type stubSettler struct {
	txHash string
	err    error
	calls  int
}

func (s *stubSettler) Address() string { return "0xFAC0000000000000000000000000000000000000" }

func (s *stubSettler) Settle(ctx context.Context, authorization ExactEIP3009Authorization, network string) (string, error) {
	s.calls++
	return s.txHash, s.err
}

func usdcRequirement(payTo string) t402.PaymentRequirements {
	return t402.PaymentRequirements{
		Scheme:            SchemeExact,
		Network:           "eip155:84532",
		Asset:             NetworkConfigs["eip155:84532"].USDCAddress,
		Amount:            "1000",
		PayTo:             payTo,
		MaxTimeoutSeconds: 300,
		Extra:             map[string]interface{}{"name": "USDC", "version": "2"},
	}
}

func TestClientPayloadVerifies(t *testing.T) {
	signer := newKeySigner(t)
	client := NewClient(signer)
	req := usdcRequirement("0xBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBB")

	partial, err := client.CreatePaymentPayload(context.Background(), t402.V2, req)
	require.NoError(t, err)

	payload := t402.PaymentPayload{T402Version: 2, Accepted: &req, Payload: partial.Payload}
	fac := NewFacilitator(&stubSettler{txHash: "0xTX"})

	resp, err := fac.Verify(context.Background(), payload, req)
	require.NoError(t, err)
	assert.True(t, resp.IsValid, resp.InvalidReason)
	assert.Equal(t, signer.Address(), resp.Payer)
}

func TestVerifyRejectsWrongPayee(t *testing.T) {
	signer := newKeySigner(t)
	client := NewClient(signer)
	req := usdcRequirement("0xBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBB")

	partial, err := client.CreatePaymentPayload(context.Background(), t402.V2, req)
	require.NoError(t, err)

	hijacked := req
	hijacked.PayTo = "0xCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCC"
	payload := t402.PaymentPayload{T402Version: 2, Payload: partial.Payload}
	fac := NewFacilitator(&stubSettler{})

	resp, err := fac.Verify(context.Background(), payload, hijacked)
	require.NoError(t, err)
	assert.False(t, resp.IsValid)
	assert.Contains(t, resp.InvalidReason, "recipient")
}

func TestVerifyRejectsWrongAmount(t *testing.T) {
	signer := newKeySigner(t)
	client := NewClient(signer)
	req := usdcRequirement("0xBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBB")

	partial, err := client.CreatePaymentPayload(context.Background(), t402.V2, req)
	require.NoError(t, err)

	pricier := req
	pricier.Amount = "2000"
	payload := t402.PaymentPayload{T402Version: 2, Payload: partial.Payload}
	fac := NewFacilitator(&stubSettler{})

	resp, err := fac.Verify(context.Background(), payload, pricier)
	require.NoError(t, err)
	assert.False(t, resp.IsValid)
	assert.Contains(t, resp.InvalidReason, "amount")
}

func TestVerifyRejectsExpiredAuthorization(t *testing.T) {
	signer := newKeySigner(t)
	req := usdcRequirement("0xBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBB")

	past := time.Now().Add(-time.Hour).Unix()
	auth := ExactEIP3009Authorization{
		From:        signer.Address(),
		To:          req.PayTo,
		Value:       req.Amount,
		ValidAfter:  strconv.FormatInt(past-60, 10),
		ValidBefore: strconv.FormatInt(past, 10),
		Nonce:       "0x" + hex.EncodeToString(make([]byte, 32)),
	}
	cfg := NetworkConfigs["eip155:84532"]
	digest, err := HashEIP3009Authorization(auth, big.NewInt(cfg.ChainID), req.Asset, "USDC", "2")
	require.NoError(t, err)
	sig, err := signer.SignDigest(context.Background(), digest)
	require.NoError(t, err)
	auth.Signature = "0x" + hex.EncodeToString(sig)

	raw, err := json.Marshal(auth)
	require.NoError(t, err)
	payload := t402.PaymentPayload{T402Version: 2, Payload: raw}
	fac := NewFacilitator(&stubSettler{})

	resp, err := fac.Verify(context.Background(), payload, req)
	require.NoError(t, err)
	assert.False(t, resp.IsValid)
	assert.Contains(t, resp.InvalidReason, "expired")
}

func TestVerifyRejectsForgedSigner(t *testing.T) {
	signer := newKeySigner(t)
	other := newKeySigner(t)
	client := NewClient(signer)
	req := usdcRequirement("0xBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBB")

	partial, err := client.CreatePaymentPayload(context.Background(), t402.V2, req)
	require.NoError(t, err)

	var auth ExactEIP3009Authorization
	require.NoError(t, json.Unmarshal(partial.Payload, &auth))
	auth.From = other.Address() // claim someone else paid
	raw, err := json.Marshal(auth)
	require.NoError(t, err)

	payload := t402.PaymentPayload{T402Version: 2, Payload: raw}
	fac := NewFacilitator(&stubSettler{})

	resp, err := fac.Verify(context.Background(), payload, req)
	require.NoError(t, err)
	assert.False(t, resp.IsValid)
}

func TestSettleHappyPath(t *testing.T) {
	signer := newKeySigner(t)
	client := NewClient(signer)
	req := usdcRequirement("0xBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBB")

	partial, err := client.CreatePaymentPayload(context.Background(), t402.V2, req)
	require.NoError(t, err)

	settler := &stubSettler{txHash: "0xDEADBEEF"}
	fac := NewFacilitator(settler)

	payload := t402.PaymentPayload{T402Version: 2, Payload: partial.Payload}
	resp, err := fac.Settle(context.Background(), payload, req)
	require.NoError(t, err)
	assert.True(t, resp.Success, resp.ErrorReason)
	assert.Equal(t, "0xDEADBEEF", resp.Transaction)
	assert.Equal(t, signer.Address(), resp.Payer)
	assert.Equal(t, t402.Network("eip155:84532"), resp.Network)
	assert.Equal(t, 1, settler.calls)
}

func TestSettleDoesNotSubmitInvalidAuthorization(t *testing.T) {
	settler := &stubSettler{txHash: "0xTX"}
	fac := NewFacilitator(settler)

	payload := t402.PaymentPayload{T402Version: 2, Payload: json.RawMessage(`{"from":"0x0"}`)}
	resp, err := fac.Settle(context.Background(), payload, usdcRequirement("0xB"))
	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Zero(t, settler.calls)
}

func TestParsePriceDollarString(t *testing.T) {
	s := NewServer()
	amount, err := s.ParsePrice(context.Background(), "$0.001", "eip155:84532")
	require.NoError(t, err)
	assert.Equal(t, "1000", amount.Amount)
	assert.Equal(t, NetworkConfigs["eip155:84532"].USDCAddress, amount.Asset)
}

func TestParsePriceWithSymbol(t *testing.T) {
	s := NewServer()
	amount, err := s.ParsePrice(context.Background(), "0.10 USDC", "eip155:8453")
	require.NoError(t, err)
	assert.Equal(t, "100000", amount.Amount)
}

func TestParsePriceAssetAmountPassthrough(t *testing.T) {
	s := NewServer()
	in := t402.AssetAmount{Amount: "42", Asset: "0xCUSTOM"}
	out, err := s.ParsePrice(context.Background(), in, "eip155:8453")
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestParsePriceUnknownNetwork(t *testing.T) {
	s := NewServer()
	_, err := s.ParsePrice(context.Background(), "$1", "eip155:999999")
	assert.Error(t, err)
}

func TestParsePriceUnsupportedSymbol(t *testing.T) {
	s := NewServer()
	_, err := s.ParsePrice(context.Background(), "1 DOGE", "eip155:8453")
	assert.Error(t, err)
}

func TestMoneyParserChainWins(t *testing.T) {
	s := NewServer()
	s.RegisterMoneyParser(func(amount float64, network t402.Network) (*t402.AssetAmount, error) {
		return nil, nil // defer to the next parser
	})
	s.RegisterMoneyParser(func(amount float64, network t402.Network) (*t402.AssetAmount, error) {
		return &t402.AssetAmount{Amount: "777", Asset: "0xALT"}, nil
	})

	out, err := s.ParsePrice(context.Background(), "$1.00", "eip155:8453")
	require.NoError(t, err)
	assert.Equal(t, "777", out.Amount)
	assert.Equal(t, "0xALT", out.Asset)
}

func TestEnhanceAddsDomainMetadata(t *testing.T) {
	s := NewServer()
	base := t402.PaymentRequirements{Scheme: SchemeExact, Network: "eip155:84532", Amount: "1000", PayTo: "0xA"}

	enhanced, err := s.EnhancePaymentRequirements(context.Background(), base, t402.SupportedKind{T402Version: 2, Scheme: SchemeExact, Network: "eip155:84532"}, nil)
	require.NoError(t, err)
	assert.Equal(t, NetworkConfigs["eip155:84532"].USDCAddress, enhanced.Asset)
	assert.Equal(t, "USDC", enhanced.Extra["name"])
	assert.Equal(t, "2", enhanced.Extra["version"])
}

func TestEnhancePrefersFacilitatorMetadata(t *testing.T) {
	s := NewServer()
	base := t402.PaymentRequirements{Scheme: SchemeExact, Network: "eip155:84532", Amount: "1000", PayTo: "0xA"}
	kind := t402.SupportedKind{
		T402Version: 2, Scheme: SchemeExact, Network: "eip155:84532",
		Extra: map[string]interface{}{"name": "Bridged USDC", "version": "1"},
	}

	enhanced, err := s.EnhancePaymentRequirements(context.Background(), base, kind, nil)
	require.NoError(t, err)
	assert.Equal(t, "Bridged USDC", enhanced.Extra["name"])
	assert.Equal(t, "1", enhanced.Extra["version"])
}

func TestSupportedKindsIncludeLegacyNames(t *testing.T) {
	fac := NewFacilitator(&stubSettler{}, "eip155:84532")
	kinds := fac.SupportedKinds()

	var v1, v2 int
	for _, k := range kinds {
		switch k.T402Version {
		case 1:
			v1++
			assert.Equal(t, t402.Network("base-sepolia"), k.Network)
		case 2:
			v2++
			assert.Equal(t, t402.Network("eip155:84532"), k.Network)
		}
	}
	assert.Equal(t, 1, v1)
	assert.Equal(t, 1, v2)
}

func TestFacilitatorSigners(t *testing.T) {
	fac := NewFacilitator(&stubSettler{}, "eip155:84532")
	signers := fac.Signers()
	assert.Equal(t, []string{"0xFAC0000000000000000000000000000000000000"}, signers["eip155:*"])
}

func TestRecoverSignerRoundTrip(t *testing.T) {
	signer := newKeySigner(t)
	digest := crypto.Keccak256([]byte("payload"))
	sig, err := signer.SignDigest(context.Background(), digest)
	require.NoError(t, err)

	addr, err := RecoverSigner(digest, sig)
	require.NoError(t, err)
	assert.Equal(t, signer.Address(), addr.Hex())
}

func TestAmountToAtomicUnits(t *testing.T) {
	got, err := AmountToAtomicUnits(0.001, 6)
	require.NoError(t, err)
	assert.Equal(t, "1000", got)

	got, err = AmountToAtomicUnits(1, 6)
	require.NoError(t, err)
	assert.Equal(t, "1000000", got)

	_, err = AmountToAtomicUnits(-1, 6)
	assert.Error(t, err)
}
