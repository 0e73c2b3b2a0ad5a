package svm

import (
	"context"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/mr-tron/base58"

	t402 "github.com/t402-io/t402-go"
)

// Server implements t402.SchemeNetworkServer for the "exact" SVM scheme.
type Server struct {
	parsers []t402.MoneyParser
}

func NewServer() *Server {
	return &Server{}
}

func (s *Server) Scheme() string { return SchemeExact }

func (s *Server) RegisterMoneyParser(parser t402.MoneyParser) {
	s.parsers = append(s.parsers, parser)
}

// ParsePrice resolves a route's declared price against the network's
// default mint. The same shapes as the EVM face are accepted; asset
// addresses are validated as 32-byte base58 at this boundary.
func (s *Server) ParsePrice(ctx context.Context, price t402.Price, network t402.Network) (t402.AssetAmount, error) {
	cfg, ok := configFor(string(network))
	if !ok {
		return t402.AssetAmount{}, fmt.Errorf("unknown svm network: %s", network)
	}

	switch v := price.(type) {
	case t402.AssetAmount:
		if err := validateBase58Address(v.Asset); err != nil {
			return t402.AssetAmount{}, err
		}
		return v, nil
	case *t402.AssetAmount:
		return s.ParsePrice(ctx, *v, network)
	case map[string]interface{}:
		amountStr, ok := v["amount"].(string)
		if !ok {
			return t402.AssetAmount{}, fmt.Errorf("price map missing string amount")
		}
		asset := cfg.USDCMint
		if a, ok := v["asset"].(string); ok && a != "" {
			asset = a
		}
		if err := validateBase58Address(asset); err != nil {
			return t402.AssetAmount{}, err
		}
		var extra map[string]interface{}
		if e, ok := v["extra"].(map[string]interface{}); ok {
			extra = e
		}
		return t402.AssetAmount{Amount: amountStr, Asset: asset, Extra: extra}, nil
	case string:
		clean := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(v), "$"))
		parts := strings.Fields(clean)
		if len(parts) == 2 {
			symbol := strings.ToUpper(parts[1])
			if symbol != "USD" && symbol != "USDC" {
				return t402.AssetAmount{}, fmt.Errorf("unsupported asset symbol %q on %s", parts[1], network)
			}
			clean = parts[0]
		} else if len(parts) != 1 {
			return t402.AssetAmount{}, fmt.Errorf("invalid price format %q", v)
		} else {
			clean = parts[0]
		}
		quantity, err := strconv.ParseFloat(clean, 64)
		if err != nil {
			return t402.AssetAmount{}, fmt.Errorf("invalid price %q: %w", v, err)
		}
		return s.moneyToAsset(quantity, network, cfg)
	case float64:
		return s.moneyToAsset(v, network, cfg)
	case int:
		return s.moneyToAsset(float64(v), network, cfg)
	case int64:
		return s.moneyToAsset(float64(v), network, cfg)
	}
	return t402.AssetAmount{}, fmt.Errorf("invalid price format: %v", price)
}

func (s *Server) moneyToAsset(quantity float64, network t402.Network, cfg NetworkConfig) (t402.AssetAmount, error) {
	for _, parser := range s.parsers {
		result, err := parser(quantity, network)
		if err != nil {
			return t402.AssetAmount{}, err
		}
		if result != nil {
			return *result, nil
		}
	}
	if quantity < 0 {
		return t402.AssetAmount{}, fmt.Errorf("negative amount: %f", quantity)
	}
	scale := new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(cfg.Decimals)), nil))
	atomic, _ := new(big.Float).Mul(big.NewFloat(quantity), scale).Int(nil)
	return t402.AssetAmount{Amount: atomic.String(), Asset: cfg.USDCMint}, nil
}

func validateBase58Address(addr string) error {
	raw, err := base58.Decode(addr)
	if err != nil {
		return fmt.Errorf("invalid base58 address %q: %w", addr, err)
	}
	if len(raw) != 32 {
		return fmt.Errorf("address %q is %d bytes, want 32", addr, len(raw))
	}
	return nil
}

// EnhancePaymentRequirements attaches the facilitator's fee payer (and any
// recent blockhash it advertised) so the payer can build a transaction the
// facilitator is able to co-sign and submit.
func (s *Server) EnhancePaymentRequirements(ctx context.Context, base t402.PaymentRequirements, supported t402.SupportedKind, facilitatorExtensions map[string]interface{}) (t402.PaymentRequirements, error) {
	cfg, ok := configFor(string(base.Network))
	if !ok {
		return base, fmt.Errorf("unknown svm network: %s", base.Network)
	}
	if base.Asset == "" {
		base.Asset = cfg.USDCMint
	}

	extra := make(map[string]interface{}, len(base.Extra)+2)
	for k, v := range base.Extra {
		extra[k] = v
	}
	if supported.Extra != nil {
		if fp, ok := supported.Extra["feePayer"].(string); ok && fp != "" {
			extra["feePayer"] = fp
		}
		if bh, ok := supported.Extra["recentBlockhash"].(string); ok && bh != "" {
			extra["recentBlockhash"] = bh
		}
	}
	if _, ok := extra["feePayer"]; !ok {
		return base, fmt.Errorf("facilitator did not advertise a feePayer for %s", base.Network)
	}
	base.Extra = extra
	return base, nil
}
