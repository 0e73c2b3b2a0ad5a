package evm

import (
	"context"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	t402 "github.com/t402-io/t402-go"
)

// Server implements t402.SchemeNetworkServer for the "exact" EVM scheme:
// price parsing into USDC atomic units and requirement enrichment with the
// EIP-712 domain metadata the payer needs to sign.
type Server struct {
	parsers []t402.MoneyParser
}

func NewServer() *Server {
	return &Server{}
}

func (s *Server) Scheme() string { return SchemeExact }

// RegisterMoneyParser appends a fallback parser to the chain. Chained
// parsers run in registration order before the built-in USDC conversion;
// the first non-nil result wins.
func (s *Server) RegisterMoneyParser(parser t402.MoneyParser) {
	s.parsers = append(s.parsers, parser)
}

// ParsePrice resolves a route's declared price into an AssetAmount. It
// accepts a pre-resolved t402.AssetAmount, a map with amount/asset keys, a
// "$0.001" / "0.10 USDC" style string, or a bare number (interpreted as a
// USD quantity against the network's default asset).
func (s *Server) ParsePrice(ctx context.Context, price t402.Price, network t402.Network) (t402.AssetAmount, error) {
	cfg, ok := configFor(string(network))
	if !ok {
		return t402.AssetAmount{}, fmt.Errorf("unknown evm network: %s", network)
	}

	switch v := price.(type) {
	case t402.AssetAmount:
		return v, nil
	case *t402.AssetAmount:
		return *v, nil
	case map[string]interface{}:
		return parsePriceMap(v, cfg)
	case string:
		return s.parseStringPrice(v, network, cfg)
	case float64:
		return s.moneyToAsset(v, network, cfg)
	case int:
		return s.moneyToAsset(float64(v), network, cfg)
	case int64:
		return s.moneyToAsset(float64(v), network, cfg)
	}
	return t402.AssetAmount{}, fmt.Errorf("invalid price format: %v", price)
}

func parsePriceMap(m map[string]interface{}, cfg NetworkConfig) (t402.AssetAmount, error) {
	amountVal, ok := m["amount"]
	if !ok {
		return t402.AssetAmount{}, fmt.Errorf("price map missing amount")
	}
	amountStr, ok := amountVal.(string)
	if !ok {
		return t402.AssetAmount{}, fmt.Errorf("price amount must be a decimal string")
	}
	asset := cfg.USDCAddress
	if a, ok := m["asset"].(string); ok && a != "" {
		asset = a
	}
	var extra map[string]interface{}
	if e, ok := m["extra"].(map[string]interface{}); ok {
		extra = e
	}
	return t402.AssetAmount{Amount: amountStr, Asset: asset, Extra: extra}, nil
}

func (s *Server) parseStringPrice(priceStr string, network t402.Network, cfg NetworkConfig) (t402.AssetAmount, error) {
	clean := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(priceStr), "$"))
	parts := strings.Fields(clean)
	switch len(parts) {
	case 1:
		quantity, err := strconv.ParseFloat(parts[0], 64)
		if err != nil {
			return t402.AssetAmount{}, fmt.Errorf("invalid price %q: %w", priceStr, err)
		}
		return s.moneyToAsset(quantity, network, cfg)
	case 2:
		symbol := strings.ToUpper(parts[1])
		if symbol != "USD" && symbol != "USDC" {
			return t402.AssetAmount{}, fmt.Errorf("unsupported asset symbol %q on %s", parts[1], network)
		}
		quantity, err := strconv.ParseFloat(parts[0], 64)
		if err != nil {
			return t402.AssetAmount{}, fmt.Errorf("invalid price %q: %w", priceStr, err)
		}
		return s.moneyToAsset(quantity, network, cfg)
	}
	return t402.AssetAmount{}, fmt.Errorf("invalid price format %q", priceStr)
}

// moneyToAsset runs the registered parser chain, then falls back to
// converting the USD quantity into the network's default asset at its
// declared decimals.
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
	atomic, err := AmountToAtomicUnits(quantity, cfg.Decimals)
	if err != nil {
		return t402.AssetAmount{}, err
	}
	return t402.AssetAmount{Amount: atomic, Asset: cfg.USDCAddress}, nil
}

// AmountToAtomicUnits converts a human USD quantity to atomic units as a
// decimal string without float drift: the quantity's shortest decimal form
// is scaled by 10^decimals as an exact big.Rat, then truncated to an integer.
func AmountToAtomicUnits(quantity float64, decimals int) (string, error) {
	if quantity < 0 {
		return "", fmt.Errorf("negative amount: %f", quantity)
	}
	exact, ok := new(big.Rat).SetString(strconv.FormatFloat(quantity, 'f', -1, 64))
	if !ok {
		return "", fmt.Errorf("invalid amount: %f", quantity)
	}
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	exact.Mul(exact, new(big.Rat).SetInt(scale))
	atomic := new(big.Int).Quo(exact.Num(), exact.Denom())
	return atomic.String(), nil
}

// EnhancePaymentRequirements attaches the EIP-712 domain name/version the
// payer must sign against, preferring metadata the facilitator advertised
// for this kind over the built-in network table.
func (s *Server) EnhancePaymentRequirements(ctx context.Context, base t402.PaymentRequirements, supported t402.SupportedKind, facilitatorExtensions map[string]interface{}) (t402.PaymentRequirements, error) {
	cfg, ok := configFor(string(base.Network))
	if !ok {
		return base, fmt.Errorf("unknown evm network: %s", base.Network)
	}
	if base.Asset == "" {
		base.Asset = cfg.USDCAddress
	}

	extra := make(map[string]interface{}, len(base.Extra)+2)
	for k, v := range base.Extra {
		extra[k] = v
	}
	if _, ok := extra["name"]; !ok {
		extra["name"] = cfg.TokenName
	}
	if _, ok := extra["version"]; !ok {
		extra["version"] = cfg.TokenVersion
	}
	if supported.Extra != nil {
		if n, ok := supported.Extra["name"].(string); ok && n != "" {
			extra["name"] = n
		}
		if v, ok := supported.Extra["version"].(string); ok && v != "" {
			extra["version"] = v
		}
	}
	base.Extra = extra
	return base, nil
}
