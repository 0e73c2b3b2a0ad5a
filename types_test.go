package t402

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanonicalEqualKeyOrderInsensitive(t *testing.T) {
	a := map[string]interface{}{"scheme": "exact", "extra": map[string]interface{}{"name": "USDC", "version": "2"}}
	b := map[string]interface{}{"extra": map[string]interface{}{"version": "2", "name": "USDC"}, "scheme": "exact"}
	assert.True(t, CanonicalEqual(a, b))
}

func TestCanonicalEqualStructVsMap(t *testing.T) {
	req := PaymentRequirements{
		Scheme:            "exact",
		Network:           "eip155:84532",
		Asset:             "0xUSDC",
		Amount:            "1000",
		PayTo:             "0xA",
		MaxTimeoutSeconds: 300,
		Extra:             map[string]interface{}{"version": "2", "name": "USDC"},
	}
	echo := map[string]interface{}{
		"scheme":            "exact",
		"network":           "eip155:84532",
		"asset":             "0xUSDC",
		"amount":            "1000",
		"payTo":             "0xA",
		"maxTimeoutSeconds": 300,
		"extra":             map[string]interface{}{"name": "USDC", "version": "2"},
	}
	assert.True(t, CanonicalEqual(req, echo))
}

func TestCanonicalEqualDetectsDifference(t *testing.T) {
	a := PaymentRequirements{Scheme: "exact", Network: "eip155:84532", Amount: "1000", MaxTimeoutSeconds: 300}
	b := a
	b.Amount = "1001"
	assert.False(t, CanonicalEqual(a, b))
}

func TestStaticPayTo(t *testing.T) {
	resolver := StaticPayTo("0xABC")
	addr, err := resolver(nil)
	assert.NoError(t, err)
	assert.Equal(t, "0xABC", addr)
}
