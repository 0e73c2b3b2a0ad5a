package t402

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNetworkMatchesPattern(t *testing.T) {
	tests := []struct {
		name    string
		network Network
		pattern Network
		want    bool
	}{
		{"exact match", "eip155:8453", "eip155:8453", true},
		{"wildcard match", "eip155:8453", "eip155:*", true},
		{"family mismatch", "eip155:8453", "solana:*", false},
		{"reference mismatch", "eip155:8453", "eip155:1", false},
		{"legacy name exact", "base-sepolia", "base-sepolia", true},
		{"legacy name no wildcard", "base-sepolia", "base:*", false},
		{"wildcard solana", "solana:EtWTRABZaYq6iMfeYKouRu166VU2xqa1", "solana:*", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.network.MatchesPattern(tt.pattern))
		})
	}
}

func TestNetworkIsPattern(t *testing.T) {
	assert.True(t, Network("eip155:*").IsPattern())
	assert.False(t, Network("eip155:8453").IsPattern())
	assert.False(t, Network("base-sepolia").IsPattern())
}

func TestNetworkSpecificity(t *testing.T) {
	assert.Greater(t, Network("eip155:8453").specificity(), Network("eip155:*").specificity())
}
