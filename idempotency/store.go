// Package idempotency is the facilitator-side settle-dedup cache: the gate
// never memoizes payloads, but a facilitator may serve a repeat of an
// already-settled payload from cache instead of re-submitting on-chain.
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"

	t402 "github.com/t402-io/t402-go"
)

// DefaultTTL bounds how long a settled receipt is replayed from cache.
const DefaultTTL = 10 * time.Minute

// Store is an in-memory t402.SettleCache keyed by payload content hash.
// Suitable for single-instance facilitators; distributed deployments
// implement t402.SettleCache against a shared backend instead.
type Store struct {
	mu      sync.Mutex
	results map[string]t402.SettleResponse
	expiry  map[string]time.Time
	ttl     time.Duration
}

func NewStore(ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{
		results: make(map[string]t402.SettleResponse),
		expiry:  make(map[string]time.Time),
		ttl:     ttl,
	}
}

// Key hashes the full payload, signature and nonce included, so distinct
// payment attempts never collide.
func Key(payload t402.PaymentPayload) string {
	raw, err := json.Marshal(payload)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

func (s *Store) Get(ctx context.Context, payload t402.PaymentPayload) (t402.SettleResponse, bool) {
	key := Key(payload)
	if key == "" {
		return t402.SettleResponse{}, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	expiry, ok := s.expiry[key]
	if !ok {
		return t402.SettleResponse{}, false
	}
	if time.Now().After(expiry) {
		delete(s.results, key)
		delete(s.expiry, key)
		return t402.SettleResponse{}, false
	}
	return s.results[key], true
}

func (s *Store) Put(ctx context.Context, payload t402.PaymentPayload, response t402.SettleResponse) {
	key := Key(payload)
	if key == "" {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.results[key] = response
	s.expiry[key] = time.Now().Add(s.ttl)
	s.cleanupLocked()
}

func (s *Store) cleanupLocked() {
	now := time.Now()
	for key, expiry := range s.expiry {
		if now.After(expiry) {
			delete(s.results, key)
			delete(s.expiry, key)
		}
	}
}

var _ t402.SettleCache = (*Store)(nil)
