package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/scan-validator/internal/domain"
)

// TokenStore keeps scan codes in process memory. It is the storage engine
// for single-instance deployments and tests; Consume is atomic under mu.
type TokenStore struct {
	mu     sync.Mutex
	tokens map[string]time.Time
	clock  func() time.Time
}

func NewTokenStore() *TokenStore {
	return NewTokenStoreWithClock(time.Now)
}

// NewTokenStoreWithClock returns a store whose housekeeping purge reads the
// given clock. Consume always uses the instant it is passed.
func NewTokenStoreWithClock(clock func() time.Time) *TokenStore {
	return &TokenStore{tokens: make(map[string]time.Time), clock: clock}
}

func (s *TokenStore) Put(_ context.Context, t *domain.ScanToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.purgeLocked(s.clock())
	if _, exists := s.tokens[t.Code]; exists {
		return fmt.Errorf("token already exists: %w", domain.ErrConflict)
	}
	s.tokens[t.Code] = t.ExpiresAt
	return nil
}

func (s *TokenStore) Consume(_ context.Context, code string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	exp, ok := s.tokens[code]
	if !ok || !exp.After(now) {
		return false, nil
	}
	delete(s.tokens, code)
	return true, nil
}

// Len reports the number of stored codes, expired ones included.
func (s *TokenStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tokens)
}

// purgeLocked drops codes that expired before now. Housekeeping only.
func (s *TokenStore) purgeLocked(now time.Time) {
	for code, exp := range s.tokens {
		if !exp.After(now) {
			delete(s.tokens, code)
		}
	}
}
