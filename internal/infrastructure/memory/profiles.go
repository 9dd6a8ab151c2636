package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/scan-validator/internal/domain"
)

type ProfileStore struct {
	mu       sync.RWMutex
	profiles map[string]domain.Profile
}

func NewProfileStore(profiles ...domain.Profile) *ProfileStore {
	s := &ProfileStore{profiles: make(map[string]domain.Profile, len(profiles))}
	for _, p := range profiles {
		s.profiles[p.UserID] = p
	}
	return s
}

func (s *ProfileStore) Get(_ context.Context, userID string) (*domain.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[userID]
	if !ok {
		return nil, fmt.Errorf("profile not found: %w", domain.ErrNotFound)
	}
	return &p, nil
}
