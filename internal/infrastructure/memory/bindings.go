package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/scan-validator/internal/domain"
)

type BindingStore struct {
	mu       sync.RWMutex
	bindings map[string]domain.DeviceBinding
}

func NewBindingStore() *BindingStore {
	return &BindingStore{bindings: make(map[string]domain.DeviceBinding)}
}

func (s *BindingStore) CheckOrBind(_ context.Context, userID, deviceID string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bindings[userID]
	if !ok {
		s.bindings[userID] = domain.DeviceBinding{UserID: userID, DeviceID: deviceID, BoundAt: now.UTC()}
		return nil
	}
	if b.DeviceID != deviceID {
		return fmt.Errorf("identity %s is bound to another device: %w", userID, domain.ErrDeviceConflict)
	}
	return nil
}

func (s *BindingStore) Get(_ context.Context, userID string) (*domain.DeviceBinding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.bindings[userID]
	if !ok {
		return nil, fmt.Errorf("binding not found: %w", domain.ErrNotFound)
	}
	return &b, nil
}

func (s *BindingStore) Delete(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.bindings[userID]; !ok {
		return fmt.Errorf("binding not found: %w", domain.ErrNotFound)
	}
	delete(s.bindings, userID)
	return nil
}
