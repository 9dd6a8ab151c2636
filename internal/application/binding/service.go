package binding

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/scan-validator/internal/domain"
)

type bindingStore interface {
	Get(ctx context.Context, userID string) (*domain.DeviceBinding, error)
	Delete(ctx context.Context, userID string) error
}

// Service exposes the administrative side of device bindings. Bindings are
// only ever created by scan validation.
type Service interface {
	Get(ctx context.Context, userID string) (*domain.DeviceBinding, error)
	Reset(ctx context.Context, userID string) error
}

type service struct {
	store bindingStore
}

func NewService(store bindingStore) Service {
	return &service{store: store}
}

func (s *service) Get(ctx context.Context, userID string) (*domain.DeviceBinding, error) {
	if userID == "" {
		return nil, fmt.Errorf("user id required: %w", domain.ErrBadRequest)
	}
	return s.store.Get(ctx, userID)
}

func (s *service) Reset(ctx context.Context, userID string) error {
	if userID == "" {
		return fmt.Errorf("user id required: %w", domain.ErrBadRequest)
	}
	if err := s.store.Delete(ctx, userID); err != nil {
		return err
	}
	slog.InfoContext(ctx, "device binding reset", "user_id", userID)
	return nil
}
