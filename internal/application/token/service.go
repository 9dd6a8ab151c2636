package token

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/scan-validator/internal/domain"
	codegen "github.com/scan-validator/internal/pkg/token"
)

type tokenStore interface {
	Put(ctx context.Context, t *domain.ScanToken) error
}

type Service interface {
	// Issue mints a single-use code valid for ttl, or for the default TTL
	// when ttl is not positive.
	Issue(ctx context.Context, ttl time.Duration) (*domain.ScanToken, error)
}

type service struct {
	store      tokenStore
	defaultTTL time.Duration
	now        func() time.Time
	newCode    func() (string, error)
}

func NewService(store tokenStore, defaultTTL time.Duration) Service {
	return &service{
		store:      store,
		defaultTTL: defaultTTL,
		now:        func() time.Time { return time.Now().UTC() },
		newCode:    codegen.NewScanCode,
	}
}

func (s *service) Issue(ctx context.Context, ttl time.Duration) (*domain.ScanToken, error) {
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	code, err := s.newCode()
	if err != nil {
		return nil, fmt.Errorf("generate code: %w", err)
	}
	t := &domain.ScanToken{Code: code, ExpiresAt: s.now().Add(ttl)}
	if err := s.store.Put(ctx, t); err != nil {
		return nil, fmt.Errorf("store code: %w", err)
	}
	slog.DebugContext(ctx, "scan code issued", "expires_at", t.ExpiresAt)
	return t, nil
}
