package http

import (
	"context"
	"time"

	"github.com/scan-validator/internal/domain"
	jwtinfra "github.com/scan-validator/internal/infrastructure/jwt"
)

// TokenStore is the minimal interface the router requires from a scan-code store.
type TokenStore interface {
	Put(ctx context.Context, t *domain.ScanToken) error
	Consume(ctx context.Context, code string, now time.Time) (bool, error)
}

// BindingStore is the minimal interface the router requires from a device-binding registry.
type BindingStore interface {
	CheckOrBind(ctx context.Context, userID, deviceID string, now time.Time) error
	Get(ctx context.Context, userID string) (*domain.DeviceBinding, error)
	Delete(ctx context.Context, userID string) error
}

// Ledger is the minimal interface the router requires from the attendance ledger.
type Ledger interface {
	LastEvent(ctx context.Context, userID string) (*domain.AttendanceKind, error)
	ToggleAppend(ctx context.Context, userID string) (*domain.AttendanceEvent, error)
}

// ProfileStore is the minimal interface the router requires from the profile lookup.
type ProfileStore interface {
	Get(ctx context.Context, userID string) (*domain.Profile, error)
}

// EventPublisher fans accepted attendance events out to other systems.
type EventPublisher interface {
	PublishAttendance(ctx context.Context, ev *domain.AttendanceEvent) error
}

// Deps holds all infrastructure dependencies for the router.
// Profiles, Publisher and JWTProvider may be nil.
type Deps struct {
	Tokens      TokenStore
	Bindings    BindingStore
	Ledger      Ledger
	Profiles    ProfileStore
	Publisher   EventPublisher
	JWTProvider *jwtinfra.Provider
}
