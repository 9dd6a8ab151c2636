package scan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/scan-validator/internal/domain"
)

const fallbackName = "Worker"

type tokenStore interface {
	Consume(ctx context.Context, code string, now time.Time) (bool, error)
}

type bindingStore interface {
	CheckOrBind(ctx context.Context, userID, deviceID string, now time.Time) error
}

type ledger interface {
	LastEvent(ctx context.Context, userID string) (*domain.AttendanceKind, error)
	ToggleAppend(ctx context.Context, userID string) (*domain.AttendanceEvent, error)
}

type profileStore interface {
	Get(ctx context.Context, userID string) (*domain.Profile, error)
}

type publisher interface {
	PublishAttendance(ctx context.Context, ev *domain.AttendanceEvent) error
}

type Service interface {
	// Validate decides whether a scan is accepted and records the event.
	// A token consumed by Validate stays consumed even when a later step fails.
	Validate(ctx context.Context, identity *domain.Identity, req domain.ScanRequest) (*domain.ScanResult, error)
	LastEvent(ctx context.Context, userID string) (*domain.AttendanceKind, error)
}

// ServiceDeps groups the collaborators of the scan service. Profiles and
// Publisher are optional.
type ServiceDeps struct {
	Tokens    tokenStore
	Bindings  bindingStore
	Ledger    ledger
	Profiles  profileStore
	Publisher publisher
	Now       func() time.Time
}

type service struct {
	tokens    tokenStore
	bindings  bindingStore
	ledger    ledger
	profiles  profileStore
	publisher publisher
	now       func() time.Time
}

func NewService(deps ServiceDeps) Service {
	now := deps.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &service{
		tokens:    deps.Tokens,
		bindings:  deps.Bindings,
		ledger:    deps.Ledger,
		profiles:  deps.Profiles,
		publisher: deps.Publisher,
		now:       now,
	}
}

func (s *service) Validate(ctx context.Context, identity *domain.Identity, req domain.ScanRequest) (*domain.ScanResult, error) {
	if identity == nil || identity.UserID == "" {
		return nil, domain.ErrUnauthenticated
	}
	now := s.now()

	ok, err := s.tokens.Consume(ctx, req.Code, now)
	if err != nil {
		return nil, fmt.Errorf("consume token: %w", err)
	}
	if !ok {
		return nil, domain.ErrInvalidToken
	}

	if err := s.bindings.CheckOrBind(ctx, identity.UserID, req.DeviceID, now); err != nil {
		if errors.Is(err, domain.ErrDeviceConflict) {
			slog.WarnContext(ctx, "scan from unbound device", "user_id", identity.UserID, "device_id", req.DeviceID)
			return nil, domain.ErrDeviceConflict
		}
		return nil, fmt.Errorf("check device binding: %w", err)
	}

	// The ledger stamps the event when it commits. Stamping with now could
	// date it before an event that overtook this request.
	ev, err := s.ledger.ToggleAppend(ctx, identity.UserID)
	if err != nil {
		return nil, fmt.Errorf("append attendance: %w", err)
	}

	s.publish(ctx, ev)

	return &domain.ScanResult{
		Kind:           ev.Kind,
		RecordedAt:     ev.RecordedAt,
		DisplayMessage: displayMessage(ev.Kind, s.displayName(ctx, identity)),
		Event:          ev,
	}, nil
}

func (s *service) LastEvent(ctx context.Context, userID string) (*domain.AttendanceKind, error) {
	if userID == "" {
		return nil, domain.ErrUnauthenticated
	}
	return s.ledger.LastEvent(ctx, userID)
}

func (s *service) displayName(ctx context.Context, identity *domain.Identity) string {
	if s.profiles != nil {
		p, err := s.profiles.Get(ctx, identity.UserID)
		switch {
		case err == nil && p.FullName != "":
			return p.FullName
		case err != nil && !errors.Is(err, domain.ErrNotFound):
			slog.WarnContext(ctx, "profile lookup failed", "user_id", identity.UserID, "error", err)
		}
	}
	if identity.Name != "" {
		return identity.Name
	}
	return fallbackName
}

// publish hands the event to the optional publisher. The event is already
// committed, so a failure here is only logged.
func (s *service) publish(ctx context.Context, ev *domain.AttendanceEvent) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishAttendance(ctx, ev); err != nil {
		slog.ErrorContext(ctx, "publish attendance event", "event_id", ev.EventID, "error", err)
	}
}

func displayMessage(kind domain.AttendanceKind, name string) string {
	if kind == domain.KindDeparture {
		return fmt.Sprintf("Goodbye, %s! Departure recorded.", name)
	}
	return fmt.Sprintf("Welcome, %s! Arrival recorded.", name)
}
