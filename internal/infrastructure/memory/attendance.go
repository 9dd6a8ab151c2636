package memory

import (
	"context"
	"sync"
	"time"

	"github.com/scan-validator/internal/domain"
	"github.com/scan-validator/internal/pkg/id"
)

// identityLog is one identity's slice of the ledger. Its mutex is the
// per-identity serialization point, so identities never wait on each other.
type identityLog struct {
	mu     sync.Mutex
	events []domain.AttendanceEvent
}

func (l *identityLog) last() *domain.AttendanceKind {
	if len(l.events) == 0 {
		return nil
	}
	k := l.events[len(l.events)-1].Kind
	return &k
}

type Ledger struct {
	mu    sync.RWMutex
	logs  map[string]*identityLog
	clock func() time.Time
}

func NewLedger() *Ledger {
	return NewLedgerWithClock(time.Now)
}

// NewLedgerWithClock stamps events with clock instead of the wall clock.
func NewLedgerWithClock(clock func() time.Time) *Ledger {
	return &Ledger{logs: make(map[string]*identityLog), clock: clock}
}

func (s *Ledger) log(userID string) *identityLog {
	s.mu.RLock()
	l, ok := s.logs[userID]
	s.mu.RUnlock()
	if ok {
		return l
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok = s.logs[userID]; !ok {
		l = &identityLog{}
		s.logs[userID] = l
	}
	return l
}

func (s *Ledger) LastEvent(_ context.Context, userID string) (*domain.AttendanceKind, error) {
	l := s.log(userID)
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.last(), nil
}

// ToggleAppend stamps the event under the identity's lock, so an append that
// waited behind another is never recorded before it.
func (s *Ledger) ToggleAppend(_ context.Context, userID string) (*domain.AttendanceEvent, error) {
	l := s.log(userID)
	l.mu.Lock()
	defer l.mu.Unlock()
	var prev time.Time
	if n := len(l.events); n > 0 {
		prev = l.events[n-1].RecordedAt
	}
	recordedAt := domain.CommitTime(s.clock(), prev)
	ev := domain.AttendanceEvent{
		EventID:    id.NewAt(recordedAt),
		UserID:     userID,
		Seq:        int64(len(l.events)) + 1,
		Kind:       domain.NextKind(l.last()),
		RecordedAt: recordedAt,
	}
	l.events = append(l.events, ev)
	return &ev, nil
}

// Events returns a copy of userID's events in commit order.
func (s *Ledger) Events(userID string) []domain.AttendanceEvent {
	l := s.log(userID)
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]domain.AttendanceEvent, len(l.events))
	copy(out, l.events)
	return out
}
