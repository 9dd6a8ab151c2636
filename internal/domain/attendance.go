package domain

import "time"

type AttendanceKind string

const (
	KindArrival   AttendanceKind = "arrival"
	KindDeparture AttendanceKind = "departure"
)

// NextKind returns the kind that follows last in the per-identity toggle.
// An identity with no history always starts with an arrival.
func NextKind(last *AttendanceKind) AttendanceKind {
	if last != nil && *last == KindArrival {
		return KindDeparture
	}
	return KindArrival
}

// AttendanceEvent is one append-only ledger row.
// PK: user_id, SK: seq. Seq starts at 1 and grows by one per identity.
type AttendanceEvent struct {
	EventID    string         `json:"id" dynamodbav:"event_id"`
	UserID     string         `json:"user_id" dynamodbav:"user_id"`
	Seq        int64          `json:"seq" dynamodbav:"seq"`
	Kind       AttendanceKind `json:"kind" dynamodbav:"kind"`
	RecordedAt time.Time      `json:"recorded_at" dynamodbav:"recorded_at"`
}

// AttendanceHead is the per-identity serialization point of the ledger:
// every append conditionally advances it from the seq it was read at.
type AttendanceHead struct {
	UserID    string         `dynamodbav:"user_id"`
	LastKind  AttendanceKind `dynamodbav:"last_kind"`
	Seq       int64          `dynamodbav:"seq"`
	UpdatedAt time.Time      `dynamodbav:"updated_at"`
}

// Last returns the most recent kind, or nil for an identity with no history.
func (h *AttendanceHead) Last() *AttendanceKind {
	if h == nil || h.Seq == 0 {
		return nil
	}
	k := h.LastKind
	return &k
}

// minEventGap keeps consecutive events of one identity strictly ordered by
// recorded_at even when the clock stalls or steps back.
const minEventGap = time.Microsecond

// CommitTime returns the timestamp for an event appended after prev at wall
// time now. It never precedes prev, so recorded_at order matches seq order.
func CommitTime(now, prev time.Time) time.Time {
	now = now.UTC()
	if prev.IsZero() || now.After(prev) {
		return now
	}
	return prev.UTC().Add(minEventGap)
}
