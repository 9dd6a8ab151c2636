package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/scan-validator/internal/domain"
)

// Error kinds reported in rejected scan responses.
const (
	KindUnauthenticated = "unauthenticated"
	KindInvalidToken    = "invalid_token"
	KindDeviceConflict  = "device_conflict"
	KindInternalError   = "internal_error"
	KindInvalidRequest  = "invalid_request"
)

// MessageEnvelope is the generic response wrapper.
type MessageEnvelope struct {
	Message   string `json:"message,omitempty"`
	Error     string `json:"error,omitempty"`
	ErrorCode int    `json:"error_code,omitempty"`
}

// ScanEnvelope is the body of every /scans response, accepted or not.
type ScanEnvelope struct {
	Accepted       bool                  `json:"accepted"`
	Kind           domain.AttendanceKind `json:"kind,omitempty"`
	RecordedAt     *time.Time            `json:"recorded_at,omitempty"`
	DisplayMessage string                `json:"display_message,omitempty"`
	ErrorKind      string                `json:"error_kind,omitempty"`
	Message        string                `json:"message,omitempty"`
}

// LastEventEnvelope reports the caller's most recent attendance kind.
// LastKind is null for an identity with no history.
type LastEventEnvelope struct {
	UserID   string                 `json:"user_id"`
	LastKind *domain.AttendanceKind `json:"last_kind"`
	NextKind domain.AttendanceKind  `json:"next_kind"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, MessageEnvelope{Error: msg})
}
