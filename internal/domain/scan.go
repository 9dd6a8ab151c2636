package domain

import "time"

// Identity is the caller as resolved by the external identity provider.
type Identity struct {
	UserID string
	Name   string
	Role   string
}

const (
	RoleAdmin  = "admin"
	RoleIssuer = "issuer"
	RoleWorker = "worker"
)

type ScanRequest struct {
	Code     string `json:"code" validate:"required,max=256"`
	DeviceID string `json:"device_id" validate:"required,max=256"`
}

// ScanResult describes an accepted scan.
type ScanResult struct {
	Kind           AttendanceKind   `json:"kind"`
	RecordedAt     time.Time        `json:"recorded_at"`
	DisplayMessage string           `json:"display_message"`
	Event          *AttendanceEvent `json:"-"`
}

// Profile is the read-only display data owned by the profile subsystem.
type Profile struct {
	UserID   string `json:"user_id" dynamodbav:"user_id"`
	FullName string `json:"full_name" dynamodbav:"full_name"`
}
