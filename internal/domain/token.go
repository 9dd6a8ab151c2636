package domain

import "time"

// ScanToken is a single-use authorization code displayed by the issuer.
// A consumed or expired code never authorizes another event.
type ScanToken struct {
	Code      string    `json:"code"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the token can no longer be consumed at now.
func (t ScanToken) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

type IssueTokenRequest struct {
	TTLSeconds *int `json:"ttl_seconds" validate:"omitempty,min=1,max=3600"`
}
