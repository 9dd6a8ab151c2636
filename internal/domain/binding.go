package domain

import "time"

// DeviceBinding pins an identity to the first device that scanned with it.
// PK: user_id. Never rewritten by the validator; reset is an admin action.
type DeviceBinding struct {
	UserID   string    `json:"user_id" dynamodbav:"user_id"`
	DeviceID string    `json:"device_id" dynamodbav:"device_id"`
	BoundAt  time.Time `json:"bound_at" dynamodbav:"bound_at"`
}
