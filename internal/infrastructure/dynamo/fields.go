package dynamo

// DynamoDB attribute names used in key, condition and update expressions.
// Using constants prevents silent runtime bugs caused by key typos.
const (
	fieldCode        = "code"
	fieldExpiresAt   = "expires_at" // TTL attribute (Unix seconds)
	fieldExpiresAtMs = "expires_at_ms"
	fieldUserID      = "user_id"
	fieldDeviceID    = "device_id"
	fieldBoundAt     = "bound_at"
	fieldLastKind    = "last_kind"
	fieldSeq         = "seq"
	fieldUpdatedAt   = "updated_at"
)
