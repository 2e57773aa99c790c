package logger

import "log/slog"

// Standard field keys for structured logging across the event pipeline.
// Use these consistently so logs from the router, workers and repository can
// be correlated and queried as one stream.
const (
	// Tracing
	KeyTraceID = "trace_id"
	KeySpanID  = "span_id"

	// Event pipeline
	KeyTenant    = "tenant_id"
	KeyTier      = "tier"
	KeySubject   = "subject"
	KeyStream    = "stream"
	KeyConsumer  = "consumer"
	KeyEventType = "event_type"
	KeyDelivered = "delivered" // broker delivery attempt

	// Blob storage
	KeyPath        = "path"
	KeyBucket      = "bucket"
	KeyKey         = "key"
	KeySize        = "size"
	KeyContentType = "content_type"
	KeyUploadID    = "upload_id"
	KeyPart        = "part"

	// Repository
	KeyTable    = "table"
	KeyEntityID = "entity_id"
	KeyField    = "field"
	KeyProvider = "provider"
	KeyRows     = "rows"

	// Operation metadata
	KeyOperation  = "operation"
	KeyDurationMs = "duration_ms"
	KeyError      = "error"
	KeyAttempt    = "attempt"
)

// Err returns a slog.Attr for an error.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

// Tenant returns a slog.Attr for a tenant identifier.
func Tenant(id string) slog.Attr {
	return slog.String(KeyTenant, id)
}

// Tier returns a slog.Attr for a size tier.
func Tier(t string) slog.Attr {
	return slog.String(KeyTier, t)
}

// Subject returns a slog.Attr for a broker subject.
func Subject(s string) slog.Attr {
	return slog.String(KeySubject, s)
}

// Path returns a slog.Attr for a blob path.
func Path(p string) slog.Attr {
	return slog.String(KeyPath, p)
}

// Size returns a slog.Attr for a byte size.
func Size(n int64) slog.Attr {
	return slog.Int64(KeySize, n)
}

// Table returns a slog.Attr for a repository table name.
func Table(name string) slog.Attr {
	return slog.String(KeyTable, name)
}

// EntityID returns a slog.Attr for an entity UUID.
func EntityID(id string) slog.Attr {
	return slog.String(KeyEntityID, id)
}

// Operation returns a slog.Attr for a sub-operation name.
func Operation(op string) slog.Attr {
	return slog.String(KeyOperation, op)
}

// DurationMs returns a slog.Attr for a duration in milliseconds.
func DurationMs(ms float64) slog.Attr {
	return slog.Float64(KeyDurationMs, ms)
}

// Attempt returns a slog.Attr for a retry attempt number.
func Attempt(n int) slog.Attr {
	return slog.Int(KeyAttempt, n)
}
