package logger

import (
	"context"
	"time"
)

// contextKey is a private type for context keys to avoid collisions.
type contextKey struct{}

var logContextKey = contextKey{}

// LogContext holds message-scoped logging context that follows a storage
// event through the pipeline.
type LogContext struct {
	TraceID   string    // OpenTelemetry trace ID
	Tenant    string    // Tenant owning the event
	Tier      string    // small, medium, large
	Subject   string    // Broker subject the message arrived on
	EventPath string    // Blob path from the event payload
	StartTime time.Time // For duration calculation
}

// WithContext returns a new context carrying the given LogContext.
func WithContext(ctx context.Context, lc *LogContext) context.Context {
	return context.WithValue(ctx, logContextKey, lc)
}

// FromContext retrieves the LogContext, or nil if not present.
func FromContext(ctx context.Context) *LogContext {
	if ctx == nil {
		return nil
	}
	lc, _ := ctx.Value(logContextKey).(*LogContext)
	return lc
}

// NewLogContext creates a LogContext for a message pulled from the broker.
func NewLogContext(subject string) *LogContext {
	return &LogContext{
		Subject:   subject,
		StartTime: time.Now(),
	}
}

// Clone creates a copy of the LogContext.
func (lc *LogContext) Clone() *LogContext {
	if lc == nil {
		return nil
	}
	out := *lc
	return &out
}

// WithTenant returns a copy with the tenant set.
func (lc *LogContext) WithTenant(tenant string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.Tenant = tenant
	}
	return clone
}

// WithEvent returns a copy with tenant and path from an event payload.
func (lc *LogContext) WithEvent(tenant, path string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.Tenant = tenant
		clone.EventPath = path
	}
	return clone
}

// DurationMs returns the duration since StartTime in milliseconds.
func (lc *LogContext) DurationMs() float64 {
	if lc == nil || lc.StartTime.IsZero() {
		return 0
	}
	return float64(time.Since(lc.StartTime).Microseconds()) / 1000.0
}
