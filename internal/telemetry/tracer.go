package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys for pipeline operations. Keys follow OpenTelemetry semantic
// conventions where one exists; pipeline-specific keys use a "p8fs." prefix.
const (
	AttrTenant      = "p8fs.tenant_id"
	AttrTier        = "p8fs.tier"
	AttrSubject     = "messaging.destination.name"
	AttrStream      = "p8fs.stream"
	AttrConsumer    = "p8fs.consumer"
	AttrEventType   = "p8fs.event_type"
	AttrBlobPath    = "p8fs.blob.path"
	AttrBlobBucket  = "p8fs.blob.bucket"
	AttrBlobSize    = "p8fs.blob.size"
	AttrTable       = "db.collection.name"
	AttrEntityID    = "p8fs.entity_id"
	AttrField       = "p8fs.embedding.field"
	AttrProvider    = "p8fs.embedding.provider"
	AttrBatchSize   = "p8fs.batch_size"
	AttrContentType = "p8fs.content_type"
)

// Tenant returns a tenant attribute.
func Tenant(id string) attribute.KeyValue {
	return attribute.String(AttrTenant, id)
}

// Tier returns a tier attribute.
func Tier(t string) attribute.KeyValue {
	return attribute.String(AttrTier, t)
}

// Subject returns a broker subject attribute.
func Subject(s string) attribute.KeyValue {
	return attribute.String(AttrSubject, s)
}

// BlobPath returns a blob path attribute.
func BlobPath(p string) attribute.KeyValue {
	return attribute.String(AttrBlobPath, p)
}

// Table returns a table name attribute.
func Table(name string) attribute.KeyValue {
	return attribute.String(AttrTable, name)
}

// StartBlobSpan starts a span for a blob store operation.
func StartBlobSpan(ctx context.Context, op, path string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	all := append([]attribute.KeyValue{BlobPath(path)}, attrs...)
	return StartSpan(ctx, "blob."+op, trace.WithAttributes(all...))
}

// StartBrokerSpan starts a span for a broker operation.
func StartBrokerSpan(ctx context.Context, op, subject string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	all := append([]attribute.KeyValue{Subject(subject)}, attrs...)
	return StartSpan(ctx, "broker."+op, trace.WithAttributes(all...))
}

// StartRepositorySpan starts a span for a repository operation.
func StartRepositorySpan(ctx context.Context, op, table string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	all := append([]attribute.KeyValue{Table(table)}, attrs...)
	return StartSpan(ctx, "repository."+op, trace.WithAttributes(all...))
}
