// Package repository implements the dual-indexing persistence layer: every
// entity upsert writes the primary SQL row, then embeddings for declared
// fields, then the key-value reverse index. The SQL write is authoritative;
// the two index writes are best-effort and never roll it back.
package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/p8fs/p8fs/internal/logger"
	"github.com/p8fs/p8fs/internal/telemetry"
	"github.com/p8fs/p8fs/pkg/embeddings"
	"github.com/p8fs/p8fs/pkg/events"
	"github.com/p8fs/p8fs/pkg/kv"
	"github.com/p8fs/p8fs/pkg/models"
	"github.com/p8fs/p8fs/pkg/repository/provider"
)

// SystemTenant is the reserved tenant for system-owned rows.
const SystemTenant = "system"

// validator is implemented by entities that check their own invariants
// before persistence.
type validator interface {
	Validate() error
}

// Config holds repository construction parameters.
type Config struct {
	Provider   provider.StorageProvider
	Embeddings *embeddings.Registry
	KV         kv.Store
}

// Repository coordinates the SQL provider, the embedding registry and the
// key-value index. Safe for concurrent use when its parts are.
type Repository struct {
	provider   provider.StorageProvider
	embeddings *embeddings.Registry
	kv         kv.Store
}

// New creates a repository. Embeddings and KV may be nil, disabling those
// index stages.
func New(cfg Config) *Repository {
	return &Repository{
		provider:   cfg.Provider,
		embeddings: cfg.Embeddings,
		kv:         cfg.KV,
	}
}

// Provider exposes the underlying storage provider.
func (r *Repository) Provider() provider.StorageProvider { return r.provider }

// Migrate applies pending schema migrations.
func (r *Repository) Migrate(ctx context.Context) error {
	return r.provider.Migrate(ctx)
}

// UpsertResult reports what each stage of one upsert did.
type UpsertResult struct {
	EntityID uuid.UUID
	Table    string

	// EmbeddingsWritten counts successful embedding rows.
	EmbeddingsWritten int

	// IndexingErrors holds the best-effort failures (embeddings, KV). The
	// upsert still succeeded.
	IndexingErrors []error

	// KVUpdated reports whether the key-value index gained this entity.
	KVUpdated bool
}

// Upsert persists one entity. The primary row write aborts the whole upsert
// on failure; embedding and KV failures are collected and logged only.
func (r *Repository) Upsert(ctx context.Context, tenant string, entity models.Entity) (*UpsertResult, error) {
	ctx, span := telemetry.StartRepositorySpan(ctx, "upsert", entity.TableName(), telemetry.Tenant(tenant))
	defer span.End()

	if v, ok := entity.(validator); ok {
		if err := v.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %v", events.ErrValidation, err)
		}
	}

	assignEntityID(tenant, entity)

	row := entity.Row()
	if entity.TenantIsolated() {
		row["tenant_id"] = tenant
	}
	r.mergeGraphEdges(ctx, tenant, entity, row)

	if err := r.provider.UpsertRow(ctx, entity, row); err != nil {
		telemetry.RecordError(ctx, err)
		return nil, err
	}

	result := &UpsertResult{
		EntityID: entity.EntityID(),
		Table:    entity.TableName(),
	}

	r.writeEmbeddings(ctx, tenant, entity, row, result)
	r.writeKVIndex(ctx, tenant, entity, result)

	logger.DebugCtx(ctx, "Upserted entity",
		logger.Table(entity.TableName()),
		logger.EntityID(result.EntityID.String()),
		logger.Tenant(tenant))
	return result, nil
}

// UpsertBatch persists entities in order, stopping at the first primary-row
// failure. Partial results are returned alongside the error.
func (r *Repository) UpsertBatch(ctx context.Context, tenant string, entities []models.Entity) ([]*UpsertResult, error) {
	results := make([]*UpsertResult, 0, len(entities))
	for _, entity := range entities {
		res, err := r.Upsert(ctx, tenant, entity)
		if err != nil {
			return results, err
		}
		results = append(results, res)
	}
	return results, nil
}

// assignEntityID fills in a missing primary key: deterministic when the
// schema declares a key field and the entity carries a key, random otherwise.
func assignEntityID(tenant string, entity models.Entity) {
	if entity.EntityID() != uuid.Nil {
		return
	}
	if entity.KeyField() != "" {
		if key := entity.EntityKey(); key != "" {
			entity.SetEntityID(models.DeterministicID(tenant, key))
			return
		}
	}
	entity.SetEntityID(uuid.New())
}

// mergeGraphEdges folds the incoming graph_paths into the already persisted
// ones before the row write, so a re-upsert never downgrades an edge weight
// and (dst, rel_type) stays unique. Best-effort: on a load failure the
// incoming edges (deduplicated among themselves) win.
func (r *Repository) mergeGraphEdges(ctx context.Context, tenant string, entity models.Entity, row map[string]any) {
	incoming := entity.Edges()
	if _, ok := row["graph_paths"]; !ok || len(incoming) == 0 {
		return
	}

	var existing []models.InlineEdge
	prev, err := r.provider.GetRow(ctx, entity, entity.EntityID(), tenant)
	if err != nil {
		logger.WarnCtx(ctx, "Edge merge load failed",
			logger.Table(entity.TableName()),
			logger.Err(err))
	} else if prev != nil {
		existing = decodeEdges(prev["graph_paths"])
	}

	row["graph_paths"] = models.MergeEdges(existing, incoming)
}

// decodeEdges reads a stored graph_paths value, tolerant of the raw forms
// the providers return (JSON text, bytes, or nothing).
func decodeEdges(raw any) []models.InlineEdge {
	var buf []byte
	switch v := raw.(type) {
	case []byte:
		buf = v
	case string:
		buf = []byte(v)
	default:
		return nil
	}
	if len(buf) == 0 {
		return nil
	}
	var edges []models.InlineEdge
	if err := json.Unmarshal(buf, &edges); err != nil {
		return nil
	}
	return edges
}

// writeEmbeddings generates and stores one embedding per declared field with
// non-empty content. Fields are grouped by resolved provider so each provider
// sees a single batched Embed call. Failures are recorded, never propagated.
func (r *Repository) writeEmbeddings(ctx context.Context, tenant string, entity models.Entity, row map[string]any, result *UpsertResult) {
	fields := entity.EmbeddingFields()
	if r.embeddings == nil || len(fields) == 0 {
		return
	}

	type pendingField struct {
		name string
		text string
	}
	var (
		order     []string
		providers = make(map[string]embeddings.Provider)
		batches   = make(map[string][]pendingField)
	)
	for _, field := range fields {
		text, _ := row[field.Field].(string)
		if text == "" {
			continue
		}

		prov, err := r.embeddings.Resolve(field.Provider)
		if err != nil {
			result.IndexingErrors = append(result.IndexingErrors,
				fmt.Errorf("%w: field %s: %v", events.ErrIndexing, field.Field, err))
			continue
		}

		name := prov.Name()
		if _, seen := providers[name]; !seen {
			providers[name] = prov
			order = append(order, name)
		}
		batches[name] = append(batches[name], pendingField{field.Field, text})
	}

	for _, name := range order {
		batch := batches[name]
		texts := make([]string, len(batch))
		for i, f := range batch {
			texts[i] = f.text
		}

		vectors, err := providers[name].Embed(ctx, texts)
		if err != nil || len(vectors) != len(texts) {
			logger.WarnCtx(ctx, "Embedding generation failed",
				logger.Table(entity.TableName()),
				"provider", name,
				logger.Err(err))
			for _, f := range batch {
				result.IndexingErrors = append(result.IndexingErrors,
					fmt.Errorf("%w: embed %s: %v", events.ErrIndexing, f.name, err))
			}
			continue
		}

		for i, f := range batch {
			rec := provider.EmbeddingRecord{
				ID:        uuid.New(),
				EntityID:  entity.EntityID(),
				TableName: entity.TableName(),
				FieldName: f.name,
				TenantID:  tenant,
				Provider:  name,
				Vector:    vectors[i],
			}
			if err := r.provider.UpsertEmbedding(ctx, rec); err != nil {
				logger.WarnCtx(ctx, "Embedding write failed",
					logger.Table(entity.TableName()),
					logger.KeyField, f.name,
					logger.Err(err))
				result.IndexingErrors = append(result.IndexingErrors,
					fmt.Errorf("%w: store %s: %v", events.ErrIndexing, f.name, err))
				continue
			}
			result.EmbeddingsWritten++
		}
	}
}

// writeKVIndex appends the entity's UUID to its label's reverse-index entry,
// then to one entry per graph edge destination so a lookup on the target
// label finds the rows pointing at it.
func (r *Repository) writeKVIndex(ctx context.Context, tenant string, entity models.Entity, result *UpsertResult) {
	if r.kv == nil {
		return
	}

	if label := entity.EntityName(); label != "" {
		err := r.AppendIndexEntry(ctx, tenant, label, entity.TableName(), entity.EntityID(), entityType(entity))
		if err != nil {
			logger.WarnCtx(ctx, "KV index write failed",
				logger.Table(entity.TableName()),
				logger.Tenant(tenant),
				logger.Err(err))
			result.IndexingErrors = append(result.IndexingErrors,
				fmt.Errorf("%w: kv: %v", events.ErrIndexing, err))
		} else {
			result.KVUpdated = true
		}
	}

	for _, edge := range entity.Edges() {
		if edge.Dst == "" {
			continue
		}
		err := r.AppendIndexEntry(ctx, tenant, edge.Dst, "resource", entity.EntityID(), edge.DstEntityType())
		if err != nil {
			logger.WarnCtx(ctx, "KV edge index write failed",
				logger.Table(entity.TableName()),
				logger.Tenant(tenant),
				logger.Err(err))
			result.IndexingErrors = append(result.IndexingErrors,
				fmt.Errorf("%w: kv edge %s: %v", events.ErrIndexing, edge.Dst, err))
		}
	}
}

// AppendIndexEntry adds an entity UUID under {tenant}/{label}/{table} with
// append-and-dedup semantics.
func (r *Repository) AppendIndexEntry(ctx context.Context, tenant, label, table string, id uuid.UUID, entityType string) error {
	if r.kv == nil {
		return nil
	}
	key := kv.Key(tenant, label, table)

	raw, err := r.kv.Get(ctx, key)
	if err != nil {
		return err
	}

	entry := kv.Entry{TableName: table, EntityType: entityType}
	if raw != nil {
		if err := json.Unmarshal(raw, &entry); err != nil {
			return fmt.Errorf("corrupt index entry at %s: %w", key, err)
		}
	}
	if !entry.Append(id) {
		return nil
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return r.kv.Put(ctx, key, data, 0)
}

// LookupIndex returns the entry at {tenant}/{label}/{table}, nil when absent.
func (r *Repository) LookupIndex(ctx context.Context, tenant, label, table string) (*kv.Entry, error) {
	if r.kv == nil {
		return nil, nil
	}
	raw, err := r.kv.Get(ctx, kv.Key(tenant, label, table))
	if err != nil || raw == nil {
		return nil, err
	}
	var entry kv.Entry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, fmt.Errorf("corrupt index entry: %w", err)
	}
	return &entry, nil
}

// entityType derives the index entity type from the table name, singular.
func entityType(entity models.Entity) string {
	table := entity.TableName()
	if len(table) > 1 && table[len(table)-1] == 's' {
		return table[:len(table)-1]
	}
	return table
}

// Get loads one entity by id into dst. Returns false when the row is absent.
func (r *Repository) Get(ctx context.Context, tenant string, dst models.Entity, id uuid.UUID) (bool, error) {
	row, err := r.provider.GetRow(ctx, dst, id, tenant)
	if err != nil {
		return false, err
	}
	if row == nil {
		return false, nil
	}
	if err := dst.ScanRow(row); err != nil {
		return false, fmt.Errorf("failed to scan %s row: %w", dst.TableName(), err)
	}
	return true, nil
}

// Select returns row maps for a schema under filter. Filter keys support the
// column__op suffixes; orderBy entries with a leading "-" sort descending.
func (r *Repository) Select(ctx context.Context, tenant string, schema models.Schema, filter map[string]any, orderBy []string, limit int) ([]map[string]any, error) {
	return r.provider.SelectRows(ctx, schema, filter, orderBy, limit, tenant)
}

// Delete removes an entity row and its embeddings.
func (r *Repository) Delete(ctx context.Context, tenant string, schema models.Schema, id uuid.UUID) error {
	return r.provider.DeleteRow(ctx, schema, id, tenant)
}

// Execute runs raw SQL against the provider.
func (r *Repository) Execute(ctx context.Context, query string, args ...any) ([]map[string]any, error) {
	return r.provider.Execute(ctx, query, args...)
}

// Close releases the provider and the KV store.
func (r *Repository) Close() error {
	var firstErr error
	if err := r.provider.Close(); err != nil {
		firstErr = err
	}
	if r.kv != nil {
		if err := r.kv.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// RecordProcessingError writes an error row so a poisoned event can be acked
// without losing the failure.
func (r *Repository) RecordProcessingError(ctx context.Context, tenant, eventPath, stage string, cause error) error {
	pe := &models.ProcessingError{
		ID:        uuid.New(),
		TenantID:  tenant,
		EventPath: eventPath,
		Stage:     stage,
		Message:   cause.Error(),
		CreatedAt: time.Now().UTC(),
	}
	_, err := r.Upsert(ctx, tenant, pe)
	return err
}
