// Package models defines the persisted entities of the storage pipeline and
// the schema metadata the repository layer uses to build SQL, generate
// embeddings and populate the key-value index.
package models

import "github.com/google/uuid"

// EmbeddingField declares a column whose text content is embedded on upsert.
type EmbeddingField struct {
	// Field is the column name.
	Field string

	// Provider is the embedding provider identifier (e.g. "openai:text-embedding-3-small").
	Provider string
}

// Schema describes a model to the repository layer. Upsert SQL construction
// is a pure function of (Schema, row).
type Schema interface {
	// TableName is the primary table for the entity.
	TableName() string

	// KeyField is the column used to derive deterministic IDs when the
	// caller does not supply one. Empty means random IDs.
	KeyField() string

	// Columns is the ordered column set of the primary table.
	Columns() []string

	// EmbeddingFields lists the embedding-eligible columns.
	EmbeddingFields() []EmbeddingField

	// TenantIsolated reports whether every row carries tenant_id and every
	// query filters by it.
	TenantIsolated() bool
}

// Entity is a row-bearing model instance the repository can persist.
type Entity interface {
	Schema

	// EntityID returns the primary key, or uuid.Nil when unassigned.
	EntityID() uuid.UUID

	// SetEntityID assigns the primary key.
	SetEntityID(uuid.UUID)

	// EntityKey returns the value of the key field ("" when absent), used
	// for deterministic ID derivation.
	EntityKey() string

	// EntityName returns the value of the name column ("" when absent),
	// used for key-value index population.
	EntityName() string

	// Edges returns the inline graph edges stored on the entity.
	Edges() []InlineEdge

	// Row maps column names to values for SQL rendering.
	Row() map[string]any

	// ScanRow populates the entity from a column-value map.
	ScanRow(row map[string]any) error
}
