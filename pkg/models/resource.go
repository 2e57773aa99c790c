package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Resource categories. CategoryDocumentChunk rows must carry non-empty
// content.
const (
	CategoryDocumentChunk = "document_chunk"
	CategoryNote          = "note"
	CategoryTranscript    = "transcript"
)

// Resource is a processor-produced fragment of extracted content (a chunk).
// A File exclusively owns its Resources.
type Resource struct {
	ID       uuid.UUID `json:"id"`
	TenantID string    `json:"tenant_id"`

	// Name is the human-readable label, typically the parent file's stem.
	Name     string `json:"name"`
	Category string `json:"category"`
	Content  string `json:"content"`
	Summary  string `json:"summary,omitempty"`

	// URI points back at the source blob.
	URI string `json:"uri,omitempty"`

	// Ordinal is the chunk's position within the parent file, unique per
	// (file, tenant).
	Ordinal int `json:"ordinal"`

	// GraphPaths holds the inline graph edges, unique on (dst, rel_type).
	GraphPaths []InlineEdge `json:"graph_paths,omitempty"`

	Metadata          map[string]any `json:"metadata,omitempty"`
	ResourceTimestamp time.Time      `json:"resource_timestamp"`
}

// Validate enforces the chunk invariants before persistence.
func (r *Resource) Validate() error {
	if r.Ordinal < 0 {
		return fmt.Errorf("resource ordinal must be >= 0, got %d", r.Ordinal)
	}
	if r.Category == CategoryDocumentChunk && r.Content == "" {
		return fmt.Errorf("document_chunk resource %q has empty content", r.Name)
	}
	for _, e := range r.GraphPaths {
		if !e.Valid() {
			return fmt.Errorf("invalid edge %s-[%s]-> weight %v", r.Name, e.RelType, e.Weight)
		}
	}
	return nil
}

func (*Resource) TableName() string { return "resources" }
func (*Resource) KeyField() string  { return "name" }
func (*Resource) Columns() []string {
	return []string{"id", "tenant_id", "name", "category", "content", "summary", "uri", "ordinal", "graph_paths", "metadata", "resource_timestamp"}
}
func (*Resource) EmbeddingFields() []EmbeddingField {
	return []EmbeddingField{{Field: "content", Provider: "default"}}
}
func (*Resource) TenantIsolated() bool { return true }

func (r *Resource) EntityID() uuid.UUID      { return r.ID }
func (r *Resource) SetEntityID(id uuid.UUID) { r.ID = id }
func (r *Resource) EntityKey() string        { return r.Name }
func (r *Resource) EntityName() string       { return r.Name }
func (r *Resource) Edges() []InlineEdge      { return r.GraphPaths }

func (r *Resource) Row() map[string]any {
	return map[string]any{
		"id":                 r.ID,
		"tenant_id":          r.TenantID,
		"name":               r.Name,
		"category":           r.Category,
		"content":            r.Content,
		"summary":            r.Summary,
		"uri":                r.URI,
		"ordinal":            r.Ordinal,
		"graph_paths":        r.GraphPaths,
		"metadata":           r.Metadata,
		"resource_timestamp": r.ResourceTimestamp,
	}
}

func (r *Resource) ScanRow(row map[string]any) error {
	id, err := rowUUID(row, "id")
	if err != nil {
		return err
	}
	r.ID = id
	r.TenantID = rowString(row, "tenant_id")
	r.Name = rowString(row, "name")
	r.Category = rowString(row, "category")
	r.Content = rowString(row, "content")
	r.Summary = rowString(row, "summary")
	r.URI = rowString(row, "uri")
	r.Ordinal = int(rowInt64(row, "ordinal"))
	r.ResourceTimestamp = rowTime(row, "resource_timestamp")
	if err := rowJSON(row, "graph_paths", &r.GraphPaths); err != nil {
		return err
	}
	return rowJSON(row, "metadata", &r.Metadata)
}
