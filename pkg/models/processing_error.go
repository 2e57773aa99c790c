package models

import (
	"time"

	"github.com/google/uuid"
)

// ProcessingError records an unrecoverable per-event failure. The worker
// writes one of these and ACKs so a poisoned event does not loop forever.
type ProcessingError struct {
	ID        uuid.UUID `json:"id"`
	TenantID  string    `json:"tenant_id"`
	EventPath string    `json:"event_path"`
	Stage     string    `json:"stage"` // download, extract, persist, embed
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

func (*ProcessingError) TableName() string { return "processing_errors" }
func (*ProcessingError) KeyField() string  { return "" }
func (*ProcessingError) Columns() []string {
	return []string{"id", "tenant_id", "event_path", "stage", "message", "created_at"}
}
func (*ProcessingError) EmbeddingFields() []EmbeddingField { return nil }
func (*ProcessingError) TenantIsolated() bool              { return true }

func (p *ProcessingError) EntityID() uuid.UUID      { return p.ID }
func (p *ProcessingError) SetEntityID(id uuid.UUID) { p.ID = id }
func (p *ProcessingError) EntityKey() string        { return "" }
func (p *ProcessingError) EntityName() string       { return "" }
func (p *ProcessingError) Edges() []InlineEdge      { return nil }

func (p *ProcessingError) Row() map[string]any {
	return map[string]any{
		"id":         p.ID,
		"tenant_id":  p.TenantID,
		"event_path": p.EventPath,
		"stage":      p.Stage,
		"message":    p.Message,
		"created_at": p.CreatedAt,
	}
}

func (p *ProcessingError) ScanRow(row map[string]any) error {
	id, err := rowUUID(row, "id")
	if err != nil {
		return err
	}
	p.ID = id
	p.TenantID = rowString(row, "tenant_id")
	p.EventPath = rowString(row, "event_path")
	p.Stage = rowString(row, "stage")
	p.Message = rowString(row, "message")
	p.CreatedAt = rowTime(row, "created_at")
	return nil
}
