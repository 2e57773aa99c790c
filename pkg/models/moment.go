package models

import (
	"time"

	"github.com/google/uuid"
)

// Moment is a time-bounded experiential segment (a span of a recording or a
// meeting) with the same identity and lifecycle rules as Resource.
type Moment struct {
	ID       uuid.UUID `json:"id"`
	TenantID string    `json:"tenant_id"`
	Name     string    `json:"name"`
	Content  string    `json:"content"`
	Summary  string    `json:"summary,omitempty"`

	StartsAt time.Time `json:"starts_at"`
	EndsAt   time.Time `json:"ends_at"`

	EmotionTags    []string `json:"emotion_tags,omitempty"`
	TopicTags      []string `json:"topic_tags,omitempty"`
	PresentPersons []string `json:"present_persons,omitempty"`
	Speakers       []string `json:"speakers,omitempty"`

	GraphPaths []InlineEdge   `json:"graph_paths,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

func (*Moment) TableName() string { return "moments" }
func (*Moment) KeyField() string  { return "name" }
func (*Moment) Columns() []string {
	return []string{"id", "tenant_id", "name", "content", "summary", "starts_at", "ends_at", "emotion_tags", "topic_tags", "present_persons", "speakers", "graph_paths", "metadata"}
}
func (*Moment) EmbeddingFields() []EmbeddingField {
	return []EmbeddingField{{Field: "content", Provider: "default"}}
}
func (*Moment) TenantIsolated() bool { return true }

func (m *Moment) EntityID() uuid.UUID      { return m.ID }
func (m *Moment) SetEntityID(id uuid.UUID) { m.ID = id }
func (m *Moment) EntityKey() string        { return m.Name }
func (m *Moment) EntityName() string       { return m.Name }
func (m *Moment) Edges() []InlineEdge      { return m.GraphPaths }

func (m *Moment) Row() map[string]any {
	return map[string]any{
		"id":              m.ID,
		"tenant_id":       m.TenantID,
		"name":            m.Name,
		"content":         m.Content,
		"summary":         m.Summary,
		"starts_at":       m.StartsAt,
		"ends_at":         m.EndsAt,
		"emotion_tags":    m.EmotionTags,
		"topic_tags":      m.TopicTags,
		"present_persons": m.PresentPersons,
		"speakers":        m.Speakers,
		"graph_paths":     m.GraphPaths,
		"metadata":        m.Metadata,
	}
}

func (m *Moment) ScanRow(row map[string]any) error {
	id, err := rowUUID(row, "id")
	if err != nil {
		return err
	}
	m.ID = id
	m.TenantID = rowString(row, "tenant_id")
	m.Name = rowString(row, "name")
	m.Content = rowString(row, "content")
	m.Summary = rowString(row, "summary")
	m.StartsAt = rowTime(row, "starts_at")
	m.EndsAt = rowTime(row, "ends_at")
	m.EmotionTags = rowStrings(row, "emotion_tags")
	m.TopicTags = rowStrings(row, "topic_tags")
	m.PresentPersons = rowStrings(row, "present_persons")
	m.Speakers = rowStrings(row, "speakers")
	if err := rowJSON(row, "graph_paths", &m.GraphPaths); err != nil {
		return err
	}
	return rowJSON(row, "metadata", &m.Metadata)
}
