// Package events defines the storage event schema that traverses the broker,
// the size-tier classification rules and the error taxonomy that drives
// acknowledgement decisions.
package events

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Event types accepted on the ingress subject.
const (
	EventCreate = "create"
	EventUpdate = "update"
	EventDelete = "delete"
)

// StorageEvent is the JSON message published on p8fs.storage.events and
// forwarded unmodified to the tier subjects.
type StorageEvent struct {
	// EventType is one of create, update, delete.
	EventType string `json:"event_type" validate:"required,oneof=create update delete"`

	// Path is the fully qualified blob path
	// (/buckets/<tenant>/uploads/YYYY/MM/DD/<file>).
	Path string `json:"path" validate:"required"`

	// TenantID scopes the event to a tenant.
	TenantID string `json:"tenant_id" validate:"required"`

	// Size is the declared object size in bytes. Drives tier selection.
	Size int64 `json:"size" validate:"gte=0"`

	// ContentType is the declared MIME type.
	ContentType string `json:"content_type"`

	// Timestamp is seconds since epoch as published by the producer.
	Timestamp float64 `json:"timestamp"`

	// Source is an optional provenance tag.
	Source string `json:"source,omitempty"`
}

var validate = validator.New()

// ParseEvent decodes and validates a storage event payload.
// A syntactically valid JSON document with a missing or negative size still
// fails: the router must NAK such messages.
func ParseEvent(data []byte) (*StorageEvent, error) {
	var ev StorageEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	// An absent size would decode to 0 and silently classify as small, so
	// presence is checked separately from the value.
	var sizeField struct {
		Size *int64 `json:"size"`
	}
	if err := json.Unmarshal(data, &sizeField); err == nil && sizeField.Size == nil {
		return nil, fmt.Errorf("%w: missing size", ErrParse)
	}
	if ev.Size < 0 {
		return nil, fmt.Errorf("%w: negative size %d", ErrParse, ev.Size)
	}
	if err := validate.Struct(&ev); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	return &ev, nil
}

// Encode serializes the event to its JSON wire form.
func (e *StorageEvent) Encode() ([]byte, error) {
	return json.Marshal(e)
}
