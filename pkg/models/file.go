package models

import (
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
)

// File represents a stored binary object. Created when a storage event is
// successfully processed; immutable except for the content hash, which must
// always reflect the latest upload.
type File struct {
	ID          uuid.UUID      `json:"id"`
	TenantID    string         `json:"tenant_id"`
	Name        string         `json:"name"`
	BlobURI     string         `json:"blob_uri"`
	Size        int64          `json:"size"`
	ContentType string         `json:"content_type"`
	ContentHash string         `json:"content_hash"`
	UploadedAt  time.Time      `json:"uploaded_at"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// FileStem returns the base filename without extension, used as the file's
// display name in the key-value index.
func FileStem(blobPath string) string {
	base := path.Base(blobPath)
	if i := strings.LastIndex(base, "."); i > 0 {
		return base[:i]
	}
	return base
}

func (*File) TableName() string { return "files" }
func (*File) KeyField() string  { return "blob_uri" }
func (*File) Columns() []string {
	return []string{"id", "tenant_id", "name", "blob_uri", "size", "content_type", "content_hash", "uploaded_at", "metadata"}
}
func (*File) EmbeddingFields() []EmbeddingField { return nil }
func (*File) TenantIsolated() bool              { return true }

func (f *File) EntityID() uuid.UUID      { return f.ID }
func (f *File) SetEntityID(id uuid.UUID) { f.ID = id }
func (f *File) EntityKey() string        { return f.BlobURI }
func (f *File) EntityName() string       { return f.Name }
func (f *File) Edges() []InlineEdge      { return nil }

func (f *File) Row() map[string]any {
	return map[string]any{
		"id":           f.ID,
		"tenant_id":    f.TenantID,
		"name":         f.Name,
		"blob_uri":     f.BlobURI,
		"size":         f.Size,
		"content_type": f.ContentType,
		"content_hash": f.ContentHash,
		"uploaded_at":  f.UploadedAt,
		"metadata":     f.Metadata,
	}
}

func (f *File) ScanRow(row map[string]any) error {
	id, err := rowUUID(row, "id")
	if err != nil {
		return err
	}
	f.ID = id
	f.TenantID = rowString(row, "tenant_id")
	f.Name = rowString(row, "name")
	f.BlobURI = rowString(row, "blob_uri")
	f.Size = rowInt64(row, "size")
	f.ContentType = rowString(row, "content_type")
	f.ContentHash = rowString(row, "content_hash")
	f.UploadedAt = rowTime(row, "uploaded_at")
	return rowJSON(row, "metadata", &f.Metadata)
}
