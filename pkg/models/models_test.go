package models

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeterministicID(t *testing.T) {
	a := DeterministicID("acme", "uploads/2026/08/24/report.txt")
	b := DeterministicID("acme", "uploads/2026/08/24/report.txt")
	assert.Equal(t, a, b, "same tenant and key must yield the same id")

	other := DeterministicID("globex", "uploads/2026/08/24/report.txt")
	assert.NotEqual(t, a, other, "tenants must not share ids for the same key")

	assert.Equal(t, uuid.Version(5), a.Version())
}

func TestChunkIDVariesByMethodAndOrdinal(t *testing.T) {
	fileID := FileID("acme", "uploads/2026/08/24/report.txt")

	c0 := ChunkID(fileID, "text", 0)
	c1 := ChunkID(fileID, "text", 1)
	alt := ChunkID(fileID, "markdown", 0)

	assert.NotEqual(t, c0, c1)
	assert.NotEqual(t, c0, alt, "a different extraction method yields different chunk ids")
	assert.Equal(t, c0, ChunkID(fileID, "text", 0))
}

func TestFileStem(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/buckets/acme/uploads/2026/08/24/report.txt", "report"},
		{"uploads/archive.tar.gz", "archive.tar"},
		{"noext", "noext"},
		{".hidden", ".hidden"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FileStem(tt.path), "path=%s", tt.path)
	}
}

func TestResourceValidate(t *testing.T) {
	valid := &Resource{Name: "report", Category: CategoryDocumentChunk, Content: "text", Ordinal: 0}
	require.NoError(t, valid.Validate())

	empty := &Resource{Name: "report", Category: CategoryDocumentChunk, Ordinal: 0}
	require.Error(t, empty.Validate(), "document chunks must carry content")

	negative := &Resource{Name: "report", Category: CategoryDocumentChunk, Content: "x", Ordinal: -1}
	require.Error(t, negative.Validate())

	badEdge := &Resource{
		Name: "report", Category: CategoryDocumentChunk, Content: "x",
		GraphPaths: []InlineEdge{{Dst: "john", RelType: "mentions", Weight: 1.5}},
	}
	require.Error(t, badEdge.Validate(), "edge weight above 1.0 is invalid")
}

func TestInlineEdgeValid(t *testing.T) {
	assert.True(t, InlineEdge{Dst: "john", RelType: "mentions", Weight: 0.8}.Valid())
	assert.True(t, InlineEdge{Dst: "john", RelType: "mentions", Weight: 0}.Valid())
	assert.False(t, InlineEdge{RelType: "mentions", Weight: 0.8}.Valid())
	assert.False(t, InlineEdge{Dst: "john", Weight: 0.8}.Valid())
	assert.False(t, InlineEdge{Dst: "john", RelType: "mentions", Weight: -0.1}.Valid())
}

func TestMergeEdgesHigherWeightWins(t *testing.T) {
	existing := []InlineEdge{
		{Dst: "john", RelType: "mentions", Weight: 0.4},
		{Dst: "acme", RelType: "about", Weight: 0.9},
	}
	incoming := []InlineEdge{
		{Dst: "john", RelType: "mentions", Weight: 0.7},
		{Dst: "jane", RelType: "mentions", Weight: 0.5},
	}

	merged := MergeEdges(existing, incoming)
	require.Len(t, merged, 3)

	assert.Equal(t, "john", merged[0].Dst)
	assert.Equal(t, 0.7, merged[0].Weight, "the higher weight replaces the lower")
	assert.Equal(t, "acme", merged[1].Dst)
	assert.Equal(t, "jane", merged[2].Dst)
}

func TestMergeEdgesKeepsExistingOnLowerIncoming(t *testing.T) {
	existing := []InlineEdge{{Dst: "john", RelType: "mentions", Weight: 0.9}}
	incoming := []InlineEdge{{Dst: "john", RelType: "mentions", Weight: 0.2}}

	merged := MergeEdges(existing, incoming)
	require.Len(t, merged, 1)
	assert.Equal(t, 0.9, merged[0].Weight)
}

func TestResourceRowScanRoundTrip(t *testing.T) {
	ts := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	src := &Resource{
		ID:                uuid.New(),
		TenantID:          "acme",
		Name:              "report",
		Category:          CategoryDocumentChunk,
		Content:           "chunk body",
		URI:               "uploads/2026/08/24/report.txt",
		Ordinal:           3,
		GraphPaths:        []InlineEdge{{Dst: "john", RelType: "mentions", Weight: 0.8}},
		Metadata:          map[string]any{"lang": "en"},
		ResourceTimestamp: ts,
	}

	var dst Resource
	require.NoError(t, dst.ScanRow(src.Row()))

	assert.Equal(t, src.ID, dst.ID)
	assert.Equal(t, src.Content, dst.Content)
	assert.Equal(t, src.Ordinal, dst.Ordinal)
	assert.Equal(t, src.ResourceTimestamp, dst.ResourceTimestamp)
	require.Len(t, dst.GraphPaths, 1)
	assert.Equal(t, "john", dst.GraphPaths[0].Dst)
}

func TestFileRowScanRoundTrip(t *testing.T) {
	src := &File{
		ID:          FileID("acme", "uploads/2026/08/24/report.txt"),
		TenantID:    "acme",
		Name:        "report",
		BlobURI:     "uploads/2026/08/24/report.txt",
		Size:        1024,
		ContentType: "text/plain",
		ContentHash: "abc123",
		UploadedAt:  time.Date(2026, 8, 24, 9, 30, 0, 0, time.UTC),
	}

	var dst File
	require.NoError(t, dst.ScanRow(src.Row()))
	assert.Equal(t, src.ID, dst.ID)
	assert.Equal(t, src.BlobURI, dst.BlobURI)
	assert.Equal(t, src.Size, dst.Size)
	assert.Equal(t, src.UploadedAt, dst.UploadedAt)
}
