package worker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/p8fs/p8fs/pkg/blob"
	"github.com/p8fs/p8fs/pkg/broker"
	"github.com/p8fs/p8fs/pkg/embeddings"
	"github.com/p8fs/p8fs/pkg/events"
	"github.com/p8fs/p8fs/pkg/kv"
	"github.com/p8fs/p8fs/pkg/models"
	"github.com/p8fs/p8fs/pkg/repository"
	"github.com/p8fs/p8fs/pkg/repository/provider"
)

// stubDownloader serves blobs from a map, optionally failing the first N
// downloads to simulate transient storage errors.
type stubDownloader struct {
	blobs     map[string][]byte
	failFirst int
	calls     int
}

func (s *stubDownloader) Download(_ context.Context, tenant, key string) (*blob.DownloadResult, error) {
	s.calls++
	if s.failFirst > 0 {
		s.failFirst--
		return nil, errors.New("storage unavailable")
	}
	content, ok := s.blobs[tenant+"/"+key]
	if !ok {
		return nil, nil
	}
	return &blob.DownloadResult{
		Content:     content,
		ContentType: "text/plain",
		Size:        int64(len(content)),
	}, nil
}

func testRepo(t *testing.T) *repository.Repository {
	t.Helper()
	prov, err := provider.NewSQLite(context.Background(), provider.SQLiteConfig{Path: ":memory:"})
	require.NoError(t, err)
	require.NoError(t, prov.Migrate(context.Background()))

	store, err := kv.NewBadgerStore(kv.BadgerConfig{})
	require.NoError(t, err)

	repo := repository.New(repository.Config{
		Provider:   prov,
		Embeddings: embeddings.NewRegistry(embeddings.NewStaticProvider("static", 8)),
		KV:         store,
	})
	t.Cleanup(func() { repo.Close() })
	return repo
}

func testWorker(t *testing.T, repo *repository.Repository, blobs *stubDownloader) (*Worker, *broker.MemoryQueue) {
	t.Helper()
	q := broker.NewMemoryQueue()
	cfg, err := ForTier("small")
	require.NoError(t, err)
	cfg.FetchTimeout = 20 * time.Millisecond
	return New(cfg, q, blobs, nil, repo), q
}

func publish(t *testing.T, q *broker.MemoryQueue, ev events.StorageEvent) {
	t.Helper()
	data, err := json.Marshal(ev)
	require.NoError(t, err)
	require.NoError(t, q.Publish(context.Background(), broker.SubjectSmall, data))
}

func createEvent(path string, size int64) events.StorageEvent {
	return events.StorageEvent{
		EventType: events.EventCreate,
		Path:      path,
		TenantID:  "t1",
		Size:      size,
		Timestamp: 1767225600,
	}
}

func TestProcessCreateEvent(t *testing.T) {
	repo := testRepo(t)
	blobs := &stubDownloader{blobs: map[string][]byte{
		"t1/uploads/2026/01/02/notes.txt": []byte("hello world from the pipeline"),
	}}
	w, q := testWorker(t, repo, blobs)

	publish(t, q, createEvent("/buckets/t1/uploads/2026/01/02/notes.txt", 29))

	n, err := w.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Zero(t, q.Pending(broker.SubjectSmall))

	// File row keyed by UUIDv5 of "{tenant}:{event path}".
	fileID := models.FileID("t1", "/buckets/t1/uploads/2026/01/02/notes.txt")
	assert.Equal(t,
		uuid.NewSHA1(uuid.NameSpaceDNS, []byte("t1:/buckets/t1/uploads/2026/01/02/notes.txt")),
		fileID)
	var file models.File
	found, err := repo.Get(context.Background(), "t1", &file, fileID)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "notes", file.Name)
	assert.Equal(t, "uploads/2026/01/02/notes.txt", file.BlobURI)
	assert.NotEmpty(t, file.ContentHash)

	// Chunk rows named by the file stem and pointing back at the file row.
	rows, err := repo.Select(context.Background(), "t1", &models.Resource{}, nil, []string{"ordinal"}, 0)
	require.NoError(t, err)
	require.NotEmpty(t, rows)
	assert.Equal(t, "notes", rows[0]["name"])
	assert.Equal(t, models.CategoryDocumentChunk, rows[0]["category"])
	var chunk models.Resource
	require.NoError(t, chunk.ScanRow(rows[0]))
	assert.Equal(t, fileID.String(), chunk.Metadata["file_id"])

	// KV index at {tenant}/{stem}/resources holds the chunk UUIDs and the
	// file UUID.
	entry, err := repo.LookupIndex(context.Background(), "t1", "notes", "resources")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.True(t, entry.Contains(fileID))
	assert.GreaterOrEqual(t, len(entry.EntityIDs), 2)
}

func TestProcessIsIdempotentAcrossRedelivery(t *testing.T) {
	repo := testRepo(t)
	blobs := &stubDownloader{blobs: map[string][]byte{
		"t1/uploads/a.txt": []byte("same content twice"),
	}}
	w, q := testWorker(t, repo, blobs)

	for range 2 {
		publish(t, q, createEvent("/buckets/t1/uploads/a.txt", 18))
		_, err := w.RunOnce(context.Background())
		require.NoError(t, err)
	}

	files, err := repo.Select(context.Background(), "t1", &models.File{}, nil, nil, 0)
	require.NoError(t, err)
	assert.Len(t, files, 1)

	chunks, err := repo.Select(context.Background(), "t1", &models.Resource{}, nil, nil, 0)
	require.NoError(t, err)
	assert.Len(t, chunks, 1)
}

func TestMissingBlobAcksStaleEvent(t *testing.T) {
	repo := testRepo(t)
	blobs := &stubDownloader{blobs: map[string][]byte{}}
	w, q := testWorker(t, repo, blobs)

	publish(t, q, createEvent("/buckets/t1/uploads/gone.txt", 10))

	n, err := w.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	// Acked, not requeued.
	assert.Zero(t, q.Pending(broker.SubjectSmall))

	files, err := repo.Select(context.Background(), "t1", &models.File{}, nil, nil, 0)
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestTransientDownloadFailureNaksThenSucceeds(t *testing.T) {
	repo := testRepo(t)
	blobs := &stubDownloader{
		blobs:     map[string][]byte{"t1/uploads/flaky.txt": []byte("eventually works")},
		failFirst: 1,
	}
	w, q := testWorker(t, repo, blobs)

	publish(t, q, createEvent("/buckets/t1/uploads/flaky.txt", 16))

	// First attempt naks.
	_, err := w.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, q.Pending(broker.SubjectSmall))

	// Redelivery succeeds; delivery count stays within max deliver.
	_, err = w.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, q.Pending(broker.SubjectSmall))
	assert.Equal(t, 2, blobs.calls)

	files, err := repo.Select(context.Background(), "t1", &models.File{}, nil, nil, 0)
	require.NoError(t, err)
	assert.Len(t, files, 1)
}

func TestMalformedEventNaks(t *testing.T) {
	repo := testRepo(t)
	w, q := testWorker(t, repo, &stubDownloader{})

	require.NoError(t, q.Publish(context.Background(), broker.SubjectSmall, []byte("{bad")))

	_, err := w.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, q.Pending(broker.SubjectSmall))
}

func TestDeleteEventRemovesFileRow(t *testing.T) {
	repo := testRepo(t)
	blobs := &stubDownloader{blobs: map[string][]byte{
		"t1/uploads/doomed.txt": []byte("short lived"),
	}}
	w, q := testWorker(t, repo, blobs)

	publish(t, q, createEvent("/buckets/t1/uploads/doomed.txt", 11))
	_, err := w.RunOnce(context.Background())
	require.NoError(t, err)

	del := createEvent("/buckets/t1/uploads/doomed.txt", 11)
	del.EventType = events.EventDelete
	publish(t, q, del)
	_, err = w.RunOnce(context.Background())
	require.NoError(t, err)

	files, err := repo.Select(context.Background(), "t1", &models.File{}, nil, nil, 0)
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestForTierRejectsUnknown(t *testing.T) {
	_, err := ForTier("jumbo")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownTier))

	cfg, err := ForTier("large")
	require.NoError(t, err)
	assert.Equal(t, broker.StreamLarge, cfg.Stream)
	assert.Equal(t, broker.ConsumerLarge, cfg.Consumer)
	assert.Equal(t, broker.SubjectLarge, cfg.Subject)
}

func TestChunkIDsAreStablePerOrdinal(t *testing.T) {
	fileID := models.FileID("t1", "uploads/a.txt")
	a := models.ChunkID(fileID, "text", 0)
	b := models.ChunkID(fileID, "text", 0)
	c := models.ChunkID(fileID, "text", 1)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}
