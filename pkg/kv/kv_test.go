package kv

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *BadgerStore {
	t.Helper()
	store, err := NewBadgerStore(BadgerConfig{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestKey(t *testing.T) {
	assert.Equal(t, "acme/john/persons", Key("acme", "john", "persons"))
}

func TestEntryAppendDedup(t *testing.T) {
	id := uuid.New()
	var e Entry

	assert.True(t, e.Append(id))
	assert.False(t, e.Append(id), "second append of the same id must be a no-op")
	assert.Len(t, e.EntityIDs, 1)
	assert.True(t, e.Contains(id))

	other := uuid.New()
	assert.True(t, e.Append(other))
	assert.Equal(t, []string{id.String(), other.String()}, e.EntityIDs)
}

func TestBadgerStoreRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	missing, err := store.Get(ctx, "acme/nope/files")
	require.NoError(t, err)
	assert.Nil(t, missing, "missing keys return nil, not an error")

	require.NoError(t, store.Put(ctx, "acme/report/files", []byte(`{"a":1}`), 0))

	got, err := store.Get(ctx, "acme/report/files")
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"a":1}`), got)

	require.NoError(t, store.Delete(ctx, "acme/report/files"))
	gone, err := store.Get(ctx, "acme/report/files")
	require.NoError(t, err)
	assert.Nil(t, gone)

	// Deleting a missing key is fine.
	require.NoError(t, store.Delete(ctx, "acme/report/files"))
}

func TestBadgerStoreScan(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "acme/a/files", []byte("1"), 0))
	require.NoError(t, store.Put(ctx, "acme/b/files", []byte("2"), 0))
	require.NoError(t, store.Put(ctx, "globex/a/files", []byte("3"), 0))

	all, err := store.Scan(ctx, "acme/", 0)
	require.NoError(t, err)
	assert.Len(t, all, 2)
	assert.Equal(t, []byte("1"), all["acme/a/files"])

	limited, err := store.Scan(ctx, "acme/", 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestAppendEntityID(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first := uuid.New()
	second := uuid.New()

	require.NoError(t, AppendEntityID(ctx, store, "acme", "john", "persons", first, "person"))
	require.NoError(t, AppendEntityID(ctx, store, "acme", "john", "persons", first, "person"))
	require.NoError(t, AppendEntityID(ctx, store, "acme", "john", "persons", second, "person"))

	raw, err := store.Get(ctx, Key("acme", "john", "persons"))
	require.NoError(t, err)
	require.NotNil(t, raw)

	var entry Entry
	require.NoError(t, json.Unmarshal(raw, &entry))
	assert.Equal(t, []string{first.String(), second.String()}, entry.EntityIDs)
	assert.Equal(t, "persons", entry.TableName)
	assert.Equal(t, "person", entry.EntityType)
}

func TestAppendEntityIDCorruptEntry(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, Key("acme", "bad", "files"), []byte("not json"), 0))
	err := AppendEntityID(ctx, store, "acme", "bad", "files", uuid.New(), "file")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "corrupt index entry")
}
