package kv

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/p8fs/p8fs/internal/logger"
)

// BadgerStore implements Store on an embedded BadgerDB.
type BadgerStore struct {
	db *badgerdb.DB
}

// BadgerConfig holds BadgerDB options for the index store.
type BadgerConfig struct {
	// Dir is the database directory. Empty means in-memory (tests).
	Dir string

	// SyncWrites forces fsync on every write.
	SyncWrites bool
}

// NewBadgerStore opens (or creates) the index database.
func NewBadgerStore(cfg BadgerConfig) (*BadgerStore, error) {
	var opts badgerdb.Options
	if cfg.Dir == "" {
		opts = badgerdb.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badgerdb.DefaultOptions(cfg.Dir)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites)
	// Badger's own logger is chatty at INFO; route through ours at debug only.
	opts = opts.WithLogger(nil)

	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger index store: %w", err)
	}

	logger.Info("Opened key-value index store", "dir", cfg.Dir, "in_memory", cfg.Dir == "")
	return &BadgerStore{db: db}, nil
}

// Get returns the value at key, or nil when absent.
func (s *BadgerStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var value []byte
	err := s.db.View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get([]byte(key))
		if err == badgerdb.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get key %q: %w", key, err)
	}
	return value, nil
}

// Put stores value at key with an optional TTL.
func (s *BadgerStore) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.db.Update(func(txn *badgerdb.Txn) error {
		entry := badgerdb.NewEntry([]byte(key), value)
		if ttl > 0 {
			entry = entry.WithTTL(ttl)
		}
		if err := txn.SetEntry(entry); err != nil {
			return fmt.Errorf("failed to put key %q: %w", key, err)
		}
		return nil
	})
}

// Scan returns up to limit entries whose keys start with prefix.
func (s *BadgerStore) Scan(ctx context.Context, prefix string, limit int) (map[string][]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := make(map[string][]byte)
	err := s.db.View(func(txn *badgerdb.Txn) error {
		itOpts := badgerdb.DefaultIteratorOptions
		itOpts.Prefix = []byte(prefix)
		it := txn.NewIterator(itOpts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if limit > 0 && len(out) >= limit {
				break
			}
			item := it.Item()
			value, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			out[string(item.Key())] = value
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan prefix %q: %w", prefix, err)
	}
	return out, nil
}

// Delete removes key; missing keys are ignored.
func (s *BadgerStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.db.Update(func(txn *badgerdb.Txn) error {
		if err := txn.Delete([]byte(key)); err != nil && err != badgerdb.ErrKeyNotFound {
			return fmt.Errorf("failed to delete key %q: %w", key, err)
		}
		return nil
	})
}

// Close releases the database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

// AppendEntityID read-modify-writes the Entry at {tenant}/{label}/{table},
// adding id to entity_ids with dedup. Concurrent appends may race; the KV
// index is best-effort and an upsert retry converges it.
func AppendEntityID(ctx context.Context, store Store, tenant, label, table string, id uuid.UUID, entityType string) error {
	key := Key(tenant, label, table)

	var entry Entry
	raw, err := store.Get(ctx, key)
	if err != nil {
		return err
	}
	if raw != nil {
		if err := json.Unmarshal(raw, &entry); err != nil {
			return fmt.Errorf("corrupt index entry at %q: %w", key, err)
		}
	}

	entry.TableName = table
	if entityType != "" {
		entry.EntityType = entityType
	}
	if !entry.Append(id) {
		return nil // already indexed
	}

	data, err := json.Marshal(&entry)
	if err != nil {
		return err
	}
	return store.Put(ctx, key, data, 0)
}
