// Package kv implements the key-value reverse index that maps human-readable
// entity labels to the UUIDs that carry them. Keys are tenant-prefixed
// strings of form {tenant}/{label}/{table}; values are JSON documents.
package kv

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Entry is the JSON value stored under an index key. EntityIDs is
// append-only with dedup: every upsert of a source entity adds its UUID.
type Entry struct {
	EntityIDs  []string `json:"entity_ids"`
	TableName  string   `json:"table_name"`
	EntityType string   `json:"entity_type,omitempty"`
}

// Contains reports whether the entry already lists the given id.
func (e *Entry) Contains(id uuid.UUID) bool {
	s := id.String()
	for _, existing := range e.EntityIDs {
		if existing == s {
			return true
		}
	}
	return false
}

// Append adds the id if not present and reports whether the entry changed.
func (e *Entry) Append(id uuid.UUID) bool {
	if e.Contains(id) {
		return false
	}
	e.EntityIDs = append(e.EntityIDs, id.String())
	return true
}

// Key builds the index key for a label in a table under a tenant.
func Key(tenant, label, table string) string {
	return fmt.Sprintf("%s/%s/%s", tenant, label, table)
}

// Store is the key-value sub-interface consumed by the repository layer.
type Store interface {
	// Get returns the value at key, or nil when the key does not exist.
	Get(ctx context.Context, key string) ([]byte, error)

	// Put stores value at key. A zero ttl means no expiry.
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Scan returns up to limit key-value pairs whose keys start with prefix.
	Scan(ctx context.Context, prefix string, limit int) (map[string][]byte, error)

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases the underlying database.
	Close() error
}
