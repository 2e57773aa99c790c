// Package provider implements the storage providers behind the repository:
// a Postgres dialect speaking pgx with pgvector embeddings, and a pure-Go
// SQLite dialect for embedded and test deployments. Both expose the same
// row-map surface; the repository layer never sees SQL.
package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/p8fs/p8fs/pkg/models"
)

// Metric names for semantic search.
const (
	MetricCosine       = "cosine"
	MetricL2           = "l2"
	MetricInnerProduct = "inner_product"
)

// EmbeddingRecord is one embedding row keyed by (entity, field, tenant).
type EmbeddingRecord struct {
	ID        uuid.UUID
	EntityID  uuid.UUID
	TableName string
	FieldName string
	TenantID  string
	Provider  string
	Vector    []float32
}

// SearchOptions tunes a semantic search.
type SearchOptions struct {
	// Limit caps the result count. Default: 10.
	Limit int

	// Threshold drops results whose distance exceeds it (0 keeps all).
	Threshold float64

	// Metric is cosine, l2 or inner_product. Default: cosine.
	Metric string

	// FieldName restricts the search to one embedded column. Default:
	// the schema's first embedding field.
	FieldName string
}

// SearchHit is a primary-table row joined with its similarity score.
type SearchHit struct {
	Row      map[string]any
	Distance float64
}

// StorageProvider is the dialect surface the repository drives.
type StorageProvider interface {
	// Dialect identifies the provider ("postgres", "sqlite").
	Dialect() string

	// Migrate applies pending schema migrations.
	Migrate(ctx context.Context) error

	// UpsertRow inserts or replaces one row keyed by id.
	UpsertRow(ctx context.Context, schema models.Schema, row map[string]any) error

	// UpsertEmbedding inserts or replaces one embedding row keyed by
	// (entity_id, field_name, tenant_id).
	UpsertEmbedding(ctx context.Context, rec EmbeddingRecord) error

	// GetRow fetches one row by id, nil when absent.
	GetRow(ctx context.Context, schema models.Schema, id uuid.UUID, tenant string) (map[string]any, error)

	// SelectRows fetches rows matching filter, ordered and limited.
	SelectRows(ctx context.Context, schema models.Schema, filter map[string]any, orderBy []string, limit int, tenant string) ([]map[string]any, error)

	// SemanticSearch runs a nearest-neighbour query over the embedding
	// table and joins hits back to the primary table.
	SemanticSearch(ctx context.Context, schema models.Schema, vector []float32, opts SearchOptions, tenant string) ([]SearchHit, error)

	// DeleteRow removes one row and its embeddings.
	DeleteRow(ctx context.Context, schema models.Schema, id uuid.UUID, tenant string) error

	// Execute runs raw SQL, returning result rows for queries and nil for
	// statements.
	Execute(ctx context.Context, query string, args ...any) ([]map[string]any, error)

	// Close releases connections.
	Close() error
}

// filterClause is one rendered WHERE condition.
type filterClause struct {
	expr string
	args []any
}

// placeholderFunc renders the dialect's positional placeholder (1-based).
type placeholderFunc func(n int) string

func pgPlaceholder(n int) string   { return fmt.Sprintf("$%d", n) }
func sqlitePlaceholder(int) string { return "?" }

// renderFilter turns a filter map into WHERE clauses for a dialect. Keys are
// either plain column names (equality) or column__op with op in
// in/like/contains/gt/gte/lt/lte.
func renderFilter(filter map[string]any, dialect string, argOffset int) ([]filterClause, error) {
	ph := sqlitePlaceholder
	if dialect == "postgres" {
		ph = pgPlaceholder
	}

	var clauses []filterClause
	n := argOffset

	keys := make([]string, 0, len(filter))
	for key := range filter {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		value := filter[key]
		column, op := key, "eq"
		if i := strings.Index(key, "__"); i >= 0 {
			column, op = key[:i], key[i+2:]
		}
		if !validColumnName(column) {
			return nil, fmt.Errorf("invalid filter column %q", column)
		}

		switch op {
		case "eq":
			n++
			clauses = append(clauses, filterClause{column + " = " + ph(n), []any{value}})
		case "gt", "gte", "lt", "lte":
			sym := map[string]string{"gt": ">", "gte": ">=", "lt": "<", "lte": "<="}[op]
			n++
			clauses = append(clauses, filterClause{column + " " + sym + " " + ph(n), []any{value}})
		case "like":
			n++
			clauses = append(clauses, filterClause{column + " LIKE " + ph(n), []any{value}})
		case "contains":
			n++
			if dialect == "postgres" {
				enc, err := json.Marshal(value)
				if err != nil {
					return nil, fmt.Errorf("filter %s: %w", key, err)
				}
				clauses = append(clauses, filterClause{column + " @> " + ph(n), []any{string(enc)}})
			} else {
				// sqlite stores JSON columns as text, so a substring match
				// over the encoded value approximates JSONB containment.
				clauses = append(clauses, filterClause{column + " LIKE " + ph(n), []any{fmt.Sprintf("%%%v%%", value)}})
			}
		case "in":
			items, err := anySlice(value)
			if err != nil {
				return nil, fmt.Errorf("filter %s: %w", key, err)
			}
			if len(items) == 0 {
				clauses = append(clauses, filterClause{"1 = 0", nil})
				continue
			}
			marks := make([]string, len(items))
			for i := range items {
				n++
				marks[i] = ph(n)
			}
			clauses = append(clauses, filterClause{column + " IN (" + strings.Join(marks, ", ") + ")", items})
		default:
			return nil, fmt.Errorf("unknown filter operator %q in %s", op, key)
		}
	}
	return clauses, nil
}

// renderOrderBy turns ["-uploaded_at", "name"] into an ORDER BY clause.
// A leading "-" means descending.
func renderOrderBy(orderBy []string) (string, error) {
	if len(orderBy) == 0 {
		return "", nil
	}
	parts := make([]string, 0, len(orderBy))
	for _, field := range orderBy {
		dir := "ASC"
		if strings.HasPrefix(field, "-") {
			dir = "DESC"
			field = field[1:]
		}
		if !validColumnName(field) {
			return "", fmt.Errorf("invalid order column %q", field)
		}
		parts = append(parts, field+" "+dir)
	}
	return " ORDER BY " + strings.Join(parts, ", "), nil
}

// validColumnName guards identifiers interpolated into SQL.
func validColumnName(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !(r == '_' || (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')) {
			return false
		}
	}
	return true
}

func anySlice(v any) ([]any, error) {
	switch items := v.(type) {
	case []any:
		return items, nil
	case []string:
		out := make([]any, len(items))
		for i, s := range items {
			out[i] = s
		}
		return out, nil
	case []int:
		out := make([]any, len(items))
		for i, x := range items {
			out[i] = x
		}
		return out, nil
	case []int64:
		out := make([]any, len(items))
		for i, x := range items {
			out[i] = x
		}
		return out, nil
	default:
		return nil, fmt.Errorf("__in expects a slice, got %T", v)
	}
}

func normalizeSearchOptions(schema models.Schema, opts SearchOptions) (SearchOptions, error) {
	if opts.Limit <= 0 {
		opts.Limit = 10
	}
	if opts.Metric == "" {
		opts.Metric = MetricCosine
	}
	switch opts.Metric {
	case MetricCosine, MetricL2, MetricInnerProduct:
	default:
		return opts, fmt.Errorf("unknown search metric %q", opts.Metric)
	}
	if opts.FieldName == "" {
		fields := schema.EmbeddingFields()
		if len(fields) == 0 {
			return opts, fmt.Errorf("table %s has no embedding fields", schema.TableName())
		}
		opts.FieldName = fields[0].Field
	}
	return opts, nil
}
