package provider

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	_ "modernc.org/sqlite" // registers the "sqlite" driver; also linked by the migrate driver

	"github.com/p8fs/p8fs/internal/logger"
	"github.com/p8fs/p8fs/internal/telemetry"
	"github.com/p8fs/p8fs/pkg/models"
)

// SQLiteConfig holds the SQLite provider configuration.
type SQLiteConfig struct {
	// Path is the database file. ":memory:" keeps everything in process.
	Path string
}

// SQLite is the embedded provider. Embedding vectors persist as JSON text
// and nearest-neighbour search runs in process, which is fine at the row
// counts an embedded deployment sees.
type SQLite struct {
	db *sql.DB
}

var _ StorageProvider = (*SQLite)(nil)

// NewSQLite opens (or creates) the database file.
func NewSQLite(ctx context.Context, cfg SQLiteConfig) (*SQLite, error) {
	path := cfg.Path
	if path == "" {
		path = ":memory:"
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database %s: %w", path, err)
	}
	// A single connection sidesteps table locking on concurrent writers.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping sqlite database: %w", err)
	}
	return &SQLite{db: db}, nil
}

func (*SQLite) Dialect() string { return "sqlite" }

// Migrate applies pending migrations against the open handle.
func (s *SQLite) Migrate(ctx context.Context) error {
	driver, err := migratesqlite.WithInstance(s.db, &migratesqlite.Config{
		MigrationsTable: "schema_migrations",
	})
	if err != nil {
		return fmt.Errorf("failed to create sqlite migration driver: %w", err)
	}

	src, err := iofs.New(migrationsFS, "migrations/sqlite")
	if err != nil {
		return fmt.Errorf("failed to open embedded migrations: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration failed: %w", err)
	}
	logger.Debug("SQLite schema up to date")
	return nil
}

func (s *SQLite) UpsertRow(ctx context.Context, schema models.Schema, row map[string]any) error {
	ctx, span := telemetry.StartRepositorySpan(ctx, "upsert_row", schema.TableName())
	defer span.End()

	columns := schema.Columns()
	args, err := encodeRow(columns, row, true)
	if err != nil {
		return err
	}

	marks := make([]string, len(columns))
	var updates []string
	for i, col := range columns {
		marks[i] = "?"
		if col != "id" {
			updates = append(updates, col+" = excluded."+col)
		}
	}

	query := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (id) DO UPDATE SET %s",
		schema.TableName(),
		strings.Join(columns, ", "),
		strings.Join(marks, ", "),
		strings.Join(updates, ", "),
	)

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		telemetry.RecordError(ctx, err)
		return fmt.Errorf("failed to upsert into %s: %w", schema.TableName(), err)
	}
	return nil
}

func (s *SQLite) UpsertEmbedding(ctx context.Context, rec EmbeddingRecord) error {
	vector, err := json.Marshal(rec.Vector)
	if err != nil {
		return fmt.Errorf("failed to encode embedding vector: %w", err)
	}

	query := `INSERT INTO embeddings (id, entity_id, table_name, field_name, tenant_id, provider, embedding, vector_dimension, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (entity_id, field_name, tenant_id)
DO UPDATE SET provider = excluded.provider, embedding = excluded.embedding,
    vector_dimension = excluded.vector_dimension, updated_at = excluded.updated_at`

	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err = s.db.ExecContext(ctx, query,
		rec.ID.String(), rec.EntityID.String(), rec.TableName, rec.FieldName,
		rec.TenantID, rec.Provider, string(vector), len(rec.Vector), now, now)
	if err != nil {
		return fmt.Errorf("failed to upsert embedding for %s.%s: %w", rec.TableName, rec.FieldName, err)
	}
	return nil
}

func (s *SQLite) GetRow(ctx context.Context, schema models.Schema, id uuid.UUID, tenant string) (map[string]any, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE id = ?",
		strings.Join(schema.Columns(), ", "), schema.TableName())
	args := []any{id.String()}
	if schema.TenantIsolated() {
		query += " AND tenant_id = ?"
		args = append(args, tenant)
	}

	maps, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get row from %s: %w", schema.TableName(), err)
	}
	if len(maps) == 0 {
		return nil, nil
	}
	return maps[0], nil
}

func (s *SQLite) SelectRows(ctx context.Context, schema models.Schema, filter map[string]any, orderBy []string, limit int, tenant string) ([]map[string]any, error) {
	ctx, span := telemetry.StartRepositorySpan(ctx, "select", schema.TableName())
	defer span.End()

	var (
		where []string
		args  []any
	)
	if schema.TenantIsolated() {
		where = append(where, "tenant_id = ?")
		args = append(args, tenant)
	}

	clauses, err := renderFilter(filter, "sqlite", len(args))
	if err != nil {
		return nil, err
	}
	for _, c := range clauses {
		where = append(where, c.expr)
		args = append(args, c.args...)
	}

	query := fmt.Sprintf("SELECT %s FROM %s",
		strings.Join(schema.Columns(), ", "), schema.TableName())
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	order, err := renderOrderBy(orderBy)
	if err != nil {
		return nil, err
	}
	query += order
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	maps, err := s.query(ctx, query, args...)
	if err != nil {
		telemetry.RecordError(ctx, err)
		return nil, fmt.Errorf("failed to select from %s: %w", schema.TableName(), err)
	}
	return maps, nil
}

func (s *SQLite) SemanticSearch(ctx context.Context, schema models.Schema, vector []float32, opts SearchOptions, tenant string) ([]SearchHit, error) {
	ctx, span := telemetry.StartRepositorySpan(ctx, "semantic_search", schema.TableName())
	defer span.End()

	opts, err := normalizeSearchOptions(schema, opts)
	if err != nil {
		return nil, err
	}

	rows, err := s.query(ctx,
		"SELECT entity_id, embedding FROM embeddings WHERE table_name = ? AND field_name = ? AND tenant_id = ?",
		schema.TableName(), opts.FieldName, tenant)
	if err != nil {
		return nil, fmt.Errorf("failed to load embeddings for %s: %w", schema.TableName(), err)
	}

	dist := distanceFunc(opts.Metric)
	type scored struct {
		entityID string
		distance float64
	}
	var candidates []scored
	for _, row := range rows {
		raw, _ := row["embedding"].(string)
		var stored []float32
		if err := json.Unmarshal([]byte(raw), &stored); err != nil || len(stored) != len(vector) {
			continue
		}
		d := dist(vector, stored)
		if opts.Threshold > 0 && d > opts.Threshold {
			continue
		}
		candidates = append(candidates, scored{rowString(row, "entity_id"), d})
	}

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].distance < candidates[j].distance })
	if len(candidates) > opts.Limit {
		candidates = candidates[:opts.Limit]
	}

	var hits []SearchHit
	for _, c := range candidates {
		id, err := uuid.Parse(c.entityID)
		if err != nil {
			continue
		}
		row, err := s.GetRow(ctx, schema, id, tenant)
		if err != nil {
			return nil, err
		}
		if row == nil {
			continue
		}
		hits = append(hits, SearchHit{Row: row, Distance: c.distance})
	}
	return hits, nil
}

func (s *SQLite) DeleteRow(ctx context.Context, schema models.Schema, id uuid.UUID, tenant string) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE id = ?", schema.TableName())
	args := []any{id.String()}
	if schema.TenantIsolated() {
		query += " AND tenant_id = ?"
		args = append(args, tenant)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to delete from %s: %w", schema.TableName(), err)
	}

	if _, err := s.db.ExecContext(ctx,
		"DELETE FROM embeddings WHERE entity_id = ? AND tenant_id = ?", id.String(), tenant); err != nil {
		return fmt.Errorf("failed to delete embeddings for %s: %w", id, err)
	}
	return nil
}

func (s *SQLite) Execute(ctx context.Context, query string, args ...any) ([]map[string]any, error) {
	if isReadQuery(query) {
		return s.query(ctx, query, args...)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return nil, fmt.Errorf("statement failed: %w", err)
	}
	return nil, nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) query(ctx context.Context, query string, args ...any) ([]map[string]any, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var out []map[string]any
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		m := make(map[string]any, len(columns))
		for i, col := range columns {
			if b, ok := values[i].([]byte); ok {
				m[col] = string(b)
			} else {
				m[col] = values[i]
			}
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func rowString(row map[string]any, key string) string {
	if s, ok := row[key].(string); ok {
		return s
	}
	return ""
}
