package repository

import (
	"context"
	"fmt"

	"github.com/p8fs/p8fs/internal/telemetry"
	"github.com/p8fs/p8fs/pkg/events"
	"github.com/p8fs/p8fs/pkg/models"
	"github.com/p8fs/p8fs/pkg/repository/provider"
)

// Query kinds accepted by the dispatcher.
const (
	QuerySelect   = "select"
	QuerySemantic = "semantic"
	QueryGraph    = "graph"
	QueryHybrid   = "hybrid"
)

// SearchResult is a semantic search hit scanned into a row map plus score.
type SearchResult struct {
	Row map[string]any

	// DistanceScore is the raw metric distance (smaller is closer).
	DistanceScore float64

	// SimilarityScore is 1-distance, meaningful for the cosine metric.
	SimilarityScore float64
}

// SemanticSearch embeds the query text with the field's provider and runs a
// nearest-neighbour query, tenant-scoped.
func (r *Repository) SemanticSearch(ctx context.Context, tenant string, schema models.Schema, queryText string, opts provider.SearchOptions) ([]SearchResult, error) {
	ctx, span := telemetry.StartRepositorySpan(ctx, "semantic_search", schema.TableName(), telemetry.Tenant(tenant))
	defer span.End()

	if r.embeddings == nil {
		return nil, fmt.Errorf("semantic search requires an embedding provider")
	}

	providerName := "default"
	for _, f := range schema.EmbeddingFields() {
		if opts.FieldName == "" || f.Field == opts.FieldName {
			providerName = f.Provider
			break
		}
	}
	prov, err := r.embeddings.Resolve(providerName)
	if err != nil {
		return nil, err
	}

	vectors, err := prov.Embed(ctx, []string{queryText})
	if err != nil {
		return nil, fmt.Errorf("%w: query embedding: %v", events.ErrTransient, err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("query embedding returned %d vectors", len(vectors))
	}

	hits, err := r.provider.SemanticSearch(ctx, schema, vectors[0], opts, tenant)
	if err != nil {
		return nil, err
	}

	results := make([]SearchResult, 0, len(hits))
	for _, hit := range hits {
		results = append(results, SearchResult{
			Row:             hit.Row,
			DistanceScore:   hit.Distance,
			SimilarityScore: 1 - hit.Distance,
		})
	}
	return results, nil
}

// QueryRequest is the uniform query envelope dispatched by Query.
type QueryRequest struct {
	Kind    string
	Filter  map[string]any
	OrderBy []string
	Limit   int

	// Text is the query text for semantic search.
	Text string

	// Search tunes the semantic search leg.
	Search provider.SearchOptions
}

// QueryResponse is the uniform query result.
type QueryResponse struct {
	Rows    []map[string]any
	Results []SearchResult
}

// Query dispatches a request by kind. Graph and hybrid queries are declared
// but deferred; they fail with ErrNotImplemented.
func (r *Repository) Query(ctx context.Context, tenant string, schema models.Schema, req QueryRequest) (*QueryResponse, error) {
	switch req.Kind {
	case QuerySelect, "":
		rows, err := r.Select(ctx, tenant, schema, req.Filter, req.OrderBy, req.Limit)
		if err != nil {
			return nil, err
		}
		return &QueryResponse{Rows: rows}, nil
	case QuerySemantic:
		opts := req.Search
		if opts.Limit == 0 {
			opts.Limit = req.Limit
		}
		results, err := r.SemanticSearch(ctx, tenant, schema, req.Text, opts)
		if err != nil {
			return nil, err
		}
		return &QueryResponse{Results: results}, nil
	case QueryGraph, QueryHybrid:
		return nil, fmt.Errorf("%w: %s queries", events.ErrNotImplemented, req.Kind)
	default:
		return nil, fmt.Errorf("unknown query kind %q", req.Kind)
	}
}

// TenantRepository binds a repository to one tenant so call sites cannot mix
// tenants by accident.
type TenantRepository struct {
	repo   *Repository
	tenant string
}

// ForTenant returns a tenant-bound view.
func (r *Repository) ForTenant(tenant string) *TenantRepository {
	return &TenantRepository{repo: r, tenant: tenant}
}

// System returns the repository view for system-owned rows.
func (r *Repository) System() *TenantRepository {
	return r.ForTenant(SystemTenant)
}

// Tenant returns the bound tenant.
func (t *TenantRepository) Tenant() string { return t.tenant }

func (t *TenantRepository) Upsert(ctx context.Context, entity models.Entity) (*UpsertResult, error) {
	return t.repo.Upsert(ctx, t.tenant, entity)
}

func (t *TenantRepository) UpsertBatch(ctx context.Context, entities []models.Entity) ([]*UpsertResult, error) {
	return t.repo.UpsertBatch(ctx, t.tenant, entities)
}

func (t *TenantRepository) Get(ctx context.Context, dst models.Entity, id string) (bool, error) {
	parsed, err := parseUUID(id)
	if err != nil {
		return false, err
	}
	return t.repo.Get(ctx, t.tenant, dst, parsed)
}

func (t *TenantRepository) Select(ctx context.Context, schema models.Schema, filter map[string]any, orderBy []string, limit int) ([]map[string]any, error) {
	return t.repo.Select(ctx, t.tenant, schema, filter, orderBy, limit)
}

func (t *TenantRepository) SemanticSearch(ctx context.Context, schema models.Schema, queryText string, opts provider.SearchOptions) ([]SearchResult, error) {
	return t.repo.SemanticSearch(ctx, t.tenant, schema, queryText, opts)
}

func (t *TenantRepository) Query(ctx context.Context, schema models.Schema, req QueryRequest) (*QueryResponse, error) {
	return t.repo.Query(ctx, t.tenant, schema, req)
}
