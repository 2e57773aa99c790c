// Package embeddings provides vector embedding generation for repository
// upserts and semantic search. Providers are process-wide singletons; fields
// are batched per provider to minimize API round-trips.
package embeddings

import (
	"context"
	"fmt"
	"sync"
)

// Provider generates embeddings for batches of text.
type Provider interface {
	// Name is the provider identifier recorded on embedding rows.
	Name() string

	// Dimension is the declared vector dimensionality.
	Dimension() int

	// Embed returns one vector per input text, in order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Registry resolves provider identifiers to Provider instances. The
// identifier "default" resolves to the registry's default provider.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
	def       Provider
}

// NewRegistry creates a registry with the given default provider.
func NewRegistry(def Provider) *Registry {
	r := &Registry{providers: make(map[string]Provider)}
	if def != nil {
		r.def = def
		r.providers[def.Name()] = def
	}
	return r
}

// Register adds a provider under its name.
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.Name()] = p
}

// Resolve returns the provider for an identifier.
func (r *Registry) Resolve(name string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if name == "" || name == "default" {
		if r.def == nil {
			return nil, fmt.Errorf("no default embedding provider configured")
		}
		return r.def, nil
	}
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("unknown embedding provider %q", name)
	}
	return p, nil
}

// Default returns the default provider, or nil.
func (r *Registry) Default() Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.def
}
