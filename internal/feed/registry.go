package feed

import (
	"context"
	"sync"
)

// Metadata describes a feed for its generator record and for
// describeFeedGenerator.
type Metadata struct {
	// Name is the generator record key and the algorithm's short name.
	Name        string
	DisplayName string
	Description string
	// Avatar is an optional image file uploaded when publishing.
	Avatar string
}

// Algorithm produces one page of a feed skeleton.
type Algorithm interface {
	Generate(ctx context.Context, req Request) (*Skeleton, error)
}

// AlgorithmFunc adapts a function to the Algorithm interface.
type AlgorithmFunc func(ctx context.Context, req Request) (*Skeleton, error)

// Generate calls f.
func (f AlgorithmFunc) Generate(ctx context.Context, req Request) (*Skeleton, error) {
	return f(ctx, req)
}

type entry struct {
	meta Metadata
	algo Algorithm
}

// Registry maps feed short names to their algorithms, in registration order.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]entry
	order   []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]entry),
	}
}

// Register adds or replaces the algorithm for meta.Name.
func (r *Registry) Register(meta Metadata, algo Algorithm) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[meta.Name]; !ok {
		r.order = append(r.order, meta.Name)
	}
	r.entries[meta.Name] = entry{meta: meta, algo: algo}
}

// Get returns the algorithm registered under name.
func (r *Registry) Get(name string) (Algorithm, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	return e.algo, ok
}

// Names returns the registered short names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Metadata returns the metadata of every registered feed.
func (r *Registry) Metadata() []Metadata {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Metadata, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.entries[name].meta)
	}
	return out
}

// Count returns the number of registered feeds.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
