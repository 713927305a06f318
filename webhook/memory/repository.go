package memory

import (
	"context"
	"sync"

	"github.com/cityforge/webhooks/webhook"
)

/* In-memory implementation of webhook.Repository
 * The default registry backend: an explicit owned store rather than a
 * bare map, so the last-write-wins policy on concurrent updates is a
 * property of this type and not an accident of map semantics.
 */

type Repository struct {
	mu        sync.RWMutex
	endpoints map[string]webhook.Endpoint
}

// NewRepository creates an empty in-memory registry
func NewRepository() *Repository {
	return &Repository{
		endpoints: make(map[string]webhook.Endpoint),
	}
}

// Store persists a new endpoint. Records are deep-copied on the way in
// and out so concurrent readers never observe partial-field mutation.
func (r *Repository) Store(ctx context.Context, endpoint webhook.Endpoint) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.endpoints[endpoint.ID] = endpoint.Clone()
	return nil
}

// Get returns the endpoint or webhook.ErrNotFound
func (r *Repository) Get(ctx context.Context, id string) (webhook.Endpoint, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	endpoint, ok := r.endpoints[id]
	if !ok {
		return webhook.Endpoint{}, webhook.ErrNotFound
	}
	return endpoint.Clone(), nil
}

// List returns all endpoints
func (r *Repository) List(ctx context.Context) ([]webhook.Endpoint, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]webhook.Endpoint, 0, len(r.endpoints))
	for _, endpoint := range r.endpoints {
		out = append(out, endpoint.Clone())
	}
	return out, nil
}

// Update replaces the stored record whole; last write wins.
func (r *Repository) Update(ctx context.Context, endpoint webhook.Endpoint) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.endpoints[endpoint.ID]; !ok {
		return webhook.ErrNotFound
	}
	r.endpoints[endpoint.ID] = endpoint.Clone()
	return nil
}

// Remove deletes the endpoint or returns webhook.ErrNotFound
func (r *Repository) Remove(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.endpoints[id]; !ok {
		return webhook.ErrNotFound
	}
	delete(r.endpoints, id)
	return nil
}

// Close is a no-op for the in-memory backend
func (r *Repository) Close(ctx context.Context) error {
	return nil
}
