// Package providers hosts the provider adapter registry and the shared
// plumbing every concrete adapter uses to talk HTTP and classify failures.
package providers

import (
	"sync"

	"github.com/publica-labs/publica-core/internal/core/domain"
	"github.com/publica-labs/publica-core/internal/core/ports/driven"
)

// Ensure Registry implements the interface.
var _ driven.AdapterRegistry = (*Registry)(nil)

// Registry maps provider types to their adapters. Providers in the closed
// set with no registered adapter (credentials not configured, or the adapter
// does not exist yet) resolve to ErrUnsupportedProvider.
type Registry struct {
	mu       sync.RWMutex
	adapters map[domain.ProviderType]driven.ProviderAdapter
}

// NewRegistry creates an adapter registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[domain.ProviderType]driven.ProviderAdapter)}
}

// Register registers an adapter under its own type.
func (r *Registry) Register(adapter driven.ProviderAdapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[adapter.Type()] = adapter
}

// Get returns the adapter for a provider type.
func (r *Registry) Get(provider domain.ProviderType) (driven.ProviderAdapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	adapter, ok := r.adapters[provider]
	if !ok {
		return nil, domain.ErrUnsupportedProvider
	}
	return adapter, nil
}

// SupportedTypes returns all registered provider types.
func (r *Registry) SupportedTypes() []domain.ProviderType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]domain.ProviderType, 0, len(r.adapters))
	for t := range r.adapters {
		types = append(types, t)
	}
	return types
}
