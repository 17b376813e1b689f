// Package tenant holds the in-process, lazily-populated registry of tenant
// configuration: table bindings and resolved RLS/CLS rule sets. Grounded on
// original_source's tenant/registry.py, translated from a Python dict-backed
// singleton into a mutex-guarded Go map — there is no durable tenant store,
// tenants appear in the registry the first time a manifest load, reload, or
// Put names them; a query naming an unknown tenant is an error.
package tenant

import (
	"fmt"
	"sync"

	"github.com/leapstack-labs/omniquery/internal/config"
)

// Registry resolves a tenant_id to its TenantConfig.
type Registry struct {
	mu      sync.RWMutex
	tenants map[string]config.TenantConfig
	sources map[string]config.SourceConfig
}

// NewRegistry builds a Registry from a loaded Manifest. A nil manifest
// yields an empty registry — useful in tests that construct tenants
// individually via Put.
func NewRegistry(m *config.Manifest) *Registry {
	r := &Registry{
		tenants: make(map[string]config.TenantConfig),
		sources: make(map[string]config.SourceConfig),
	}
	if m != nil {
		r.Replace(m)
	}
	return r
}

// Replace atomically swaps the registry's contents, used when the manifest
// is hot-reloaded from disk.
func (r *Registry) Replace(m *config.Manifest) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tenants = make(map[string]config.TenantConfig, len(m.Tenants))
	for id, t := range m.Tenants {
		r.tenants[id] = t
	}
	r.sources = make(map[string]config.SourceConfig, len(m.Sources))
	for id, s := range m.Sources {
		r.sources[id] = s
	}
}

// Put registers or replaces a single tenant's config.
func (r *Registry) Put(tenantID string, cfg config.TenantConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tenants[tenantID] = cfg
}

// PutSource registers or replaces a single source's config.
func (r *Registry) PutSource(sourceID string, cfg config.SourceConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources[sourceID] = cfg
}

// Tenant returns the named tenant's config.
func (r *Registry) Tenant(tenantID string) (config.TenantConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tenants[tenantID]
	if !ok {
		return config.TenantConfig{}, fmt.Errorf("tenant: unknown tenant %q", tenantID)
	}
	return t, nil
}

// Source returns the named source's config.
func (r *Registry) Source(sourceID string) (config.SourceConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sources[sourceID]
	if !ok {
		return config.SourceConfig{}, fmt.Errorf("tenant: unknown source %q", sourceID)
	}
	return s, nil
}
