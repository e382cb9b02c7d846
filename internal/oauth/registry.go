package oauth

import (
	"fmt"
	"sort"
	"sync"
)

// Factory builds a provider adapter from its client configuration.
type Factory func(cfg Config) (Provider, error)

// Registry is the single source of truth for supported providers. It must
// be fully populated at process start, before any request is served.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
	configs   map[string]Config
	providers map[string]Provider
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
		configs:   make(map[string]Config),
		providers: make(map[string]Provider),
	}
}

// Register adds a provider factory under the given id. Later registrations
// for the same id replace earlier ones.
func (r *Registry) Register(name string, cfg Config, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
	r.configs[name] = cfg
	delete(r.providers, name)
}

// Has reports whether a provider id is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[name]
	return ok
}

// Get returns the adapter for a provider id, constructing it on first use.
// Fails with ErrUnsupportedProvider for unknown ids.
func (r *Registry) Get(name string) (Provider, error) {
	r.mu.RLock()
	if p, ok := r.providers[name]; ok {
		r.mu.RUnlock()
		return p, nil
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()

	if p, ok := r.providers[name]; ok {
		return p, nil
	}
	factory, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedProvider, name)
	}
	p, err := factory(r.configs[name])
	if err != nil {
		return nil, fmt.Errorf("oauth: build provider %s: %w", name, err)
	}
	r.providers[name] = p
	return p, nil
}

// List returns the registered provider ids, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
