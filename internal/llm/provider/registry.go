package provider

import (
	"fmt"
	"maps"
	"slices"
	"sync"
)

// Factory builds a provider from its configuration section
type Factory func(config map[string]any) (Provider, error)

var (
	factoriesMu sync.RWMutex
	factories   = make(map[string]Factory)
)

// RegisterFactory makes a provider constructible by name. Providers register
// themselves from init.
func RegisterFactory(name string, factory Factory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	factories[name] = factory
}

// NewProvider constructs the named provider from config
func NewProvider(name string, config map[string]any) (Provider, error) {
	factoriesMu.RLock()
	factory, ok := factories[name]
	factoriesMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedProvider, name)
	}
	return factory(config)
}

// Factories returns the sorted names of all constructible providers
func Factories() []string {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	return slices.Sorted(maps.Keys(factories))
}

// Registry manages configured providers
type Registry struct {
	providers map[string]Provider
	mu        sync.RWMutex
}

// NewRegistry creates a new provider registry
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]Provider),
	}
}

// Register registers a provider under its name
func (r *Registry) Register(provider Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[provider.Name()] = provider
}

// Get retrieves a provider by name
func (r *Registry) Get(name string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	provider, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedProvider, name)
	}

	return provider, nil
}

// Has checks if a provider is registered
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.providers[name]
	return ok
}

// List returns all registered provider names in sorted order
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.providers))
}

// BuildRegistry constructs and instruments every provider named in configs.
// A provider that fails to build is reported in the returned map and left out
// of the registry. Wrappers are applied in order, inside the instrumentation.
func BuildRegistry(configs map[string]map[string]any, wrappers ...func(Provider) Provider) (*Registry, map[string]error) {
	r := NewRegistry()
	failed := make(map[string]error)
	for _, name := range slices.Sorted(maps.Keys(configs)) {
		p, err := NewProvider(name, configs[name])
		if err != nil {
			failed[name] = err
			continue
		}
		for _, wrap := range wrappers {
			p = wrap(p)
		}
		r.Register(WrapProvider(p))
	}
	return r, failed
}
