package backend

import (
	"fmt"
	"sort"
)

// Registry is the closed set of configured adapters, keyed by provider name.
// It is built once at startup with explicitly constructed adapters; adding a
// provider means registering it here, not reaching for a hidden global.
type Registry struct {
	adapters map[string]Adapter
}

// NewRegistry creates a registry over the given adapters.
func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[string]Adapter, len(adapters))}
	for _, a := range adapters {
		r.adapters[a.Name()] = a
	}
	return r
}

// Lookup resolves a provider name to its adapter. An unknown name fails with
// ErrUnsupportedProvider before any network call is made.
func (r *Registry) Lookup(name string) (Adapter, error) {
	a, ok := r.adapters[name]
	if !ok {
		return nil, fmt.Errorf("backend %q: %w", name, ErrUnsupportedProvider)
	}
	return a, nil
}

// Names returns the configured provider names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
