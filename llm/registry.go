package llm

import (
	"fmt"
	"sort"
	"sync"
)

// Registry holds the configured providers by name.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
	def       string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

// Register adds p under p.Name(). The first provider registered becomes the
// default until SetDefault is called.
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.Name()] = p
	if r.def == "" {
		r.def = p.Name()
	}
}

// SetDefault selects the provider used for empty names.
func (r *Registry) SetDefault(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.providers[name]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownProvider, name)
	}
	r.def = name
	return nil
}

// Default returns the default provider name.
func (r *Registry) Default() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.def
}

// Get returns the provider called name, or the default for "".
func (r *Registry) Get(name string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if name == "" {
		name = r.def
	}
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, name)
	}
	return p, nil
}

// Has reports whether name (or the default, for "") is registered.
func (r *Registry) Has(name string) bool {
	_, err := r.Get(name)
	return err == nil
}

// Names returns the registered provider names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.providers))
	for n := range r.providers {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
