// Package engine holds the explicit backend registry: named storage
// backends owned by an execution context, with register/select/remove
// reporting success instead of mutating process-global state.
package engine

import "sync"

// Backend is the minimal surface the registry needs from a storage
// backend.
type Backend interface {
	Name() string
	DisposeAll()
}

// Registry maps names to backend instances and tracks which one is
// active. The zero value is not usable; construct with NewRegistry and
// inject one per execution context.
type Registry struct {
	mu       sync.Mutex
	backends map[string]Backend
	active   string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{backends: make(map[string]Backend)}
}

// Register binds name to b. Returns false if the name is already
// bound; the existing binding is left untouched.
func (r *Registry) Register(name string, b Backend) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.backends[name]; exists {
		return false
	}
	r.backends[name] = b
	if r.active == "" {
		r.active = name
	}
	return true
}

// Select makes name the active backend. Returns false if name is not
// registered.
func (r *Registry) Select(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.backends[name]; !exists {
		return false
	}
	r.active = name
	return true
}

// Remove unbinds name, tearing the backend's storage down. Returns
// false if name is not registered. Removing the active backend leaves
// no backend active.
func (r *Registry) Remove(name string) bool {
	r.mu.Lock()
	b, exists := r.backends[name]
	if !exists {
		r.mu.Unlock()
		return false
	}
	delete(r.backends, name)
	if r.active == name {
		r.active = ""
	}
	r.mu.Unlock()

	b.DisposeAll()
	return true
}

// Active returns the active backend, or false if none is selected.
func (r *Registry) Active() (Backend, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, exists := r.backends[r.active]
	return b, exists
}

// Names returns the registered backend names.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(r.backends))
	for name := range r.backends {
		names = append(names, name)
	}
	return names
}
