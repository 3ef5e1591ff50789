package timer

import (
	"sort"
	"sync"

	"github.com/teranos/notify/errors"
)

// Resolver turns a handler reference into a callable handler
type Resolver interface {
	Resolve(ref string) (Handler, error)
}

// Registry maps stable handler references to factories. It is populated at
// startup and read by the engine on every invocation.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a factory under ref.
// Registering an empty ref, a nil factory or the same ref twice is a
// programming error and panics.
func (r *Registry) Register(ref string, factory Factory) {
	if ref == "" {
		panic("timer: Register with empty handler ref")
	}
	if factory == nil {
		panic("timer: Register with nil factory for " + ref)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.factories[ref]; dup {
		panic("timer: handler registered twice: " + ref)
	}
	r.factories[ref] = factory
}

// Resolve builds the handler registered under ref. A factory that panics is
// reported as a resolution error.
func (r *Registry) Resolve(ref string) (h Handler, err error) {
	r.mu.RLock()
	factory, ok := r.factories[ref]
	r.mu.RUnlock()

	if !ok {
		return nil, errors.NewResolutionError(ref, "no handler registered")
	}
	defer func() {
		if p := recover(); p != nil {
			h = nil
			err = errors.NewResolutionError(ref, "factory panicked: %v", p)
		}
	}()
	h = factory()
	if h == nil {
		return nil, errors.NewResolutionError(ref, "factory returned nil handler")
	}
	return h, nil
}

// Has reports whether ref is registered
func (r *Registry) Has(ref string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[ref]
	return ok
}

// Refs returns the registered references, sorted
func (r *Registry) Refs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	refs := make([]string, 0, len(r.factories))
	for ref := range r.factories {
		refs = append(refs, ref)
	}
	sort.Strings(refs)
	return refs
}
