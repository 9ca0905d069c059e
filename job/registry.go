package job

import (
	"fmt"
	"sync"

	"github.com/vaibhavpandeyvpz/qatar"
)

// Factory constructs a fresh Handler instance. The registry calls it on
// every resolution so handlers never share per-delivery state.
type Factory func() Handler

// Registry maps handler names to factories. It is safe for concurrent
// use.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
	}
}

// Register binds a handler name to a factory. Registering the same name
// twice replaces the earlier factory.
func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
}

// Resolve constructs a handler instance for the given name. The error
// wraps qatar.ErrHandlerNotFound when no factory is registered.
func (r *Registry) Resolve(name string) (Handler, error) {
	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q", qatar.ErrHandlerNotFound, name)
	}
	return f(), nil
}

// Names returns all registered handler names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	return names
}
