package jsonp

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// Handler receives the payload a loaded script passes to its callback.
type Handler func(payload json.RawMessage)

// Registry is the callback namespace loaded scripts call into. Entries are
// keyed by generated callback name and live only as long as their request.
// It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry creates an empty callback registry.
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[string]Handler),
	}
}

// Register adds h under name. It fails if name is already taken.
func (r *Registry) Register(name string, h Handler) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.handlers[name]; ok {
		return fmt.Errorf("callback %q is already registered", name)
	}
	r.handlers[name] = h
	return nil
}

// Replace installs h under name, whether or not name is registered.
func (r *Registry) Replace(name string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[name] = h
}

// Delete removes name. Deleting an unknown name is a no-op.
func (r *Registry) Delete(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.handlers, name)
}

// Dispatch invokes the handler registered under name with payload and
// reports whether one was found. The handler runs without the lock held.
func (r *Registry) Dispatch(name string, payload json.RawMessage) bool {
	r.mu.RLock()
	h, ok := r.handlers[name]
	r.mu.RUnlock()

	if !ok || h == nil {
		return false
	}
	h(payload)
	return true
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.handlers[name]
	return ok
}

// Len returns the number of registered callbacks.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers)
}

// Names returns the registered callback names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
