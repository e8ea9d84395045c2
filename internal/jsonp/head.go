package jsonp

import (
	"context"
	"sync"
)

// Script is an injected script element: the in-flight load of one JSONP URL.
type Script struct {
	ID  string
	URL string

	cancel context.CancelFunc
}

// Head is the container scripts are appended to while they load. Removing a
// script cancels its load. It is safe for concurrent use.
type Head struct {
	mu      sync.Mutex
	scripts map[string]*Script
}

// NewHead creates an empty script container.
func NewHead() *Head {
	return &Head{
		scripts: make(map[string]*Script),
	}
}

// Append attaches s.
func (h *Head) Append(s *Script) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.scripts[s.ID] = s
}

// Remove detaches s and cancels its load. It reports whether s was attached;
// removing a detached script is a no-op.
func (h *Head) Remove(s *Script) bool {
	h.mu.Lock()
	_, ok := h.scripts[s.ID]
	delete(h.scripts, s.ID)
	h.mu.Unlock()

	if ok && s.cancel != nil {
		s.cancel()
	}
	return ok
}

// Contains reports whether a script with the given ID is attached.
func (h *Head) Contains(id string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.scripts[id]
	return ok
}

// Len returns the number of attached scripts.
func (h *Head) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.scripts)
}
