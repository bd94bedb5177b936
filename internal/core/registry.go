package core

import (
	"sort"
	"sync"
)

// Registry maps connected identifiers to their outbound handle.
// All methods are safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	clients map[string]*Client
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{clients: make(map[string]*Client)}
}

// RegisterIfAbsent binds id to c unless id is already bound. It returns the
// client bound after the call and whether c was newly registered.
func (r *Registry) RegisterIfAbsent(id string, c *Client) (*Client, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.clients[id]; ok {
		return existing, false
	}
	r.clients[id] = c
	return c, true
}

// Lookup returns the client bound to id.
func (r *Registry) Lookup(id string) (*Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.clients[id]
	return c, ok
}

// Remove unbinds id regardless of which client holds it.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.clients, id)
}

// RemoveIf unbinds id only while it is still bound to c.
func (r *Registry) RemoveIf(id string, c *Client) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.clients[id] != c {
		return false
	}
	delete(r.clients, id)
	return true
}

// Len returns the number of bound identifiers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.clients)
}

// IDs returns a sorted snapshot of bound identifiers.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.clients))
	for id := range r.clients {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	sort.Strings(ids)
	return ids
}
