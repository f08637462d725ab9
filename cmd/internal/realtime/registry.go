package realtime

import (
	"log/slog"
	"sync"
)

// Registry maps a user id to its live connection. There is at most one
// registration per id; the map itself is never handed out.
type Registry struct {
	log *slog.Logger

	mu      sync.RWMutex
	clients map[string]*Client
}

// NewRegistry constructs an empty Registry. log may be nil.
func NewRegistry(log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	return &Registry{
		log:     log,
		clients: make(map[string]*Client),
	}
}

// Put registers client under id. A client previously registered under the
// same id is replaced and closed.
func (r *Registry) Put(id string, client *Client) {
	r.mu.Lock()
	prev, ok := r.clients[id]
	r.clients[id] = client
	r.mu.Unlock()

	if ok && prev != client {
		r.log.Info("registry.replace", "user_id", id, "old_session_id", prev.SessionID, "new_session_id", client.SessionID)
		prev.Close()
	}
}

// Get returns the client registered under id.
func (r *Registry) Get(id string) (*Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.clients[id]
	return c, ok
}

// Remove deletes the registration for id. Removing an absent id is a no-op.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.clients, id)
}

// RemoveIf deletes the registration for id only if it is still client.
// A connection tearing down after being replaced leaves its successor alone.
func (r *Registry) RemoveIf(id string, client *Client) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cur, ok := r.clients[id]; ok && cur == client {
		delete(r.clients, id)
		return true
	}
	return false
}

// Len returns the number of registered connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.clients)
}
