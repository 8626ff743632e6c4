package gateway

import (
	"sync"

	"github.com/google/uuid"
)

// Registry indexes this instance's live connections by id and by user.
type Registry struct {
	mu     sync.RWMutex
	conns  map[string]*Connection
	byUser map[uuid.UUID]map[string]struct{}
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		conns:  make(map[string]*Connection),
		byUser: make(map[uuid.UUID]map[string]struct{}),
	}
}

// Add indexes c under its id and its user.
func (r *Registry) Add(c *Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[c.ID] = c
	set, ok := r.byUser[c.UserID]
	if !ok {
		set = make(map[string]struct{})
		r.byUser[c.UserID] = set
	}
	set[c.ID] = struct{}{}
}

// Remove drops the connection from both indexes and reports whether it was present.
func (r *Registry) Remove(connID string) (*Connection, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.conns[connID]
	if !ok {
		return nil, false
	}
	delete(r.conns, connID)
	if set, ok := r.byUser[c.UserID]; ok {
		delete(set, connID)
		if len(set) == 0 {
			delete(r.byUser, c.UserID)
		}
	}
	return c, true
}

func (r *Registry) Get(connID string) (*Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conns[connID]
	return c, ok
}

// ForUser returns the user's live connections on this instance.
func (r *Registry) ForUser(userID uuid.UUID) []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set := r.byUser[userID]
	out := make([]*Connection, 0, len(set))
	for id := range set {
		out = append(out, r.conns[id])
	}
	return out
}

// All returns a snapshot of every live connection.
func (r *Registry) All() []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Connection, 0, len(r.conns))
	for _, c := range r.conns {
		out = append(out, c)
	}
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
