package session

import (
	"sort"
	"sync"

	"github.com/zynkhq/zynk/internal/metrics"
	sErrors "github.com/zynkhq/zynk/internal/modules/sessionmodule/errors"
)

// Registry maps live session ids to their controllers. The lock guards
// the map only; controllers are never touched under it.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Controller
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Controller)}
}

// Insert registers c under id. It fails if id is already live.
func (r *Registry) Insert(id string, c *Controller) error {
	r.mu.Lock()
	if _, exists := r.sessions[id]; exists {
		r.mu.Unlock()
		return sErrors.ErrSessionExists
	}
	r.sessions[id] = c
	n := len(r.sessions)
	r.mu.Unlock()

	metrics.SetActiveSessions(n)
	return nil
}

// Remove unregisters id if it still maps to c.
func (r *Registry) Remove(id string, c *Controller) bool {
	r.mu.Lock()
	current, exists := r.sessions[id]
	if !exists || current != c {
		r.mu.Unlock()
		return false
	}
	delete(r.sessions, id)
	n := len(r.sessions)
	r.mu.Unlock()

	metrics.SetActiveSessions(n)
	return true
}

// Get returns the controller registered under id.
func (r *Registry) Get(id string) (*Controller, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.sessions[id]
	return c, ok
}

// IsActive reports whether id is live.
func (r *Registry) IsActive(id string) bool {
	_, ok := r.Get(id)
	return ok
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// IDs returns the live session ids, sorted.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	sort.Strings(ids)
	return ids
}
