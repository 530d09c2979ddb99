package batch

import (
	"sync"

	"github.com/google/uuid"
)

// Registry is the in-memory index of batches known to this process. Nothing
// here is persisted: a batch exists for the lifetime of the server, which
// matches the single-session model of the product.
type Registry struct {
	mu      sync.RWMutex
	batches map[uuid.UUID]*State
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		batches: make(map[uuid.UUID]*State),
	}
}

// Add registers a batch.
func (r *Registry) Add(state *State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches[state.ID] = state
}

// Get looks up a batch by id.
func (r *Registry) Get(id uuid.UUID) (*State, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	state, ok := r.batches[id]
	return state, ok
}

// Len returns the number of registered batches.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.batches)
}
