package session

import "sync"

// Registry is the global map of live sessions. It is read-mostly: audio
// frames and event emission look sessions up far more often than sessions
// are created or removed.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*State
}

// NewRegistry creates an empty [Registry].
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*State)}
}

// Create returns the session's [State], constructing it via build on first
// use. Create is idempotent: a reconnecting client gets the existing state
// back with its capture buffer, counters, and sub-task handles intact.
func (r *Registry) Create(id string, build func() *State) *State {
	r.mu.Lock()
	defer r.mu.Unlock()

	if st, ok := r.sessions[id]; ok {
		return st
	}
	st := build()
	r.sessions[id] = st
	return st
}

// Get returns the state for id, if the session is live.
func (r *Registry) Get(id string) (*State, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	st, ok := r.sessions[id]
	return st, ok
}

// ReplaceSocket swaps the emitter handle of a live session. It reports
// whether the session was found.
func (r *Registry) ReplaceSocket(id string, e Emitter) bool {
	st, ok := r.Get(id)
	if !ok {
		return false
	}
	st.setEmitter(e)
	return true
}

// Remove drops the session from the registry. Safe to call for unknown
// IDs.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
