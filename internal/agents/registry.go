package agents

import (
	"sort"
	"sync"
)

// Registry indexes running agents by id.
type Registry struct {
	mu     sync.RWMutex
	agents map[string]*Agent
}

// NewRegistry returns a registry holding agents.
func NewRegistry(agents ...*Agent) *Registry {
	r := &Registry{agents: make(map[string]*Agent, len(agents))}
	for _, a := range agents {
		r.Add(a)
	}
	return r
}

// Add registers a, replacing any agent with the same id.
func (r *Registry) Add(a *Agent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.agents[a.ID()] = a
}

// Get returns the agent with id.
func (r *Registry) Get(id string) (*Agent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.agents[id]
	return a, ok
}

// Statuses returns a snapshot of every agent ordered by id.
func (r *Registry) Statuses() []Status {
	r.mu.RLock()
	out := make([]Status, 0, len(r.agents))
	for _, a := range r.agents {
		out = append(out, a.Status())
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
