package producer

import "sync"

// Registry routes event types to the producers watching them.
// It is safe for concurrent use; lookups take a read lock only.
type Registry struct {
	mu      sync.RWMutex
	byType  map[string][]Producer
	byName  map[string]Producer
	ordered []Producer
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byType: make(map[string][]Producer),
		byName: make(map[string]Producer),
	}
}

// Register adds a producer and indexes it under every type it watches.
// Registering the same name twice replaces the routing entries of the
// earlier producer.
func (r *Registry) Register(p Producer) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.byName[p.Name()]; ok {
		r.removeLocked(old)
	}
	r.byName[p.Name()] = p
	r.ordered = append(r.ordered, p)
	for _, t := range p.WatchedEvents() {
		r.byType[t] = append(r.byType[t], p)
	}
}

func (r *Registry) removeLocked(p Producer) {
	delete(r.byName, p.Name())
	for t, ps := range r.byType {
		out := ps[:0]
		for _, q := range ps {
			if q != p {
				out = append(out, q)
			}
		}
		r.byType[t] = out
	}
	kept := r.ordered[:0]
	for _, q := range r.ordered {
		if q != p {
			kept = append(kept, q)
		}
	}
	r.ordered = kept
}

// Watchers returns the producers watching an event type, in registration
// order. The returned slice is a copy.
func (r *Registry) Watchers(eventType string) []Producer {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ps := r.byType[eventType]
	out := make([]Producer, len(ps))
	copy(out, ps)
	return out
}

// Get returns a producer by name.
func (r *Registry) Get(name string) (Producer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byName[name]
	return p, ok
}

// Producers returns all registered producers in registration order.
func (r *Registry) Producers() []Producer {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Producer, len(r.ordered))
	copy(out, r.ordered)
	return out
}

// Len returns the number of registered producers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byName)
}
