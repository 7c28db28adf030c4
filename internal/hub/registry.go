package hub

import "sync"

// Registry is the set of open connections.
type Registry struct {
	mu    sync.RWMutex
	conns map[*Conn]struct{}
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{conns: make(map[*Conn]struct{})}
}

// Add inserts c.
func (r *Registry) Add(c *Conn) {
	r.mu.Lock()
	r.conns[c] = struct{}{}
	r.mu.Unlock()
}

// Remove deletes c and reports whether it was present.
func (r *Registry) Remove(c *Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.conns[c]; !ok {
		return false
	}
	delete(r.conns, c)
	return true
}

// ForEach calls visit for every open connection accepted by match (nil
// matches all). Members are collected under the read lock and visited after
// it is released, so visit may call back into the registry. Connections
// that are already closing are skipped.
func (r *Registry) ForEach(match func(*Conn) bool, visit func(*Conn)) {
	r.mu.RLock()
	targets := make([]*Conn, 0, len(r.conns))
	for c := range r.conns {
		if match == nil || match(c) {
			targets = append(targets, c)
		}
	}
	r.mu.RUnlock()

	for _, c := range targets {
		if c.closing() {
			continue
		}
		visit(c)
	}
}

// Count returns the number of registered connections.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// drain removes and returns every connection.
func (r *Registry) drain() []*Conn {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Conn, 0, len(r.conns))
	for c := range r.conns {
		out = append(out, c)
		delete(r.conns, c)
	}
	return out
}
