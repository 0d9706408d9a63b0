package registry

import "sync"

// StaticRegistry is an in-memory Registry for fixed-address deployments and
// tests. Register/Deregister mutate the table and notify watchers; TTLs are
// accepted but ignored (nothing expires).
type StaticRegistry struct {
	mu       sync.RWMutex
	backends map[string][]Endpoint
	watchers map[string][]chan []Endpoint
}

// NewStaticRegistry returns an empty registry.
func NewStaticRegistry() *StaticRegistry {
	return &StaticRegistry{
		backends: make(map[string][]Endpoint),
		watchers: make(map[string][]chan []Endpoint),
	}
}

// Static is a convenience constructor for the single-backend case: one name,
// one endpoint, ready to Discover.
func Static(backend string, ep Endpoint) *StaticRegistry {
	r := NewStaticRegistry()
	_ = r.Register(backend, ep, 0)
	return r
}

func (r *StaticRegistry) Register(backend string, ep Endpoint, _ int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, existing := range r.backends[backend] {
		if existing.ControlAddr == ep.ControlAddr {
			r.backends[backend][i] = ep
			r.notifyLocked(backend)
			return nil
		}
	}
	r.backends[backend] = append(r.backends[backend], ep)
	r.notifyLocked(backend)
	return nil
}

func (r *StaticRegistry) Deregister(backend string, controlAddr string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	eps := r.backends[backend]
	for i, ep := range eps {
		if ep.ControlAddr == controlAddr {
			r.backends[backend] = append(eps[:i], eps[i+1:]...)
			break
		}
	}
	r.notifyLocked(backend)
	return nil
}

func (r *StaticRegistry) Discover(backend string) ([]Endpoint, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	eps := make([]Endpoint, len(r.backends[backend]))
	copy(eps, r.backends[backend])
	return eps, nil
}

func (r *StaticRegistry) Watch(backend string) <-chan []Endpoint {
	ch := make(chan []Endpoint, 1)
	r.mu.Lock()
	r.watchers[backend] = append(r.watchers[backend], ch)
	r.mu.Unlock()
	return ch
}

// notifyLocked pushes the current list to watchers without blocking on slow
// consumers; a watcher that has not drained the previous update just gets
// the newest list next time.
func (r *StaticRegistry) notifyLocked(backend string) {
	eps := make([]Endpoint, len(r.backends[backend]))
	copy(eps, r.backends[backend])
	for _, ch := range r.watchers[backend] {
		select {
		case ch <- eps:
		default:
		}
	}
}
