// Package registry resolves VulSim backend endpoints.
//
// A desktop install talks to one fixed backend and uses StaticRegistry. Lab
// deployments run several simulation backends that come and go; those
// register themselves in etcd with TTL leases and the tools discover them
// through EtcdRegistry. Both sides of the pair, the control port and the
// log port, travel together as one Endpoint.
package registry

// Endpoint is one backend's address pair.
type Endpoint struct {
	ControlAddr string `json:"control_addr"` // host:port of the control channel
	LogAddr     string `json:"log_addr"`     // host:port of the log channel
	Version     string `json:"version,omitempty"`
}

// Registry is the discovery interface shared by the static and etcd
// implementations.
type Registry interface {
	// Register announces a backend under a name with a TTL in seconds.
	Register(backend string, ep Endpoint, ttl int64) error
	// Deregister removes one endpoint of a backend, keyed by control address.
	Deregister(backend string, controlAddr string) error
	// Discover returns the currently known endpoints for a backend.
	Discover(backend string) ([]Endpoint, error)
	// Watch emits the updated endpoint list whenever it changes.
	Watch(backend string) <-chan []Endpoint
}
