// etcd-backed discovery for lab deployments.
//
// Backends register under /vulsim/backends/{name}/{controlAddr} with a
// JSON-encoded Endpoint as the value. Registration uses TTL-based leases:
// if a backend crashes, the lease expires and the entry disappears on its
// own, so clients never discover dead simulators.
package registry

import (
	"context"
	"encoding/json"

	clientv3 "go.etcd.io/etcd/client/v3"
)

const keyPrefix = "/vulsim/backends/"

// EtcdRegistry implements Registry on top of etcd v3.
type EtcdRegistry struct {
	client *clientv3.Client // thread-safe, shared across goroutines
}

// NewEtcdRegistry connects to the given etcd endpoints.
func NewEtcdRegistry(endpoints []string) (*EtcdRegistry, error) {
	c, err := clientv3.New(clientv3.Config{
		Endpoints: endpoints,
	})
	if err != nil {
		return nil, err
	}
	return &EtcdRegistry{client: c}, nil
}

// Register puts the endpoint under a TTL lease and keeps the lease alive in
// the background. When KeepAlive stops (process death), the entry expires.
func (r *EtcdRegistry) Register(backend string, ep Endpoint, ttl int64) error {
	ctx := context.TODO()

	lease, err := r.client.Grant(ctx, ttl)
	if err != nil {
		return err
	}

	val, err := json.Marshal(ep)
	if err != nil {
		return err
	}

	_, err = r.client.Put(ctx, keyPrefix+backend+"/"+ep.ControlAddr, string(val), clientv3.WithLease(lease.ID))
	if err != nil {
		return err
	}

	ch, err := r.client.KeepAlive(ctx, lease.ID)
	if err != nil {
		return err
	}

	// Drain KeepAlive responses so the channel never fills up.
	go func() {
		for range ch {
		}
	}()
	return nil
}

// Deregister removes a backend endpoint, typically during graceful shutdown.
func (r *EtcdRegistry) Deregister(backend string, controlAddr string) error {
	_, err := r.client.Delete(context.TODO(), keyPrefix+backend+"/"+controlAddr)
	return err
}

// Discover returns every live endpoint registered under the backend name.
func (r *EtcdRegistry) Discover(backend string) ([]Endpoint, error) {
	resp, err := r.client.Get(context.TODO(), keyPrefix+backend+"/", clientv3.WithPrefix())
	if err != nil {
		return nil, err
	}

	endpoints := make([]Endpoint, 0)
	for _, kv := range resp.Kvs {
		var ep Endpoint
		if err := json.Unmarshal(kv.Value, &ep); err != nil {
			continue // skip malformed entries
		}
		endpoints = append(endpoints, ep)
	}
	return endpoints, nil
}

// Watch emits the refreshed endpoint list on every change under the prefix.
// Re-fetching the full list is simpler than folding individual watch events.
func (r *EtcdRegistry) Watch(backend string) <-chan []Endpoint {
	ch := make(chan []Endpoint, 1)
	go func() {
		watchChan := r.client.Watch(context.TODO(), keyPrefix+backend+"/", clientv3.WithPrefix())
		for range watchChan {
			endpoints, _ := r.Discover(backend)
			ch <- endpoints
		}
	}()
	return ch
}

// Close releases the etcd client.
func (r *EtcdRegistry) Close() error {
	return r.client.Close()
}
