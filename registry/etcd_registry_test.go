package registry

import (
	"os"
	"testing"
	"time"
)

// These tests need a reachable etcd; point VULSIM_TEST_ETCD at one
// (e.g. 127.0.0.1:2379) to enable them.
func etcdEndpoint(t *testing.T) string {
	t.Helper()
	ep := os.Getenv("VULSIM_TEST_ETCD")
	if ep == "" {
		t.Skip("VULSIM_TEST_ETCD not set")
	}
	return ep
}

func TestEtcdRegisterDiscoverDeregister(t *testing.T) {
	r, err := NewEtcdRegistry([]string{etcdEndpoint(t)})
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	ep := Endpoint{ControlAddr: "10.1.2.3:17995", LogAddr: "10.1.2.3:17996", Version: "test"}
	if err := r.Register("sim-test", ep, 5); err != nil {
		t.Fatal(err)
	}
	defer func() { _ = r.Deregister("sim-test", ep.ControlAddr) }()

	eps, err := r.Discover("sim-test")
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, got := range eps {
		if got == ep {
			found = true
		}
	}
	if !found {
		t.Fatalf("registered endpoint missing from %v", eps)
	}

	if err := r.Deregister("sim-test", ep.ControlAddr); err != nil {
		t.Fatal(err)
	}
	eps, err = r.Discover("sim-test")
	if err != nil {
		t.Fatal(err)
	}
	for _, got := range eps {
		if got.ControlAddr == ep.ControlAddr {
			t.Fatalf("endpoint still discoverable after Deregister: %v", eps)
		}
	}
}

func TestEtcdWatch(t *testing.T) {
	r, err := NewEtcdRegistry([]string{etcdEndpoint(t)})
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	ch := r.Watch("sim-watch")
	ep := Endpoint{ControlAddr: "10.1.2.4:17995", LogAddr: "10.1.2.4:17996"}
	if err := r.Register("sim-watch", ep, 5); err != nil {
		t.Fatal(err)
	}
	defer func() { _ = r.Deregister("sim-watch", ep.ControlAddr) }()

	select {
	case eps := <-ch:
		if len(eps) == 0 {
			t.Fatal("watch update carried no endpoints")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no watch update after Register")
	}
}
