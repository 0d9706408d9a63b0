package server

import (
	"testing"

	"github.com/meng-cz/vulsim-rpc/message"
)

type fakeService struct{}

func (f *fakeService) Ping(_ []message.Arg) message.Response {
	return message.Response{"code": 0, "pong": true}
}

// Wrong shapes that must not be picked up as backend methods.
func (f *fakeService) NotAMethod() string                          { return "" }
func (f *fakeService) AlsoNot(a, b []message.Arg) message.Response { return nil }

func TestNewServiceScansMethods(t *testing.T) {
	svc, err := newService("fake", &fakeService{})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := svc.method["ping"]; !ok {
		t.Fatal("Ping not registered under its lowercase wire name")
	}
	if len(svc.method) != 1 {
		t.Fatalf("registered %d methods, want 1", len(svc.method))
	}
}

func TestNewServiceRejectsNonPointer(t *testing.T) {
	if _, err := newService("fake", fakeService{}); err == nil {
		t.Fatal("value receiver must be rejected")
	}
	if _, err := newService("fake", nil); err == nil {
		t.Fatal("nil receiver must be rejected")
	}
}

type methodless struct{}

func (m *methodless) Whatever() {}

func TestNewServiceRejectsMethodlessReceiver(t *testing.T) {
	if _, err := newService("fake", &methodless{}); err == nil {
		t.Fatal("receiver without backend methods must be rejected")
	}
}

func TestServiceCallUnknownMethod(t *testing.T) {
	svc, err := newService("fake", &fakeService{})
	if err != nil {
		t.Fatal(err)
	}
	resp := svc.call("missing", nil)
	if resp.Code() != -2 {
		t.Fatalf("got %v, want code -2", resp)
	}
	if resp.Msg() != "unknown method: fake.missing" {
		t.Fatalf("msg: %q", resp.Msg())
	}
}

func TestSplitMethod(t *testing.T) {
	cases := []struct {
		full, svc, method string
	}{
		{"load", "", "load"},
		{"configlib.add", "configlib", "add"},
		{"a.b.c", "a.b", "c"},
	}
	for _, tc := range cases {
		svc, method := splitMethod(tc.full)
		if svc != tc.svc || method != tc.method {
			t.Errorf("splitMethod(%q) = %q, %q; want %q, %q", tc.full, svc, method, tc.svc, tc.method)
		}
	}
}
