package client

import (
	"encoding/json"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/meng-cz/vulsim-rpc/message"
	"github.com/meng-cz/vulsim-rpc/protocol"
)

// mockBackend is a fixed-byte-order control server, the way real backends
// behave: it reads frames in its native order and closes the connection on
// a magic mismatch. handle receives each decoded call and returns the
// response document.
type mockBackend struct {
	t      *testing.T
	ln     net.Listener
	order  protocol.ByteOrder
	handle func(call message.Call) message.Response

	requests atomic.Int64
}

func startMockBackend(t *testing.T, order protocol.ByteOrder, handle func(message.Call) message.Response) *mockBackend {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	b := &mockBackend{t: t, ln: ln, order: order, handle: handle}
	t.Cleanup(func() { _ = ln.Close() })
	go b.acceptLoop()
	return b
}

func (b *mockBackend) acceptLoop() {
	for {
		conn, err := b.ln.Accept()
		if err != nil {
			return
		}
		go b.serveConn(conn)
	}
}

func (b *mockBackend) serveConn(conn net.Conn) {
	defer conn.Close()
	for {
		payload, err := protocol.ReadFrame(conn, b.order)
		if err != nil {
			return // bad magic (wrong client order) or EOF: drop the conn
		}
		b.requests.Add(1)

		var call message.Call
		if err := json.Unmarshal(payload, &call); err != nil {
			return
		}
		resp := b.handle(call)
		body, err := json.Marshal(resp)
		if err != nil {
			return
		}
		if err := protocol.WriteFrame(conn, body, b.order); err != nil {
			return
		}
	}
}

func (b *mockBackend) hostPort() (string, int) {
	b.t.Helper()
	host, portStr, err := net.SplitHostPort(b.ln.Addr().String())
	if err != nil {
		b.t.Fatal(err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		b.t.Fatal(err)
	}
	return host, port
}

func newTestClient(t *testing.T, host string, port int, order string) *ControlClient {
	t.Helper()
	c, err := New(Options{Host: host, Port: port, Timeout: 2 * time.Second, ByteOrder: order})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(c.Close)
	return c
}

func TestNewRejectsInvalidByteOrder(t *testing.T) {
	_, err := New(Options{Host: "127.0.0.1", ByteOrder: "middle"})
	if err == nil {
		t.Fatal("expect an error for invalid byte order")
	}
}

func TestCallSuccess(t *testing.T) {
	backend := startMockBackend(t, protocol.LittleEndian, func(call message.Call) message.Response {
		if call.Name != "info" {
			t.Errorf("method: got %q, want info", call.Name)
		}
		return message.Response{"code": 0, "results": map[string]any{"name": "proj1"}}
	})
	host, port := backend.hostPort()
	c := newTestClient(t, host, port, "little")

	resp := c.Call("info", nil)
	if resp.Code() != 0 {
		t.Fatalf("code: got %d (%s), want 0", resp.Code(), resp.Msg())
	}
	results, ok := resp["results"].(map[string]any)
	if !ok || results["name"] != "proj1" {
		t.Fatalf("results passed through wrong: %v", resp)
	}
	if c.ByteOrder() != protocol.LittleEndian {
		t.Fatal("byte order must not flip on success")
	}
}

// Backend-level errors (code != 0) are passed through verbatim, not
// converted or retried.
func TestCallBackendErrorPassesThrough(t *testing.T) {
	backend := startMockBackend(t, protocol.LittleEndian, func(message.Call) message.Response {
		return message.Errorf(-11, "no open project")
	})
	host, port := backend.hostPort()
	c := newTestClient(t, host, port, "little")

	resp := c.Call("info", nil)
	if resp.Code() != -11 || resp.Msg() != "no open project" {
		t.Fatalf("got %v, want the backend error verbatim", resp)
	}
	if got := backend.requests.Load(); got != 1 {
		t.Fatalf("requests: got %d, want 1 (no retry for backend errors)", got)
	}
}

// The endianness self-correction scenario: backend speaks big-endian,
// client guesses little. First attempt dies on the backend's magic check,
// the client flips, the retry succeeds, and the flip persists.
func TestCallFlipsByteOrderOnce(t *testing.T) {
	backend := startMockBackend(t, protocol.BigEndian, func(message.Call) message.Response {
		return message.Response{"code": 0, "results": map[string]any{"name": "proj1"}}
	})
	host, port := backend.hostPort()
	c := newTestClient(t, host, port, "little")

	resp := c.Call("info", nil)
	if resp.Code() != 0 {
		t.Fatalf("code: got %d (%s), want 0 after the flip retry", resp.Code(), resp.Msg())
	}
	if c.ByteOrder() != protocol.BigEndian {
		t.Fatalf("byte order: got %s, want big after self-correction", c.ByteOrder())
	}

	// The corrected guess persists: the next call succeeds on the first try.
	before := backend.requests.Load()
	if resp := c.Call("info", nil); resp.Code() != 0 {
		t.Fatalf("second call failed: %v", resp)
	}
	if got := backend.requests.Load() - before; got != 1 {
		t.Fatalf("second call used %d requests, want 1", got)
	}
}

func TestCallCannotConnect(t *testing.T) {
	// Grab a port that is certainly closed.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	host, portStr, _ := net.SplitHostPort(ln.Addr().String())
	port, _ := strconv.Atoi(portStr)
	ln.Close()

	c := newTestClient(t, host, port, "little")
	resp := c.Call("info", nil)
	if resp.Code() != -1 || resp.Msg() != message.MsgCannotConnect {
		t.Fatalf("got %v, want code -1 %q", resp, message.MsgCannotConnect)
	}
}

// A server that accepts and immediately hangs up fails both attempts; the
// second failure is terminal and reported as a communication error, still
// without an error return.
func TestCallCommunicationError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = ln.Close() })
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()

	host, portStr, _ := net.SplitHostPort(ln.Addr().String())
	port, _ := strconv.Atoi(portStr)
	c := newTestClient(t, host, port, "little")

	before := c.ByteOrder()
	resp := c.Call("info", nil)
	if resp.Code() != -1 || !strings.HasPrefix(resp.Msg(), message.MsgCommunicationError) {
		t.Fatalf("got %v, want a communication error", resp)
	}
	// Exactly one flip per call, not one per attempt.
	if c.ByteOrder() != before.Flip() {
		t.Fatalf("byte order: got %s, want %s", c.ByteOrder(), before.Flip())
	}
}

// Garbage JSON in a well-framed response is not a transport fault: no
// retry, no flip, just the generic internal-error response.
func TestCallMalformedResponseJSON(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = ln.Close() })
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		if _, err := protocol.ReadFrame(conn, protocol.LittleEndian); err != nil {
			return
		}
		_ = protocol.WriteFrame(conn, []byte(`{not json`), protocol.LittleEndian)
		// Keep the conn open so the failure cannot be mistaken for EOF.
		time.Sleep(time.Second)
	}()

	host, portStr, _ := net.SplitHostPort(ln.Addr().String())
	port, _ := strconv.Atoi(portStr)
	c := newTestClient(t, host, port, "little")

	resp := c.Call("info", nil)
	if resp.Code() != -1 || resp.Msg() != message.MsgInternalError {
		t.Fatalf("got %v, want code -1 %q", resp, message.MsgInternalError)
	}
	if c.ByteOrder() != protocol.LittleEndian {
		t.Fatal("byte order must not flip for a malformed-JSON failure")
	}
}

func TestConnectIdempotent(t *testing.T) {
	backend := startMockBackend(t, protocol.LittleEndian, func(message.Call) message.Response {
		return message.Response{"code": 0}
	})
	host, port := backend.hostPort()
	c := newTestClient(t, host, port, "little")

	if !c.Connect() {
		t.Fatal("first Connect failed")
	}
	if !c.Connect() {
		t.Fatal("second Connect must be a no-op success")
	}
	c.Close()
	c.Close() // Close is idempotent too
}

// Structured argument values must arrive double-encoded: the backend sees a
// JSON string, not a nested object.
func TestCallDoubleEncodesStructuredArgs(t *testing.T) {
	var got atomic.Value
	backend := startMockBackend(t, protocol.LittleEndian, func(call message.Call) message.Response {
		got.Store(call.Args)
		return message.Response{"code": 0}
	})
	host, port := backend.hostPort()
	c := newTestClient(t, host, port, "little")

	resp := c.Call("configlib.add", []message.Arg{
		message.NamedAt(0, "name", "topology"),
		message.NamedAt(1, "value", map[string]any{"nodes": []any{"a"}}),
	})
	if resp.Code() != 0 {
		t.Fatalf("call failed: %v", resp)
	}

	args := got.Load().([]message.Arg)
	if len(args) != 2 {
		t.Fatalf("args: got %d, want 2", len(args))
	}
	s, ok := args[1].Value.(string)
	if !ok {
		t.Fatalf("structured value arrived as %T, want string", args[1].Value)
	}
	var inner map[string]any
	if err := json.Unmarshal([]byte(s), &inner); err != nil {
		t.Fatalf("inner value is not re-parseable JSON: %v", err)
	}
}

// With N concurrent callers on one client, the wire must carry N complete
// request/response pairs with no interleaving. The mock backend reads
// frames strictly sequentially, so any interleaved write would surface as
// a framing error and a failed call.
func TestCallHalfDuplexSerialization(t *testing.T) {
	backend := startMockBackend(t, protocol.LittleEndian, func(call message.Call) message.Response {
		time.Sleep(time.Millisecond) // widen the interleave window
		return message.Response{"code": 0, "echo": call.Name}
	})
	host, port := backend.hostPort()
	c := newTestClient(t, host, port, "little")

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := "method-" + strconv.Itoa(i)
			resp := c.Call(name, nil)
			if resp.Code() != 0 {
				t.Errorf("call %d failed: %v", i, resp)
				return
			}
			if resp["echo"] != name {
				t.Errorf("call %d: response for %v, want %s (pairs interleaved)", i, resp["echo"], name)
			}
		}(i)
	}
	wg.Wait()

	if got := backend.requests.Load(); got != n {
		t.Fatalf("backend saw %d well-formed requests, want %d", got, n)
	}
}

func TestIsTransportError(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{io.EOF, true},
		{io.ErrUnexpectedEOF, true},
		{net.ErrClosed, true},
		{protocol.ErrBadMagic, true},
		{protocol.ErrPayloadTooLarge, true},
		{json.Unmarshal([]byte(`{`), &struct{}{}), false},
	}
	for _, tc := range cases {
		if got := isTransportError(tc.err); got != tc.want {
			t.Errorf("isTransportError(%v): got %v, want %v", tc.err, got, tc.want)
		}
	}
}
