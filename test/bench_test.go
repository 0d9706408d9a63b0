package test

import (
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/meng-cz/vulsim-rpc/client"
	"github.com/meng-cz/vulsim-rpc/message"
	"github.com/meng-cz/vulsim-rpc/server"
)

func setupBenchBackend(b *testing.B) *client.ControlClient {
	b.Helper()
	svr := server.NewServer()
	if err := svr.RegisterName("", server.NewProjectService(nil)); err != nil {
		b.Fatal(err)
	}
	if err := svr.RegisterName("configlib", server.NewConfigLib()); err != nil {
		b.Fatal(err)
	}
	if err := svr.ListenControl("tcp", "127.0.0.1:0"); err != nil {
		b.Fatal(err)
	}
	go func() { _ = svr.Serve() }()
	b.Cleanup(func() { _ = svr.Shutdown(2 * time.Second) })

	host, portStr, err := net.SplitHostPort(svr.ControlAddr())
	if err != nil {
		b.Fatal(err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		b.Fatal(err)
	}
	c, err := client.New(client.Options{Host: host, Port: port, Timeout: 5 * time.Second})
	if err != nil {
		b.Fatal(err)
	}
	b.Cleanup(c.Close)
	return c
}

func BenchmarkCall(b *testing.B) {
	c := setupBenchBackend(b)
	c.Connect()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		resp := c.Call("list", nil)
		if resp.Code() != 0 {
			b.Fatalf("call failed: %v", resp)
		}
	}
}

func BenchmarkCallWithArgs(b *testing.B) {
	c := setupBenchBackend(b)
	c.Connect()
	args := []message.Arg{
		message.NamedAt(0, "name", "freq"),
		message.NamedAt(1, "value", "2.4GHz"),
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		// update after the first add; both are single round trips
		var resp message.Response
		if i == 0 {
			resp = c.Call("configlib.add", args)
		} else {
			resp = c.Call("configlib.update", args)
		}
		if resp.Code() != 0 {
			b.Fatalf("call %d failed: %v", i, resp)
		}
	}
}

// Concurrent callers share one half-duplex connection; this measures the
// serialization cost rather than parallel throughput.
func BenchmarkCallParallel(b *testing.B) {
	c := setupBenchBackend(b)
	c.Connect()

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			resp := c.Call("list", nil)
			if resp.Code() != 0 {
				b.Fatalf("call failed: %v", resp)
			}
		}
	})
}
