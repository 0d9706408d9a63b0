// Package server implements a VulSim backend: the control-channel frame
// server with reflection-based method dispatch, and the log-channel
// broadcaster. It powers vulsimd (a stand-in backend for development) and
// the integration tests.
//
// Request pipeline:
//
//	Accept conn → handleConn (detect client byte order from first frame)
//	  → for each frame: decode Call → middleware chain → service method
//	    → encode Response → write frame (same byte order as the request)
//
// Unlike protocols with sequence numbers, this wire format is half-duplex:
// a response is matched to its request purely by ordering. Requests on one
// connection are therefore processed strictly serially; parallel dispatch
// would scramble the pairing.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/meng-cz/vulsim-rpc/logging"
	"github.com/meng-cz/vulsim-rpc/message"
	"github.com/meng-cz/vulsim-rpc/middleware"
	"github.com/meng-cz/vulsim-rpc/protocol"
)

// Server hosts registered services on the control channel and pushes log
// entries on the log channel.
type Server struct {
	serviceMap  map[string]*service
	middlewares []middleware.Middleware
	handler     middleware.HandlerFunc
	feed        *logFeed
	log         zerolog.Logger

	controlListener net.Listener
	logListener     net.Listener
	wg              sync.WaitGroup // in-flight requests, drained on Shutdown
	shutdown        atomic.Bool

	connMu sync.Mutex
	conns  map[net.Conn]struct{} // live control connections
}

// NewServer creates a server with no services registered.
func NewServer() *Server {
	return &Server{
		serviceMap: make(map[string]*service),
		feed:       newLogFeed(),
		log:        logging.Component("server"),
		conns:      make(map[net.Conn]struct{}),
	}
}

// Use appends a middleware. Middlewares run in registration order around
// every dispatched call.
func (svr *Server) Use(mw middleware.Middleware) {
	svr.middlewares = append(svr.middlewares, mw)
}

// RegisterName exposes a receiver's methods as backend operations. With
// name "configlib", method Add answers calls to "configlib.add"; with the
// empty name, method Load answers bare "load". See service.go for the
// required method signature.
func (svr *Server) RegisterName(name string, rcvr any) error {
	svc, err := newService(name, rcvr)
	if err != nil {
		return err
	}
	svr.serviceMap[name] = svc
	return nil
}

// ListenControl binds the control-channel listener. Use address ":0" to let
// the OS pick a port, then read it back with ControlAddr.
func (svr *Server) ListenControl(network, address string) error {
	l, err := net.Listen(network, address)
	if err != nil {
		return err
	}
	svr.controlListener = l
	return nil
}

// ListenLog binds the log-channel listener. Optional: a server without one
// simply has no log feed.
func (svr *Server) ListenLog(network, address string) error {
	l, err := net.Listen(network, address)
	if err != nil {
		return err
	}
	svr.logListener = l
	return nil
}

// ControlAddr returns the bound control address, or "" before ListenControl.
func (svr *Server) ControlAddr() string {
	if svr.controlListener == nil {
		return ""
	}
	return svr.controlListener.Addr().String()
}

// LogAddr returns the bound log address, or "" before ListenLog.
func (svr *Server) LogAddr() string {
	if svr.logListener == nil {
		return ""
	}
	return svr.logListener.Addr().String()
}

// Publish broadcasts a log entry to every connected log-channel client.
// Safe to call from any goroutine; entries to dead clients are dropped
// along with the client.
func (svr *Server) Publish(entry message.LogEntry) {
	svr.feed.publish(entry, svr.log)
}

// Serve runs the accept loops until Shutdown. ListenControl must have been
// called; the log loop runs only if ListenLog was.
func (svr *Server) Serve() error {
	if svr.controlListener == nil {
		return fmt.Errorf("server: Serve called before ListenControl")
	}

	// Build the middleware chain once at startup, not per request.
	svr.handler = middleware.Chain(svr.middlewares...)(svr.dispatch)

	if svr.logListener != nil {
		go svr.acceptLogClients()
	}

	for {
		conn, err := svr.controlListener.Accept()
		if err != nil {
			// During shutdown the listener close makes Accept fail; only
			// report errors that happen while we are supposed to be up.
			if svr.shutdown.Load() {
				return nil
			}
			return err
		}
		go svr.handleConn(conn)
	}
}

// handleConn serves one control connection. The client's byte order is
// unknown until its first frame arrives: the magic word only matches under
// the order the client used, so the first header pins it for the rest of
// the connection, and responses are written in that same order. This is
// what makes the client's flip-and-retry heuristic converge.
func (svr *Server) handleConn(conn net.Conn) {
	svr.connMu.Lock()
	svr.conns[conn] = struct{}{}
	svr.connMu.Unlock()
	defer func() {
		svr.connMu.Lock()
		delete(svr.conns, conn)
		svr.connMu.Unlock()
		conn.Close()
	}()

	order := protocol.LittleEndian
	detected := false

	for {
		payload, ord, err := readRequest(conn, order, detected)
		if err != nil {
			if err != io.EOF {
				svr.log.Debug().Err(err).Msg("control connection closed")
			}
			return
		}
		order, detected = ord, true

		var call message.Call
		if err := json.Unmarshal(payload, &call); err != nil {
			svr.log.Debug().Err(err).Msg("malformed request payload")
			return
		}

		svr.wg.Add(1)
		resp := svr.handler(context.Background(), &call)
		svr.wg.Done()

		body, err := json.Marshal(resp)
		if err != nil {
			svr.log.Error().Err(err).Str("method", call.Name).Msg("response marshal failed")
			return
		}
		if err := protocol.WriteFrame(conn, body, order); err != nil {
			svr.log.Debug().Err(err).Msg("response write failed")
			return
		}
	}
}

// readRequest reads one frame, detecting the byte order from the first
// header when it is not yet pinned.
func readRequest(conn net.Conn, order protocol.ByteOrder, detected bool) ([]byte, protocol.ByteOrder, error) {
	header := make([]byte, protocol.HeaderSize)
	if _, err := io.ReadFull(conn, header); err != nil {
		return nil, order, err
	}

	if !detected {
		ord, err := protocol.DetectByteOrder(header)
		if err != nil {
			return nil, order, err
		}
		order = ord
	}

	magic, length, err := protocol.DecodeHeader(header, order)
	if err != nil {
		return nil, order, err
	}
	if magic != protocol.Magic {
		return nil, order, fmt.Errorf("%w: 0x%08X", protocol.ErrBadMagic, magic)
	}
	if length > protocol.MaxPayloadSize {
		return nil, order, fmt.Errorf("%w: %d bytes", protocol.ErrPayloadTooLarge, length)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(conn, payload); err != nil {
		return nil, order, err
	}
	return payload, order, nil
}

// dispatch is the innermost handler: service lookup + reflection call.
func (svr *Server) dispatch(_ context.Context, call *message.Call) message.Response {
	svcName, methodName := splitMethod(call.Name)
	svc, ok := svr.serviceMap[svcName]
	if !ok {
		return message.Errorf(-2, "unknown method: %s", call.Name)
	}
	return svc.call(methodName, call.Args)
}

func (svr *Server) acceptLogClients() {
	for {
		conn, err := svr.logListener.Accept()
		if err != nil {
			return
		}
		svr.feed.add(conn)
	}
}

// Shutdown closes both listeners, disconnects all clients, and waits up to
// timeout for in-flight requests to finish.
func (svr *Server) Shutdown(timeout time.Duration) error {
	// Set the flag BEFORE closing the listener so Serve recognizes the
	// Accept failure as intentional.
	svr.shutdown.Store(true)
	if svr.controlListener != nil {
		_ = svr.controlListener.Close()
	}
	if svr.logListener != nil {
		_ = svr.logListener.Close()
	}
	svr.feed.closeAll()

	svr.connMu.Lock()
	for conn := range svr.conns {
		_ = conn.Close()
	}
	svr.connMu.Unlock()

	done := make(chan struct{})
	go func() {
		svr.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("server: timeout waiting for in-flight requests")
	}
}
