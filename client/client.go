// Package client implements the synchronous control-channel client.
//
// The control channel is strictly half-duplex: one request frame goes out,
// exactly one response frame comes back, and nothing else may touch the
// socket in between. A single mutex serializes every call, so the client is
// safe to share across goroutines but never pipelines requests.
//
//	goroutine-1 ──Call("load")──┐
//	goroutine-2 ──Call("save")──┼──mutex──→ one TCP conn ──→ backend
//	goroutine-3 ──Call("info")──┘          (one frame pair at a time)
//
// The wire format does not negotiate byte order. The client starts from a
// configured guess (little-endian by default); when a call fails at the
// transport level (connection error, read timeout, bad magic) it tears the
// connection down, flips its stored byte order, and retries the whole call
// exactly once. A second consecutive failure is terminal for that call.
//
// Call never returns an error and never panics. Every outcome, including
// total communication failure, is a Response map with a "code" field, so UI
// event handlers need no error-handling boilerplate around network calls.
package client

import (
	"errors"
	"io"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/meng-cz/vulsim-rpc/logging"
	"github.com/meng-cz/vulsim-rpc/message"
	"github.com/meng-cz/vulsim-rpc/protocol"
)

const (
	// DefaultPort is the backend's control-channel port.
	DefaultPort = 17995
	// DefaultTimeout bounds connect and each blocking read/write.
	DefaultTimeout = 10 * time.Second
)

// Caller is the call surface the UI layer and supervisors depend on.
// ControlClient implements it; middleware.WrapCaller decorates it.
type Caller interface {
	Call(name string, args []message.Arg) message.Response
}

// Options configures a ControlClient.
type Options struct {
	Host      string
	Port      int           // 0 → DefaultPort
	Timeout   time.Duration // 0 → DefaultTimeout
	ByteOrder string        // "little" (default) or "big"; anything else is rejected
}

// ControlClient owns one persistent control-channel connection.
//
// The zero value is not usable; construct with New.
type ControlClient struct {
	addr    string
	timeout time.Duration
	log     zerolog.Logger

	mu    sync.Mutex // half-duplex: guards conn, order, and the send+receive pair
	conn  net.Conn
	order protocol.ByteOrder
}

// New validates the options and returns a disconnected client. The first
// Call (or an explicit Connect) dials the backend.
func New(opts Options) (*ControlClient, error) {
	order := protocol.LittleEndian
	if opts.ByteOrder != "" {
		var err error
		if order, err = protocol.ParseByteOrder(opts.ByteOrder); err != nil {
			return nil, err
		}
	}
	port := opts.Port
	if port == 0 {
		port = DefaultPort
	}
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	addr := net.JoinHostPort(opts.Host, strconv.Itoa(port))
	return &ControlClient{
		addr:    addr,
		timeout: timeout,
		order:   order,
		log:     logging.Component("control").With().Str("addr", addr).Logger(),
	}, nil
}

// Connect dials the backend if not already connected. Idempotent: returns
// true immediately when a connection is live. On any dial failure it returns
// false and leaves the client disconnected; it never returns an error.
func (c *ControlClient) Connect() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectLocked()
}

// Close tears down the connection. Idempotent and safe when disconnected.
func (c *ControlClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked()
}

// ByteOrder reports the client's current byte-order guess. It changes only
// inside the flip-and-retry path of Call.
func (c *ControlClient) ByteOrder() protocol.ByteOrder {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order
}

// Call invokes a backend method and blocks for its response.
//
// The returned Response is the backend's document verbatim when a frame
// made it back, including nonzero codes, which are backend-level errors
// for the caller to interpret, not transport faults. Transport faults are
// converted to code:-1 responses:
//
//	{"code":-1,"msg":"Cannot connect to server"}    dial failed
//	{"code":-1,"msg":"Communication error: ..."}    both attempts failed
//	{"code":-1,"msg":"Unexpected internal error"}   anything else
//
// One transport failure flips the stored byte order and retries the whole
// call once; the flip persists for the life of the client. Exactly one flip
// happens per Call, never one per read attempt.
func (c *ControlClient) Call(name string, args []message.Arg) message.Response {
	call, err := message.NewCall(name, args)
	if err != nil {
		c.log.Debug().Err(err).Str("method", name).Msg("arg normalization failed")
		return message.Errorf(-1, message.MsgInternalError)
	}
	body, err := call.Marshal()
	if err != nil {
		c.log.Debug().Err(err).Str("method", name).Msg("request marshal failed")
		return message.Errorf(-1, message.MsgInternalError)
	}

	// The lock spans both attempts: the flip mutates shared state, and no
	// other call may interleave its frames with ours.
	c.mu.Lock()
	defer c.mu.Unlock()

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		if c.conn == nil && !c.connectLocked() {
			return message.Errorf(-1, message.MsgCannotConnect)
		}

		resp, err := c.exchange(body)
		if err == nil {
			if resp.Code() != 0 {
				c.log.Debug().Str("method", name).Int("code", resp.Code()).Str("msg", resp.Msg()).
					Msg("backend returned error")
			}
			return resp
		}
		if !isTransportError(err) {
			c.log.Debug().Err(err).Str("method", name).Msg("unexpected call failure")
			return message.Errorf(-1, message.MsgInternalError)
		}

		lastErr = err
		c.closeLocked()
		if attempt == 0 {
			// First failure is treated as weak evidence of a wrong byte-order
			// guess rather than a permanent fault.
			c.order = c.order.Flip()
			c.log.Debug().Err(err).Str("method", name).Stringer("order", c.order).
				Msg("transport failure, flipping byte order and retrying")
		}
	}
	return message.Errorf(-1, "%s: %v", message.MsgCommunicationError, lastErr)
}

// exchange performs one framed request/response pair on the live connection.
// Caller holds c.mu.
func (c *ControlClient) exchange(body []byte) (message.Response, error) {
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.timeout)); err != nil {
		return nil, err
	}
	if err := protocol.WriteFrame(c.conn, body, c.order); err != nil {
		return nil, err
	}

	if err := c.conn.SetReadDeadline(time.Now().Add(c.timeout)); err != nil {
		return nil, err
	}
	payload, err := protocol.ReadFrame(c.conn, c.order)
	if err != nil {
		return nil, err
	}

	// A malformed JSON body is NOT a transport fault: the frame arrived
	// intact, so flipping the byte order cannot help.
	return message.ParseResponse(payload)
}

func (c *ControlClient) connectLocked() bool {
	if c.conn != nil {
		return true
	}
	d := net.Dialer{Timeout: c.timeout}
	conn, err := d.Dial("tcp", c.addr)
	if err != nil {
		c.log.Debug().Err(err).Msg("connect failed")
		return false
	}
	// The backend expects low-latency small frames.
	if tcp, ok := conn.(*net.TCPConn); ok {
		_ = tcp.SetNoDelay(true)
	}
	c.conn = conn
	c.log.Debug().Msg("connected")
	return true
}

func (c *ControlClient) closeLocked() {
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
}

// isTransportError classifies failures that justify the flip-and-retry:
// socket-level errors (timeouts, resets, EOF mid-frame) and framing faults
// (bad magic, oversized length claim). Everything else, such as malformed
// response JSON, is reported as an internal error without retry.
func isTransportError(err error) bool {
	if errors.Is(err, protocol.ErrBadMagic) || errors.Is(err, protocol.ErrPayloadTooLarge) {
		return true
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, net.ErrClosed) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
