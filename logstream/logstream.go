// Package logstream implements the asynchronous log-channel client.
//
// The log channel is the mirror image of the control channel: the backend
// pushes one LogEntry frame at a time and the client only ever reads. A
// single background goroutine owns the connection, decodes frames, and
// invokes the registered callback for each entry.
//
// Callbacks run on the receive goroutine. Callers that need UI-thread
// affinity must marshal onto their dispatcher themselves; this package does
// no such marshaling.
//
// Unlike the control client there is no byte-order self-correction and no
// retry: the connection is expected to stay up once established, and any
// failure is terminal for that run. Reconnecting is the job of an external
// supervisor (see the monitor package).
package logstream

import (
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/meng-cz/vulsim-rpc/logging"
	"github.com/meng-cz/vulsim-rpc/message"
	"github.com/meng-cz/vulsim-rpc/protocol"
)

const (
	// DefaultPort is the backend's log-channel port.
	DefaultPort = 17996
	// DefaultTimeout bounds connect and each blocking read.
	DefaultTimeout = 10 * time.Second
)

// Options configures a LogClient.
type Options struct {
	Host      string
	Port      int           // 0 → DefaultPort
	Timeout   time.Duration // 0 → DefaultTimeout
	ByteOrder string        // "little" (default) or "big"

	// OnLog receives each decoded entry, on the receive goroutine.
	OnLog func(message.LogEntry)
	// OnError receives the terminal error of a run. Not invoked when the
	// run ends because Stop was called.
	OnError func(error)
}

// LogClient maintains the long-lived, read-only log connection.
type LogClient struct {
	addr    string
	timeout time.Duration
	order   protocol.ByteOrder
	onLog   func(message.LogEntry)
	onError func(error)
	log     zerolog.Logger

	mu      sync.Mutex
	conn    net.Conn
	running bool
	done    chan struct{}
	stopped atomic.Bool
}

// New validates the options and returns a stopped client.
func New(opts Options) (*LogClient, error) {
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
	return &LogClient{
		addr:    addr,
		timeout: timeout,
		order:   order,
		onLog:   opts.OnLog,
		onError: opts.OnError,
		log:     logging.Component("logstream").With().Str("addr", addr).Logger(),
	}, nil
}

// Start spawns the receive loop. Idempotent: if a loop is already running,
// Start does nothing. After Stop, Start begins a fresh run.
func (c *LogClient) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return
	}
	c.running = true
	c.stopped.Store(false)
	c.done = make(chan struct{})
	go c.run(c.done)
}

// Stop signals the receive loop to terminate and force-closes the socket to
// unblock any in-progress read, then waits for the loop to exit. A clean
// stop never fires OnError. Idempotent.
func (c *LogClient) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.stopped.Store(true)
	if c.conn != nil {
		_ = c.conn.Close()
	}
	done := c.done
	c.mu.Unlock()

	<-done
}

func (c *LogClient) run(done chan struct{}) {
	// running must be cleared before done is closed: Stop returns as soon as
	// done closes, and a Start right after must see the run as finished.
	defer func() {
		c.mu.Lock()
		c.running = false
		c.conn = nil
		c.mu.Unlock()
		close(done)
	}()

	conn, err := c.connect()
	if err != nil {
		c.fail(err)
		return
	}

	for !c.stopped.Load() {
		_ = conn.SetReadDeadline(time.Now().Add(c.timeout))
		payload, err := protocol.ReadFrame(conn, c.order)
		if err != nil {
			c.fail(err)
			return
		}
		entry, err := message.ParseLogEntry(payload)
		if err != nil {
			c.fail(err)
			return
		}
		if c.onLog != nil {
			c.onLog(entry)
		}
	}
}

func (c *LogClient) connect() (net.Conn, error) {
	d := net.Dialer{Timeout: c.timeout}
	conn, err := d.Dial("tcp", c.addr)
	if err != nil {
		return nil, err
	}
	if tcp, ok := conn.(*net.TCPConn); ok {
		_ = tcp.SetNoDelay(true)
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	// Stop may have raced the dial; make sure a late connection dies too.
	if c.stopped.Load() {
		_ = conn.Close()
		return nil, net.ErrClosed
	}
	c.log.Debug().Msg("connected")
	return conn, nil
}

// fail reports a terminal run error unless the client was explicitly
// stopped, in which case the error is the induced socket close and silence
// is correct.
func (c *LogClient) fail(err error) {
	if c.stopped.Load() {
		return
	}
	c.log.Debug().Err(err).Msg("receive loop terminated")
	if c.onError != nil {
		c.onError(err)
	}
}
