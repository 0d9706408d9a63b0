package server

import (
	"encoding/json"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/meng-cz/vulsim-rpc/message"
	"github.com/meng-cz/vulsim-rpc/protocol"
)

// defaultLogWriteTimeout bounds each per-client write in publish. A client
// that stops draining its socket hits the deadline and is dropped instead
// of wedging every publisher behind the feed mutex.
const defaultLogWriteTimeout = 5 * time.Second

// logFeed broadcasts log frames to connected log-channel clients.
//
// Log clients never send anything, so their byte order cannot be detected
// from traffic; the feed writes in the order configured on the server side
// (the backend's native order, little-endian here). Clients must be
// configured with the matching order; the log channel has no flip heuristic.
type logFeed struct {
	mu           sync.Mutex
	conns        map[net.Conn]struct{}
	order        protocol.ByteOrder
	writeTimeout time.Duration
}

func newLogFeed() *logFeed {
	return &logFeed{
		conns:        make(map[net.Conn]struct{}),
		order:        protocol.LittleEndian,
		writeTimeout: defaultLogWriteTimeout,
	}
}

func (f *logFeed) add(conn net.Conn) {
	if tcp, ok := conn.(*net.TCPConn); ok {
		_ = tcp.SetNoDelay(true)
	}
	f.mu.Lock()
	f.conns[conn] = struct{}{}
	f.mu.Unlock()
}

// publish pushes one entry to every client. A client whose write fails or
// times out is dropped; there is no acknowledgement and no redelivery. The
// write deadline keeps one stalled client from blocking the feed (and with
// it every handler that publishes) indefinitely.
func (f *logFeed) publish(entry message.LogEntry, log zerolog.Logger) {
	body, err := json.Marshal(entry)
	if err != nil {
		log.Error().Err(err).Msg("log entry marshal failed")
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for conn := range f.conns {
		_ = conn.SetWriteDeadline(time.Now().Add(f.writeTimeout))
		if err := protocol.WriteFrame(conn, body, f.order); err != nil {
			log.Debug().Err(err).Msg("dropping log client")
			_ = conn.Close()
			delete(f.conns, conn)
		}
	}
}

func (f *logFeed) closeAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for conn := range f.conns {
		_ = conn.Close()
		delete(f.conns, conn)
	}
}
