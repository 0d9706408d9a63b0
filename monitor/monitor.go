// Package monitor supervises a control-channel connection.
//
// The control client itself retries at most once per call and never
// reconnects on its own schedule; keeping the link alive over time is this
// package's job. The monitor polls the backend's "info" method at a fixed
// interval, reports connectivity transitions and the currently open project
// through callbacks, and slows its polling down while the backend stays
// unreachable.
//
// Callbacks run on the monitor's goroutine. UI layers marshal onto their
// own dispatcher, exactly as with the log-stream callbacks.
package monitor

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/meng-cz/vulsim-rpc/client"
	"github.com/meng-cz/vulsim-rpc/logging"
	"github.com/meng-cz/vulsim-rpc/message"
)

// DefaultInterval is the healthy-state poll period.
const DefaultInterval = 5 * time.Second

// Options configures a Monitor.
type Options struct {
	Interval time.Duration // 0 → DefaultInterval
	Backoff  BackoffConfig // zero value → 3 failures grace, ×2, 30s cap

	// OnStatus is invoked after every poll with the connectivity verdict and
	// a short detail string. Any well-formed backend response counts as
	// connected whatever its code; only transport-level failures do not.
	OnStatus func(connected bool, detail string)
	// OnProject receives the open project name on each healthy poll, or ""
	// when no project is open (or the backend reported a non-zero code).
	OnProject func(name string)
}

// Monitor polls a Caller in the background. Create with New, drive with
// Start/Stop.
type Monitor struct {
	caller   client.Caller
	interval time.Duration
	backoff  BackoffConfig
	onStatus func(bool, string)
	onProj   func(string)
	log      zerolog.Logger

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	done    chan struct{}
}

// New builds a monitor around an existing control client (or any Caller;
// the poll traffic serializes with UI calls through the client's own
// half-duplex lock).
func New(caller client.Caller, opts Options) *Monitor {
	interval := opts.Interval
	if interval == 0 {
		interval = DefaultInterval
	}
	backoff := opts.Backoff
	if backoff.Multiplier == 0 {
		backoff = BackoffConfig{Grace: 3, Multiplier: 2.0, MaxDelay: 30 * time.Second}
	}
	return &Monitor{
		caller:   caller,
		interval: interval,
		backoff:  backoff,
		onStatus: opts.OnStatus,
		onProj:   opts.OnProject,
		log:      logging.Component("monitor"),
	}
}

// Start begins polling. Idempotent while running.
func (m *Monitor) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return
	}
	m.running = true
	m.stop = make(chan struct{})
	m.done = make(chan struct{})
	go m.run(m.stop, m.done)
}

// Stop halts polling and waits for the loop to exit. Idempotent.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	close(m.stop)
	done := m.done
	m.mu.Unlock()

	<-done
}

func (m *Monitor) run(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	failCount := 0
	for {
		resp := m.caller.Call("info", nil)
		if resp.IsTransportFailure() {
			failCount++
			m.log.Debug().Int("failures", failCount).Str("msg", resp.Msg()).Msg("backend unreachable")
			if m.onStatus != nil {
				m.onStatus(false, resp.Msg())
			}
		} else {
			failCount = 0
			if m.onStatus != nil {
				m.onStatus(true, "connected")
			}
			m.reportProject(resp)
		}

		select {
		case <-stop:
			return
		case <-time.After(nextDelay(m.backoff, m.interval, failCount)):
		}
	}
}

// reportProject extracts results.name from a healthy info response. Codes
// other than 0 mean "connected, nothing open" (e.g. the backend's
// no-open-project code), reported as an empty name.
func (m *Monitor) reportProject(resp message.Response) {
	if m.onProj == nil {
		return
	}
	if resp.Code() != 0 {
		m.onProj("")
		return
	}
	results, _ := resp["results"].(map[string]any)
	name, _ := results["name"].(string)
	m.onProj(name)
}
