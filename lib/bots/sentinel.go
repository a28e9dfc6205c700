package bots

import (
	"sync/atomic"
	"time"

	"github.com/ozonedb/ozone/lib/comm"
	"github.com/ozonedb/ozone/lib/dberr"
	"github.com/ozonedb/ozone/lib/id"
	"github.com/ozonedb/ozone/lib/zone"
)

// --------------------------------------------------------------------------
// Sentinel
// --------------------------------------------------------------------------

// tripRecord captures the first fatal error of a bot.
type tripRecord struct {
	err error
	at  time.Time
}

// Sentinel latches the first fatal error a bot encounters. Once tripped it
// never resets; the bot is considered unhealthy for the rest of the
// process lifetime.
//
// Thread-safety: safe for concurrent use.
type Sentinel struct {
	record atomic.Pointer[tripRecord]
}

// NewSentinel creates an untripped sentinel.
func NewSentinel() *Sentinel {
	return &Sentinel{}
}

// Trip latches err as the fatal error. Only the first trip wins; later
// calls are ignored. Returns whether this call did the tripping.
func (s *Sentinel) Trip(err error) bool {
	if err == nil {
		return false
	}
	return s.record.CompareAndSwap(nil, &tripRecord{err: err, at: time.Now()})
}

// Tripped reports whether a fatal error has been latched.
func (s *Sentinel) Tripped() bool {
	return s.record.Load() != nil
}

// Err returns the latched fatal error, or nil.
func (s *Sentinel) Err() error {
	if r := s.record.Load(); r != nil {
		return r.err
	}
	return nil
}

// TrippedAt returns when the sentinel tripped, or the zero time.
func (s *Sentinel) TrippedAt() time.Time {
	if r := s.record.Load(); r != nil {
		return r.at
	}
	return time.Time{}
}

// --------------------------------------------------------------------------
// Bot State
// --------------------------------------------------------------------------

// State is the coarse lifecycle state of a bot, readable from outside.
type State uint32

const (
	StateStarting State = iota
	StateIdle
	StateProcessing
	StateDraining
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateIdle:
		return "idle"
	case StateProcessing:
		return "processing"
	case StateDraining:
		return "draining"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// --------------------------------------------------------------------------
// Handle
// --------------------------------------------------------------------------

// Handle is the outside view of a running bot: push work, signal finish,
// observe health, join termination. The bot goroutine itself is never
// exposed.
type Handle struct {
	bid      id.Bid
	zone     int
	worker   int
	box      *comm.Mailbox
	sentinel *Sentinel
	state    atomic.Uint32
	done     chan struct{}

	// Set by the bot once its zone slice is open. The directory's own
	// lock serializes outside calls against the bot's request handling.
	dir atomic.Pointer[zone.Directory]
}

// Bid returns the bot's identifier.
func (h *Handle) Bid() id.Bid { return h.bid }

// Zone returns the zone index the bot serves.
func (h *Handle) Zone() int { return h.zone }

// Worker returns the bot's index within its zone pool.
func (h *Handle) Worker() int { return h.worker }

// Sentinel returns the bot's fatal-error latch.
func (h *Handle) Sentinel() *Sentinel { return h.sentinel }

// State returns the bot's current lifecycle state.
func (h *Handle) State() State {
	return State(h.state.Load())
}

func (h *Handle) setState(s State) {
	h.state.Store(uint32(s))
}

// Healthy reports whether the bot can still accept work.
func (h *Handle) Healthy() bool {
	return !h.sentinel.Tripped() && h.State() != StateTerminated
}

// Push enqueues a message for the bot. Returns false once the bot's
// mailbox no longer accepts work.
func (h *Handle) Push(m *comm.Msg) bool {
	return h.box.Push(m)
}

// SignalFinish asks the bot to drain its mailbox and terminate. Work
// already queued is still processed. Idempotent; returns false if the bot
// no longer accepts the signal.
func (h *Handle) SignalFinish() bool {
	return h.box.Push(comm.NewControl(comm.CtlFinish, h.bid))
}

// Join blocks until the bot goroutine has terminated or the timeout
// expires.
func (h *Handle) Join(timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-h.done:
		return nil
	case <-timer.C:
		return dberr.New(dberr.CodeTimeout, "bot %s (zone %d, worker %d) did not terminate within %s",
			h.bid, h.zone, h.worker, timeout)
	}
}

// Done returns a channel closed when the bot goroutine has terminated.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}
