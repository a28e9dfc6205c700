package comm

import (
	"time"

	"github.com/ozonedb/ozone/lib/dberr"
	"github.com/ozonedb/ozone/lib/id"
	"github.com/puzpuzpuz/xsync/v3"
)

// Responder correlates response messages back to the goroutines waiting
// for them, keyed by ticket. Callers register before sending the request,
// bots resolve with the reply, and Await bounds the wait time.
//
// Thread-safety: safe for concurrent use by any number of callers and bots.
type Responder struct {
	waiting *xsync.MapOf[id.Ticket, chan *Msg]
}

// NewResponder creates an empty responder.
func NewResponder() *Responder {
	return &Responder{
		waiting: xsync.NewMapOf[id.Ticket, chan *Msg](),
	}
}

// Register announces interest in the response for a ticket and returns the
// channel the reply will arrive on. Must be called before the request is
// pushed, otherwise the reply can race the registration and get dropped.
func (r *Responder) Register(t id.Ticket) <-chan *Msg {
	ch := make(chan *Msg, 1)
	r.waiting.Store(t, ch)
	return ch
}

// Resolve delivers a response to the registered waiter, if any. A reply
// for an unknown or already resolved ticket is dropped and false is
// returned. Each ticket is resolved at most once.
func (r *Responder) Resolve(m *Msg) bool {
	ch, ok := r.waiting.LoadAndDelete(m.Ticket)
	if !ok {
		return false
	}
	ch <- m // buffered, never blocks
	return true
}

// Cancel withdraws the registration for a ticket. A reply arriving after
// the cancel is dropped by Resolve.
func (r *Responder) Cancel(t id.Ticket) {
	r.waiting.Delete(t)
}

// Await blocks until the reply for t arrives on ch or the timeout expires.
// On timeout the registration is cancelled and a CodeTimeout error is
// returned; a reply that raced the cancellation is still accepted.
func (r *Responder) Await(t id.Ticket, ch <-chan *Msg, timeout time.Duration) (*Msg, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case m := <-ch:
		return m, nil
	case <-timer.C:
		r.Cancel(t)
		select {
		case m := <-ch:
			return m, nil
		default:
		}
		return nil, dberr.New(dberr.CodeTimeout, "no response for ticket %s within %s", t, timeout)
	}
}

// Outstanding counts the currently registered tickets.
func (r *Responder) Outstanding() int {
	return r.waiting.Size()
}
