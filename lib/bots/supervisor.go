package bots

import (
	"time"

	"github.com/ozonedb/ozone/lib/comm"
	"github.com/ozonedb/ozone/lib/dberr"
	"github.com/ozonedb/ozone/lib/scheme"
)

// Supervisor spawns worker bots and tracks their lifecycle. It collects
// the one-time readiness announcements, broadcasts the finish signal and
// joins terminated bots.
//
// Thread-safety: Spawn and AwaitReady belong to the startup phase and are
// called from one goroutine; the remaining methods are safe concurrently.
type Supervisor struct {
	handles []*Handle
	readyCh chan *comm.Msg
	rsp     *comm.Responder
}

// NewSupervisor creates a supervisor expecting up to capacity bots.
func NewSupervisor(rsp *comm.Responder, capacity int) *Supervisor {
	return &Supervisor{
		handles: make([]*Handle, 0, capacity),
		readyCh: make(chan *comm.Msg, capacity),
		rsp:     rsp,
	}
}

// Spawn starts one worker bot for the given zone slice and returns its
// handle. The bot announces readiness asynchronously; collect it with
// AwaitReady.
func (s *Supervisor) Spawn(zoneIdx, workerIdx int, dir string, schemes *scheme.RestSchemes, box *comm.Mailbox) *Handle {
	h := spawnWorker(WorkerInitArgs{
		Zone:    zoneIdx,
		Worker:  workerIdx,
		Dir:     dir,
		Schemes: schemes,
		Box:     box,
		Rsp:     s.rsp,
		ReadyCh: s.readyCh,
	})
	s.handles = append(s.handles, h)
	return h
}

// AwaitReady blocks until every spawned bot has announced readiness. A bot
// that failed to open its zone slice turns the whole startup into an
// error; a missing announcement within the timeout does too.
func (s *Supervisor) AwaitReady(timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for pending := len(s.handles); pending > 0; pending-- {
		select {
		case m := <-s.readyCh:
			if m.Res != nil && m.Res.Err != nil {
				return dberr.Wrap(dberr.CodeUnhealthy, m.Res.Err, "bot %s failed to start", m.From)
			}
		case <-timer.C:
			return dberr.New(dberr.CodeTimeout, "%d of %d bots not ready within %s",
				pending, len(s.handles), timeout)
		}
	}
	return nil
}

// Handles returns all spawned bot handles.
func (s *Supervisor) Handles() []*Handle {
	return s.handles
}

// Healthy reports whether no bot has tripped its sentinel.
func (s *Supervisor) Healthy() bool {
	for _, h := range s.handles {
		if h.sentinel.Tripped() {
			return false
		}
	}
	return true
}

// FinishAll signals every bot to drain and terminate.
func (s *Supervisor) FinishAll() {
	for _, h := range s.handles {
		h.SignalFinish()
	}
}

// JoinAll waits for every bot to terminate within the shared timeout.
// The first join failure is returned, remaining bots are still joined.
func (s *Supervisor) JoinAll(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	var firstErr error
	for _, h := range s.handles {
		remaining := time.Until(deadline)
		if remaining < 0 {
			remaining = 0
		}
		if err := h.Join(remaining); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
