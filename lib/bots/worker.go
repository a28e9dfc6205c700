package bots

import (
	"time"

	"github.com/lni/dragonboat/v4/logger"
	"github.com/ozonedb/ozone/lib/comm"
	"github.com/ozonedb/ozone/lib/dberr"
	"github.com/ozonedb/ozone/lib/id"
	"github.com/ozonedb/ozone/lib/scheme"
	"github.com/ozonedb/ozone/lib/zone"
)

var Logger = logger.GetLogger("bots")

// WorkerInitArgs carries everything a worker bot needs to run.
type WorkerInitArgs struct {
	Zone    int
	Worker  int
	Dir     string // Zone slice directory, exclusively owned by this bot.
	Schemes *scheme.RestSchemes
	Box     *comm.Mailbox
	Rsp     *comm.Responder
	ReadyCh chan<- *comm.Msg // Receives one CtlReady message per bot.
}

// worker is a bot goroutine owning one zone slice. It consumes its mailbox
// strictly in order and replies through the responder.
type worker struct {
	args WorkerInitArgs
	h    *Handle
	dir  *zone.Directory

	draining bool
}

// run is the bot's main loop. It opens the zone slice, announces
// readiness exactly once, then serves requests until the mailbox closes or
// the sentinel trips.
func (w *worker) run() {
	defer close(w.h.done)
	defer w.h.setState(StateTerminated)

	ready := comm.NewControl(comm.CtlReady, w.h.bid)

	d, err := zone.Open(w.args.Dir, w.args.Schemes.KeyHash)
	if err != nil {
		w.h.sentinel.Trip(err)
		ready.Res = &comm.Result{Err: err}
		w.args.ReadyCh <- ready
		w.args.Box.Close()
		w.failRemaining()
		return
	}
	w.dir = d
	w.h.dir.Store(d)
	defer d.Close()

	w.args.ReadyCh <- ready
	w.h.setState(StateIdle)
	Logger.Debugf("Bot %s serving zone %d worker %d at %s", w.h.bid, w.args.Zone, w.args.Worker, w.args.Dir)

	for m := range w.args.Box.Recv() {
		switch m.Kind {
		case comm.KindControl:
			if m.Ctl == comm.CtlFinish && !w.draining {
				w.draining = true
				w.h.setState(StateDraining)
				// Closing the mailbox stops new pushes; everything
				// already queued is still delivered before Recv closes.
				w.args.Box.Close()
			}

		case comm.KindRequest:
			if w.h.sentinel.Tripped() {
				Logger.Errorf("Bot %s stopping after fatal error: %v", w.h.bid, w.h.sentinel.Err())
				err := dberr.Wrap(dberr.CodeUnhealthy, w.h.sentinel.Err(), "bot %s is down", w.h.bid)
				w.args.Rsp.Resolve(m.Response(w.h.bid, &comm.Result{Err: err}))
				w.args.Box.Close()
				w.failRemaining()
				return
			}
			if !w.draining {
				w.h.setState(StateProcessing)
			}
			res := w.handle(m.Req)
			w.args.Rsp.Resolve(m.Response(w.h.bid, res))

			if w.h.sentinel.Tripped() {
				Logger.Errorf("Bot %s stopping after fatal error: %v", w.h.bid, w.h.sentinel.Err())
				w.args.Box.Close()
				w.failRemaining()
				return
			}
			if !w.draining {
				w.h.setState(StateIdle)
			}

		default:
			Logger.Warningf("Bot %s dropping message of kind %s", w.h.bid, m.Kind)
		}
	}
}

// failRemaining drains the closed mailbox and answers every queued request
// with the sentinel's fatal error, so no caller is left waiting.
func (w *worker) failRemaining() {
	cause := w.h.sentinel.Err()
	for m := range w.args.Box.Recv() {
		if m.Kind != comm.KindRequest {
			continue
		}
		err := dberr.Wrap(dberr.CodeUnhealthy, cause, "bot %s is down", w.h.bid)
		w.args.Rsp.Resolve(m.Response(w.h.bid, &comm.Result{Err: err}))
	}
}

// handle executes one store operation. Storage failures trip the sentinel;
// all other errors only fail the single request.
func (w *worker) handle(req *comm.Request) *comm.Result {
	switch req.Op {
	case comm.OpGet:
		return w.get(req)
	case comm.OpHas:
		return w.has(req)
	case comm.OpPut:
		return w.put(req)
	case comm.OpDelete:
		return w.delete(req)
	default:
		return &comm.Result{Err: dberr.New(dberr.CodeConfig, "unknown operation %d", req.Op)}
	}
}

func (w *worker) get(req *comm.Request) *comm.Result {
	rec, found, err := w.dir.Get(req.Key)
	if err != nil {
		return &comm.Result{Err: w.fatal(err)}
	}
	if !found {
		return &comm.Result{Found: false}
	}

	plain, err := w.args.Schemes.Decode(rec.Value)
	if err != nil {
		// Decoding failures surface as integrity errors, the bot itself
		// stays healthy.
		return &comm.Result{Err: err}
	}
	rec.Value = plain
	return &comm.Result{Rec: rec, Found: true}
}

func (w *worker) has(req *comm.Request) *comm.Result {
	_, found := w.dir.Locate(req.Key)
	return &comm.Result{Found: found}
}

func (w *worker) put(req *comm.Request) *comm.Result {
	if w.draining {
		return &comm.Result{Err: dberr.New(dberr.CodeShuttingDown, "bot %s is draining, put rejected", w.h.bid)}
	}

	now := time.Now().UnixNano()
	meta := zone.Meta{Created: now, Modified: now, User: req.User}

	// An overwrite keeps the original creation timestamp.
	if loc, ok := w.dir.Locate(req.Key); ok {
		old, err := w.dir.ReadMeta(loc)
		if err != nil {
			return &comm.Result{Err: w.fatal(err)}
		}
		meta.Created = old.Created
	}

	encoded, err := w.args.Schemes.Encode(req.Value)
	if err != nil {
		return &comm.Result{Err: err}
	}
	if _, err := w.dir.Append(req.Key, encoded, meta); err != nil {
		return &comm.Result{Err: w.fatal(err)}
	}
	return &comm.Result{Found: true}
}

func (w *worker) delete(req *comm.Request) *comm.Result {
	if w.draining {
		return &comm.Result{Err: dberr.New(dberr.CodeShuttingDown, "bot %s is draining, delete rejected", w.h.bid)}
	}

	deleted, err := w.dir.Delete(req.Key, req.User)
	if err != nil {
		return &comm.Result{Err: w.fatal(err)}
	}
	return &comm.Result{Found: deleted}
}

// fatal trips the sentinel for storage failures and passes err through.
func (w *worker) fatal(err error) error {
	if dberr.HasCode(err, dberr.CodeIO) {
		w.h.sentinel.Trip(err)
	}
	return err
}

// Compact runs a compaction on the bot's zone slice. Exposed through the
// handle rather than the mailbox so it does not queue behind pending
// writes; the directory serializes it against them internally.
func (h *Handle) Compact() error {
	d := h.dir.Load()
	if d == nil {
		return dberr.New(dberr.CodeUnhealthy, "bot %s has no open zone slice", h.bid)
	}
	if err := d.Compact(); err != nil {
		// An IO failure here leaves the slice in the same state as a
		// failed append: the bot must stop accepting writes.
		if dberr.HasCode(err, dberr.CodeIO) {
			h.sentinel.Trip(err)
		}
		return err
	}
	return nil
}

// Stats returns the bot's zone slice statistics.
func (h *Handle) Stats() (zone.Stats, error) {
	d := h.dir.Load()
	if d == nil {
		return zone.Stats{}, dberr.New(dberr.CodeUnhealthy, "bot %s has no open zone slice", h.bid)
	}
	return d.Stats(), nil
}

// spawnWorker starts a bot goroutine and returns its handle.
func spawnWorker(args WorkerInitArgs) *Handle {
	h := &Handle{
		bid:      id.NewBid(),
		zone:     args.Zone,
		worker:   args.Worker,
		box:      args.Box,
		sentinel: NewSentinel(),
		done:     make(chan struct{}),
	}
	h.setState(StateStarting)

	w := &worker{args: args, h: h}
	go func() {
		w.run()
	}()
	return h
}
