package ozone

import (
	"fmt"
	"path/filepath"
	"sync/atomic"

	"github.com/VictoriaMetrics/metrics"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/ozonedb/ozone/lib/bots"
	"github.com/ozonedb/ozone/lib/comm"
	"github.com/ozonedb/ozone/lib/dberr"
	"github.com/ozonedb/ozone/lib/id"
	"github.com/ozonedb/ozone/lib/logging"
	"github.com/ozonedb/ozone/lib/scheme"
)

var Logger = logger.GetLogger("ozone")

// --------------------------------------------------------------------------
// DB
// --------------------------------------------------------------------------

// DB is the embedded database handle. It owns one bot pool per zone and
// routes every operation by key hash, so all operations on one key hit the
// same bot in submission order.
//
// Thread-safety: safe for concurrent use by any number of goroutines.
type DB struct {
	cfg     Config
	schemes *scheme.RestSchemes
	rsp     *comm.Responder
	sup     *bots.Supervisor
	pools   []*comm.ChannelPool // One pool per zone.
	closed  atomic.Bool

	opsGet    *metrics.Counter
	opsPut    *metrics.Counter
	opsDelete *metrics.Counter
	opsHas    *metrics.Counter
	opErrors  *metrics.Counter
}

// Open starts the database rooted at cfg.Dir: one worker bot per zone
// slice, each with an exclusive subdirectory. Open blocks until every bot
// has opened its slice and announced readiness.
func Open(cfg Config) (*DB, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.LogLevel != "" {
		if err := logging.InitLoggers(cfg.LogLevel); err != nil {
			return nil, dberr.Wrap(dberr.CodeConfig, err, "invalid log level")
		}
	}
	schemes, err := cfg.buildSchemes()
	if err != nil {
		return nil, err
	}

	rsp := comm.NewResponder()
	db := &DB{
		cfg:     cfg,
		schemes: schemes,
		rsp:     rsp,
		sup:     bots.NewSupervisor(rsp, cfg.Zones*cfg.WorkersPerZone),
		pools:   make([]*comm.ChannelPool, cfg.Zones),

		opsGet:    metrics.GetOrCreateCounter(`ozone_ops_total{op="get"}`),
		opsPut:    metrics.GetOrCreateCounter(`ozone_ops_total{op="put"}`),
		opsDelete: metrics.GetOrCreateCounter(`ozone_ops_total{op="delete"}`),
		opsHas:    metrics.GetOrCreateCounter(`ozone_ops_total{op="has"}`),
		opErrors:  metrics.GetOrCreateCounter(`ozone_op_errors_total`),
	}

	for z := 0; z < cfg.Zones; z++ {
		pool, err := comm.NewChannelPool(cfg.WorkersPerZone, comm.ByKey)
		if err != nil {
			return nil, err
		}
		db.pools[z] = pool
		for w := 0; w < cfg.WorkersPerZone; w++ {
			dir := filepath.Join(cfg.Dir, fmt.Sprintf("z%03d", z), fmt.Sprintf("w%02d", w))
			db.sup.Spawn(z, w, dir, schemes, pool.Box(w))
		}
	}

	if err := db.sup.AwaitReady(cfg.ShutdownTimeout); err != nil {
		// Partial startup: tear down whatever did come up.
		db.sup.FinishAll()
		db.sup.JoinAll(cfg.ShutdownTimeout)
		return nil, err
	}

	Logger.Infof("Database open at %s: %d zones x %d workers", cfg.Dir, cfg.Zones, cfg.WorkersPerZone)
	return db, nil
}

// zoneFor maps a key to its owning zone. Depends only on the key, the
// configured key hash scheme and the zone count.
func (db *DB) zoneFor(key []byte) int {
	return int(db.schemes.KeyHash(key) % uint64(db.cfg.Zones))
}

// request is the round trip every operation takes: register, route, push,
// await. The reply's error, if any, is returned as the operation's error.
func (db *DB) request(req *comm.Request) (*comm.Result, error) {
	if db.closed.Load() {
		return nil, dberr.New(dberr.CodeShuttingDown, "database is closed")
	}

	z := db.zoneFor(req.Key)
	m := comm.NewRequest(req)
	ch := db.rsp.Register(m.Ticket)

	i, ok := db.pools[z].Send(req.Key, m)
	if !ok {
		db.rsp.Cancel(m.Ticket)
		db.opErrors.Inc()
		h := db.handleFor(z, i)
		if h != nil && h.Sentinel().Tripped() {
			return nil, dberr.Wrap(dberr.CodeUnhealthy, h.Sentinel().Err(),
				"zone %d worker %d is down", z, i)
		}
		return nil, dberr.New(dberr.CodeUnhealthy, "zone %d worker %d is not accepting requests", z, i)
	}

	reply, err := db.rsp.Await(m.Ticket, ch, db.cfg.RequestTimeout)
	if err != nil {
		db.opErrors.Inc()
		return nil, err
	}
	if reply.Res.Err != nil {
		db.opErrors.Inc()
		return nil, reply.Res.Err
	}
	return reply.Res, nil
}

func (db *DB) handleFor(zoneIdx, workerIdx int) *bots.Handle {
	for _, h := range db.sup.Handles() {
		if h.Zone() == zoneIdx && h.Worker() == workerIdx {
			return h
		}
	}
	return nil
}

// --------------------------------------------------------------------------
// Operations
// --------------------------------------------------------------------------

// Put stores value under key, overwriting any previous value.
func (db *DB) Put(key, value []byte) error {
	return db.PutAs(key, value, id.Uid{})
}

// PutAs stores value under key and records user as the writer.
func (db *DB) PutAs(key, value []byte, user id.Uid) error {
	db.opsPut.Inc()
	_, err := db.request(&comm.Request{Op: comm.OpPut, Key: key, Value: value, User: user})
	return err
}

// Get returns the value stored under key. A missing key is a CodeNotFound
// error, a damaged record a CodeIntegrity error.
func (db *DB) Get(key []byte) ([]byte, error) {
	rec, err := db.GetRecord(key)
	if err != nil {
		return nil, err
	}
	return rec.Value, nil
}

// GetRecord returns the stored record including its metadata.
func (db *DB) GetRecord(key []byte) (*Record, error) {
	db.opsGet.Inc()
	res, err := db.request(&comm.Request{Op: comm.OpGet, Key: key})
	if err != nil {
		return nil, err
	}
	if !res.Found {
		return nil, dberr.New(dberr.CodeNotFound, "key %q not found", key)
	}
	return &Record{
		Key:      res.Rec.Key,
		Value:    res.Rec.Value,
		Created:  res.Rec.Meta.Created,
		Modified: res.Rec.Meta.Modified,
		User:     res.Rec.Meta.User,
	}, nil
}

// Has reports whether key has a live record, without reading or decoding
// the value.
func (db *DB) Has(key []byte) (bool, error) {
	db.opsHas.Inc()
	res, err := db.request(&comm.Request{Op: comm.OpHas, Key: key})
	if err != nil {
		return false, err
	}
	return res.Found, nil
}

// Delete removes key. Deleting a missing key is not an error.
func (db *DB) Delete(key []byte) error {
	return db.DeleteAs(key, id.Uid{})
}

// DeleteAs removes key and records user as the deleter.
func (db *DB) DeleteAs(key []byte, user id.Uid) error {
	db.opsDelete.Inc()
	_, err := db.request(&comm.Request{Op: comm.OpDelete, Key: key, User: user})
	return err
}

// Record is a stored entry as seen by callers.
type Record struct {
	Key      []byte
	Value    []byte
	Created  int64 // Unix nanoseconds of first write.
	Modified int64 // Unix nanoseconds of last write.
	User     id.Uid
}

// --------------------------------------------------------------------------
// Maintenance
// --------------------------------------------------------------------------

// Compact rewrites every zone slice, dropping overwritten values and
// tombstones. Each slice is compacted independently; a failure stops the
// sweep and is returned.
func (db *DB) Compact() error {
	if db.closed.Load() {
		return dberr.New(dberr.CodeShuttingDown, "database is closed")
	}
	for _, h := range db.sup.Handles() {
		if err := h.Compact(); err != nil {
			return dberr.Wrap(dberr.CodeIO, err, "compaction of zone %d worker %d failed", h.Zone(), h.Worker())
		}
	}
	return nil
}

// SliceInfo describes one zone slice.
type SliceInfo struct {
	Zone      int    `json:"zone"`
	Worker    int    `json:"worker"`
	Gen       uint32 `json:"generation"`
	Live      int    `json:"live_records"`
	Garbage   int    `json:"garbage_records"`
	DataBytes int64  `json:"data_bytes"`
	State     string `json:"state"`
	Healthy   bool   `json:"healthy"`
}

// Info is an aggregated snapshot of the database.
type Info struct {
	Dir            string      `json:"dir"`
	Zones          int         `json:"zones"`
	WorkersPerZone int         `json:"workers_per_zone"`
	LiveRecords    int         `json:"live_records"`
	GarbageRecords int         `json:"garbage_records"`
	DataBytes      int64       `json:"data_bytes"`
	Healthy        bool        `json:"healthy"`
	Slices         []SliceInfo `json:"slices"`
}

// Info returns a snapshot over all zone slices. Counters are per slice
// and only consistent within a slice, not across them.
func (db *DB) Info() (Info, error) {
	info := Info{
		Dir:            db.cfg.Dir,
		Zones:          db.cfg.Zones,
		WorkersPerZone: db.cfg.WorkersPerZone,
		Healthy:        db.Healthy(),
	}
	for _, h := range db.sup.Handles() {
		st, err := h.Stats()
		if err != nil {
			return Info{}, err
		}
		info.LiveRecords += st.Live
		info.GarbageRecords += st.Garbage
		info.DataBytes += st.DataBytes
		info.Slices = append(info.Slices, SliceInfo{
			Zone:      h.Zone(),
			Worker:    h.Worker(),
			Gen:       st.Gen,
			Live:      st.Live,
			Garbage:   st.Garbage,
			DataBytes: st.DataBytes,
			State:     h.State().String(),
			Healthy:   h.Healthy(),
		})
	}
	return info, nil
}

// Healthy reports whether every bot can still accept work.
func (db *DB) Healthy() bool {
	return !db.closed.Load() && db.sup.Healthy()
}

// Close drains every bot and waits for termination. Work already queued
// is completed, new work is rejected. Idempotent.
func (db *DB) Close() error {
	if !db.closed.CompareAndSwap(false, true) {
		return nil
	}
	Logger.Infof("Closing database at %s", db.cfg.Dir)
	db.sup.FinishAll()
	return db.sup.JoinAll(db.cfg.ShutdownTimeout)
}
