// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package core wires the keyspace, the RCU domain and the value objects into
// an executable database: read commands run lock-free on any worker under an
// RCU guard, mutating commands are funneled through a bounded queue into the
// single writer loop.
package core

import (
	"strconv"
	"sync/atomic"

	"pkt.systems/pslog"

	"github.com/kzhao/qkv/internal/concurrency/rcu"
	"github.com/kzhao/qkv/internal/monitoring/metrics"
	"github.com/kzhao/qkv/internal/storage/keyspace"
	"github.com/kzhao/qkv/internal/storage/object"
)

// DefaultMaxValueBytes caps string values at 512 MiB.
const DefaultMaxValueBytes = 512 * 1024 * 1024

// DefaultQueueCapacity bounds the writer's command queue.
const DefaultQueueCapacity = 1024

// Config configures a DB.
type Config struct {
	// DatabaseID is the logical database number carried in keyspace
	// event notifications.
	DatabaseID int

	// MaxValueBytes caps the size a string value may grow to. Zero
	// selects DefaultMaxValueBytes.
	MaxValueBytes int64

	// QueueCapacity bounds the writer queue. Zero selects
	// DefaultQueueCapacity.
	QueueCapacity int

	// Logger receives writer lifecycle and anomaly logs. Nil selects a
	// no-op logger.
	Logger pslog.Logger

	// OnKeyEvent, when non-nil, is invoked from the writer thread after a
	// mutation is visible. It must not block.
	OnKeyEvent func(key, event string, db int)

	// Clock overrides the expiry clock (milliseconds). Nil selects wall
	// time. Tests use this to move time.
	Clock func() int64
}

// DB is one logical database plus the machinery to mutate it safely.
type DB struct {
	cfg    Config
	ks     *keyspace.Keyspace
	dom    *rcu.Domain
	shared *object.SharedIntegers
	bufs   *object.BufPool

	queue chan *Request
	dirty atomic.Uint64

	// stopping flips once the writer has begun its shutdown drain;
	// enqueuers counts submissions in flight so the drain can wait them
	// out instead of stranding a late request on the queue.
	stopping  atomic.Bool
	enqueuers atomic.Int64

	log pslog.Logger
}

// New creates a DB. The writer loop is not started; call Run (usually in its
// own goroutine) before submitting mutations.
func New(cfg Config) *DB {
	if cfg.MaxValueBytes <= 0 {
		cfg.MaxValueBytes = DefaultMaxValueBytes
	}
	if cfg.QueueCapacity <= 0 {
		cfg.QueueCapacity = DefaultQueueCapacity
	}
	log := cfg.Logger
	if log == nil {
		log = pslog.NoopLogger()
	}

	var opts []keyspace.Option
	if cfg.Clock != nil {
		opts = append(opts, keyspace.WithClock(cfg.Clock))
	}

	return &DB{
		cfg:    cfg,
		ks:     keyspace.New(cfg.DatabaseID, opts...),
		dom:    rcu.NewDomain(),
		shared: object.NewSharedIntegers(),
		bufs:   object.NewBufPool(),
		queue:  make(chan *Request, cfg.QueueCapacity),
		log:    log,
	}
}

// Keyspace exposes the underlying keyspace for read-path collaborators.
func (db *DB) Keyspace() *keyspace.Keyspace {
	return db.ks
}

// Domain exposes the RCU domain so workers can register readers.
func (db *DB) Domain() *rcu.Domain {
	return db.dom
}

// Dirty returns the number of applied mutations since startup.
func (db *DB) Dirty() uint64 {
	return db.dirty.Load()
}

// bump records one applied mutation in the dirty counter and its metric
// mirror.
func (db *DB) bump() {
	db.dirty.Add(1)
	metrics.MutationsTotal.Inc()
	metrics.KeyspaceSize.WithLabelValues(strconv.Itoa(db.ks.ID())).
		Set(float64(db.ks.Len()))
}

func (db *DB) notify(key, event string) {
	if db.cfg.OnKeyEvent != nil {
		db.cfg.OnKeyEvent(key, event, db.ks.ID())
	}
}

// checkLength verifies that a value of size n is storable.
func (db *DB) checkLength(n int64) error {
	if n > db.cfg.MaxValueBytes {
		return ErrLengthExceeded
	}
	return nil
}
