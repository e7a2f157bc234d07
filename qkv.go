// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package qkv provides an embeddable in-memory key-value store with a
// single-writer, many-reader concurrency design.
//
// All structural mutation flows through one writer goroutine; readers never
// take a lock and never block the writer. Safe memory reclamation uses
// epoch-based grace periods: the writer publishes a replacement buffer with
// one atomic store and recycles the old buffer only after every reader
// active at publish time has left its critical section.
//
// # Quick Start
//
//	import "github.com/kzhao/qkv"
//
//	db, err := qkv.Open(ctx)
//	if err != nil { ... }
//	defer db.Close()
//
//	db.Set(ctx, "greeting", []byte("hello"))
//	val, ok, _ := db.Get(ctx, "greeting")
//
// # Key Features
//
//   - Lock-free reads under an RCU-style guard
//   - Single writer goroutine, so mutations need no fine-grained locking
//   - Copy-on-write for values visible through more than one reference
//   - Shared-integer table so counters in the common range allocate nothing
//   - Millisecond TTL support with lazy expiry on the read path
//   - Prometheus metrics for queue depth, grace waits and command counts
//
// # Concurrency Model
//
// A DB opened with Open runs its writer goroutine until Close. Read methods
// may be called from any goroutine; they briefly serialize on an internal
// reader registration, which is cheap compared to running a network server.
// For CPU-pinned parallel reads, run the standalone server instead and let
// its worker pool own one reader per thread.
//
// # See Also
//
// For executor semantics see the core package; for the wire protocol see
// the protocol package.
package qkv

import (
	"context"
	"sync"

	"github.com/kzhao/qkv/internal/concurrency/rcu"
	"github.com/kzhao/qkv/internal/core"
)

// Re-exported configuration types.
type (
	// Config configures an embedded database.
	Config = core.Config
	// Reply is the raw result of a command.
	Reply = core.Reply
	// Command is a typed command descriptor.
	Command = core.Command
)

// Re-exported command errors.
var (
	ErrWrongType      = core.ErrWrongType
	ErrOutOfRange     = core.ErrOutOfRange
	ErrOverflow       = core.ErrOverflow
	ErrNotANumber     = core.ErrNotANumber
	ErrNotAFloat      = core.ErrNotAFloat
	ErrLengthExceeded = core.ErrLengthExceeded
	ErrShutdown       = core.ErrShutdown
)

// DB is an embedded database handle. All methods are safe for concurrent
// use.
type DB struct {
	core   *core.DB
	cancel context.CancelFunc
	done   chan struct{}

	mu     sync.Mutex
	reader *rcu.Reader
}

// Open creates a database and starts its writer goroutine.
func Open(ctx context.Context, cfg ...Config) (*DB, error) {
	var c Config
	if len(cfg) > 0 {
		c = cfg[0]
	}
	inner := core.New(c)
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	db := &DB{
		core:   inner,
		cancel: cancel,
		done:   make(chan struct{}),
		reader: inner.Domain().RegisterReader(),
	}
	go func() {
		defer close(db.done)
		inner.Run(runCtx)
	}()
	return db, nil
}

// Close stops the writer goroutine. Queued mutations receive ErrShutdown.
func (db *DB) Close() {
	db.cancel()
	<-db.done
	db.mu.Lock()
	db.reader.Unregister()
	db.reader = nil
	db.mu.Unlock()
}

// Do executes any command descriptor and returns its raw reply.
func (db *DB) Do(ctx context.Context, cmd Command) (Reply, error) {
	select {
	case <-db.done:
		return Reply{}, ErrShutdown
	default:
	}
	if cmd.Mutates() {
		return db.core.Submit(ctx, cmd)
	}
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.reader == nil {
		return Reply{}, ErrShutdown
	}
	return db.core.ExecuteRead(db.reader, cmd), nil
}

// Get returns the value of key. ok is false when the key is missing or
// expired.
func (db *DB) Get(ctx context.Context, key string) (val []byte, ok bool, err error) {
	rep, err := db.Do(ctx, core.Get{Key: key})
	if err != nil {
		return nil, false, err
	}
	if rep.IsError() {
		return nil, false, rep.Err
	}
	if rep.Kind == core.ReplyNil {
		return nil, false, nil
	}
	return rep.Bulk, true, nil
}

// Set stores value under key, clearing any expiry.
func (db *DB) Set(ctx context.Context, key string, value []byte) error {
	return db.expectOK(ctx, core.Set{Key: key, Value: value})
}

// SetNX stores value only when key does not exist. It reports whether the
// value was stored.
func (db *DB) SetNX(ctx context.Context, key string, value []byte) (bool, error) {
	rep, err := db.Do(ctx, core.Set{
		Key: key, Value: value, Cond: core.SetIfAbsent, IntegerReply: true,
	})
	if err != nil {
		return false, err
	}
	if rep.IsError() {
		return false, rep.Err
	}
	return rep.Int == 1, nil
}

// SetEX stores value with a millisecond TTL.
func (db *DB) SetEX(ctx context.Context, key string, value []byte, ttlMillis int64) error {
	return db.expectOK(ctx, core.Set{Key: key, Value: value, ExpireMillis: ttlMillis})
}

// Append appends value to key and returns the new length.
func (db *DB) Append(ctx context.Context, key string, value []byte) (int64, error) {
	return db.expectInt(ctx, core.Append{Key: key, Value: value})
}

// IncrBy adds delta to the integer stored at key and returns the result.
func (db *DB) IncrBy(ctx context.Context, key string, delta int64) (int64, error) {
	return db.expectInt(ctx, core.IncrBy{Key: key, Delta: delta, Verb: "incrby"})
}

// Del removes keys and returns how many existed.
func (db *DB) Del(ctx context.Context, keys ...string) (int64, error) {
	return db.expectInt(ctx, core.Del{Keys: keys})
}

// TTL returns the remaining lifetime of key in milliseconds: -2 when the
// key is missing, -1 when it has no expiry.
func (db *DB) TTL(ctx context.Context, key string) (int64, error) {
	return db.expectInt(ctx, core.TTL{Key: key, Millis: true})
}

func (db *DB) expectOK(ctx context.Context, cmd Command) error {
	rep, err := db.Do(ctx, cmd)
	if err != nil {
		return err
	}
	if rep.IsError() {
		return rep.Err
	}
	return nil
}

func (db *DB) expectInt(ctx context.Context, cmd Command) (int64, error) {
	rep, err := db.Do(ctx, cmd)
	if err != nil {
		return 0, err
	}
	if rep.IsError() {
		return 0, rep.Err
	}
	return rep.Int, nil
}
