// Licensed under the MIT License. See LICENSE file in the project root for details.

package core

import (
	"context"
	"runtime"

	"github.com/kzhao/qkv/internal/concurrency/rcu"
	"github.com/kzhao/qkv/internal/monitoring/metrics"
)

// Request pairs a mutating command with its reply channel. The channel is
// buffered so the writer's send always completes immediately; a submitter
// that stopped waiting simply never receives and the reply is collected.
type Request struct {
	Cmd   Command
	reply chan Reply
}

// NewRequest wraps a command for submission to the writer queue.
func NewRequest(cmd Command) *Request {
	return &Request{Cmd: cmd, reply: make(chan Reply, 1)}
}

// Reply returns the channel the writer's reply arrives on.
func (r *Request) Reply() <-chan Reply {
	return r.reply
}

// Submit queues a mutating command and waits for the writer's reply.
// Enqueueing blocks while the queue is full, which is the backpressure that
// keeps a burst of producers from outrunning the writer. Once enqueued the
// command will be applied even if ctx is canceled; cancellation only
// abandons the reply.
func (db *DB) Submit(ctx context.Context, cmd Command) (Reply, error) {
	req := NewRequest(cmd)
	if err := db.Enqueue(ctx, req); err != nil {
		return Reply{}, err
	}
	select {
	case rep := <-req.reply:
		return rep, nil
	case <-ctx.Done():
		return Reply{}, ctx.Err()
	}
}

// Enqueue places a prepared request on the writer queue without waiting for
// its reply. The caller reads the reply from req.Reply(); submissions from
// one goroutine are applied in submission order. After the writer has begun
// shutting down, Enqueue fails with ErrShutdown.
func (db *DB) Enqueue(ctx context.Context, req *Request) error {
	// The counter is raised before the stopping check. Either this
	// enqueuer observes stopping and backs out, or the draining writer
	// observes a nonzero count and keeps consuming until the request has
	// been answered.
	db.enqueuers.Add(1)
	defer db.enqueuers.Add(-1)
	if db.stopping.Load() {
		return ErrShutdown
	}
	select {
	case db.queue <- req:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Execute routes a command to the right execution path: reads run on the
// calling thread under r's guard, mutations travel through the writer queue.
func (db *DB) Execute(ctx context.Context, r *rcu.Reader, cmd Command) (Reply, error) {
	if cmd.Mutates() {
		return db.Submit(ctx, cmd)
	}
	return db.ExecuteRead(r, cmd), nil
}

// Run executes the writer loop until ctx is canceled. All keyspace
// structure changes and buffer publishes happen on this goroutine, which is
// what makes them single-writer by construction. At most one Run may be
// active per DB.
func (db *DB) Run(ctx context.Context) {
	db.log.Info("writer started",
		"db", db.ks.ID(), "queue_capacity", cap(db.queue))
	for {
		select {
		case req := <-db.queue:
			db.serve(req)
		case <-ctx.Done():
			db.drain()
			db.log.Info("writer stopped",
				"db", db.ks.ID(), "dirty", db.dirty.Load())
			return
		}
	}
}

func (db *DB) serve(req *Request) {
	rep := db.applyWrite(req.Cmd)
	metrics.WriterQueueDepth.Set(float64(len(db.queue)))
	metrics.ActiveReaders.Set(float64(db.dom.ActiveReaders()))
	metrics.RegisteredReaders.Set(float64(db.dom.ReaderCount()))
	req.reply <- rep
}

// drain answers everything already enqueued so no submitter blocks forever
// on a writer that is gone. It keeps consuming while any Enqueue is still in
// flight; once the count hits zero every later submission fails its stopping
// check instead of reaching the queue.
func (db *DB) drain() {
	db.stopping.Store(true)
	for {
		select {
		case req := <-db.queue:
			req.reply <- ErrReply(ErrShutdown)
		default:
			if db.enqueuers.Load() == 0 {
				return
			}
			runtime.Gosched()
		}
	}
}

func (db *DB) applyWrite(cmd Command) Reply {
	switch c := cmd.(type) {
	case Set:
		return db.execSet(c)
	case SetRange:
		return db.execSetRange(c)
	case Append:
		return db.execAppend(c)
	case GetSet:
		return db.execGetSet(c)
	case IncrBy:
		return db.execIncrBy(c)
	case IncrByFloat:
		return db.execIncrByFloat(c)
	case MSet:
		return db.execMSet(c)
	case Del:
		return db.execDel(c)
	}
	db.log.Warn("unhandled mutating command", "command", cmd.Name())
	return ErrReply(ErrSyntax)
}
