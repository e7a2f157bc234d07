// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package rcu provides read-copy-update synchronization for the single-writer
// keyspace.
//
// Readers enter cheap critical sections that never block and never take a
// lock; the writer publishes replacement pointers with a single atomic store
// and then waits out a grace period before reclaiming the memory the old
// pointer referred to. Because exactly one goroutine ever writes, there is no
// write-write arbitration: the only job of this package is proving that no
// reader can still observe a buffer before it is freed.
//
// # Usage
//
// Each reading goroutine registers once and keeps its Reader for its
// lifetime:
//
//	reader := domain.RegisterReader()
//	defer reader.Unregister()
//
//	g := reader.Lock()
//	buf := rcu.Dereference(&obj.buf)
//	// ... read buf ...
//	g.Unlock()
//
// The writer swaps and reclaims:
//
//	old := rcu.Dereference(&obj.buf)
//	rcu.Publish(&obj.buf, dup)
//	domain.SynchronizeAndReclaim(func() { release(old) })
//
// # Contract
//
//   - Every dereference of an RCU-managed pointer must happen between Lock
//     and Unlock on a registered Reader.
//   - Lock is reentrant; the critical section ends when the nesting depth
//     returns to zero.
//   - A critical section must never span a call that can block indefinitely,
//     or the grace period stalls with it.
//   - Synchronize must only be called from the writer goroutine, and never
//     while the caller holds a Guard of the same Domain.
//
// A grace period that does not drain within FatalGraceWait panics: at that
// point the reclamation invariant can no longer be guaranteed and the
// process must not continue freeing memory on guesses.
package rcu

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

// FatalGraceWait is the hard deadline for a grace period. A reader critical
// section outliving this indicates a stuck or leaked Guard.
const FatalGraceWait = 30 * time.Second

// Domain coordinates one writer and any number of registered readers.
type Domain struct {
	epoch     atomic.Uint64
	mu        sync.Mutex // guards readers; never taken on the read path
	readers   []*Reader
	fatalWait time.Duration
}

// NewDomain creates an empty domain. The epoch starts at 1 so that a zero
// reader state always means "quiescent".
func NewDomain() *Domain {
	d := &Domain{fatalWait: FatalGraceWait}
	d.epoch.Store(1)
	return d
}

// Reader is a per-goroutine handle for entering read critical sections.
// It must only be used from the goroutine it was registered for.
type Reader struct {
	// state is 0 when quiescent, otherwise the epoch observed at entry.
	// Padded so concurrent readers do not share a cache line.
	state atomic.Uint64
	_     [56]byte

	nest int // reentrancy depth, touched only by the owning goroutine
	d    *Domain
}

// RegisterReader adds a new reader to the domain. Safe to call from any
// goroutine; the returned Reader belongs to the caller.
func (d *Domain) RegisterReader() *Reader {
	r := &Reader{d: d}
	d.mu.Lock()
	d.readers = append(d.readers, r)
	d.mu.Unlock()
	return r
}

// Unregister removes the reader from the domain. The reader must be
// quiescent (no Guard held).
func (r *Reader) Unregister() {
	if r.state.Load() != 0 {
		panic("rcu: Unregister called inside a read critical section")
	}
	d := r.d
	d.mu.Lock()
	for i, rd := range d.readers {
		if rd == r {
			d.readers = append(d.readers[:i], d.readers[i+1:]...)
			break
		}
	}
	d.mu.Unlock()
}

// Guard marks an active read critical section. The zero Guard is invalid.
type Guard struct {
	r *Reader
}

// Lock enters a read critical section and returns the Guard that ends it.
// Reentrant: nested Locks extend the same critical section.
func (r *Reader) Lock() Guard {
	if r.nest == 0 {
		// Publishing the observed epoch is what makes this reader visible
		// to a concurrent Synchronize.
		r.state.Store(r.d.epoch.Load())
	}
	r.nest++
	return Guard{r: r}
}

// Unlock ends the critical section opened by the matching Lock.
func (g Guard) Unlock() {
	r := g.r
	if r == nil || r.nest == 0 {
		panic("rcu: Unlock without matching Lock")
	}
	r.nest--
	if r.nest == 0 {
		r.state.Store(0)
	}
}

// Publish atomically replaces the pointer visible at slot. Readers entering
// after Publish observe only v; readers already inside a critical section
// may still observe the previous pointer until they exit.
func Publish[T any](slot *atomic.Pointer[T], v *T) {
	slot.Store(v)
}

// Dereference loads the current pointer from slot. Callers must hold a
// Guard for as long as they use the result.
func Dereference[T any](slot *atomic.Pointer[T]) *T {
	return slot.Load()
}

// Synchronize blocks until every read critical section that was active when
// it was called has exited. Writer-only.
func (d *Domain) Synchronize() {
	target := d.epoch.Add(1)

	d.mu.Lock()
	snapshot := make([]*Reader, len(d.readers))
	copy(snapshot, d.readers)
	d.mu.Unlock()

	deadline := time.Now().Add(d.fatalWait)
	for _, r := range snapshot {
		for spins := 0; ; spins++ {
			s := r.state.Load()
			// Quiescent, or entered after the epoch bump and therefore
			// after the publish this wait protects.
			if s == 0 || s >= target {
				break
			}
			if spins < 64 {
				runtime.Gosched()
				continue
			}
			time.Sleep(50 * time.Microsecond)
			if time.Now().After(deadline) {
				panic(fmt.Sprintf("rcu: grace period did not drain within %v", d.fatalWait))
			}
		}
	}
}

// SynchronizeAndReclaim waits out the grace period and then runs reclaim.
// The reclaim callback runs exactly once, even when the published value was
// byte-identical to the old one; skipping reclamation would leak the old
// buffer object.
func (d *Domain) SynchronizeAndReclaim(reclaim func()) {
	d.Synchronize()
	if reclaim != nil {
		reclaim()
	}
}

// ActiveReaders reports how many registered readers are currently inside a
// critical section. Monitoring only; the value is stale by the time it
// returns.
func (d *Domain) ActiveReaders() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, r := range d.readers {
		if r.state.Load() != 0 {
			n++
		}
	}
	return n
}

// ReaderCount reports how many readers are registered.
func (d *Domain) ReaderCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.readers)
}
