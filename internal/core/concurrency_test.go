// Licensed under the MIT License. See LICENSE file in the project root for details.

package core

import (
	"bytes"
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"
)

// TestNoTornReadsUnderMutation hammers one key with in-place buffer
// replacements while readers watch it. A reader must always observe a value
// that was published whole, never a mix of two generations.
func TestNoTornReadsUnderMutation(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx, cancel := context.WithCancel(context.Background())
	db := New(Config{})
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		db.Run(ctx)
	}()

	const valueLen = 64
	fill := func(b byte) []byte { return bytes.Repeat([]byte{b}, valueLen) }
	if rep, err := db.Submit(ctx, Set{Key: "hot", Value: fill('A')}); err != nil || rep.IsError() {
		t.Fatalf("seed: %v %v", err, rep.Err)
	}

	const readers = 4
	var wg sync.WaitGroup
	stop := make(chan struct{})
	for i := 0; i < readers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r := db.Domain().RegisterReader()
			defer r.Unregister()
			for {
				select {
				case <-stop:
					return
				default:
				}
				rep := db.ExecuteRead(r, Get{Key: "hot"})
				if rep.Kind != ReplyBulk || len(rep.Bulk) != valueLen {
					t.Errorf("unexpected reply %v len %d", rep.Kind, len(rep.Bulk))
					return
				}
				first := rep.Bulk[0]
				for _, c := range rep.Bulk {
					if c != first {
						t.Errorf("torn read: %q", rep.Bulk)
						return
					}
				}
			}
		}()
	}

	for i := 0; i < 2000; i++ {
		b := byte('A' + i%2)
		// Alternate whole-buffer SETRANGE and APPEND-free SET so both
		// publication paths get exercised.
		if i%2 == 0 {
			db.Submit(ctx, SetRange{Key: "hot", Offset: 0, Value: fill(b)})
		} else {
			db.Submit(ctx, Set{Key: "hot", Value: fill(b)})
		}
	}

	close(stop)
	wg.Wait()
	cancel()
	<-writerDone
}

// TestReadYourWrites checks that a submitter observes its own mutation as
// soon as Submit returns, which is what gives one client program order
// across the read/write split.
func TestReadYourWrites(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx, cancel := context.WithCancel(context.Background())
	db := New(Config{})
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		db.Run(ctx)
	}()
	r := db.Domain().RegisterReader()

	for i := 0; i < 1000; i++ {
		want := strconv.Itoa(i)
		if _, err := db.Submit(ctx, Set{Key: "k", Value: []byte(want)}); err != nil {
			t.Fatalf("submit: %v", err)
		}
		rep := db.ExecuteRead(r, Get{Key: "k"})
		if string(rep.Bulk) != want {
			t.Fatalf("iteration %d: read %q after writing %q", i, rep.Bulk, want)
		}
	}

	r.Unregister()
	cancel()
	<-writerDone
}

// TestQueuedMutationsApplyInOrder submits from one goroutine without
// waiting between commands and checks the final state reflects submission
// order.
func TestQueuedMutationsApplyInOrder(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx, cancel := context.WithCancel(context.Background())
	db := New(Config{QueueCapacity: 8})
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		db.Run(ctx)
	}()
	r := db.Domain().RegisterReader()

	var wg sync.WaitGroup
	const n = 500
	replies := make([]Reply, n)
	for i := 0; i < n; i++ {
		req := NewRequest(Append{Key: "log", Value: []byte{byte('a' + i%26)}})
		if err := db.Enqueue(ctx, req); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
		wg.Add(1)
		go func(i int, req *Request) {
			defer wg.Done()
			replies[i] = <-req.Reply()
		}(i, req)
	}
	wg.Wait()

	// Lengths returned by APPEND grow monotonically in submission order.
	for i, rep := range replies {
		if rep.Int != int64(i+1) {
			t.Fatalf("append %d returned length %d", i, rep.Int)
		}
	}
	rep := db.ExecuteRead(r, StrLen{Key: "log"})
	if rep.Int != n {
		t.Fatalf("final length %d, want %d", rep.Int, n)
	}

	r.Unregister()
	cancel()
	<-writerDone
}

// TestShutdownReleasesSubmitters races Submit against writer shutdown. Every
// submitter must come back with either an applied reply or ErrShutdown; none
// may be stranded on a queue the writer has stopped reading.
func TestShutdownReleasesSubmitters(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx, cancel := context.WithCancel(context.Background())
	db := New(Config{QueueCapacity: 4})
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		db.Run(ctx)
	}()

	const submitters = 8
	var wg sync.WaitGroup
	for i := 0; i < submitters; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := "k" + strconv.Itoa(i)
			for {
				rep, err := db.Submit(context.Background(), IncrBy{Key: key, Delta: 1, Verb: "incr"})
				if err != nil {
					if !errors.Is(err, ErrShutdown) {
						t.Errorf("submit: %v", err)
					}
					return
				}
				if rep.IsError() {
					if !errors.Is(rep.Err, ErrShutdown) {
						t.Errorf("reply: %v", rep.Err)
					}
					return
				}
			}
		}(i)
	}

	// Let the submitters pile up against the small queue, then stop.
	time.Sleep(5 * time.Millisecond)
	cancel()
	wg.Wait()
	<-writerDone
}
