// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package main provides benchmarking tools for the qkv store.
//
// This command-line tool measures throughput of the single-writer design
// under different workloads. It's useful for performance testing, capacity
// planning, and comparing configurations.
//
// # Benchmark Categories
//
// The benchmark suite includes:
//   - Single-threaded operations (baseline performance)
//   - Concurrent reads (reader scalability, lock-free path)
//   - Writer throughput (queue and grace-period overhead)
//   - Mixed workloads (real-world simulation)
//   - Hot key mutation (in-place buffer replacement rate)
//
// # Usage
//
// Run all benchmarks:
//
//	go run cmd/bench/main.go
//
// # Interpreting Results
//
// Read throughput should scale close to linearly with reader count, since
// readers take no locks. Write throughput is bounded by the single writer;
// the interesting number is how little concurrent read load degrades it.
//
// # See Also
//
// For interactive testing, see the REPL tool.
package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kzhao/qkv/internal/core"
)

const (
	numKeys         = 10000
	opsPerGoroutine = 50000
)

func main() {
	fmt.Println("qkv Benchmarks")
	fmt.Println("==============")

	benchmarkSingleThreaded()
	benchmarkConcurrentReads()
	benchmarkWriterThroughput()
	benchmarkMixedWorkload()
	benchmarkHotKeyMutation()
}

// newDB starts a database with a running writer and returns a stop func.
func newDB() (*core.DB, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	db := core.New(core.Config{})
	go db.Run(ctx)
	return db, cancel
}

func preload(db *core.DB, n int) {
	ctx := context.Background()
	for i := 0; i < n; i++ {
		db.Submit(ctx, core.Set{
			Key:   fmt.Sprintf("key:%d", i),
			Value: []byte(fmt.Sprintf("value:%d", i)),
		})
	}
}

func benchmarkSingleThreaded() {
	fmt.Println("\n1. Single-threaded operations")
	db, stop := newDB()
	defer stop()
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < opsPerGoroutine; i++ {
		db.Submit(ctx, core.Set{
			Key:   fmt.Sprintf("key:%d", i%numKeys),
			Value: []byte("value"),
		})
	}
	report("SET", opsPerGoroutine, time.Since(start))

	r := db.Domain().RegisterReader()
	defer r.Unregister()
	start = time.Now()
	for i := 0; i < opsPerGoroutine; i++ {
		db.ExecuteRead(r, core.Get{Key: fmt.Sprintf("key:%d", i%numKeys)})
	}
	report("GET", opsPerGoroutine, time.Since(start))
}

func benchmarkConcurrentReads() {
	fmt.Println("\n2. Concurrent reads")
	db, stop := newDB()
	defer stop()
	preload(db, numKeys)

	for _, readers := range []int{1, 2, 4, 8} {
		var wg sync.WaitGroup
		start := time.Now()
		for g := 0; g < readers; g++ {
			wg.Add(1)
			go func(g int) {
				defer wg.Done()
				r := db.Domain().RegisterReader()
				defer r.Unregister()
				for i := 0; i < opsPerGoroutine; i++ {
					db.ExecuteRead(r, core.Get{
						Key: fmt.Sprintf("key:%d", (g*31+i)%numKeys),
					})
				}
			}(g)
		}
		wg.Wait()
		report(fmt.Sprintf("%d readers", readers),
			readers*opsPerGoroutine, time.Since(start))
	}
}

func benchmarkWriterThroughput() {
	fmt.Println("\n3. Writer throughput")
	db, stop := newDB()
	defer stop()
	ctx := context.Background()

	for _, producers := range []int{1, 2, 4} {
		var wg sync.WaitGroup
		start := time.Now()
		for g := 0; g < producers; g++ {
			wg.Add(1)
			go func(g int) {
				defer wg.Done()
				for i := 0; i < opsPerGoroutine; i++ {
					db.Submit(ctx, core.IncrBy{
						Key:   fmt.Sprintf("ctr:%d", g),
						Delta: 1,
						Verb:  "incrby",
					})
				}
			}(g)
		}
		wg.Wait()
		report(fmt.Sprintf("%d producers", producers),
			producers*opsPerGoroutine, time.Since(start))
	}
}

func benchmarkMixedWorkload() {
	fmt.Println("\n4. Mixed workload (90% reads)")
	db, stop := newDB()
	defer stop()
	preload(db, numKeys)
	ctx := context.Background()

	var wg sync.WaitGroup
	start := time.Now()
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			r := db.Domain().RegisterReader()
			defer r.Unregister()
			for i := 0; i < opsPerGoroutine; i++ {
				key := fmt.Sprintf("key:%d", (g*17+i)%numKeys)
				if i%10 == 0 {
					db.Submit(ctx, core.Append{Key: key, Value: []byte("x")})
				} else {
					db.ExecuteRead(r, core.Get{Key: key})
				}
			}
		}(g)
	}
	wg.Wait()
	report("mixed", 4*opsPerGoroutine, time.Since(start))
}

func benchmarkHotKeyMutation() {
	fmt.Println("\n5. Hot key mutation under read load")
	db, stop := newDB()
	defer stop()
	ctx := context.Background()
	db.Submit(ctx, core.Set{Key: "hot", Value: []byte("seed")})

	readCtx, stopReaders := context.WithCancel(ctx)
	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r := db.Domain().RegisterReader()
			defer r.Unregister()
			for readCtx.Err() == nil {
				db.ExecuteRead(r, core.Get{Key: "hot"})
			}
		}()
	}

	const writes = 20000
	start := time.Now()
	for i := 0; i < writes; i++ {
		db.Submit(ctx, core.SetRange{Key: "hot", Offset: 0, Value: []byte("mut")})
	}
	elapsed := time.Since(start)
	stopReaders()
	wg.Wait()
	report("SETRANGE on hot key", writes, elapsed)
}

func report(name string, ops int, elapsed time.Duration) {
	fmt.Printf("   %-22s %8d ops in %8v  (%.0f ops/sec)\n",
		name, ops, elapsed.Round(time.Millisecond),
		float64(ops)/elapsed.Seconds())
}
