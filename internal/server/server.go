// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package server accepts client connections and drives commands through the
// database. Each worker is an OS-thread-pinned goroutine owning one
// registered RCU reader; read commands execute on a worker, mutating
// commands go straight onto the writer queue. A connection waits for each
// command's reply before reading the next line, which preserves per-client
// program order across the read/write split.
package server

import (
	"bufio"
	"context"
	"errors"
	"net"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"

	"pkt.systems/pslog"

	"github.com/kzhao/qkv/internal/concurrency/affinity"
	"github.com/kzhao/qkv/internal/concurrency/rcu"
	"github.com/kzhao/qkv/internal/core"
	"github.com/kzhao/qkv/internal/monitoring/metrics"
	"github.com/kzhao/qkv/internal/protocol"
)

// DefaultMaxLineBytes bounds a single command line.
const DefaultMaxLineBytes = 64 * 1024 * 1024

// Config configures a Server.
type Config struct {
	// Addr is the TCP listen address.
	Addr string

	// Workers is the number of read-executing workers. Zero selects
	// runtime.NumCPU().
	Workers int

	// PinCPUs pins each worker thread to one CPU.
	PinCPUs bool

	// MaxLineBytes bounds a single command line. Zero selects
	// DefaultMaxLineBytes.
	MaxLineBytes int

	// Logger receives connection lifecycle logs. Nil selects a no-op
	// logger.
	Logger pslog.Logger
}

// Server owns the listener, the worker pool and the writer goroutine.
type Server struct {
	cfg Config
	db  *core.DB
	log pslog.Logger

	workers []*worker
	next    atomic.Uint64

	ln net.Listener
	wg sync.WaitGroup
}

type task struct {
	cmd  core.Command
	done chan core.Reply
}

type worker struct {
	id     int
	tasks  chan task
	reader *rcu.Reader
}

// New creates a Server around db. Workers are registered as readers up
// front so a command dispatched during startup always finds a live reader.
func New(db *core.DB, cfg Config) *Server {
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.MaxLineBytes <= 0 {
		cfg.MaxLineBytes = DefaultMaxLineBytes
	}
	log := cfg.Logger
	if log == nil {
		log = pslog.NoopLogger()
	}
	s := &Server{cfg: cfg, db: db, log: log}
	for i := 0; i < cfg.Workers; i++ {
		s.workers = append(s.workers, &worker{
			id:     i,
			tasks:  make(chan task, 128),
			reader: db.Domain().RegisterReader(),
		})
	}
	return s
}

// Addr returns the bound listen address, valid after ListenAndServe has
// started listening.
func (s *Server) Addr() net.Addr {
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// ListenAndServe runs the server until ctx is canceled. It starts the
// writer loop, the workers and the accept loop, and blocks until all of
// them have stopped.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	s.ln = ln
	s.log.Info("listening", "addr", ln.Addr().String(), "workers", len(s.workers))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		if s.cfg.PinCPUs {
			// The writer gets the last CPU; workers cycle through the rest.
			if err := affinity.Pin(runtime.NumCPU() - 1); err != nil {
				s.log.Warn("cpu pinning failed", "thread", "writer",
					"error", err.Error())
			}
		}
		s.db.Run(ctx)
	}()
	for _, w := range s.workers {
		s.wg.Add(1)
		go func(w *worker) {
			defer s.wg.Done()
			s.runWorker(ctx, w)
		}(w)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			s.log.Warn("accept failed", "error", err.Error())
			continue
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			// Shutdown closes the connection so a blocked read returns.
			stop := context.AfterFunc(ctx, func() { conn.Close() })
			defer stop()
			s.handleConn(ctx, conn)
		}()
	}

	cancel()
	s.wg.Wait()
	s.log.Info("server stopped")
	return nil
}

// runWorker locks its goroutine to an OS thread, optionally pins it to a
// CPU and serves read commands with its registered reader.
func (s *Server) runWorker(ctx context.Context, w *worker) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer w.reader.Unregister()

	if s.cfg.PinCPUs {
		// Leave the last CPU to the writer when there is more than one.
		ncpu := runtime.NumCPU()
		if ncpu > 1 {
			ncpu--
		}
		cpu := w.id % ncpu
		if err := affinity.Pin(cpu); err != nil {
			s.log.Warn("cpu pinning failed", "worker", w.id, "cpu", cpu,
				"error", err.Error())
		} else {
			s.log.Debug("worker pinned", "worker", w.id, "cpu", cpu)
		}
	}

	for {
		select {
		case t := <-w.tasks:
			t.done <- s.db.ExecuteRead(w.reader, t.cmd)
		case <-ctx.Done():
			return
		}
	}
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	metrics.ConnectedClients.Inc()
	defer metrics.ConnectedClients.Dec()

	w := s.workers[s.next.Add(1)%uint64(len(s.workers))]
	sc := bufio.NewScanner(conn)
	sc.Buffer(make([]byte, 0, 64*1024), s.cfg.MaxLineBytes)
	out := bufio.NewWriter(conn)
	var buf []byte

	for sc.Scan() {
		line := sc.Text()
		if strings.EqualFold(strings.TrimSpace(line), "quit") {
			out.WriteString("+OK\r\n")
			out.Flush()
			return
		}
		cmd, err := protocol.Parse(line)
		if err != nil {
			buf = protocol.AppendReply(buf[:0], core.ErrReply(err))
			out.Write(buf)
			out.Flush()
			continue
		}
		if cmd == nil {
			continue
		}

		var rep core.Reply
		if cmd.Mutates() {
			rep, err = s.db.Submit(ctx, cmd)
			if err != nil {
				return
			}
		} else {
			t := task{cmd: cmd, done: make(chan core.Reply, 1)}
			select {
			case w.tasks <- t:
			case <-ctx.Done():
				return
			}
			select {
			case rep = <-t.done:
			case <-ctx.Done():
				return
			}
		}

		status := "ok"
		if rep.IsError() {
			status = "error"
		}
		metrics.CommandsTotal.WithLabelValues(cmd.Name(), status).Inc()

		buf = protocol.AppendReply(buf[:0], rep)
		if _, err := out.Write(buf); err != nil {
			return
		}
		if err := out.Flush(); err != nil {
			return
		}
	}
}
