// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package main provides an interactive REPL (Read-Eval-Print Loop) for the
// qkv store.
//
// This command-line tool allows users to interactively test and explore the
// command set against an embedded, in-process database. It's useful for
// development, testing, and learning the command semantics without running
// the network server.
//
// # Features
//
//   - Full string command set (SET with NX/XX/EX/PX, GET, APPEND, SETRANGE,
//     INCR family, MSET/MSETNX, DEL, EXISTS, TTL/PTTL and friends)
//   - The same parser and reply rendering as the network server
//   - Graceful shutdown handling
//
// # Usage
//
// Start the REPL:
//
//	go run cmd/repl/main.go
//
// Example session:
//
//	> set user:1 "John Doe"
//	+OK
//	> append user:1 " (admin)"
//	:16
//	> get user:1
//	$16
//	John Doe (admin)
//	> incr counter
//	:1
//	> quit
//	Goodbye!
//
// # Dangers and Warnings
//
//   - **Data Persistence**: The REPL uses an in-memory database. All data is
//     lost when the program exits.
//   - **Concurrent Access**: The REPL is single-threaded; for concurrent
//     load use the bench tool or the network server.
//
// # See Also
//
// For the network server, see cmd/qkv. For performance testing, see the
// bench tool.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/kzhao/qkv/internal/concurrency/rcu"
	"github.com/kzhao/qkv/internal/core"
	"github.com/kzhao/qkv/internal/protocol"
)

type REPL struct {
	db     *core.DB
	reader *rcu.Reader
}

func NewREPL(db *core.DB) *REPL {
	return &REPL{db: db, reader: db.Domain().RegisterReader()}
}

func (r *REPL) Run(ctx context.Context) {
	fmt.Println("qkv REPL")
	fmt.Println("Commands: set, get, append, setrange, getrange, incr, decr,")
	fmt.Println("          incrby, decrby, incrbyfloat, mset, msetnx, mget,")
	fmt.Println("          del, exists, ttl, pttl, strlen, getset, quit")

	scanner := bufio.NewScanner(os.Stdin)
	var buf []byte
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.EqualFold(line, "quit") || strings.EqualFold(line, "exit") {
			fmt.Println("Goodbye!")
			return
		}

		cmd, err := protocol.Parse(line)
		if err != nil {
			fmt.Printf("-%s\n", err.Error())
			continue
		}
		if cmd == nil {
			continue
		}
		rep, err := r.db.Execute(ctx, r.reader, cmd)
		if err != nil {
			fmt.Printf("-%s\n", err.Error())
			continue
		}
		buf = protocol.AppendReply(buf[:0], rep)
		fmt.Print(strings.ReplaceAll(string(buf), "\r\n", "\n"))
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer stop()

	db := core.New(core.Config{})
	go db.Run(ctx)

	repl := NewREPL(db)
	repl.Run(ctx)
}
