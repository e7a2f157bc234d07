// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package main is the qkv server binary.
//
// It starts the TCP command listener, the worker pool and the writer
// goroutine, and optionally exposes Prometheus metrics over HTTP.
// Configuration comes from command line flags or environment variables in
// the form QKV_<FLAG> (e.g. QKV_LISTEN=:6380).
//
// # Usage
//
// Start the server:
//
//	qkv serve --listen :6380 --workers 4 --pin-cpus
//
// Talk to it with any line-based client:
//
//	$ nc localhost 6380
//	set greeting hello
//	+OK
//	append greeting " world"
//	:11
//	get greeting
//	$11
//	hello world
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"pkt.systems/pslog"

	"github.com/kzhao/qkv/internal/core"
	"github.com/kzhao/qkv/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "qkv",
	Short: "In-memory key-value store with lock-free reads",
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the qkv server",
	Long: "Start the qkv server with the specified configuration. Every flag " +
		"can also be set through an environment variable named QKV_<FLAG> " +
		"with dashes replaced by underscores (e.g. QKV_MAX_VALUE_BYTES).",
	PreRunE: func(cmd *cobra.Command, _ []string) error {
		return viper.BindPFlags(cmd.Flags())
	},
	RunE: runServe,
}

func init() {
	f := serveCmd.Flags()
	f.String("listen", ":6380", "TCP address the command listener binds to")
	f.Int("workers", 0, "number of read workers (0 = one per CPU)")
	f.Bool("pin-cpus", false, "pin each worker thread to one CPU")
	f.Int("queue-capacity", core.DefaultQueueCapacity, "writer queue capacity")
	f.Int64("max-value-bytes", core.DefaultMaxValueBytes, "maximum string value size in bytes")
	f.String("metrics-listen", "", "HTTP address for Prometheus metrics (empty = disabled)")
	f.String("log-level", "info", "minimum log level (trace, debug, info, warn, error)")

	viper.SetEnvPrefix("QKV")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	rootCmd.AddCommand(serveCmd)
}

func runServe(_ *cobra.Command, _ []string) error {
	level, ok := pslog.ParseLevel(viper.GetString("log-level"))
	if !ok {
		return fmt.Errorf("unknown log level %q", viper.GetString("log-level"))
	}
	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := pslog.NewStructured(ctx, os.Stderr).LogLevel(level)

	db := core.New(core.Config{
		QueueCapacity: viper.GetInt("queue-capacity"),
		MaxValueBytes: viper.GetInt64("max-value-bytes"),
		Logger:        log.With("component", "writer"),
	})
	srv := server.New(db, server.Config{
		Addr:    viper.GetString("listen"),
		Workers: viper.GetInt("workers"),
		PinCPUs: viper.GetBool("pin-cpus"),
		Logger:  log.With("component", "server"),
	})

	if addr := viper.GetString("metrics-listen"); addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		ms := &http.Server{Addr: addr, Handler: mux}
		go func() {
			log.Info("metrics listening", "addr", addr)
			if err := ms.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error("metrics server failed", "error", err.Error())
			}
		}()
		go func() {
			<-ctx.Done()
			ms.Close()
		}()
	}

	return srv.ListenAndServe(ctx)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
