// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package metrics exposes the server's Prometheus metrics. Collectors are
// package-level and registered through promauto, so importing the package is
// enough to make them scrapeable from the default registry.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CommandsTotal counts processed commands by name and outcome.
	CommandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qkv_commands_total",
			Help: "Total number of commands processed",
		},
		[]string{"command", "status"},
	)

	// MutationsTotal mirrors the writer's dirty counter.
	MutationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "qkv_mutations_total",
			Help: "Total number of applied keyspace mutations",
		},
	)

	// WriterQueueDepth is the number of mutations waiting for the writer.
	WriterQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "qkv_writer_queue_depth",
			Help: "Mutating commands currently queued for the writer thread",
		},
	)

	// GraceWaitSeconds measures how long the writer blocks waiting for
	// readers to leave their critical sections.
	GraceWaitSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name: "qkv_grace_wait_seconds",
			Help: "Time the writer spent waiting for a grace period",
			// Waits are usually sub-microsecond; the tail matters.
			Buckets: []float64{1e-6, 1e-5, 1e-4, 1e-3, 0.01, 0.1, 1, 10},
		},
	)

	// ActiveReaders is the number of readers currently inside a critical
	// section.
	ActiveReaders = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "qkv_active_readers",
			Help: "Readers currently holding a read-side guard",
		},
	)

	// RegisteredReaders is the number of registered worker readers.
	RegisteredReaders = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "qkv_registered_readers",
			Help: "Reader slots registered with the reclamation domain",
		},
	)

	// ConnectedClients tracks open client connections.
	ConnectedClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "qkv_connected_clients",
			Help: "Currently open client connections",
		},
	)

	// KeyspaceSize is the number of stored keys per database.
	KeyspaceSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "qkv_keyspace_size",
			Help: "Number of keys stored, including not-yet-swept expired ones",
		},
		[]string{"db"},
	)
)
