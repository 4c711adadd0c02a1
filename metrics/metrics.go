// Package metrics exposes Prometheus instrumentation for the persistence
// layer. Counters are registered at import time via promauto.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	Operations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docstore_operations_total",
			Help: "Total number of storage operations by backend and operation",
		},
		[]string{"backend", "operation"},
	)

	OperationErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docstore_operation_errors_total",
			Help: "Total number of failed storage operations by backend and operation",
		},
		[]string{"backend", "operation"},
	)

	BackendSelections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docstore_backend_selections_total",
			Help: "Total number of times each backend was activated",
		},
		[]string{"backend"},
	)

	SelectionFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docstore_selection_fallbacks_total",
			Help: "Total number of failed connect attempts during backend selection",
		},
		[]string{"backend"},
	)

	MirrorWriteFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "docstore_mirror_write_failures_total",
			Help: "Total number of dual-write mirror failures swallowed on the secondary",
		},
	)
)
