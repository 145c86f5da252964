package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// StorageMetrics are the metrics of the agent snapshot stores.
type StorageMetrics struct {
	// Name of the storage backend.
	backend string

	// Counts of database operations
	databaseOperations *prometheus.CounterVec

	// Latencies of database operations.
	databaseLatencies *prometheus.HistogramVec
}

// NewDefaultStorageMetrics creates Prometheus metric instrumentation
// for basic metrics common to storage accesses.
func NewDefaultStorageMetrics(pkg, backend string) StorageMetrics {
	metrics := StorageMetrics{
		backend: backend,
		databaseOperations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: fmt.Sprintf("%s_db_operations", pkg),
				Help: "How many database operations occur, partitioned by backend, operation and status.",
			},
			[]string{"backend", "operation", "status"}, // Labels.
		),
		databaseLatencies: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name: fmt.Sprintf("%s_db_latencies", pkg),
				Help: "How long database operations take, partitioned by backend and operation.",
			},
			[]string{"backend", "operation"}, // Labels.
		),
	}
	metrics.databaseOperations = registerOnce(metrics.databaseOperations)
	metrics.databaseLatencies = registerOnce(metrics.databaseLatencies)
	return metrics
}

// DatabaseOperations returns the counter for the database operation.
func (m *StorageMetrics) DatabaseOperations(operation, status string) prometheus.Counter {
	return m.databaseOperations.WithLabelValues(m.backend, operation, status)
}

// DatabaseLatencies returns a new latency timer for the provided
// database operation.
func (m *StorageMetrics) DatabaseLatencies(operation string) *prometheus.Timer {
	return prometheus.NewTimer(m.databaseLatencies.WithLabelValues(m.backend, operation))
}
