// Package metrics registers the Prometheus collectors of the lineage services.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// VersionsWritten counts appended version rows by timeline (main, module).
	VersionsWritten = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lineage_versions_written_total",
		Help: "Version rows appended, by timeline",
	}, []string{"timeline"})

	// ModuleTransitions counts lifecycle transitions by operation and result.
	ModuleTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lineage_module_transitions_total",
		Help: "Module lifecycle transitions by operation and result",
	}, []string{"operation", "result"})

	// CompletedObjects tracks how many lineages one completion merges.
	CompletedObjects = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "lineage_completion_objects",
		Help:    "Number of lineages merged per module completion",
		Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 250},
	})

	// RelationTransitions counts acknowledged relation operations by result.
	RelationTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lineage_relation_transitions_total",
		Help: "Acknowledged relation operations by operation and result",
	}, []string{"operation", "result"})

	// OperationDuration tracks service operation latency.
	OperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "lineage_operation_duration_seconds",
		Help:    "Service operation duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14), // 0.5ms to ~4s
	}, []string{"operation"})
)

// Result maps an error to the result label.
func Result(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// Observe records the duration of operation since start.
func Observe(operation string, start time.Time) {
	OperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}
