package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Index and build Prometheus metrics.
var (
	IndexVectors = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "ragdex",
			Name:      "index_vectors",
			Help:      "Vectors in the loaded index",
		},
	)

	SearchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ragdex",
			Name:      "search_duration_seconds",
			Help:      "Query engine search duration in seconds, embedding excluded",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 1},
		},
		[]string{"status"},
	)

	BuildsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ragdex",
			Name:      "builds_total",
			Help:      "Index builds by outcome",
		},
		[]string{"status"},
	)

	BuildChunksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "ragdex",
			Name:      "build_chunks_total",
			Help:      "Chunks embedded and committed by builds",
		},
	)
)

var registerIndexOnce sync.Once

// RegisterIndexMetrics registers index, search and build metrics. Safe to call more than once.
func RegisterIndexMetrics() {
	registerIndexOnce.Do(func() {
		prometheus.MustRegister(IndexVectors, SearchDuration, BuildsTotal, BuildChunksTotal)
	})
}
