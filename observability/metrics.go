package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// LendingMetrics records lending operation activity for Prometheus scraping.
type LendingMetrics struct {
	operations *prometheus.CounterVec
	latency    *prometheus.HistogramVec
	registry   *prometheus.Registry
}

var (
	lendingMetricsOnce sync.Once
	lendingRegistry    *LendingMetrics
)

// Lending returns the lazily-initialised metrics registry for the lending
// daemon.
func Lending() *LendingMetrics {
	lendingMetricsOnce.Do(func() {
		registry := prometheus.NewRegistry()
		operations := prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lendnet",
			Subsystem: "lending",
			Name:      "operations_total",
			Help:      "Total lending operations segmented by operation and outcome.",
		}, []string{"op", "outcome"})
		latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "lendnet",
			Subsystem: "lending",
			Name:      "operation_duration_seconds",
			Help:      "Latency distribution of lending operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"})
		registry.MustRegister(operations, latency)
		lendingRegistry = &LendingMetrics{
			operations: operations,
			latency:    latency,
			registry:   registry,
		}
	})
	return lendingRegistry
}

// Observe records one completed operation with its outcome label.
func (m *LendingMetrics) Observe(op, outcome string, started time.Time) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(op, outcome).Inc()
	m.latency.WithLabelValues(op).Observe(time.Since(started).Seconds())
}

// Handler exposes the registry for the /metrics endpoint.
func (m *LendingMetrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
