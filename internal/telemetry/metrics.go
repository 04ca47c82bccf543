// Package telemetry provides Prometheus collectors for the retrieval engine.
// All methods are safe to call on a nil *Metrics, which records nothing.
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "shika"

// Metrics holds the engine's collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	searches        *prometheus.CounterVec
	searchDuration  prometheus.Histogram
	searchResults   prometheus.Histogram
	rebuilds        *prometheus.CounterVec
	rebuildDuration prometheus.Histogram
	skippedEntries  *prometheus.CounterVec
	indexSize       prometheus.Gauge
	tombstones      prometheus.Gauge
	embeddings      *prometheus.CounterVec
	embeddingMode   *prometheus.GaugeVec
	degradations    prometheus.Counter
	truncations     prometheus.Counter
	swallowedErrors *prometheus.CounterVec
}

// New creates the collectors and registers them, plus the Go runtime collectors, on a new registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		searches: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "searches_total",
			Help:      "Knowledge searches by outcome",
		}, []string{"status"}),
		searchDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_duration_seconds",
			Help:      "End-to-end knowledge search latency including query embedding",
			Buckets:   prometheus.DefBuckets,
		}),
		searchResults: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_results",
			Help:      "Number of results returned per search",
			Buckets:   []float64{0, 1, 2, 3, 5, 10, 20, 50},
		}),
		rebuilds: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "index_rebuilds_total",
			Help:      "Vector index rebuilds by outcome",
		}, []string{"status"}),
		rebuildDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "index_rebuild_duration_seconds",
			Help:      "Vector index rebuild latency",
			Buckets:   prometheus.DefBuckets,
		}),
		skippedEntries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "index_skipped_entries_total",
			Help:      "Entries left out of the index by reason",
		}, []string{"reason"}),
		indexSize: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "index_size",
			Help:      "Vectors in the live index",
		}),
		tombstones: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "index_tombstones",
			Help:      "Index positions hidden until the next rebuild",
		}),
		embeddings: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "embeddings_total",
			Help:      "Texts embedded by mode",
		}, []string{"mode"}),
		embeddingMode: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "embedding_mode",
			Help:      "1 for the active embedding mode",
		}, []string{"mode"}),
		degradations: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "embedding_degradations_total",
			Help:      "Switches from the primary embedding provider to the fallback",
		}),
		truncations: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "embedding_truncations_total",
			Help:      "Inputs truncated to the embedding length budget",
		}),
		swallowedErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "index_maintenance_errors_total",
			Help:      "Index maintenance failures logged after a successful store write",
		}, []string{"operation"}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveSearch records one search.
func (m *Metrics) ObserveSearch(status string, d time.Duration, results int) {
	if m == nil {
		return
	}
	m.searches.WithLabelValues(status).Inc()
	m.searchDuration.Observe(d.Seconds())
	m.searchResults.Observe(float64(results))
}

// ObserveRebuild records one rebuild attempt.
func (m *Metrics) ObserveRebuild(status string, d time.Duration) {
	if m == nil {
		return
	}
	m.rebuilds.WithLabelValues(status).Inc()
	m.rebuildDuration.Observe(d.Seconds())
}

// SkippedEntry counts an entry left out of the index.
func (m *Metrics) SkippedEntry(reason string) {
	if m == nil {
		return
	}
	m.skippedEntries.WithLabelValues(reason).Inc()
}

// SetIndexSize publishes the live index size and tombstone count.
func (m *Metrics) SetIndexSize(size, tombstones int) {
	if m == nil {
		return
	}
	m.indexSize.Set(float64(size))
	m.tombstones.Set(float64(tombstones))
}

// Embedded counts n texts embedded in the given mode.
func (m *Metrics) Embedded(mode string, n int) {
	if m == nil {
		return
	}
	m.embeddings.WithLabelValues(mode).Add(float64(n))
}

// SetEmbeddingMode marks mode as the active embedding mode.
func (m *Metrics) SetEmbeddingMode(mode string) {
	if m == nil {
		return
	}
	m.embeddingMode.Reset()
	m.embeddingMode.WithLabelValues(mode).Set(1)
}

// Degraded counts a switch to the fallback embedder.
func (m *Metrics) Degraded() {
	if m == nil {
		return
	}
	m.degradations.Inc()
}

// Truncated counts a truncated embedding input.
func (m *Metrics) Truncated() {
	if m == nil {
		return
	}
	m.truncations.Inc()
}

// MaintenanceError counts a swallowed index maintenance failure.
func (m *Metrics) MaintenanceError(operation string) {
	if m == nil {
		return
	}
	m.swallowedErrors.WithLabelValues(operation).Inc()
}
