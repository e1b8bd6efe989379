// Package telemetry exposes Prometheus metrics for the decision engine.
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder records decision cycle and cache metrics.
// A nil *Recorder is valid and records nothing, callers never need to guard.
type Recorder struct {
	decisionsTotal   *prometheus.CounterVec
	degradedTotal    prometheus.Counter
	failuresTotal    *prometheus.CounterVec
	cycleDuration    prometheus.Histogram
	cacheHitsTotal   *prometheus.CounterVec
	cacheMissesTotal *prometheus.CounterVec
}

// New creates a recorder registered on the default Prometheus registry.
func New() *Recorder {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith creates a recorder registered on the given registry.
func NewWith(reg prometheus.Registerer) *Recorder {
	factory := promauto.With(reg)

	return &Recorder{
		decisionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "decision_engine_decisions_total",
				Help: "Total number of published decisions",
			},
			[]string{"symbol", "direction"},
		),
		degradedTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "decision_engine_decisions_degraded_total",
				Help: "Total number of decisions published in degraded mode",
			},
		),
		failuresTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "decision_engine_decision_failures_total",
				Help: "Total number of pipeline stage failures",
			},
			[]string{"stage"},
		),
		cycleDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "decision_engine_decision_duration_seconds",
				Help:    "Duration of a full decision cycle in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),
		cacheHitsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "decision_engine_cache_hits_total",
				Help: "Total number of cache hits",
			},
			[]string{"kind"},
		),
		cacheMissesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "decision_engine_cache_misses_total",
				Help: "Total number of cache misses",
			},
			[]string{"kind"},
		),
	}
}

// RecordDecision records a published decision.
func (r *Recorder) RecordDecision(symbol, direction string) {
	if r == nil {
		return
	}
	r.decisionsTotal.WithLabelValues(symbol, direction).Inc()
}

// RecordDegraded records a decision published in degraded mode.
func (r *Recorder) RecordDegraded() {
	if r == nil {
		return
	}
	r.degradedTotal.Inc()
}

// RecordFailure records a pipeline stage failure.
func (r *Recorder) RecordFailure(stage string) {
	if r == nil {
		return
	}
	r.failuresTotal.WithLabelValues(stage).Inc()
}

// RecordCycleDuration records how long a decision cycle took.
func (r *Recorder) RecordCycleDuration(d time.Duration) {
	if r == nil {
		return
	}
	r.cycleDuration.Observe(d.Seconds())
}

// RecordCacheHit records a cache hit for the given key kind.
func (r *Recorder) RecordCacheHit(kind string) {
	if r == nil {
		return
	}
	r.cacheHitsTotal.WithLabelValues(kind).Inc()
}

// RecordCacheMiss records a cache miss for the given key kind.
func (r *Recorder) RecordCacheMiss(kind string) {
	if r == nil {
		return
	}
	r.cacheMissesTotal.WithLabelValues(kind).Inc()
}

// Handler returns the HTTP handler serving the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
