// Package metrics holds the Prometheus collectors for link resolution and click
// ingestion. A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const Namespace = "shortlink"

type Metrics struct {
	// Resolve path
	CacheLookups    *prometheus.CounterVec
	ResolveOutcomes *prometheus.CounterVec
	StoreLookup     *prometheus.HistogramVec

	// Click queue
	ClicksEnqueued   prometheus.Counter
	ClicksDropped    *prometheus.CounterVec
	AggregatesStored prometheus.Counter
	FlushFailures    prometheus.Counter
	FlushDuration    prometheus.Histogram
	QueueDepth       prometheus.Gauge
}

// New creates and registers all collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	factory := promauto.With(reg)
	m := &Metrics{}
	m.initResolveMetrics(factory)
	m.initClickMetrics(factory)
	return m
}

func (m *Metrics) initResolveMetrics(factory promauto.Factory) {
	m.CacheLookups = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "resolver",
			Name:      "cache_lookups_total",
			Help:      "Link cache lookups by result",
		},
		[]string{"result"},
	)

	m.ResolveOutcomes = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "resolver",
			Name:      "outcomes_total",
			Help:      "Resolve results by outcome (redirect or wire code)",
		},
		[]string{"outcome"},
	)

	m.StoreLookup = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "resolver",
			Name:      "store_lookup_seconds",
			Help:      "Latency of link store lookups",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"status"},
	)
}

func (m *Metrics) initClickMetrics(factory promauto.Factory) {
	m.ClicksEnqueued = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "clicks",
			Name:      "enqueued_total",
			Help:      "Click events accepted by the ingestion queue",
		},
	)

	m.ClicksDropped = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "clicks",
			Name:      "dropped_total",
			Help:      "Click events dropped before reaching the store",
		},
		[]string{"reason"},
	)

	m.AggregatesStored = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "clicks",
			Name:      "aggregates_stored_total",
			Help:      "Coalesced click aggregates written to the store",
		},
	)

	m.FlushFailures = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "clicks",
			Name:      "flush_failures_total",
			Help:      "Aggregate upserts that failed during a flush",
		},
	)

	m.FlushDuration = factory.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "clicks",
			Name:      "flush_duration_seconds",
			Help:      "Time spent writing one flush batch",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~10s
		},
	)

	m.QueueDepth = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "clicks",
			Name:      "queue_depth",
			Help:      "Click events waiting for the next flush",
		},
	)
}

// Drop reasons.
const (
	DropQueueFull = "queue_full"
	DropStopped   = "stopped"
	DropFlush     = "flush_error"
	DropKeyError  = "key_error"
)

func (m *Metrics) CacheHit() {
	if m == nil {
		return
	}
	m.CacheLookups.WithLabelValues("hit").Inc()
}

func (m *Metrics) CacheMiss() {
	if m == nil {
		return
	}
	m.CacheLookups.WithLabelValues("miss").Inc()
}

func (m *Metrics) ObserveOutcome(outcome string) {
	if m == nil {
		return
	}
	m.ResolveOutcomes.WithLabelValues(outcome).Inc()
}

// ObserveStoreLookup records one store round trip. status is "ok", "not_found" or "error".
func (m *Metrics) ObserveStoreLookup(status string, d time.Duration) {
	if m == nil {
		return
	}
	m.StoreLookup.WithLabelValues(status).Observe(d.Seconds())
}

func (m *Metrics) ClickEnqueued(depth int) {
	if m == nil {
		return
	}
	m.ClicksEnqueued.Inc()
	m.QueueDepth.Set(float64(depth))
}

func (m *Metrics) ClicksDroppedN(reason string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ClicksDropped.WithLabelValues(reason).Add(float64(n))
}

// ObserveFlush records the result of one flush cycle.
func (m *Metrics) ObserveFlush(stored, failed int, d time.Duration) {
	if m == nil {
		return
	}
	m.AggregatesStored.Add(float64(stored))
	m.FlushFailures.Add(float64(failed))
	m.FlushDuration.Observe(d.Seconds())
}

func (m *Metrics) SetQueueDepth(depth int) {
	if m == nil {
		return
	}
	m.QueueDepth.Set(float64(depth))
}

// Handler serves the registry in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
