package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/flashcore/ooce/pkg/metrics"
)

// cacheMetrics is the Prometheus implementation of metrics.CacheMetrics.
type cacheMetrics struct {
	allocOps        *prometheus.CounterVec
	allocDuration   *prometheus.HistogramVec
	writeBackOps    prometheus.Counter
	writeBackBytes  prometheus.Histogram
	writeBackTiming prometheus.Histogram
	evictions       *prometheus.CounterVec
	evictedBytes    *prometheus.CounterVec
	backlogDepth    prometheus.Gauge
	occupancy       *prometheus.GaugeVec
	committedBytes  prometheus.Gauge
	maxBytes        prometheus.Gauge
}

func init() {
	metrics.RegisterCacheMetricsConstructor(NewCacheMetrics)
}

// NewCacheMetrics creates a new Prometheus-backed metrics.CacheMetrics
// instance. Returns nil if metrics are not enabled.
func NewCacheMetrics() metrics.CacheMetrics {
	if !metrics.IsEnabled() {
		return nil
	}
	reg := metrics.GetRegistry()

	return &cacheMetrics{
		allocOps: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "ooce_cache_allocate_total",
				Help: "Total number of buffer cache allocations by outcome",
			},
			[]string{"outcome"}, // "hit", "miss"
		),
		allocDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ooce_cache_allocate_duration_seconds",
				Help:    "Time spent servicing a buffer cache allocation",
				Buckets: prometheus.ExponentialBuckets(0.00005, 4, 10),
			},
			[]string{"outcome"},
		),
		writeBackOps: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "ooce_cache_writeback_total",
				Help: "Total number of dirty buffers flushed to backing storage",
			},
		),
		writeBackBytes: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Name:    "ooce_cache_writeback_bytes",
				Help:    "Size distribution of buffer write-backs",
				Buckets: prometheus.ExponentialBuckets(4096, 4, 10),
			},
		),
		writeBackTiming: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Name:    "ooce_cache_writeback_duration_seconds",
				Help:    "Time spent flushing a dirty buffer to backing storage",
				Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10),
			},
		),
		evictions: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "ooce_cache_evictions_total",
				Help: "Total number of zero-ref buffers evicted, by reason",
			},
			[]string{"reason"}, // "budget", "flush"
		),
		evictedBytes: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "ooce_cache_evicted_bytes_total",
				Help: "Total bytes reclaimed by eviction, by reason",
			},
			[]string{"reason"},
		),
		backlogDepth: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "ooce_cache_backlog_depth",
				Help: "Current number of allocation requests waiting on the backlog",
			},
		),
		occupancy: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "ooce_cache_buffers",
				Help: "Current number of buffers by cache state",
			},
			[]string{"state"}, // "active", "in_io", "zero_ref"
		),
		committedBytes: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "ooce_cache_committed_bytes",
				Help: "Bytes currently committed across all cache states",
			},
		),
		maxBytes: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "ooce_cache_max_bytes",
				Help: "Configured memory budget for the buffer cache",
			},
		),
	}
}

func (m *cacheMetrics) ObserveAllocate(hit bool, bytes uint64, duration time.Duration) {
	if m == nil {
		return
	}
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	m.allocOps.WithLabelValues(outcome).Inc()
	m.allocDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

func (m *cacheMetrics) ObserveWriteBack(bytes uint64, duration time.Duration) {
	if m == nil {
		return
	}
	m.writeBackOps.Inc()
	m.writeBackBytes.Observe(float64(bytes))
	m.writeBackTiming.Observe(duration.Seconds())
}

func (m *cacheMetrics) ObserveEviction(reason string, bytes uint64) {
	if m == nil {
		return
	}
	m.evictions.WithLabelValues(reason).Inc()
	m.evictedBytes.WithLabelValues(reason).Add(float64(bytes))
}

func (m *cacheMetrics) ObserveBacklog(depth int) {
	if m == nil {
		return
	}
	m.backlogDepth.Set(float64(depth))
}

func (m *cacheMetrics) RecordOccupancy(active, inIO, zeroRef int, committedBytes, maxBytes uint64) {
	if m == nil {
		return
	}
	m.occupancy.WithLabelValues("active").Set(float64(active))
	m.occupancy.WithLabelValues("in_io").Set(float64(inIO))
	m.occupancy.WithLabelValues("zero_ref").Set(float64(zeroRef))
	m.committedBytes.Set(float64(committedBytes))
	m.maxBytes.Set(float64(maxBytes))
}

var _ metrics.CacheMetrics = (*cacheMetrics)(nil)
