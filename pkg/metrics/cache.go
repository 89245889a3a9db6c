package metrics

import "time"

// CacheMetrics is the buffer cache's metrics facade. Implementations must
// tolerate a nil receiver so call sites never need a liveness check beyond
// the one performed when the metrics object was constructed.
//
// Example usage:
//
//	m := metrics.NewCacheMetrics()
//	c := cache.New(cache.Options{Metrics: m, ...}, exec)
type CacheMetrics interface {
	ObserveAllocate(hit bool, bytes uint64, duration time.Duration)
	ObserveWriteBack(bytes uint64, duration time.Duration)
	ObserveEviction(reason string, bytes uint64)
	ObserveBacklog(depth int)
	RecordOccupancy(active, inIO, zeroRef int, committedBytes, maxBytes uint64)
}

// NewCacheMetrics creates a new Prometheus-backed CacheMetrics instance.
//
// Returns nil if metrics are not enabled (InitRegistry not called). When
// nil is returned, callers should pass nil through to the cache, which
// results in zero overhead.
func NewCacheMetrics() CacheMetrics {
	if !IsEnabled() {
		return nil
	}
	return newPrometheusCacheMetrics()
}

// newPrometheusCacheMetrics is implemented in pkg/metrics/prometheus/cache.go.
// This indirection avoids an import cycle: pkg/metrics/prometheus imports
// pkg/metrics for the registry, so pkg/metrics cannot import it back.
var newPrometheusCacheMetrics func() CacheMetrics

// RegisterCacheMetricsConstructor registers the Prometheus cache metrics
// constructor. Called from pkg/metrics/prometheus/cache.go's init().
func RegisterCacheMetricsConstructor(constructor func() CacheMetrics) {
	newPrometheusCacheMetrics = constructor
}
