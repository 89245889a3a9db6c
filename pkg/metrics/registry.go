// Package metrics defines nil-safe metrics facades for the engine's
// internal subsystems. The cache is the one subsystem with an interface
// here (CacheMetrics) and a Prometheus-backed implementation in
// pkg/metrics/prometheus, wired together through a constructor-registration
// indirection that avoids an import cycle between the two packages.
package metrics

import (
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registry *prometheus.Registry
	enabled  atomic.Bool
	initOnce sync.Once
)

// InitRegistry enables metrics collection, creating the Prometheus registry
// that all subsystem metrics constructors register their collectors
// against. Safe to call multiple times; only the first call takes effect.
func InitRegistry() *prometheus.Registry {
	initOnce.Do(func() {
		registry = prometheus.NewRegistry()
		enabled.Store(true)
	})
	return registry
}

// IsEnabled reports whether InitRegistry has been called. Subsystem
// constructors (NewCacheMetrics, etc.) use this to return nil rather than
// register collectors when metrics collection was never enabled.
func IsEnabled() bool {
	return enabled.Load()
}

// GetRegistry returns the process-wide metrics registry, initializing it on
// first use.
func GetRegistry() *prometheus.Registry {
	if registry == nil {
		return InitRegistry()
	}
	return registry
}
