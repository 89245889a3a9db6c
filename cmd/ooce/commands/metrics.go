package commands

import (
	"context"
	"net/http"
	"time"

	"github.com/flashcore/ooce/internal/logger"
	"github.com/flashcore/ooce/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	// Registers the Prometheus-backed metrics.CacheMetrics constructor.
	_ "github.com/flashcore/ooce/pkg/metrics/prometheus"
)

var metricsAddr string

func init() {
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "Address to serve Prometheus metrics on (disabled if empty)")
}

// maybeStartMetricsServer enables the metrics registry and serves it over
// HTTP when --metrics-addr is set, returning a shutdown func to defer.
// When unset, metrics.NewCacheMetrics() stays nil and every ObserveX call
// on the engine's cache is a no-op.
func maybeStartMetricsServer() func(context.Context) error {
	if metricsAddr == "" {
		return func(context.Context) error { return nil }
	}

	reg := metrics.InitRegistry()
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: metricsAddr, Handler: mux}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics: server failed", logger.Err(err))
		}
	}()
	logger.Info("metrics: serving", "addr", metricsAddr)

	return func(ctx context.Context) error {
		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
