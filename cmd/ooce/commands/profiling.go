package commands

import (
	"github.com/flashcore/ooce/internal/logger"
	"github.com/flashcore/ooce/internal/telemetry"
	"github.com/flashcore/ooce/pkg/config"
)

// maybeStartProfiling enables continuous Pyroscope profiling when
// cfg.Telemetry.Profiling.Enabled is set, returning a shutdown func to defer.
// When disabled, InitProfiling still runs to leave IsProfilingEnabled
// correctly reporting false, and the returned shutdown is a no-op.
func maybeStartProfiling(cfg *config.Config) func() error {
	shutdown, err := telemetry.InitProfiling(telemetry.ProfilingConfig{
		Enabled:        cfg.Telemetry.Profiling.Enabled,
		ServiceName:    "ooce",
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Profiling.Endpoint,
		ProfileTypes:   cfg.Telemetry.Profiling.ProfileTypes,
	})
	if err != nil {
		logger.Error("profiling: init failed", logger.Err(err))
		return func() error { return nil }
	}
	if telemetry.IsProfilingEnabled() {
		logger.Info("profiling enabled", "endpoint", cfg.Telemetry.Profiling.Endpoint, "profile_types", cfg.Telemetry.Profiling.ProfileTypes)
	}
	return func() error {
		return shutdown()
	}
}
