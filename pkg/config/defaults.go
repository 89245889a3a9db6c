package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/flashcore/ooce/internal/bytesize"
)

// ApplyDefaults sets default values for any unspecified fields. Zero
// values (0, "", false) are replaced with sane defaults; explicit values
// are preserved.
func ApplyDefaults(cfg *Config) {
	if cfg.MountDir == "" {
		cfg.MountDir = filepath.Join(os.TempDir(), "ooce")
	}
	applyCacheDefaults(&cfg.Cache)
	if cfg.NIOThreads == 0 {
		cfg.NIOThreads = 4
	}
	if cfg.NComputeThreads == 0 {
		cfg.NComputeThreads = 4
	}
	applySchedulerDefaults(&cfg.Scheduler, cfg.NComputeThreads)
	applyIODefaults(&cfg.IO)
	applyLoggingDefaults(&cfg.Logging)
	applyTelemetryDefaults(&cfg.Telemetry)
}

func applyCacheDefaults(cfg *CacheConfig) {
	if cfg.MaxSize == 0 {
		cfg.MaxSize = bytesize.ByteSize(4 * bytesize.GiB)
	}
}

func applySchedulerDefaults(cfg *SchedulerConfig, nComputeThreads int) {
	// Both flags default to true; since bool zero value is false, a caller
	// leaving the section empty gets the conservative correctness-first
	// posture rather than accidentally opting out of hazard detection.
	if !cfg.EnablePrioritizer && !cfg.EnableOverlapCheck {
		cfg.EnablePrioritizer = true
		cfg.EnableOverlapCheck = true
	}
	if cfg.MaxInMem <= 0 {
		cfg.MaxInMem = 4 * nComputeThreads
	}
}

func applyIODefaults(cfg *IOConfig) {
	if cfg.RetryCount == 0 {
		cfg.RetryCount = 5
	}
	if cfg.ChunkThreshold == 0 {
		cfg.ChunkThreshold = bytesize.ByteSize(32 * bytesize.MiB)
	}
	// SectorSize is left at 0; pkg/filehandle.OpenDirect probes
	// BLKSSZGET regardless of this field.
}

func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)
	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

func applyTelemetryDefaults(cfg *TelemetryConfig) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "localhost:4317"
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 1.0
	}
	applyProfilingDefaults(&cfg.Profiling)
}

// applyProfilingDefaults sets Pyroscope continuous-profiling defaults.
// Enabled stays false (opt-in) since its zero value already is.
func applyProfilingDefaults(cfg *ProfilingConfig) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "http://localhost:4040"
	}
}

// GetDefaultConfig returns a Config with all default values applied.
func GetDefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// Validate checks a decoded and defaulted Config for internal consistency.
func Validate(cfg *Config) error {
	if cfg.MountDir == "" {
		return errors.New("config: mount_dir is required")
	}
	if cfg.NIOThreads <= 0 {
		return errors.New("config: n_io_threads must be positive")
	}
	if cfg.NComputeThreads <= 0 {
		return errors.New("config: n_compute_threads must be positive")
	}
	if cfg.Cache.MaxSize == 0 {
		return errors.New("config: cache.max_size must be positive")
	}
	if cfg.IO.RetryCount <= 0 {
		return errors.New("config: io.retry_count must be positive")
	}
	if cfg.Scheduler.MaxInMem <= 0 {
		return errors.New("config: scheduler.max_in_mem must be positive")
	}
	switch strings.ToUpper(cfg.Logging.Level) {
	case "DEBUG", "INFO", "WARN", "ERROR":
	default:
		return errors.New("config: logging.level must be one of DEBUG, INFO, WARN, ERROR")
	}
	switch cfg.Logging.Format {
	case "text", "json":
	default:
		return errors.New("config: logging.format must be text or json")
	}
	return nil
}
