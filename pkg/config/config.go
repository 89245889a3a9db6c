// Package config loads Engine configuration from layered sources:
// environment variables, a config file, and finally hardcoded defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/flashcore/ooce/internal/bytesize"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Config captures the static settings an Engine is constructed from.
//
// Configuration sources (highest to lowest precedence):
//  1. Environment variables (OOCE_*)
//  2. Configuration file (YAML; cmd/ooce's --config flag selects its path)
//  3. Default values
//
// No other CLI flag is bound to a configuration key.
type Config struct {
	// MountDir is the directory backing files and flash_malloc scratch
	// space are created under.
	MountDir string `mapstructure:"mount_dir" yaml:"mount_dir"`

	// Cache configures the buffer cache's memory budget and discard policy.
	Cache CacheConfig `mapstructure:"cache" yaml:"cache"`

	// NIOThreads is the fixed size of the I/O executor's worker pool.
	NIOThreads int `mapstructure:"n_io_threads" yaml:"n_io_threads"`

	// NComputeThreads is the initial size of the scheduler's compute
	// worker pool; SetNumComputeThreads can resize it at runtime.
	NComputeThreads int `mapstructure:"n_compute_threads" yaml:"n_compute_threads"`

	// Scheduler mirrors SchedulerOptions: prioritizer and hazard detection
	// toggles and the pipeline-depth cap. The single-use discard toggle
	// lives in Cache.
	Scheduler SchedulerConfig `mapstructure:"scheduler" yaml:"scheduler"`

	// IO holds direct-I/O sector size, retry count, and chunking threshold
	// settings; see IOConfig for which of them the engine reads.
	IO IOConfig `mapstructure:"io" yaml:"io"`

	// Logging controls log output behavior.
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Telemetry controls OpenTelemetry distributed tracing.
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`
}

// CacheConfig configures the buffer cache.
type CacheConfig struct {
	// MaxSize is the memory budget for committed buffer bytes.
	MaxSize bytesize.ByteSize `mapstructure:"max_size" yaml:"max_size"`

	// SingleUseDiscard evicts buffers immediately on release instead of
	// keeping them zero-ref for reuse.
	SingleUseDiscard bool `mapstructure:"single_use_discard" yaml:"single_use_discard"`
}

// SchedulerConfig mirrors scheduler.Options.
type SchedulerConfig struct {
	EnablePrioritizer  bool `mapstructure:"enable_prioritizer" yaml:"enable_prioritizer"`
	EnableOverlapCheck bool `mapstructure:"enable_overlap_check" yaml:"enable_overlap_check"`

	// MaxInMem bounds how many tasks may hold committed buffers at once
	// (admitted but not yet released), defaulting to 4x NComputeThreads to
	// keep enough I/O in flight to overlap with compute.
	MaxInMem int `mapstructure:"max_in_mem" yaml:"max_in_mem"`
}

// IOConfig holds direct-I/O backend settings. The fields are decoded,
// defaulted and validated, but no other package reads them: the engine
// does not pass them to pkg/filehandle or pkg/ioexec.
type IOConfig struct {
	// SectorSize names a logical sector size. pkg/filehandle.OpenDirect
	// does not read it; it always probes BLKSSZGET and falls back to 512.
	SectorSize uint64 `mapstructure:"sector_size" yaml:"sector_size"`

	// RetryCount names a hazard-retry bound. The I/O executor does not
	// read it; it uses the fixed ioexec.MaxRetries.
	RetryCount int `mapstructure:"retry_count" yaml:"retry_count"`

	// ChunkThreshold names a transfer size for chunking contiguous I/O.
	// pkg/filehandle does not read it; it splits at its fixed 32 MiB
	// chunk size.
	ChunkThreshold bytesize.ByteSize `mapstructure:"chunk_threshold" yaml:"chunk_threshold"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
	Output string `mapstructure:"output" yaml:"output"`
}

// TelemetryConfig controls OpenTelemetry distributed tracing.
type TelemetryConfig struct {
	Enabled    bool    `mapstructure:"enabled" yaml:"enabled"`
	Endpoint   string  `mapstructure:"endpoint" yaml:"endpoint"`
	Insecure   bool    `mapstructure:"insecure" yaml:"insecure"`
	SampleRate float64 `mapstructure:"sample_rate" yaml:"sample_rate"`

	// Profiling controls continuous CPU/memory profiling, independent of
	// span tracing above.
	Profiling ProfilingConfig `mapstructure:"profiling" yaml:"profiling"`
}

// ProfilingConfig controls continuous profiling via Pyroscope.
type ProfilingConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint is the Pyroscope server URL (e.g. "http://localhost:4040").
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// ProfileTypes selects which profiles to collect: cpu, alloc_objects,
	// alloc_space, inuse_objects, inuse_space, goroutines, mutex_count,
	// mutex_duration, block_count, block_duration.
	ProfileTypes []string `mapstructure:"profile_types" yaml:"profile_types"`
}

// Load reads configuration from configPath (or the default search path
// when empty), overlays environment variables and defaults, and returns
// the merged, validated result. Environment variables are decoded only
// together with a config file: when no file is found, the result is built
// from defaults alone.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	found, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	if found {
		if err := v.Unmarshal(cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
			return nil, fmt.Errorf("config: unmarshal: %w", err)
		}
	}

	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}
	return cfg, nil
}

func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix("OOCE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		return
	}
	v.AddConfigPath(DefaultConfigDir())
	v.SetConfigName("config")
	v.SetConfigType("yaml")
}

func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("config: read config file: %w", err)
	}
	return true, nil
}

func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		byteSizeDecodeHook(),
		durationDecodeHook(),
	)
}

func byteSizeDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(bytesize.ByteSize(0)) {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			return bytesize.ParseByteSize(v)
		case int:
			return bytesize.ByteSize(v), nil
		case int64:
			return bytesize.ByteSize(v), nil
		case uint64:
			return bytesize.ByteSize(v), nil
		case float64:
			return bytesize.ByteSize(v), nil
		default:
			return data, nil
		}
	}
}

func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

// DefaultConfigDir returns $XDG_CONFIG_HOME/ooce, falling back to
// ~/.config/ooce when XDG_CONFIG_HOME is unset.
func DefaultConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "ooce")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "ooce")
}
