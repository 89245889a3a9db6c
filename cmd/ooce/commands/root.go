package commands

import (
	"fmt"

	"github.com/flashcore/ooce/internal/logger"
	"github.com/flashcore/ooce/pkg/config"
	"github.com/spf13/cobra"
)

var configPath string

// Version is the build version reported to profiling/tracing backends.
// Overridden at link time in real release builds.
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:   "ooce",
	Short: "Out-of-core execution engine demonstration driver",
	Long: `ooce drives the out-of-core execution engine outside of any
embedding application: map backing files, submit a task graph, and wait
for completion.

Configuration sources (highest to lowest precedence):
  1. Environment variables (OOCE_*)
  2. Configuration file (--config, default $XDG_CONFIG_HOME/ooce/config.yaml)
  3. Default values`,
}

// Execute runs the root command, returning any error for main to report.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file")
	rootCmd.AddCommand(setupCmd, runCmd, flushCmd, statsCmd)
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := logger.Init(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}); err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, nil
}
