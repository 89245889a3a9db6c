package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/flashcore/ooce/pkg/config"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var setupForce bool

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Write a default configuration file",
	Long: `Write a config.yaml populated with default values to the config
path (--config, or $XDG_CONFIG_HOME/ooce/config.yaml), for editing before
the first "ooce run".`,
	RunE: runSetup,
}

func init() {
	setupCmd.Flags().BoolVar(&setupForce, "force", false, "Overwrite an existing config file")
}

func runSetup(cmd *cobra.Command, args []string) error {
	target := configPath
	if target == "" {
		target = filepath.Join(config.DefaultConfigDir(), "config.yaml")
	}

	if !setupForce {
		if _, err := os.Stat(target); err == nil {
			return fmt.Errorf("config file already exists at %s (use --force to overwrite)", target)
		}
	}

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	out, err := yaml.Marshal(config.GetDefaultConfig())
	if err != nil {
		return fmt.Errorf("marshal default config: %w", err)
	}
	if err := os.WriteFile(target, out, 0o644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}

	fmt.Printf("Configuration file created at: %s\n", target)
	fmt.Println("Edit it, then run: ooce run")
	return nil
}
