package commands

import (
	"os"
	"path/filepath"
	"testing"
)

func TestRunSetupWritesConfigFile(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "config.yaml")

	configPath = target
	setupForce = false
	defer func() { configPath, setupForce = "", false }()

	if err := runSetup(setupCmd, nil); err != nil {
		t.Fatalf("runSetup: %v", err)
	}

	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}

	if err := runSetup(setupCmd, nil); err == nil {
		t.Fatal("expected second runSetup without --force to fail")
	}

	setupForce = true
	if err := runSetup(setupCmd, nil); err != nil {
		t.Fatalf("runSetup with --force: %v", err)
	}
}
