package main

import (
	"path/filepath"
	"testing"

	"github.com/charlabot/charla/pkg/config"
)

func TestFormatVersion(t *testing.T) {
	origVersion, origCommit := version, gitCommit
	defer func() { version, gitCommit = origVersion, origCommit }()

	version, gitCommit = "1.2.0", ""
	if got := formatVersion(); got != "1.2.0" {
		t.Errorf("formatVersion() = %q, want %q", got, "1.2.0")
	}

	gitCommit = "abc1234"
	if got := formatVersion(); got != "1.2.0 (git: abc1234)" {
		t.Errorf("formatVersion() = %q, want %q", got, "1.2.0 (git: abc1234)")
	}
}

func TestRuntimePathsFlagOverride(t *testing.T) {
	orig := configOverride
	defer func() { configOverride = orig }()

	// The flag must win even when the environment points elsewhere.
	t.Setenv(config.EnvCharlaHome, t.TempDir())
	configOverride = "/srv/charla/config.json"

	paths := runtimePaths()
	if paths.ConfigPath != "/srv/charla/config.json" {
		t.Errorf("ConfigPath = %q, want the flag value", paths.ConfigPath)
	}
	if paths.HomeDir != "/srv/charla" {
		t.Errorf("HomeDir = %q, want /srv/charla", paths.HomeDir)
	}
	if paths.StorePath != filepath.Join("/srv/charla", "charla.db") {
		t.Errorf("StorePath = %q, want it beside the config", paths.StorePath)
	}

	configOverride = ""
	paths = runtimePaths()
	if paths.ConfigPath == "/srv/charla/config.json" {
		t.Error("without the flag the environment default should win")
	}
}
