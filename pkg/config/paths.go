package config

import (
	"os"
	"path/filepath"
	"strings"
)

const (
	EnvCharlaConfig = "CHARLA_CONFIG"
	EnvCharlaHome   = "CHARLA_HOME"
)

type RuntimePaths struct {
	HomeDir     string
	ConfigPath  string
	StorePath   string
	SessionPath string
}

// ResolveRuntimePaths locates the config file and the two databases.
// CHARLA_CONFIG pins the config file directly; otherwise everything
// lives under CHARLA_HOME (default ~/.charla).
func ResolveRuntimePaths() RuntimePaths {
	if configPath := expandHome(strings.TrimSpace(os.Getenv(EnvCharlaConfig))); configPath != "" {
		return buildRuntimePaths(filepath.Dir(configPath), configPath)
	}

	homeDir := expandHome(strings.TrimSpace(os.Getenv(EnvCharlaHome)))
	if homeDir == "" {
		homeDir = defaultCharlaHome()
	}

	return buildRuntimePaths(homeDir, filepath.Join(homeDir, "config.json"))
}

// RuntimePathsFor pins the config file explicitly, deriving the home
// directory from its location. Used by the CLI --config flag.
func RuntimePathsFor(configPath string) RuntimePaths {
	configPath = expandHome(configPath)
	return buildRuntimePaths(filepath.Dir(configPath), configPath)
}

func defaultCharlaHome() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ".charla"
	}
	return filepath.Join(home, ".charla")
}

func buildRuntimePaths(homeDir, configPath string) RuntimePaths {
	return RuntimePaths{
		HomeDir:     homeDir,
		ConfigPath:  configPath,
		StorePath:   filepath.Join(homeDir, "charla.db"),
		SessionPath: filepath.Join(homeDir, "whatsapp.db"),
	}
}

// StoreDBPath returns the configured store path or the default under home.
func (c *Config) StoreDBPath(paths RuntimePaths) string {
	if p := strings.TrimSpace(c.Storage.DBPath); p != "" {
		return expandHome(p)
	}
	return paths.StorePath
}

// SessionDBPath returns the whatsmeow container path or the default.
func (c *Config) SessionDBPath(paths RuntimePaths) string {
	if p := strings.TrimSpace(c.WhatsApp.DBPath); p != "" {
		return expandHome(p)
	}
	return paths.SessionPath
}

// LogFilePath returns the log file location, empty when file logging
// is not configured.
func (c *Config) LogFilePath() string {
	return expandHome(strings.TrimSpace(c.Logging.File))
}
