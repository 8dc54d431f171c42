package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

// TestDefaultConfig_Dispatch verifies the dispatch defaults.
func TestDefaultConfig_Dispatch(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Dispatch.CommandPrefix != "/" {
		t.Errorf("CommandPrefix = %q, want %q", cfg.Dispatch.CommandPrefix, "/")
	}
	if cfg.Dispatch.DefaultAction != "reply" {
		t.Errorf("DefaultAction = %q, want %q", cfg.Dispatch.DefaultAction, "reply")
	}
	if cfg.Dispatch.FallbackReply == "" {
		t.Error("FallbackReply should not be empty")
	}
}

// TestDefaultConfig_Context verifies context TTL and sweep defaults.
func TestDefaultConfig_Context(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Context.TTLSeconds != 300 {
		t.Errorf("TTLSeconds = %d, want 300", cfg.Context.TTLSeconds)
	}
	if cfg.Context.SweepSchedule == "" {
		t.Error("SweepSchedule should have a default")
	}
	if cfg.Context.HistoryLimit == 0 {
		t.Error("HistoryLimit should not be zero")
	}
}

// TestDefaultConfig_Escapes verifies escape token defaults cover both languages.
func TestDefaultConfig_Escapes(t *testing.T) {
	cfg := DefaultConfig()

	all := cfg.Escapes.All()
	for _, want := range []string{"cancel", "cancelar", "pausa", "continuar", "volver"} {
		found := false
		for _, tok := range all {
			if tok == want {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("escape token %q missing from defaults", want)
		}
	}
}

// TestDefaultConfig_Valid verifies the defaults pass their own validation.
func TestDefaultConfig_Valid(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Errorf("DefaultConfig().Validate() = %v", err)
	}
}

func TestValidate_Rejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty prefix", func(c *Config) { c.Dispatch.CommandPrefix = "" }},
		{"whitespace prefix", func(c *Config) { c.Dispatch.CommandPrefix = " /" }},
		{"bad default action", func(c *Config) { c.Dispatch.DefaultAction = "panic" }},
		{"zero ttl", func(c *Config) { c.Context.TTLSeconds = 0 }},
		{"negative history", func(c *Config) { c.Context.HistoryLimit = -1 }},
		{"bad cron", func(c *Config) { c.Context.SweepSchedule = "every five minutes" }},
		{"zero send rate", func(c *Config) { c.RateLimits.SendPerSecond = 0 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.json"))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Dispatch.CommandPrefix != "/" {
		t.Errorf("CommandPrefix = %q, want default", cfg.Dispatch.CommandPrefix)
	}
}

func TestLoadConfig_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	body := `{
		"dispatch": {"command_prefix": "!", "owner": "5215512341234"},
		"context": {"ttl_seconds": 120},
		"whatsapp": {"allow_from": ["5215512341234", 5215598765432]}
	}`
	if err := os.WriteFile(path, []byte(body), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.Dispatch.CommandPrefix != "!" {
		t.Errorf("CommandPrefix = %q, want %q", cfg.Dispatch.CommandPrefix, "!")
	}
	if cfg.Dispatch.Owner != "5215512341234" {
		t.Errorf("Owner = %q", cfg.Dispatch.Owner)
	}
	if cfg.Context.TTLSeconds != 120 {
		t.Errorf("TTLSeconds = %d, want 120", cfg.Context.TTLSeconds)
	}
	// Untouched sections keep their defaults.
	if cfg.Dispatch.DefaultAction != "reply" {
		t.Errorf("DefaultAction = %q, want default", cfg.Dispatch.DefaultAction)
	}

	want := []string{"5215512341234", "5215598765432"}
	if len(cfg.WhatsApp.AllowFrom) != len(want) {
		t.Fatalf("AllowFrom = %v, want %v", cfg.WhatsApp.AllowFrom, want)
	}
	for i := range want {
		if cfg.WhatsApp.AllowFrom[i] != want[i] {
			t.Errorf("AllowFrom[%d] = %q, want %q", i, cfg.WhatsApp.AllowFrom[i], want[i])
		}
	}
}

func TestLoadConfig_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"dispatch": {"command_prefix": "!"}}`), 0600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("CHARLA_COMMAND_PREFIX", "#")
	t.Setenv("CHARLA_CONTEXT_TTL_SECONDS", "60")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Dispatch.CommandPrefix != "#" {
		t.Errorf("CommandPrefix = %q, want env override", cfg.Dispatch.CommandPrefix)
	}
	if cfg.Context.TTLSeconds != 60 {
		t.Errorf("TTLSeconds = %d, want env override", cfg.Context.TTLSeconds)
	}
}

func TestLoadConfig_InvalidConfigRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"context": {"ttl_seconds": -5}}`), 0600); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadConfig(path); err == nil {
		t.Error("expected error for negative ttl")
	}
}

func TestSaveConfig_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")

	cfg := DefaultConfig()
	cfg.Dispatch.Owner = "5215512341234"
	if err := SaveConfig(path, cfg); err != nil {
		t.Fatalf("SaveConfig: %v", err)
	}

	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if loaded.Dispatch.Owner != cfg.Dispatch.Owner {
		t.Errorf("Owner = %q, want %q", loaded.Dispatch.Owner, cfg.Dispatch.Owner)
	}
}

func TestFlexibleStringSlice_Invalid(t *testing.T) {
	var f FlexibleStringSlice
	if err := json.Unmarshal([]byte(`"not-a-list"`), &f); err == nil {
		t.Error("expected error for scalar value")
	}
}
