package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/adhocore/gronx"
	"github.com/caarlos0/env/v11"
)

// FlexibleStringSlice is a []string that also accepts JSON numbers,
// so allow_from can contain both "5215512341234" and 5215512341234.
type FlexibleStringSlice []string

func (f *FlexibleStringSlice) UnmarshalJSON(data []byte) error {
	// Try []string first
	var ss []string
	if err := json.Unmarshal(data, &ss); err == nil {
		*f = ss
		return nil
	}

	// Try []interface{} to handle mixed types
	var raw []interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	result := make([]string, 0, len(raw))
	for _, v := range raw {
		switch val := v.(type) {
		case string:
			result = append(result, val)
		case float64:
			result = append(result, fmt.Sprintf("%.0f", val))
		default:
			result = append(result, fmt.Sprintf("%v", val))
		}
	}
	*f = result
	return nil
}

type Config struct {
	Dispatch   DispatchConfig   `json:"dispatch"`
	Context    ContextConfig    `json:"context"`
	Escapes    EscapeConfig     `json:"escapes"`
	WhatsApp   WhatsAppConfig   `json:"whatsapp"`
	Storage    StorageConfig    `json:"storage"`
	Logging    LoggingConfig    `json:"logging"`
	RateLimits RateLimitsConfig `json:"rate_limits"`
}

type DispatchConfig struct {
	// CommandPrefix is the sigil that marks a command message, e.g. "/".
	CommandPrefix string `json:"command_prefix" env:"CHARLA_COMMAND_PREFIX"`

	// DefaultAction decides what happens when no handler accepts a
	// message: "reply" sends FallbackReply, "ignore" drops it.
	DefaultAction string `json:"default_action" env:"CHARLA_DEFAULT_ACTION"`

	FallbackReply string `json:"fallback_reply" env:"CHARLA_FALLBACK_REPLY"`

	// Owner is the phone identity bootstrapped to the owner level on
	// first contact. Empty means no owner is seeded.
	Owner string `json:"owner" env:"CHARLA_OWNER"`
}

type ContextConfig struct {
	// TTLSeconds is how long an idle conversational context stays alive.
	TTLSeconds int `json:"ttl_seconds" env:"CHARLA_CONTEXT_TTL_SECONDS"`

	// SweepSchedule is a cron expression for the expired-context sweep.
	SweepSchedule string `json:"sweep_schedule" env:"CHARLA_CONTEXT_SWEEP_SCHEDULE"`

	// HistoryLimit bounds the step-history kept for the "back" escape.
	HistoryLimit int `json:"history_limit" env:"CHARLA_CONTEXT_HISTORY_LIMIT"`
}

// EscapeConfig maps each escape action to the token words that trigger it.
// Tokens are matched case-insensitively against the whole trimmed message.
type EscapeConfig struct {
	Reset  FlexibleStringSlice `json:"reset" env:"CHARLA_ESCAPES_RESET"`
	Pause  FlexibleStringSlice `json:"pause" env:"CHARLA_ESCAPES_PAUSE"`
	Resume FlexibleStringSlice `json:"resume" env:"CHARLA_ESCAPES_RESUME"`
	Back   FlexibleStringSlice `json:"back" env:"CHARLA_ESCAPES_BACK"`
}

// All returns every configured escape token.
func (e EscapeConfig) All() []string {
	out := make([]string, 0, len(e.Reset)+len(e.Pause)+len(e.Resume)+len(e.Back))
	out = append(out, e.Reset...)
	out = append(out, e.Pause...)
	out = append(out, e.Resume...)
	out = append(out, e.Back...)
	return out
}

type WhatsAppConfig struct {
	Enabled bool `json:"enabled" env:"CHARLA_WHATSAPP_ENABLED"`

	// DBPath is the whatsmeow session container. Empty means
	// <home>/whatsapp.db.
	DBPath    string              `json:"db_path" env:"CHARLA_WHATSAPP_DB_PATH"`
	AllowFrom FlexibleStringSlice `json:"allow_from" env:"CHARLA_WHATSAPP_ALLOW_FROM"`
}

type StorageConfig struct {
	// DBPath is the charla store (users, contexts, command log).
	// Empty means <home>/charla.db.
	DBPath string `json:"db_path" env:"CHARLA_STORAGE_DB_PATH"`
}

type LoggingConfig struct {
	Level  string `json:"level" env:"CHARLA_LOG_LEVEL"`
	File   string `json:"file" env:"CHARLA_LOG_FILE"`
	Redact bool   `json:"redact" env:"CHARLA_LOG_REDACT"`
}

type RateLimitsConfig struct {
	// MaxMessagesPerMinute limits inbound messages per user. 0 = unlimited.
	MaxMessagesPerMinute int `json:"max_messages_per_minute" env:"CHARLA_RATE_LIMITS_MAX_MESSAGES_PER_MINUTE"`

	// SendPerSecond paces outbound deliveries to the bridge.
	SendPerSecond float64 `json:"send_per_second" env:"CHARLA_RATE_LIMITS_SEND_PER_SECOND"`
	SendBurst     int     `json:"send_burst" env:"CHARLA_RATE_LIMITS_SEND_BURST"`
}

func DefaultConfig() *Config {
	return &Config{
		Dispatch: DispatchConfig{
			CommandPrefix: "/",
			DefaultAction: "reply",
			FallbackReply: "No entendí eso. Envía /help para ver qué puedo hacer.",
		},
		Context: ContextConfig{
			TTLSeconds:    300,
			SweepSchedule: "* * * * *",
			HistoryLimit:  20,
		},
		Escapes: EscapeConfig{
			Reset:  FlexibleStringSlice{"cancel", "cancelar", "reset", "reiniciar"},
			Pause:  FlexibleStringSlice{"pause", "pausa"},
			Resume: FlexibleStringSlice{"resume", "continuar", "seguir"},
			Back:   FlexibleStringSlice{"back", "atrás", "volver"},
		},
		WhatsApp: WhatsAppConfig{
			Enabled:   true,
			AllowFrom: FlexibleStringSlice{},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Redact: true,
		},
		RateLimits: RateLimitsConfig{
			MaxMessagesPerMinute: 20,
			SendPerSecond:        1,
			SendBurst:            3,
		},
	}
}

func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			if err := env.Parse(cfg); err != nil {
				return nil, err
			}
			return cfg, cfg.Validate()
		}
		return nil, err
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	return cfg, cfg.Validate()
}

// Validate rejects configurations the gateway cannot start with.
func (c *Config) Validate() error {
	prefix := c.Dispatch.CommandPrefix
	if prefix == "" || strings.TrimSpace(prefix) != prefix {
		return fmt.Errorf("command_prefix %q must be non-empty without whitespace", prefix)
	}
	switch c.Dispatch.DefaultAction {
	case "reply", "ignore":
	default:
		return fmt.Errorf("default_action %q must be \"reply\" or \"ignore\"", c.Dispatch.DefaultAction)
	}
	if c.Context.TTLSeconds <= 0 {
		return fmt.Errorf("context ttl_seconds %d must be positive", c.Context.TTLSeconds)
	}
	if c.Context.HistoryLimit < 0 {
		return fmt.Errorf("context history_limit %d must not be negative", c.Context.HistoryLimit)
	}
	gron := gronx.New()
	if !gron.IsValid(c.Context.SweepSchedule) {
		return fmt.Errorf("sweep_schedule %q is not a valid cron expression", c.Context.SweepSchedule)
	}
	if c.RateLimits.SendPerSecond <= 0 {
		return fmt.Errorf("send_per_second %v must be positive", c.RateLimits.SendPerSecond)
	}
	return nil
}

func SaveConfig(path string, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}

func expandHome(path string) string {
	if path == "" {
		return path
	}
	if path[0] == '~' {
		home, _ := os.UserHomeDir()
		if len(path) > 1 && path[1] == '/' {
			return home + path[1:]
		}
		return home
	}
	return path
}
