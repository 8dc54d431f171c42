// Package redaction masks private data before it reaches a log sink.
// Charla's traffic is keyed by phone numbers, so the focus is masking
// phone identities while keeping enough digits to correlate log lines.
package redaction

import (
	"regexp"
	"strings"
	"sync"
)

// Config holds redaction configuration.
type Config struct {
	// Enabled controls whether redaction is active.
	Enabled bool `json:"enabled"`

	// MaskPhones partially masks phone numbers and phone-shaped identities.
	MaskPhones bool `json:"mask_phones"`

	// MaskEmails partially masks email addresses.
	MaskEmails bool `json:"mask_emails"`

	// RedactSecrets fully replaces password/token/secret values.
	RedactSecrets bool `json:"redact_secrets"`

	// CustomPatterns allows additional regex patterns to redact fully.
	CustomPatterns []string `json:"custom_patterns"`

	// Replacement is the string used where data is removed outright.
	Replacement string `json:"replacement"`
}

// DefaultConfig returns the default redaction configuration.
func DefaultConfig() Config {
	return Config{
		Enabled:       true,
		MaskPhones:    true,
		MaskEmails:    true,
		RedactSecrets: true,
		Replacement:   "[REDACTED]",
	}
}

// Redactor applies the configured masking rules to strings and field maps.
type Redactor struct {
	config         Config
	phoneIntl      *regexp.Regexp
	phoneBare      *regexp.Regexp
	email          *regexp.Regexp
	secretKV       *regexp.Regexp
	compiledCustom []*regexp.Regexp
	mu             sync.RWMutex
}

// NewRedactor creates a Redactor with the given configuration.
// Invalid custom patterns are skipped.
func NewRedactor(config Config) *Redactor {
	r := &Redactor{
		config: config,
		// International format with optional separators, e.g. +52 1 55 1234 5678.
		phoneIntl: regexp.MustCompile(`\+\d{1,3}(?:[\s\-]?\d{1,4}){2,6}`),
		// Bare digit runs the size of a phone identity (WhatsApp JID user part).
		phoneBare: regexp.MustCompile(`\b\d{8,15}\b`),
		email:     regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`),
		secretKV:  regexp.MustCompile(`(?i)(password|passwd|token|secret|credential)\s*[=:]\s*['"]?([^'"\s]{4,})['"]?`),
	}

	for _, pattern := range config.CustomPatterns {
		re, err := regexp.Compile(pattern)
		if err == nil {
			r.compiledCustom = append(r.compiledCustom, re)
		}
	}

	return r
}

// Redact applies all configured masking rules to the input string.
func (r *Redactor) Redact(input string) string {
	if !r.config.Enabled {
		return input
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	result := input

	if r.config.RedactSecrets {
		result = r.secretKV.ReplaceAllStringFunc(result, func(match string) string {
			sub := r.secretKV.FindStringSubmatch(match)
			if len(sub) > 2 {
				return strings.Replace(match, sub[2], r.config.Replacement, 1)
			}
			return r.config.Replacement
		})
	}

	if r.config.MaskPhones {
		result = r.phoneIntl.ReplaceAllStringFunc(result, MaskPhone)
		result = r.phoneBare.ReplaceAllStringFunc(result, MaskPhone)
	}

	if r.config.MaskEmails {
		result = r.email.ReplaceAllStringFunc(result, maskEmail)
	}

	for _, re := range r.compiledCustom {
		result = re.ReplaceAllString(result, r.config.Replacement)
	}

	return result
}

// MaskPhone keeps the leading country-code digits and the final two,
// replacing everything between: +5215512341234 -> +52****34.
func MaskPhone(phone string) string {
	clean := strings.Map(func(c rune) rune {
		if c == ' ' || c == '-' {
			return -1
		}
		return c
	}, phone)

	if len(clean) < 6 {
		return "****"
	}

	head := 3
	if !strings.HasPrefix(clean, "+") {
		head = 2
	}
	return clean[:head] + "****" + clean[len(clean)-2:]
}

// maskEmail shows only the first character of the local part.
func maskEmail(email string) string {
	parts := strings.SplitN(email, "@", 2)
	if len(parts) != 2 || parts[0] == "" {
		return "****"
	}
	return string(parts[0][0]) + "***@" + parts[1]
}

// RedactFields masks sensitive values in a log field map.
// Secret-named keys are replaced outright, identity-named keys are
// phone-masked, and remaining string or nested map values are run
// through Redact recursively.
func (r *Redactor) RedactFields(fields map[string]any) map[string]any {
	if !r.config.Enabled {
		return fields
	}

	result := make(map[string]any, len(fields))
	for k, v := range fields {
		lowerKey := strings.ToLower(k)
		switch {
		case r.config.RedactSecrets && isSecretKey(lowerKey):
			result[k] = r.config.Replacement
		case r.config.MaskPhones && isIdentityKey(lowerKey):
			if s, ok := v.(string); ok {
				result[k] = MaskPhone(s)
			} else {
				result[k] = v
			}
		default:
			switch val := v.(type) {
			case string:
				result[k] = r.Redact(val)
			case map[string]any:
				result[k] = r.RedactFields(val)
			default:
				result[k] = v
			}
		}
	}
	return result
}

func isSecretKey(key string) bool {
	for _, sk := range []string{"password", "passwd", "token", "secret", "credential"} {
		if strings.Contains(key, sk) {
			return true
		}
	}
	return false
}

func isIdentityKey(key string) bool {
	for _, ik := range []string{"phone", "identity", "sender", "recipient", "user_id"} {
		if strings.Contains(key, ik) {
			return true
		}
	}
	return false
}

// SetEnabled enables or disables redaction at runtime.
func (r *Redactor) SetEnabled(enabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.config.Enabled = enabled
}

// AddCustomPattern adds a custom redaction pattern at runtime.
func (r *Redactor) AddCustomPattern(pattern string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	re, err := regexp.Compile(pattern)
	if err != nil {
		return err
	}

	r.compiledCustom = append(r.compiledCustom, re)
	return nil
}

// Global redactor instance with default config
var globalRedactor = NewRedactor(DefaultConfig())

// Redact applies redaction using the global redactor.
func Redact(input string) string {
	return globalRedactor.Redact(input)
}

// RedactFields redacts fields using the global redactor.
func RedactFields(fields map[string]any) map[string]any {
	return globalRedactor.RedactFields(fields)
}

// SetGlobalConfig sets the configuration for the global redactor.
func SetGlobalConfig(config Config) {
	globalRedactor = NewRedactor(config)
}
