// Package classify labels inbound message text with one of a closed set
// of kinds. Classification is deterministic and side-effect-free: the
// same text, context flag, and registry surface always produce the same
// result. Branching downstream happens on the label alone; Confidence
// exists for logs and diagnostics only.
package classify

import (
	"strings"
)

// Label is the message kind assigned by the classifier.
type Label string

const (
	LabelCommand         Label = "COMMAND"
	LabelGreeting        Label = "GREETING"
	LabelFarewell        Label = "FAREWELL"
	LabelQuestion        Label = "QUESTION"
	LabelHelpRequest     Label = "HELP_REQUEST"
	LabelContextResponse Label = "CONTEXT_RESPONSE"
	LabelGeneral         Label = "GENERAL"
)

// EscapeAction identifies which reserved escape token a message matched.
type EscapeAction string

const (
	EscapeNone   EscapeAction = ""
	EscapeReset  EscapeAction = "reset"
	EscapePause  EscapeAction = "pause"
	EscapeResume EscapeAction = "resume"
	EscapeBack   EscapeAction = "back"
)

// Result carries the label plus whatever structured data the matching
// rule extracted. Fields other than Label are populated only when the
// corresponding rule fired.
type Result struct {
	Label      Label
	Confidence float64
	Rule       string

	// Escape is set when the text is a reserved escape token, which is
	// the one case that punches through an open context.
	Escape EscapeAction

	// Command fields, set when Label == LabelCommand. Known reports
	// whether the name resolved against the registry at classify time.
	Command string
	Args    []string
	Known   bool

	// CandidateName is set when the text declares a name, inside or
	// outside an open context.
	CandidateName string
}

// Classifier is built once at startup and read-only afterwards.
type Classifier struct {
	prefix    string
	isCommand func(name string) bool
	escapes   map[string]EscapeAction
}

// NewClassifier builds a Classifier. prefix is the command sigil,
// isCommand reports whether a name or alias is registered, and escapes
// maps lowercased reserved tokens to their action. isCommand may be nil
// when no registry exists (then every prefixed name is unknown).
func NewClassifier(prefix string, isCommand func(string) bool, escapes map[string]EscapeAction) *Classifier {
	if escapes == nil {
		escapes = map[string]EscapeAction{}
	}
	return &Classifier{
		prefix:    prefix,
		isCommand: isCommand,
		escapes:   escapes,
	}
}

// BuildEscapeMap folds per-action token lists into the lookup map the
// Classifier consumes. Later lists win on duplicate tokens.
func BuildEscapeMap(reset, pause, resume, back []string) map[string]EscapeAction {
	m := make(map[string]EscapeAction)
	add := func(tokens []string, action EscapeAction) {
		for _, tok := range tokens {
			tok = strings.ToLower(strings.TrimSpace(tok))
			if tok != "" {
				m[tok] = action
			}
		}
	}
	add(reset, EscapeReset)
	add(pause, EscapePause)
	add(resume, EscapeResume)
	add(back, EscapeBack)
	return m
}

// Classify labels text. Checks run in a fixed priority order, first
// match wins:
//
//  1. reserved escape tokens (checked before everything, since they must
//     break out of an open context)
//  2. an open context captures the message as CONTEXT_RESPONSE
//  3. command prefix plus a name token
//  4. the ordered keyword matchers (greeting, farewell, help, name
//     declaration, question)
//  5. GENERAL
//
// Name extraction runs even when an open context already claimed the
// label, so a registration step can read the candidate directly.
func (c *Classifier) Classify(text string, hasActiveContext bool) Result {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return Result{Label: LabelGeneral, Rule: "empty"}
	}

	if action, ok := c.matchEscape(trimmed); ok {
		return Result{
			Label:      LabelGeneral,
			Confidence: 1.0,
			Rule:       "escape",
			Escape:     action,
		}
	}

	if hasActiveContext {
		return Result{
			Label:         LabelContextResponse,
			Confidence:    1.0,
			Rule:          "context",
			CandidateName: extractName(trimmed),
		}
	}

	if res, ok := c.matchCommand(trimmed); ok {
		return res
	}

	lowered := strings.ToLower(trimmed)
	for _, m := range matchers {
		if m.match(trimmed, lowered) {
			res := Result{Label: m.label, Confidence: m.confidence, Rule: m.name}
			if m.extractsName {
				res.CandidateName = extractName(trimmed)
			}
			return res
		}
	}

	return Result{Label: LabelGeneral, Confidence: 0.2, Rule: "general"}
}

// matchEscape reports whether the whole message is a single reserved
// token. Trailing punctuation is forgiven; anything longer than one
// word is not an escape.
func (c *Classifier) matchEscape(trimmed string) (EscapeAction, bool) {
	word := strings.ToLower(strings.Trim(trimmed, ".,!?¡¿ "))
	if word == "" || strings.ContainsAny(word, " \t") {
		return EscapeNone, false
	}
	action, ok := c.escapes[word]
	return action, ok
}

// matchCommand parses "<prefix><name> [args...]". A valid prefix with an
// unknown name still labels COMMAND with Known=false, so it surfaces as
// an unknown-command reply instead of drifting into GENERAL.
func (c *Classifier) matchCommand(trimmed string) (Result, bool) {
	if c.prefix == "" || !strings.HasPrefix(trimmed, c.prefix) {
		return Result{}, false
	}

	rest := strings.TrimPrefix(trimmed, c.prefix)
	if rest == "" || rest[0] == ' ' || rest[0] == '\t' {
		return Result{}, false
	}
	fields := strings.Fields(rest)

	name := strings.ToLower(fields[0])
	// Bots in group chats receive "/cmd@botname".
	if at := strings.IndexByte(name, '@'); at >= 0 {
		name = name[:at]
	}
	if name == "" {
		return Result{}, false
	}

	known := c.isCommand != nil && c.isCommand(name)
	return Result{
		Label:      LabelCommand,
		Confidence: 1.0,
		Rule:       "command",
		Command:    name,
		Args:       fields[1:],
		Known:      known,
	}, true
}
