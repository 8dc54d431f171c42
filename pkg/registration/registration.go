// Package registration implements the registration exchange: ask for a
// name, validate what comes back, write it to the user store. It owns
// the step and data schema of its context type; the context manager
// stays type-agnostic.
package registration

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charlabot/charla/pkg/convstate"
	"github.com/charlabot/charla/pkg/users"
)

const (
	ContextType = "registration"

	// StepStart and StepComplete are transient: start immediately
	// prompts and stores awaiting_name, complete self-clears.
	StepStart        = "start"
	StepAwaitingName = "awaiting_name"
	StepComplete     = "complete"

	RetryKey = "retry"
)

const promptName = "¡Hola! Para registrarte, dime tu nombre."

// Outcome is the result of advancing the flow by one message. Exactly
// one of Next or Clear is meaningful; Next re-emits or advances the
// exchange, Clear ends it.
type Outcome struct {
	Reply      string
	Next       *convstate.Partial
	Clear      bool
	Registered bool
}

// Start returns the opening prompt and the context to store. The start
// state does its work here and the stored context already awaits the
// name.
func Start() (string, *convstate.Partial) {
	return promptName, &convstate.Partial{
		Type: ContextType,
		Step: StepAwaitingName,
		Data: map[string]any{RetryKey: 0},
	}
}

// Advance feeds one message into an open registration context.
// extractedName is the classifier's candidate when the message was a
// name declaration; otherwise the raw text is the candidate.
func Advance(ctx context.Context, store *users.Store, user *users.User, c *convstate.Context, text, extractedName string) (Outcome, error) {
	switch c.Step {
	case StepAwaitingName:
		candidate := extractedName
		if candidate == "" {
			candidate = strings.TrimSpace(text)
		}

		if err := users.ValidateDisplayName(candidate); err != nil {
			return Outcome{
				Reply: ValidationReply(err),
				Next: &convstate.Partial{
					Type: ContextType,
					Step: StepAwaitingName,
					Data: map[string]any{RetryKey: RetryCount(c) + 1},
				},
			}, nil
		}

		if _, err := Complete(ctx, store, user, candidate); err != nil {
			return Outcome{}, fmt.Errorf("complete registration for %s: %w", user.Identity, err)
		}
		return Outcome{
			Reply:      ConfirmReply(candidate),
			Clear:      true,
			Registered: true,
		}, nil

	default:
		// A step outside the declared machine means the stored context
		// is corrupt. End the exchange instead of looping on it.
		return Outcome{
			Reply: "Algo salió mal con tu registro. Escribe /register para intentarlo de nuevo.",
			Clear: true,
		}, nil
	}
}

// Complete writes the validated name, marks the user registered, and
// promotes a guest to user level. Higher levels keep their level.
func Complete(ctx context.Context, store *users.Store, user *users.User, name string) (*users.User, error) {
	registered := true
	upd := users.Update{
		DisplayName: &name,
		Registered:  &registered,
	}
	if user.Level == users.LevelGuest {
		lvl := users.LevelUser
		upd.Level = &lvl
	}
	return store.Update(ctx, user.Identity, upd)
}

// RetryCount reads the retry counter from the context data, tolerating
// the numeric types a JSON round trip produces.
func RetryCount(c *convstate.Context) int {
	switch v := c.Data[RetryKey].(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return 0
	}
}

// ValidationReply maps a name validation error to the corrective
// message the user sees.
func ValidationReply(err error) string {
	switch {
	case errors.Is(err, users.ErrNameTooShort):
		return "Ese nombre es muy corto. Intenta con al menos 2 letras."
	case errors.Is(err, users.ErrNameTooLong):
		return "Ese nombre es muy largo. Usa máximo 50 caracteres."
	case errors.Is(err, users.ErrNameNumeric):
		return "Eso parece un número de teléfono. Dime tu nombre, por ejemplo: \"Ana\"."
	case errors.Is(err, users.ErrNameBadChars):
		return "Solo puedo usar letras, espacios y signos como ' - . en el nombre. Intenta otra vez."
	default:
		return "No pude usar ese nombre. Intenta con otro."
	}
}

// ConfirmReply is the terminal confirmation.
func ConfirmReply(name string) string {
	return fmt.Sprintf("¡Listo, %s! Ya estás registrado. Escribe /help para ver qué puedo hacer.", name)
}
