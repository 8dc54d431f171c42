package dispatch

import (
	"context"

	"github.com/charlabot/charla/pkg/convstate"
	"github.com/charlabot/charla/pkg/registration"
	"github.com/charlabot/charla/pkg/users"
)

// RegistrationHandler registers a user straight from a name
// declaration like "me llamo Ana" sent outside any open context. A
// valid name completes registration in one turn; an invalid one opens
// the registration exchange so the corrective retry loop takes over.
type RegistrationHandler struct {
	users *users.Store
}

func NewRegistrationHandler(store *users.Store) *RegistrationHandler {
	return &RegistrationHandler{users: store}
}

func (h *RegistrationHandler) Name() string  { return "registration" }
func (h *RegistrationHandler) Priority() int { return PriorityRegistration }

func (h *RegistrationHandler) Accepts(b *Bundle) bool {
	return b.Ctx == nil && !b.User.Registered && b.Classification.CandidateName != ""
}

func (h *RegistrationHandler) Handle(ctx context.Context, b *Bundle) (*Result, error) {
	name := b.Classification.CandidateName

	if err := users.ValidateDisplayName(name); err != nil {
		return &Result{
			Reply: registration.ValidationReply(err),
			Next: &convstate.Partial{
				Type: registration.ContextType,
				Step: registration.StepAwaitingName,
				Data: map[string]any{registration.RetryKey: 1},
			},
		}, nil
	}

	if _, err := registration.Complete(ctx, h.users, b.User, name); err != nil {
		return nil, err
	}
	return &Result{Reply: registration.ConfirmReply(name)}, nil
}
