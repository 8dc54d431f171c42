package dispatch

import (
	"context"

	"github.com/charlabot/charla/pkg/classify"
	"github.com/charlabot/charla/pkg/convstate"
	"github.com/charlabot/charla/pkg/logger"
	"github.com/charlabot/charla/pkg/registration"
	"github.com/charlabot/charla/pkg/users"
)

const pausedReply = "Tenemos una conversación en pausa. Escribe \"continuar\" para retomarla o \"cancelar\" para descartarla."

// ContextHandler feeds a captured message into the sender's open
// exchange. Each context type drives its own state machine here; the
// generic context manager stays type-agnostic.
type ContextHandler struct {
	users *users.Store
}

func NewContextHandler(store *users.Store) *ContextHandler {
	return &ContextHandler{users: store}
}

func (h *ContextHandler) Name() string  { return "context" }
func (h *ContextHandler) Priority() int { return PriorityContext }

func (h *ContextHandler) Accepts(b *Bundle) bool {
	return b.Ctx != nil && b.Classification.Label == classify.LabelContextResponse
}

func (h *ContextHandler) Handle(ctx context.Context, b *Bundle) (*Result, error) {
	// A paused context holds its state but consumes nothing until the
	// user resumes or cancels.
	if b.Ctx.Step == convstate.StepIdle {
		return &Result{Reply: pausedReply}, nil
	}

	switch b.Ctx.Type {
	case registration.ContextType:
		out, err := registration.Advance(ctx, h.users, b.User, b.Ctx, b.Text, b.Classification.CandidateName)
		if err != nil {
			return nil, err
		}
		return &Result{Reply: out.Reply, Next: out.Next, Clear: out.Clear}, nil

	default:
		// Nothing can drive a context of a type we no longer know.
		logger.WarnCF("dispatch", "clearing context of unknown type", map[string]any{
			"sender_id": b.Msg.SenderID,
			"type":      b.Ctx.Type,
			"step":      b.Ctx.Step,
		})
		return &Result{
			Reply: "Perdimos el hilo de lo que estábamos haciendo. Empecemos de nuevo.",
			Clear: true,
		}, nil
	}
}
