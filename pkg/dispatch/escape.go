package dispatch

import (
	"context"
	"errors"

	"github.com/charlabot/charla/pkg/classify"
	"github.com/charlabot/charla/pkg/convstate"
	"github.com/charlabot/charla/pkg/logger"
)

// EscapeHandler services the reserved escape tokens. They are the one
// thing that punches through an open context, so this handler sits at
// the top of the chain and talks to the context manager directly
// instead of returning a transition.
type EscapeHandler struct {
	contexts *convstate.Manager
}

func NewEscapeHandler(contexts *convstate.Manager) *EscapeHandler {
	return &EscapeHandler{contexts: contexts}
}

func (h *EscapeHandler) Name() string  { return "escape" }
func (h *EscapeHandler) Priority() int { return PriorityEscape }

func (h *EscapeHandler) Accepts(b *Bundle) bool {
	return b.Classification.Escape != classify.EscapeNone
}

func (h *EscapeHandler) Handle(ctx context.Context, b *Bundle) (*Result, error) {
	userID := b.Msg.SenderID

	switch b.Classification.Escape {
	case classify.EscapeReset:
		had, err := h.contexts.Reset(ctx, userID)
		h.warnPersist(err, "reset", userID)
		if !had {
			return &Result{Reply: "No hay nada que cancelar."}, nil
		}
		return &Result{Reply: "Listo, cancelé lo que estábamos haciendo."}, nil

	case classify.EscapePause:
		if b.Ctx == nil {
			return &Result{Reply: "No hay ninguna conversación activa para pausar."}, nil
		}
		if b.Ctx.Step == convstate.StepIdle {
			return &Result{Reply: "Ya estaba en pausa."}, nil
		}
		_, err := h.contexts.Pause(ctx, userID)
		if errors.Is(err, convstate.ErrNoContext) {
			return &Result{Reply: "No hay ninguna conversación activa para pausar."}, nil
		}
		h.warnPersist(err, "pause", userID)
		return &Result{Reply: "Pausado. Escribe \"continuar\" cuando quieras retomar."}, nil

	case classify.EscapeResume:
		_, err := h.contexts.Resume(ctx, userID)
		switch {
		case errors.Is(err, convstate.ErrNoContext):
			return &Result{Reply: "No hay nada que retomar."}, nil
		case errors.Is(err, convstate.ErrNotPaused):
			return &Result{Reply: "No había nada en pausa."}, nil
		}
		h.warnPersist(err, "resume", userID)
		return &Result{Reply: "Listo, seguimos donde quedamos."}, nil

	case classify.EscapeBack:
		_, err := h.contexts.Back(ctx, userID)
		switch {
		case errors.Is(err, convstate.ErrNoContext):
			return &Result{Reply: "No hay ninguna conversación activa."}, nil
		case errors.Is(err, convstate.ErrNoHistory):
			return &Result{Reply: "No hay ningún paso anterior al que volver."}, nil
		}
		h.warnPersist(err, "back", userID)
		return &Result{Reply: "Volvimos al paso anterior."}, nil
	}

	return nil, nil
}

// warnPersist logs a failed store write behind an escape operation.
// The in-memory transition already happened and stands.
func (h *EscapeHandler) warnPersist(err error, op, userID string) {
	if err == nil {
		return
	}
	logger.WarnCF("dispatch", "escape transition not persisted", map[string]any{
		"op":        op,
		"sender_id": userID,
		"error":     err.Error(),
	})
}
