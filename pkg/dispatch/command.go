package dispatch

import (
	"context"
	"fmt"

	"github.com/charlabot/charla/pkg/classify"
	"github.com/charlabot/charla/pkg/commands"
)

const deniedReply = "No tienes permiso para usar ese comando."

// CommandHandler executes prefixed commands through the registry. An
// unknown name after a valid prefix is answered here with a distinct
// reply instead of falling through to the general fallback.
type CommandHandler struct {
	env    *commands.Env
	prefix string
}

func NewCommandHandler(env *commands.Env, prefix string) *CommandHandler {
	return &CommandHandler{env: env, prefix: prefix}
}

func (h *CommandHandler) Name() string  { return "command" }
func (h *CommandHandler) Priority() int { return PriorityCommand }

func (h *CommandHandler) Accepts(b *Bundle) bool {
	return b.Classification.Label == classify.LabelCommand
}

func (h *CommandHandler) Handle(ctx context.Context, b *Bundle) (*Result, error) {
	cls := b.Classification

	if !cls.Known {
		return &Result{Reply: h.unknownReply(cls.Command)}, nil
	}

	exec := h.env.Registry.Execute(ctx, h.env, b.User, cls.Command, cls.Args, commands.Request{Msg: b.Msg})
	switch exec.Outcome {
	case commands.OutcomeUnknown:
		return &Result{Reply: h.unknownReply(cls.Command)}, nil
	case commands.OutcomeDenied:
		return &Result{Reply: deniedReply}, nil
	case commands.OutcomeFailed:
		return nil, exec.Err
	}

	res := &Result{Reply: exec.Response.Reply}
	if exec.Response.ClearContext {
		res.Clear = true
	}
	if exec.Response.OpenContext != nil {
		res.Next = exec.Response.OpenContext
	}
	return res, nil
}

func (h *CommandHandler) unknownReply(name string) string {
	return fmt.Sprintf("No conozco el comando %q. Escribe %shelp para ver la lista.", name, h.prefix)
}
