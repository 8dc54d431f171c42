package commands

import (
	"context"

	"github.com/charlabot/charla/pkg/bus"
	"github.com/charlabot/charla/pkg/convstate"
	"github.com/charlabot/charla/pkg/users"
)

// Definition describes one command. Name and aliases are matched
// case-insensitively and must be unique across the whole registry.
// Description, Usage, and Examples feed help output only; dispatch
// never reads them.
type Definition struct {
	Name        string
	Description string
	Usage       string
	Examples    []string
	Aliases     []string
	MinLevel    users.Level
	Handler     Handler
}

// Handler executes a command and returns the transitions it wants
// applied. Handlers never touch the context manager or the bridge
// directly; the dispatcher owns both.
type Handler func(ctx context.Context, req Request) (*Response, error)

// Request bundles everything a command handler may read.
type Request struct {
	Env    *Env
	Caller *users.User
	Args   []string
	Msg    bus.InboundMessage
}

// Response is a command's requested outcome. A nil OpenContext with
// ClearContext false means no context change.
type Response struct {
	Reply        string
	OpenContext  *convstate.Partial
	ClearContext bool
}
