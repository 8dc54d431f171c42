// Package dispatch routes inbound messages through an ordered handler
// chain. The dispatcher classifies each message, asks handlers in
// descending priority order, and commits to the first one that accepts:
// exactly one handler answers a message, so side effects like a
// registration write happen exactly once.
package dispatch

import (
	"context"

	"github.com/charlabot/charla/pkg/bus"
	"github.com/charlabot/charla/pkg/classify"
	"github.com/charlabot/charla/pkg/convstate"
	"github.com/charlabot/charla/pkg/users"
)

// Handler priorities for the standard chain. Higher runs first.
const (
	PriorityEscape       = 100
	PriorityCommand      = 90
	PriorityContext      = 80
	PriorityRegistration = 70
	PrioritySmalltalk    = 60
)

// Bundle carries everything a handler needs to decide on, and answer,
// one inbound message. Ctx is nil when the user has no active context.
type Bundle struct {
	Msg            bus.InboundMessage
	Text           string
	User           *users.User
	Ctx            *convstate.Context
	Classification classify.Result
}

// Action is a named side effect executed after the context transition.
type Action struct {
	Name string
	Run  func(ctx context.Context) error
}

// Result is what a handler hands back to the dispatcher. At most one
// of Clear/Next applies; Clear wins if a handler sets both. A nil
// Result means the message was consumed with nothing to say.
type Result struct {
	Reply   string
	Next    *convstate.Partial
	Clear   bool
	Actions []Action
}

// Handler is one unit of dispatch logic. Accepts must be cheap and
// side-effect-free; all work belongs in Handle. A Handle error means
// the message is consumed with a generic error reply and no context
// change, never a fall-through to the next handler.
type Handler interface {
	Name() string
	Priority() int
	Accepts(b *Bundle) bool
	Handle(ctx context.Context, b *Bundle) (*Result, error)
}
