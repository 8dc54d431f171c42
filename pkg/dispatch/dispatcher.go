package dispatch

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/charlabot/charla/pkg/bus"
	"github.com/charlabot/charla/pkg/classify"
	"github.com/charlabot/charla/pkg/commands"
	"github.com/charlabot/charla/pkg/convstate"
	"github.com/charlabot/charla/pkg/logger"
	"github.com/charlabot/charla/pkg/ratelimit"
	"github.com/charlabot/charla/pkg/users"
	"github.com/charlabot/charla/pkg/utils"
)

// Default action names accepted in configuration.
const (
	ActionReply  = "reply"
	ActionIgnore = "ignore"
)

// maxInFlight caps concurrently processed messages. Ordering per user
// comes from the context manager's per-user locks, not from this cap.
const maxInFlight = 32

const genericErrorReply = "Ups, algo salió mal de mi lado. Intenta de nuevo en un momento."

const defaultFallbackReply = "Perdona, no te entendí. Escribe /help para ver lo que puedo hacer."

// Deps wires the dispatcher to its collaborators. Owner may be empty;
// everything else is required.
type Deps struct {
	Bus        *bus.MessageBus
	Users      *users.Store
	Contexts   *convstate.Manager
	Classifier *classify.Classifier
	Limiter    *ratelimit.Limiter
	Handlers   []Handler

	// Owner is the identity promoted to the owner level on first
	// contact.
	Owner string

	// DefaultAction decides what happens when no handler accepts a
	// message: ActionReply sends FallbackReply, ActionIgnore drops it.
	DefaultAction string
	FallbackReply string
}

// Dispatcher consumes inbound messages from the bus and routes each
// one through the handler chain. Handlers run under the sender's
// context lock, so two messages from the same user never race a
// read-modify-write of their context; unrelated users proceed in
// parallel up to maxInFlight.
type Dispatcher struct {
	bus        *bus.MessageBus
	users      *users.Store
	contexts   *convstate.Manager
	classifier *classify.Classifier
	limiter    *ratelimit.Limiter
	handlers   []Handler

	owner         string
	defaultAction string
	fallbackReply string

	running atomic.Bool
	sem     chan struct{}
	wg      sync.WaitGroup
}

func New(deps Deps) *Dispatcher {
	handlers := make([]Handler, len(deps.Handlers))
	copy(handlers, deps.Handlers)
	sort.SliceStable(handlers, func(i, j int) bool {
		return handlers[i].Priority() > handlers[j].Priority()
	})

	fallback := deps.FallbackReply
	if fallback == "" {
		fallback = defaultFallbackReply
	}

	return &Dispatcher{
		bus:           deps.Bus,
		users:         deps.Users,
		contexts:      deps.Contexts,
		classifier:    deps.Classifier,
		limiter:       deps.Limiter,
		handlers:      handlers,
		owner:         deps.Owner,
		defaultAction: deps.DefaultAction,
		fallbackReply: fallback,
		sem:           make(chan struct{}, maxInFlight),
	}
}

// DefaultChain builds the standard handler chain: escapes, commands,
// open-context replies, registration by name declaration, smalltalk.
func DefaultChain(env *commands.Env, contexts *convstate.Manager, store *users.Store, prefix string) []Handler {
	return []Handler{
		NewEscapeHandler(contexts),
		NewCommandHandler(env, prefix),
		NewContextHandler(store),
		NewRegistrationHandler(store),
		NewSmalltalkHandler(prefix),
	}
}

// Run consumes inbound messages until Stop is called or ctx is
// cancelled. In-flight messages are drained before it returns.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.running.Store(true)

	for d.running.Load() {
		select {
		case <-ctx.Done():
			d.wg.Wait()
			return nil
		default:
			msg, ok := d.bus.ConsumeInbound(ctx)
			if !ok {
				continue
			}

			d.sem <- struct{}{}
			d.wg.Add(1)
			go func(m bus.InboundMessage) {
				defer d.wg.Done()
				defer func() { <-d.sem }()
				d.Dispatch(ctx, m)
			}(msg)
		}
	}

	d.wg.Wait()
	return nil
}

func (d *Dispatcher) Stop() {
	d.running.Store(false)
}

// Dispatch routes one inbound message end to end: flood check, user
// lookup, classification, handler chain, context transition, reply.
// The reply is queued only after the context transition is applied, so
// a slow or failing transport never affects context-state correctness.
func (d *Dispatcher) Dispatch(ctx context.Context, msg bus.InboundMessage) {
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return
	}

	if !d.limiter.Allow(msg.SenderID) {
		logger.WarnCF("dispatch", "flood limit reached, dropping message", map[string]any{
			"sender_id": msg.SenderID,
		})
		return
	}

	user, err := d.users.Ensure(ctx, msg.SenderID)
	if err != nil {
		logger.ErrorCF("dispatch", "user lookup failed", map[string]any{
			"sender_id": msg.SenderID,
			"error":     err.Error(),
		})
		return
	}

	if d.owner != "" && msg.SenderID == d.owner && user.Level != users.LevelOwner {
		level := users.LevelOwner
		promoted, err := d.users.Update(ctx, user.Identity, users.Update{Level: &level})
		if err != nil {
			logger.WarnCF("dispatch", "owner promotion failed", map[string]any{
				"sender_id": msg.SenderID,
				"error":     err.Error(),
			})
		} else {
			user = promoted
			logger.InfoC("dispatch", "owner identity promoted on first contact")
		}
	}

	if user.Level == users.LevelBlocked {
		logger.InfoCF("dispatch", "dropping message from blocked user", map[string]any{
			"sender_id": msg.SenderID,
		})
		return
	}

	if err := d.users.TouchActivity(ctx, msg.SenderID); err != nil {
		logger.WarnCF("dispatch", "activity ping failed", map[string]any{
			"sender_id": msg.SenderID,
			"error":     err.Error(),
		})
	}

	logger.InfoCF("dispatch", fmt.Sprintf("Processing message from %s: %s", msg.SenderID, utils.Truncate(text, 80)), map[string]any{
		"chat_id":   msg.ChatID,
		"sender_id": msg.SenderID,
	})

	var reply string
	d.contexts.WithLock(msg.SenderID, func() {
		reply = d.dispatchLocked(ctx, msg, text, user)
	})

	if reply == "" {
		return
	}
	if !d.bus.TryPublishOutbound(bus.OutboundMessage{ChatID: msg.ChatID, Text: reply}) {
		logger.WarnCF("dispatch", "outbound buffer full, dropping reply", map[string]any{
			"chat_id": msg.ChatID,
		})
	}
}

// dispatchLocked runs under the sender's context lock. It returns the
// reply to queue, empty for none.
func (d *Dispatcher) dispatchLocked(ctx context.Context, msg bus.InboundMessage, text string, user *users.User) string {
	cur, _ := d.contexts.Get(ctx, msg.SenderID)
	cls := d.classifier.Classify(text, cur != nil)

	logger.DebugCF("dispatch", "classified message", map[string]any{
		"sender_id":  msg.SenderID,
		"label":      string(cls.Label),
		"rule":       cls.Rule,
		"confidence": cls.Confidence,
	})

	b := &Bundle{Msg: msg, Text: text, User: user, Ctx: cur, Classification: cls}

	for _, h := range d.handlers {
		if !h.Accepts(b) {
			continue
		}

		res, err := d.runHandler(ctx, h, b)
		if err != nil {
			logger.ErrorCF("dispatch", "handler failed", map[string]any{
				"handler":   h.Name(),
				"sender_id": msg.SenderID,
				"error":     err.Error(),
			})
			return genericErrorReply
		}
		return d.applyResult(ctx, msg, h, res)
	}

	if d.defaultAction == ActionReply {
		return d.fallbackReply
	}
	return ""
}

// runHandler invokes h and converts a panic into an error, so one
// broken handler cannot take down the message loop.
func (d *Dispatcher) runHandler(ctx context.Context, h Handler, b *Bundle) (res *Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler %s panicked: %v", h.Name(), r)
		}
	}()
	return h.Handle(ctx, b)
}

// applyResult commits the handler's context transition, then runs side
// actions in the order given. A failed store write is logged but does
// not undo the in-memory transition.
func (d *Dispatcher) applyResult(ctx context.Context, msg bus.InboundMessage, h Handler, res *Result) string {
	if res == nil {
		return ""
	}

	switch {
	case res.Clear:
		if err := d.contexts.Clear(ctx, msg.SenderID); err != nil {
			logger.WarnCF("dispatch", "context clear not persisted", map[string]any{
				"sender_id": msg.SenderID,
				"error":     err.Error(),
			})
		}
	case res.Next != nil:
		if _, err := d.contexts.Set(ctx, msg.SenderID, *res.Next); err != nil {
			logger.WarnCF("dispatch", "context set not persisted", map[string]any{
				"sender_id": msg.SenderID,
				"error":     err.Error(),
			})
		}
	}

	for _, a := range res.Actions {
		if err := a.Run(ctx); err != nil {
			logger.WarnCF("dispatch", "side action failed", map[string]any{
				"handler": h.Name(),
				"action":  a.Name,
				"error":   err.Error(),
			})
		}
	}

	return res.Reply
}
