package dispatch

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charlabot/charla/pkg/convstate"
)

type fakeHandler struct {
	name     string
	priority int
	accept   func(*Bundle) bool
	handle   func(context.Context, *Bundle) (*Result, error)
	calls    int
}

func (f *fakeHandler) Name() string  { return f.name }
func (f *fakeHandler) Priority() int { return f.priority }

func (f *fakeHandler) Accepts(b *Bundle) bool {
	if f.accept == nil {
		return true
	}
	return f.accept(b)
}

func (f *fakeHandler) Handle(ctx context.Context, b *Bundle) (*Result, error) {
	f.calls++
	if f.handle == nil {
		return nil, nil
	}
	return f.handle(ctx, b)
}

func replyWith(text string) func(context.Context, *Bundle) (*Result, error) {
	return func(context.Context, *Bundle) (*Result, error) {
		return &Result{Reply: text}, nil
	}
}

func TestDispatcher_FirstAcceptorWins(t *testing.T) {
	low := &fakeHandler{name: "low", priority: 1, handle: replyWith("low")}
	high := &fakeHandler{name: "high", priority: 2, handle: replyWith("high")}

	// Registered low first: priority, not registration order, decides.
	te := newTestEnv(t, func(d *Deps) {
		d.Handlers = []Handler{low, high}
	})

	reply := te.send(t, "u1", "hola")
	assert.Equal(t, "high", reply)
	assert.Equal(t, 1, high.calls)
	assert.Equal(t, 0, low.calls, "lower-priority handler must never be called")
}

func TestDispatcher_PanicRecovered(t *testing.T) {
	boom := &fakeHandler{
		name:     "boom",
		priority: 999,
		handle: func(context.Context, *Bundle) (*Result, error) {
			panic("handler bug")
		},
	}
	below := &fakeHandler{name: "below", priority: 1, handle: replyWith("below")}

	te := newTestEnv(t, func(d *Deps) {
		d.Handlers = []Handler{boom, below}
	})
	ctx := context.Background()

	_, err := te.contexts.Set(ctx, "u1", convstate.Partial{Type: "survey", Step: "q1"})
	require.NoError(t, err)

	reply := te.send(t, "u1", "hola")
	assert.Equal(t, genericErrorReply, reply)
	assert.Equal(t, 0, below.calls, "a panicking handler must not fall through")

	c, ok := te.contexts.Get(ctx, "u1")
	require.True(t, ok, "a failed handler must leave the context untouched")
	assert.Equal(t, "q1", c.Step)
}

func TestDispatcher_HandlerErrorConsumesMessage(t *testing.T) {
	failing := &fakeHandler{
		name:     "failing",
		priority: 999,
		handle: func(context.Context, *Bundle) (*Result, error) {
			return nil, errors.New("backend unavailable")
		},
	}
	below := &fakeHandler{name: "below", priority: 1, handle: replyWith("below")}

	te := newTestEnv(t, func(d *Deps) {
		d.Handlers = []Handler{failing, below}
	})
	ctx := context.Background()

	_, err := te.contexts.Set(ctx, "u1", convstate.Partial{Type: "survey", Step: "q1"})
	require.NoError(t, err)

	reply := te.send(t, "u1", "hola")
	assert.Equal(t, genericErrorReply, reply)
	assert.Equal(t, 1, failing.calls)
	assert.Equal(t, 0, below.calls)

	c, ok := te.contexts.Get(ctx, "u1")
	require.True(t, ok)
	assert.Equal(t, "q1", c.Step)
}

func TestDispatcher_ClearWinsOverNext(t *testing.T) {
	confused := &fakeHandler{
		name:     "confused",
		priority: 999,
		handle: func(context.Context, *Bundle) (*Result, error) {
			return &Result{
				Clear: true,
				Next:  &convstate.Partial{Type: "survey", Step: "q2"},
			}, nil
		},
	}

	te := newTestEnv(t, func(d *Deps) {
		d.Handlers = []Handler{confused}
	})
	ctx := context.Background()

	_, err := te.contexts.Set(ctx, "u1", convstate.Partial{Type: "survey", Step: "q1"})
	require.NoError(t, err)

	te.send(t, "u1", "hola")

	_, ok := te.contexts.Get(ctx, "u1")
	assert.False(t, ok, "Clear takes precedence over Next")
}

func TestDispatcher_SideActionsRunInOrder(t *testing.T) {
	var ran []string
	acting := &fakeHandler{
		name:     "acting",
		priority: 999,
		handle: func(context.Context, *Bundle) (*Result, error) {
			return &Result{
				Reply: "hecho",
				Actions: []Action{
					{Name: "first", Run: func(context.Context) error {
						ran = append(ran, "first")
						return errors.New("notify failed")
					}},
					{Name: "second", Run: func(context.Context) error {
						ran = append(ran, "second")
						return nil
					}},
				},
			}, nil
		},
	}

	te := newTestEnv(t, func(d *Deps) {
		d.Handlers = []Handler{acting}
	})

	reply := te.send(t, "u1", "hola")
	assert.Equal(t, "hecho", reply, "a failed side action must not block the reply")
	assert.Equal(t, []string{"first", "second"}, ran)
}

func TestDispatcher_NilResultConsumesSilently(t *testing.T) {
	quiet := &fakeHandler{name: "quiet", priority: 999}
	below := &fakeHandler{name: "below", priority: 1, handle: replyWith("below")}

	te := newTestEnv(t, func(d *Deps) {
		d.Handlers = []Handler{quiet, below}
	})

	reply := te.send(t, "u1", "hola")
	assert.Empty(t, reply)
	assert.Equal(t, 1, quiet.calls)
	assert.Equal(t, 0, below.calls)
}
