// Package convstate tracks the short-lived conversational context each
// user may have open: which exchange they are in, which step of it, and
// the answers accumulated so far. A user has at most one active context;
// idle contexts expire after a TTL.
package convstate

import (
	"errors"
	"time"
)

// Data payload keys the manager itself maintains. Everything else in
// Data belongs to the context type that wrote it.
const (
	// StepHistoryKey holds the ordered list of previous steps,
	// consumed by the "back" escape.
	StepHistoryKey = "step_history"

	// PausedStepKey holds the step snapshot taken by "pause".
	PausedStepKey = "paused_step"
)

// StepIdle is the step a paused context sits at until resumed.
const StepIdle = "idle"

var (
	// ErrNoContext reports an escape action against a user with no
	// open context.
	ErrNoContext = errors.New("no active context")

	// ErrNotPaused reports a resume without a pause snapshot.
	ErrNotPaused = errors.New("context is not paused")

	// ErrNoHistory reports a back action with an empty step history.
	ErrNoHistory = errors.New("nothing to go back to")
)

// Context is one user's open exchange. Step names only need to mean
// something to the context type that owns them; the manager treats them
// as opaque strings.
type Context struct {
	UserID          string         `json:"user_id"`
	Type            string         `json:"type"`
	Step            string         `json:"step"`
	Data            map[string]any `json:"data"`
	Created         time.Time      `json:"created"`
	LastInteraction time.Time      `json:"last_interaction"`
	ExpiresAt       time.Time      `json:"expires_at"`
	Active          bool           `json:"active"`
}

// Partial is a merge request against a user's context. Empty Type/Step
// keep the current value; Data entries are merged key by key.
type Partial struct {
	Type string
	Step string
	Data map[string]any
}

// History returns the step-history list stored in the data payload.
func (c *Context) History() []string {
	raw, ok := c.Data[StepHistoryKey]
	if !ok {
		return nil
	}
	switch list := raw.(type) {
	case []string:
		return list
	case []any:
		out := make([]string, 0, len(list))
		for _, v := range list {
			if s, ok := v.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func cloneContext(c *Context) *Context {
	if c == nil {
		return nil
	}
	snapshot := *c
	snapshot.Data = cloneData(c.Data)
	return &snapshot
}

func cloneData(data map[string]any) map[string]any {
	out := make(map[string]any, len(data))
	for k, v := range data {
		if list, ok := v.([]string); ok {
			v = append([]string(nil), list...)
		}
		out[k] = v
	}
	return out
}
