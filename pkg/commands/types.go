// Package commands holds the command registry: named executable units
// with aliases, a minimum permission level, and help metadata. The
// registry is built once at startup and read-only afterwards.
package commands

import (
	"context"
	"time"

	"github.com/charlabot/charla/pkg/users"
)

// Env carries the collaborators commands read from. Transport and Log
// may be nil (bridge disabled, logging disabled); handlers must degrade
// instead of panicking.
type Env struct {
	Users     *users.Store
	Contexts  ContextStats
	Transport Transport
	Registry  *Registry
	Log       *Log
	Owner     string
	StartedAt time.Time
	Version   string
}

// ContextStats is the read-only slice of the context manager that
// status-style commands consume.
type ContextStats interface {
	ActiveCount() int
}

// Transport is the narrow bridge surface admin commands read from. The
// dispatch path never calls it; a slow bridge can only slow the admin
// command that asked for it.
type Transport interface {
	Status() TransportStatus
	Chats(ctx context.Context) ([]ChatSummary, error)
	History(chatID string, limit int) []HistoryEntry
}

// TransportStatus reports bridge connectivity.
type TransportStatus struct {
	Connected bool
	Identity  string
}

// ChatSummary is one entry of the bridge's chat list.
type ChatSummary struct {
	ID   string
	Name string
}

// HistoryEntry is one recently seen message, served from the bridge's
// in-memory record.
type HistoryEntry struct {
	Sender string
	Text   string
	At     time.Time
}

// Outcome tags the result of a registry execution. Permission denial
// and unknown names are outcomes, not errors.
type Outcome int

const (
	OutcomeOK Outcome = iota
	OutcomeUnknown
	OutcomeDenied
	OutcomeFailed
)

// ExecResult is the full outcome of Registry.Execute.
type ExecResult struct {
	Outcome  Outcome
	Command  string
	Response *Response
	Err      error
}
