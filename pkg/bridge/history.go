package bridge

import (
	"sort"
	"sync"
	"time"

	"github.com/charlabot/charla/pkg/commands"
)

// chatLog is a bounded in-memory record of recent traffic per chat. It
// backs the /chats and /history admin commands; the dispatch path never
// reads it, and it does not survive restarts.
type chatLog struct {
	mu    sync.Mutex
	depth int
	chats map[string]*chatRecord
}

type chatRecord struct {
	name     string
	lastSeen time.Time
	entries  []commands.HistoryEntry
}

func newChatLog(depth int) *chatLog {
	if depth < 1 {
		depth = 1
	}
	return &chatLog{depth: depth, chats: make(map[string]*chatRecord)}
}

// Record appends one message to a chat's transcript, evicting the
// oldest entry past the configured depth. Peer senders update the
// chat's display name; the bot's own replies do not.
func (cl *chatLog) Record(chatID, sender, text string, at time.Time) {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	rec, ok := cl.chats[chatID]
	if !ok {
		rec = &chatRecord{}
		cl.chats[chatID] = rec
	}

	if sender != selfSender && sender != "" {
		rec.name = sender
	}
	rec.lastSeen = at
	rec.entries = append(rec.entries, commands.HistoryEntry{Sender: sender, Text: text, At: at})
	if len(rec.entries) > cl.depth {
		rec.entries = rec.entries[len(rec.entries)-cl.depth:]
	}
}

// Entries returns up to limit of the newest messages for a chat in
// chronological order. limit < 1 means everything retained.
func (cl *chatLog) Entries(chatID string, limit int) []commands.HistoryEntry {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	rec, ok := cl.chats[chatID]
	if !ok {
		return nil
	}
	entries := rec.entries
	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	out := make([]commands.HistoryEntry, len(entries))
	copy(out, entries)
	return out
}

// Chats lists every chat seen since startup, most recently active first.
func (cl *chatLog) Chats() []commands.ChatSummary {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	type row struct {
		summary commands.ChatSummary
		seen    time.Time
	}
	rows := make([]row, 0, len(cl.chats))
	for id, rec := range cl.chats {
		rows = append(rows, row{commands.ChatSummary{ID: id, Name: rec.name}, rec.lastSeen})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].seen.Equal(rows[j].seen) {
			return rows[i].summary.ID < rows[j].summary.ID
		}
		return rows[i].seen.After(rows[j].seen)
	})

	out := make([]commands.ChatSummary, len(rows))
	for i, r := range rows {
		out[i] = r.summary
	}
	return out
}
