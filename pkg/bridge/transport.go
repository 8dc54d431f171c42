package bridge

import (
	"context"

	"github.com/charlabot/charla/pkg/commands"
)

// Status reports connectivity and the linked account, for /status.
func (b *Bridge) Status() commands.TransportStatus {
	b.mu.Lock()
	client := b.client
	b.mu.Unlock()

	st := commands.TransportStatus{}
	if client == nil {
		return st
	}
	st.Connected = client.IsConnected()
	if id := client.Store.ID; id != nil {
		st.Identity = id.User
	}
	return st
}

// Chats lists the chats seen since startup, most recently active first.
func (b *Bridge) Chats(_ context.Context) ([]commands.ChatSummary, error) {
	return b.history.Chats(), nil
}

// History returns up to limit recent messages for one chat in
// chronological order.
func (b *Bridge) History(chatID string, limit int) []commands.HistoryEntry {
	return b.history.Entries(chatID, limit)
}
