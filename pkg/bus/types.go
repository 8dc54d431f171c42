package bus

import "time"

// InboundMessage is one message received from the bridge.
// SenderID is the phone-derived identity key; ChatID is the full
// conversation JID the reply must go back to.
type InboundMessage struct {
	SenderID  string            `json:"sender_id"`
	ChatID    string            `json:"chat_id"`
	Text      string            `json:"text"`
	PushName  string            `json:"push_name,omitempty"`
	MessageID string            `json:"message_id,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// OutboundMessage is one reply queued for the bridge worker.
type OutboundMessage struct {
	ChatID string `json:"chat_id"`
	Text   string `json:"text"`
}
