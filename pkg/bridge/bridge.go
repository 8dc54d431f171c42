// Package bridge connects charla to WhatsApp through whatsmeow. It
// publishes inbound text onto the message bus and drains the outbound
// queue back to the network, pacing deliveries so the account does not
// get throttled. Media is not forwarded; only text reaches the
// dispatcher.
package bridge

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
	"golang.org/x/time/rate"
	"google.golang.org/protobuf/proto"

	"github.com/charlabot/charla/pkg/bus"
	"github.com/charlabot/charla/pkg/config"
	"github.com/charlabot/charla/pkg/logger"
	"github.com/charlabot/charla/pkg/utils"
)

const (
	// sendChunkLimit is the longest message WhatsApp accepts in one
	// send; anything longer is split.
	sendChunkLimit = 4096

	// historyDepth bounds the per-chat transcript kept for /history.
	historyDepth = 50

	// selfSender labels the bot's own replies in the transcript.
	selfSender = "charla"
)

type Bridge struct {
	cfg     config.WhatsAppConfig
	bus     *bus.MessageBus
	pace    *rate.Limiter
	history *chatLog
	allow   map[string]struct{}

	mu        sync.Mutex
	client    *whatsmeow.Client
	container *sqlstore.Container
	cancel    context.CancelFunc
	done      chan struct{}
}

// New builds a bridge that is not yet connected. limits.SendPerSecond
// paces outbound deliveries; zero or negative disables pacing.
func New(cfg config.WhatsAppConfig, msgBus *bus.MessageBus, limits config.RateLimitsConfig) *Bridge {
	allow := make(map[string]struct{}, len(cfg.AllowFrom))
	for _, id := range cfg.AllowFrom {
		id = strings.TrimSpace(id)
		if id != "" {
			allow[id] = struct{}{}
		}
	}

	per := rate.Inf
	burst := 1
	if limits.SendPerSecond > 0 {
		per = rate.Limit(limits.SendPerSecond)
		if limits.SendBurst > 0 {
			burst = limits.SendBurst
		}
	}

	return &Bridge{
		cfg:     cfg,
		bus:     msgBus,
		pace:    rate.NewLimiter(per, burst),
		history: newChatLog(historyDepth),
		allow:   allow,
	}
}

// Start opens the session container, connects the whatsmeow client and
// launches the outbound sender. It fails if no device has been linked.
func (b *Bridge) Start(ctx context.Context) error {
	dbPath := expandHomePath(b.cfg.DBPath)

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return fmt.Errorf("failed to create db directory: %w", err)
	}

	container, err := sqlstore.New(ctx, "sqlite", fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)", dbPath), waLog.Noop)
	if err != nil {
		return fmt.Errorf("failed to open whatsmeow db: %w", err)
	}
	b.container = container

	deviceStore, err := container.GetFirstDevice(ctx)
	if err != nil {
		return fmt.Errorf("failed to get device: %w", err)
	}
	if deviceStore.ID == nil {
		return fmt.Errorf("no linked WhatsApp device found; run 'charla link' first")
	}

	client := whatsmeow.NewClient(deviceStore, waLog.Noop)
	b.mu.Lock()
	b.client = client
	b.mu.Unlock()

	client.AddEventHandler(b.handleEvent)

	if err := client.Connect(); err != nil {
		return fmt.Errorf("failed to connect whatsmeow: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	b.cancel = cancel
	b.done = make(chan struct{})
	go b.sendLoop(ctx)

	logger.InfoC("bridge", "WhatsApp bridge connected")
	return nil
}

// Stop disconnects the client and waits for the sender to drain.
func (b *Bridge) Stop() {
	logger.InfoC("bridge", "Stopping WhatsApp bridge...")

	if b.cancel != nil {
		b.cancel()
	}
	if b.done != nil {
		<-b.done
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.client != nil {
		b.client.Disconnect()
		b.client = nil
	}
}

// sendLoop drains the outbound queue until the context ends. Delivery
// failures are logged and the loop moves on; replies are best-effort
// once the context transition behind them is durable.
func (b *Bridge) sendLoop(ctx context.Context) {
	defer close(b.done)
	for {
		msg, ok := b.bus.SubscribeOutbound(ctx)
		if !ok {
			return
		}
		if err := b.deliver(ctx, msg); err != nil {
			logger.ErrorCF("bridge", "Failed to deliver reply", map[string]any{
				"chat":  msg.ChatID,
				"error": err.Error(),
			})
		}
	}
}

func (b *Bridge) deliver(ctx context.Context, msg bus.OutboundMessage) error {
	b.mu.Lock()
	client := b.client
	b.mu.Unlock()
	if client == nil {
		return fmt.Errorf("whatsmeow client not connected")
	}

	jid, err := types.ParseJID(msg.ChatID)
	if err != nil {
		return fmt.Errorf("invalid chat ID %q: %w", msg.ChatID, err)
	}

	for _, chunk := range utils.SplitMessage(msg.Text, sendChunkLimit) {
		if err := b.pace.Wait(ctx); err != nil {
			return err
		}
		if _, err := client.SendMessage(ctx, jid, &waE2E.Message{
			Conversation: proto.String(chunk),
		}); err != nil {
			return fmt.Errorf("failed to send message: %w", err)
		}
	}

	b.history.Record(msg.ChatID, selfSender, msg.Text, time.Now())
	return nil
}

func (b *Bridge) handleEvent(evt interface{}) {
	switch v := evt.(type) {
	case *events.Message:
		b.handleInbound(v)
	case *events.Connected:
		logger.InfoC("bridge", "WhatsApp connected")
	case *events.Disconnected:
		logger.WarnC("bridge", "WhatsApp disconnected")
	case *events.LoggedOut:
		logger.ErrorCF("bridge", "WhatsApp logged out; run 'charla link' to pair again", map[string]any{
			"reason": v.Reason,
		})
	}
}

func (b *Bridge) handleInbound(msg *events.Message) {
	// Skip status broadcasts
	if msg.Info.Chat.User == "status" {
		return
	}

	// Skip own messages
	if msg.Info.IsFromMe {
		return
	}

	senderID := msg.Info.Sender.User
	if !b.allowed(senderID) {
		logger.DebugCF("bridge", "Sender not in allowlist, ignoring", map[string]any{
			"sender": senderID,
		})
		return
	}

	text := extractText(msg.Message)
	if text == "" {
		return
	}

	chatID := msg.Info.Chat.String()
	b.history.Record(chatID, displayName(msg.Info), text, msg.Info.Timestamp)

	metadata := map[string]string{}
	if msg.Info.IsGroup {
		metadata["peer_kind"] = "group"
		metadata["peer_id"] = msg.Info.Chat.User
	} else {
		metadata["peer_kind"] = "dm"
		metadata["peer_id"] = msg.Info.Sender.User
	}

	logger.InfoCF("bridge", "Message received", map[string]any{
		"sender": senderID,
		"chat":   chatID,
		"len":    len(text),
	})

	b.bus.PublishInbound(bus.InboundMessage{
		SenderID:  senderID,
		ChatID:    chatID,
		Text:      text,
		PushName:  msg.Info.PushName,
		MessageID: msg.Info.ID,
		Timestamp: msg.Info.Timestamp,
		Metadata:  metadata,
	})
}

// allowed reports whether a sender passes the configured allowlist.
// An empty allowlist admits everyone.
func (b *Bridge) allowed(sender string) bool {
	if len(b.allow) == 0 {
		return true
	}
	_, ok := b.allow[sender]
	return ok
}

// extractText pulls the dispatchable text out of a message, looking
// through the plain and extended (link/quote) variants. An image
// caption counts as text; bare media does not.
func extractText(m *waE2E.Message) string {
	if m == nil {
		return ""
	}
	if t := m.GetConversation(); t != "" {
		return t
	}
	if ext := m.GetExtendedTextMessage(); ext != nil {
		if t := ext.GetText(); t != "" {
			return t
		}
	}
	if img := m.GetImageMessage(); img != nil {
		return img.GetCaption()
	}
	return ""
}

func displayName(info types.MessageInfo) string {
	if info.PushName != "" {
		return info.PushName
	}
	return info.Sender.User
}

func expandHomePath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return path
}
