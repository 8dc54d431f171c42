package bus

import (
	"context"
	"testing"
	"time"
)

func TestPublishConsumeInbound(t *testing.T) {
	mb := NewMessageBus()
	defer mb.Close()

	mb.PublishInbound(InboundMessage{SenderID: "5215512341234", Text: "hola"})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	msg, ok := mb.ConsumeInbound(ctx)
	if !ok {
		t.Fatal("ConsumeInbound returned false")
	}
	if msg.SenderID != "5215512341234" || msg.Text != "hola" {
		t.Errorf("unexpected message: %+v", msg)
	}
}

func TestConsumeInbound_ContextCancelled(t *testing.T) {
	mb := NewMessageBus()
	defer mb.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, ok := mb.ConsumeInbound(ctx); ok {
		t.Error("expected false after context cancellation")
	}
}

func TestTryPublishOutbound_FullBuffer(t *testing.T) {
	mb := NewMessageBus()
	defer mb.Close()

	for i := 0; i < 100; i++ {
		if !mb.TryPublishOutbound(OutboundMessage{ChatID: "c", Text: "x"}) {
			t.Fatalf("publish %d rejected before buffer full", i)
		}
	}
	if mb.TryPublishOutbound(OutboundMessage{ChatID: "c", Text: "overflow"}) {
		t.Error("expected rejection on full buffer")
	}
}

func TestPublishAfterClose(t *testing.T) {
	mb := NewMessageBus()
	mb.Close()
	mb.Close() // second close must not panic

	// Publishing to a closed bus is a silent no-op.
	mb.PublishInbound(InboundMessage{Text: "late"})
	if mb.TryPublishOutbound(OutboundMessage{Text: "late"}) {
		t.Error("TryPublishOutbound should report false after Close")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, ok := mb.ConsumeInbound(ctx); ok {
		t.Error("expected false reading a closed bus")
	}
}

func TestOutboundRoundTrip(t *testing.T) {
	mb := NewMessageBus()
	defer mb.Close()

	mb.PublishOutbound(OutboundMessage{ChatID: "5215512341234@s.whatsapp.net", Text: "listo"})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	msg, ok := mb.SubscribeOutbound(ctx)
	if !ok {
		t.Fatal("SubscribeOutbound returned false")
	}
	if msg.Text != "listo" {
		t.Errorf("Text = %q, want %q", msg.Text, "listo")
	}
}
