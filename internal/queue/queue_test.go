package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"inboxsync/internal/domain"
)

func TestLocalDelivers(t *testing.T) {
	l := NewLocal(4)
	defer l.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan domain.MessageEvent, 1)
	go l.Consume(ctx, func(_ context.Context, ev domain.MessageEvent) error {
		got <- ev
		return nil
	})

	ev := domain.MessageEvent{SourceID: "src_1", Message: domain.Message{ID: "msg_1", Content: "hi"}}
	if err := l.Publish(ctx, ev); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case e := <-got:
		if e.Message.ID != "msg_1" {
			t.Errorf("got %+v", e)
		}
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
}

func TestLocalFullAndClosed(t *testing.T) {
	l := NewLocal(1)
	ctx := context.Background()

	if err := l.Publish(ctx, domain.MessageEvent{}); err != nil {
		t.Fatalf("first publish: %v", err)
	}
	if err := l.Publish(ctx, domain.MessageEvent{}); !errors.Is(err, ErrFull) {
		t.Errorf("expected ErrFull, got %v", err)
	}

	l.Close()
	if err := l.Publish(ctx, domain.MessageEvent{}); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}

func TestDiscardAcceptsEverything(t *testing.T) {
	var p Publisher = Discard{}
	ctx := context.Background()

	for i := 0; i < 1000; i++ {
		if err := p.Publish(ctx, domain.MessageEvent{SourceID: "src_1"}); err != nil {
			t.Fatalf("publish %d: %v", i, err)
		}
	}
	if err := p.Close(); err != nil {
		t.Errorf("close: %v", err)
	}
}

func TestEncodeEventKeysBySource(t *testing.T) {
	ev := domain.MessageEvent{
		SourceID: "src_1",
		Platform: "telegram",
		Message:  domain.Message{ID: "msg_1", Content: "hi", SourceID: "src_1"},
	}

	msg, err := encodeEvent("inbox.messages", ev)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if msg.Topic != "inbox.messages" {
		t.Errorf("topic = %s", msg.Topic)
	}
	if key, _ := msg.Key.Encode(); string(key) != "src_1" {
		t.Errorf("key = %s", key)
	}

	raw, _ := msg.Value.Encode()
	back, err := decodeEvent(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if back.Message.Content != "hi" || back.Platform != "telegram" {
		t.Errorf("decoded %+v", back)
	}
}

func TestDecodeEvent(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantSrc string
		wantErr bool
	}{
		{"explicit source", `{"message":{"id":"m"},"sourceId":"src_a"}`, "src_a", false},
		{"source from message", `{"message":{"id":"m","sourceId":"src_b"}}`, "src_b", false},
		{"garbage", `not json`, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := decodeEvent([]byte(tt.raw))
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if ev.SourceID != tt.wantSrc {
				t.Errorf("source = %q, want %q", ev.SourceID, tt.wantSrc)
			}
		})
	}
}
