package worker

import (
	"context"
	"log"

	"inboxsync/internal/domain"
	"inboxsync/internal/queue"
	"inboxsync/internal/relay"
)

// SourceStore is the slice of the registry the workers need.
type SourceStore interface {
	Get(ctx context.Context, id string) (domain.Source, error)
	RecordActivity(ctx context.Context, sourceID, lastMessage string, unreadDelta int) error
	FeedSources(ctx context.Context) ([]domain.Source, error)
}

// Consumer applies message events: it keeps the source's last message
// current and relays the message to the source's platform.
type Consumer struct {
	consumer queue.Consumer
	sources  SourceStore
	relay    relay.Relay
}

func NewConsumer(c queue.Consumer, s SourceStore, r relay.Relay) *Consumer {
	return &Consumer{
		consumer: c,
		sources:  s,
		relay:    r,
	}
}

func (w *Consumer) Start(ctx context.Context) error {
	return w.consumer.Consume(ctx, w.HandleEvent)
}

func (w *Consumer) HandleEvent(ctx context.Context, ev domain.MessageEvent) error {
	log.Printf("[RECEIVED] %s in %s: %s", ev.Message.SenderName, ev.SourceID, truncate(ev.Message.Content, 60))

	if err := w.sources.RecordActivity(ctx, ev.SourceID, ev.Message.Content, 0); err != nil {
		log.Printf("[ERROR] record activity %s: %v", ev.SourceID, err)
		return err
	}

	src, err := w.sources.Get(ctx, ev.SourceID)
	if err != nil {
		log.Printf("[ERROR] load source %s: %v", ev.SourceID, err)
		return err
	}

	if err := w.relay.Relay(ctx, src, ev.Message); err != nil {
		log.Printf("[ERROR] relay %s via %s: %v", ev.Message.ID, src.Type, err)
	}

	return nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
