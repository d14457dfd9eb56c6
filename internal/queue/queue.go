package queue

import (
	"context"

	"inboxsync/internal/domain"
)

type Handler func(ctx context.Context, ev domain.MessageEvent) error

type Publisher interface {
	Publish(ctx context.Context, ev domain.MessageEvent) error
	Close() error
}

type Consumer interface {
	Consume(ctx context.Context, handler Handler) error
	Close() error
}

// Discard is a Publisher for deployments where nothing consumes events.
type Discard struct{}

func (Discard) Publish(context.Context, domain.MessageEvent) error { return nil }
func (Discard) Close() error                                       { return nil }
