package queue

import (
	"context"
	"errors"
	"sync"

	"inboxsync/internal/domain"
)

var (
	ErrClosed = errors.New("queue closed")
	ErrFull   = errors.New("queue full")
)

// Local is an in-process Publisher and Consumer pair for single-binary
// deployments without a broker. Publish never blocks on the handler; events
// beyond the buffer are rejected.
type Local struct {
	events    chan domain.MessageEvent
	closeOnce sync.Once
	done      chan struct{}
}

func NewLocal(buffer int) *Local {
	return &Local{
		events: make(chan domain.MessageEvent, buffer),
		done:   make(chan struct{}),
	}
}

func (l *Local) Publish(ctx context.Context, ev domain.MessageEvent) error {
	select {
	case <-l.done:
		return ErrClosed
	default:
	}

	select {
	case l.events <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return ErrFull
	}
}

// Consume delivers events to handler until ctx is cancelled or Close is
// called. Handler errors are dropped; the caller logs them.
func (l *Local) Consume(ctx context.Context, handler Handler) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-l.done:
			return nil
		case ev := <-l.events:
			_ = handler(ctx, ev)
		}
	}
}

func (l *Local) Close() error {
	l.closeOnce.Do(func() { close(l.done) })
	return nil
}
