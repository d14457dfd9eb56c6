package relay

import (
	"context"

	"inboxsync/internal/domain"
)

// Relay delivers a message posted in the inbox to the platform its source
// is connected to.
type Relay interface {
	Relay(ctx context.Context, src domain.Source, msg domain.Message) error
}

// Dispatcher routes by source type. Types without a relay are skipped.
type Dispatcher struct {
	relays map[domain.SourceType]Relay
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{relays: make(map[domain.SourceType]Relay)}
}

func (d *Dispatcher) Register(t domain.SourceType, r Relay) {
	d.relays[t] = r
}

func (d *Dispatcher) Relay(ctx context.Context, src domain.Source, msg domain.Message) error {
	r, ok := d.relays[src.Type]
	if !ok {
		return nil
	}
	return r.Relay(ctx, src, msg)
}
