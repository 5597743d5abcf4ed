// Package events carries committed mutation notifications from services to
// in-process subscribers and, optionally, to a Pub/Sub topic for external
// consumers.
package events

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/stocktide/api/internal/services"
)

const defaultBusBuffer = 256

// Bus is an in-process mutation event bus. Publishing never blocks the
// mutating request: when a subscriber's buffer is full the event is dropped
// and counted, because every refresh recomputes from source data anyway.
type Bus struct {
	mu      sync.RWMutex
	subs    []chan services.MutationEvent
	closed  bool
	dropped atomic.Uint64
	logger  func(ctx context.Context, event string, fields map[string]any)
}

// BusOption customises bus construction.
type BusOption func(*Bus)

// WithBusLogger attaches a logger used to report dropped events.
func WithBusLogger(logger func(ctx context.Context, event string, fields map[string]any)) BusOption {
	return func(b *Bus) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// NewBus constructs an empty bus.
func NewBus(opts ...BusOption) *Bus {
	bus := &Bus{
		logger: func(context.Context, string, map[string]any) {},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(bus)
		}
	}
	return bus
}

// Subscribe registers a new subscriber channel with the given buffer size.
// The channel is closed when the bus closes.
func (b *Bus) Subscribe(buffer int) (<-chan services.MutationEvent, error) {
	if buffer <= 0 {
		buffer = defaultBusBuffer
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, errors.New("event bus: closed")
	}
	ch := make(chan services.MutationEvent, buffer)
	b.subs = append(b.subs, ch)
	return ch, nil
}

// PublishMutation fans the event out to every subscriber without blocking.
func (b *Bus) PublishMutation(ctx context.Context, event services.MutationEvent) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return errors.New("event bus: closed")
	}

	for _, ch := range b.subs {
		select {
		case ch <- event:
		default:
			b.dropped.Add(1)
			b.logger(ctx, "events.bus.dropped", map[string]any{
				"entity": event.Entity,
				"op":     event.Op,
				"id":     event.EntityID,
			})
		}
	}
	return nil
}

// Dropped reports how many events were discarded because a subscriber's
// buffer was full.
func (b *Bus) Dropped() uint64 {
	return b.dropped.Load()
}

// Close closes every subscriber channel. Publish calls after Close fail.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, ch := range b.subs {
		close(ch)
	}
	b.subs = nil
}

var _ services.MutationPublisher = (*Bus)(nil)
