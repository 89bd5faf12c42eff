package events

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Handler reacts to one event. A returned error is logged and does not stop
// the remaining handlers.
type Handler func(ctx context.Context, ev Event) error

// Publisher is the sending half of the bus
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// PublisherFunc adapts a function to Publisher
type PublisherFunc func(ctx context.Context, ev Event) error

func (f PublisherFunc) Publish(ctx context.Context, ev Event) error {
	if f == nil {
		return nil
	}
	return f(ctx, ev)
}

// Bus is a handler table keyed by event kind
type Bus struct {
	mu       sync.RWMutex
	handlers [kindCount][]Handler
	logger   *slog.Logger

	published atomic.Uint64
	failed    atomic.Uint64
}

// BusStats are lifetime counters
type BusStats struct {
	Published uint64
	Failed    uint64
}

// NewBus creates a bus with no subscribers
func NewBus(logger *slog.Logger) *Bus {
	return &Bus{logger: logger}
}

// Subscribe appends h to the handlers of kind. Handlers run in subscription order.
func (b *Bus) Subscribe(kind Kind, h Handler) {
	if kind >= kindCount || h == nil {
		return
	}
	b.mu.Lock()
	b.handlers[kind] = append(b.handlers[kind], h)
	b.mu.Unlock()
}

// Publish runs every handler for ev.Kind one after another and waits for all of them,
// even after ctx ends. Handlers see ctx and are expected to abort their own I/O; the
// result is ctx.Err() when ctx ended before the last handler returned.
func (b *Bus) Publish(ctx context.Context, ev Event) error {
	if ev.Kind >= kindCount {
		return fmt.Errorf("publish: unknown event kind %d", ev.Kind)
	}
	b.mu.RLock()
	handlers := b.handlers[ev.Kind]
	b.mu.RUnlock()

	b.published.Add(1)
	if len(handlers) == 0 {
		return nil
	}

	for i, h := range handlers {
		b.run(ctx, ev, i, h)
	}
	return ctx.Err()
}

func (b *Bus) run(ctx context.Context, ev Event, index int, h Handler) {
	defer func() {
		if r := recover(); r != nil {
			b.failed.Add(1)
			b.logger.Error("event handler panicked", "kind", ev.Kind.String(), "handler", index, "panic", r)
		}
	}()
	if err := h(ctx, ev); err != nil {
		b.failed.Add(1)
		b.logger.Warn("event handler failed", "kind", ev.Kind.String(), "handler", index, "error", err)
	}
}

// Stats returns the lifetime counters
func (b *Bus) Stats() BusStats {
	return BusStats{
		Published: b.published.Load(),
		Failed:    b.failed.Load(),
	}
}
