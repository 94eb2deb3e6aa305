// Package eventbus provides the in-memory event bus implementation.
package eventbus

import (
	"context"
	"log/slog"
	"sync"

	"github.com/nilepay/payfac/pkg/domain/events"
	"github.com/nilepay/payfac/pkg/eventbus"
)

// MemoryBus dispatches events synchronously to subscribers in registration
// order. Handler panics are recovered and logged so a misbehaving subscriber
// cannot fail the publishing operation.
type MemoryBus struct {
	mu       sync.RWMutex
	handlers map[string][]eventbus.Handler
	logger   *slog.Logger
}

// NewMemoryBus creates an empty in-memory bus.
func NewMemoryBus(logger *slog.Logger) *MemoryBus {
	return &MemoryBus{
		handlers: make(map[string][]eventbus.Handler),
		logger:   logger,
	}
}

// Subscribe registers a handler for the given event name.
func (b *MemoryBus) Subscribe(name string, h eventbus.Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[name] = append(b.handlers[name], h)
}

// Publish delivers e to every subscriber of its name.
func (b *MemoryBus) Publish(ctx context.Context, e events.Event) {
	b.mu.RLock()
	hs := b.handlers[e.Name()]
	b.mu.RUnlock()

	for _, h := range hs {
		b.dispatch(ctx, h, e)
	}
}

func (b *MemoryBus) dispatch(ctx context.Context, h eventbus.Handler, e events.Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked", "event", e.Name(), "panic", r)
		}
	}()
	h(ctx, e)
}
