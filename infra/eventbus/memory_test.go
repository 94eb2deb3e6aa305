package eventbus

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/nilepay/payfac/pkg/domain/events"
)

func TestPublishDispatchesInRegistrationOrder(t *testing.T) {
	bus := NewMemoryBus(slog.New(slog.NewTextHandler(io.Discard, nil)))

	var order []string
	bus.Subscribe(events.PayoutCompletedName, func(context.Context, events.Event) {
		order = append(order, "first")
	})
	bus.Subscribe(events.PayoutCompletedName, func(context.Context, events.Event) {
		order = append(order, "second")
	})
	bus.Subscribe(events.PayoutFailedName, func(context.Context, events.Event) {
		order = append(order, "wrong event")
	})

	bus.Publish(context.Background(), events.PayoutCompleted{PayoutID: uuid.New()})
	assert.Equal(t, []string{"first", "second"}, order)
}

func TestPublishWithoutSubscribersIsNoOp(t *testing.T) {
	bus := NewMemoryBus(slog.New(slog.NewTextHandler(io.Discard, nil)))
	bus.Publish(context.Background(), events.OperationalAlert{Subject: "nobody listening"})
}

func TestHandlerPanicIsContained(t *testing.T) {
	bus := NewMemoryBus(slog.New(slog.NewTextHandler(io.Discard, nil)))

	var delivered bool
	bus.Subscribe(events.PayoutFailedName, func(context.Context, events.Event) {
		panic("subscriber bug")
	})
	bus.Subscribe(events.PayoutFailedName, func(context.Context, events.Event) {
		delivered = true
	})

	bus.Publish(context.Background(), events.PayoutFailed{PayoutID: uuid.New()})
	assert.True(t, delivered, "a panicking subscriber must not block the next one")
}
