// Package eventbus defines the contract for publishing and subscribing to
// domain events.
package eventbus

import (
	"context"

	"github.com/nilepay/payfac/pkg/domain/events"
)

// Handler consumes a published event. Handlers must not assume ordering
// across event names.
type Handler func(ctx context.Context, e events.Event)

// Bus publishes domain events to subscribers. Publish is fire-and-forget:
// subscriber failures never propagate to the publisher.
type Bus interface {
	Publish(ctx context.Context, e events.Event)
	Subscribe(name string, h Handler)
}
