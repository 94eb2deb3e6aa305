package notification

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	infraeventbus "github.com/nilepay/payfac/infra/eventbus"
	"github.com/nilepay/payfac/pkg/domain/events"
)

type recordingSink struct {
	kinds    []Kind
	payloads []map[string]any
}

func (s *recordingSink) Notify(_ context.Context, kind Kind, _ uuid.UUID, payload map[string]any) {
	s.kinds = append(s.kinds, kind)
	s.payloads = append(s.payloads, payload)
}

func TestWireDeliversEachEventKind(t *testing.T) {
	bus := infraeventbus.NewMemoryBus(slog.New(slog.NewTextHandler(io.Discard, nil)))
	sink := &recordingSink{}
	Wire(bus, sink)

	ctx := context.Background()
	net := decimal.RequireFromString("730.00")

	bus.Publish(ctx, events.SettlementCreated{Reference: "STL-1", NetAmount: net, AutoApproved: true})
	bus.Publish(ctx, events.PayoutSent{Reference: "PO-1", NetAmount: net})
	bus.Publish(ctx, events.PayoutCompleted{Reference: "PO-1", NetAmount: net})
	bus.Publish(ctx, events.PayoutFailed{Reference: "PO-2", FailureCode: "invalid_account", Message: "no such account"})
	bus.Publish(ctx, events.OperationalAlert{Subject: "payout failed", Detail: "PO-2"})

	require.Equal(t, []Kind{
		KindSettlementCreated,
		KindPayoutSent,
		KindPayoutCompleted,
		KindPayoutFailed,
		KindOperationalAlert,
	}, sink.kinds)

	assert.Equal(t, "730.00", sink.payloads[0]["net_amount"])
	assert.Equal(t, true, sink.payloads[0]["auto_approved"])
	assert.Equal(t, "invalid_account", sink.payloads[3]["code"])
	assert.Equal(t, "payout failed", sink.payloads[4]["subject"])
}
