// Package notification adapts domain events into the external notification
// sink. Delivery is fire-and-forget: a failing sink never fails the owning
// financial operation.
package notification

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/nilepay/payfac/pkg/domain/events"
	"github.com/nilepay/payfac/pkg/eventbus"
)

// Kind classifies an outbound notification.
type Kind string

const (
	KindSettlementCreated Kind = "settlement_created"
	KindPayoutSent        Kind = "payout_sent"
	KindPayoutCompleted   Kind = "payout_completed"
	KindPayoutFailed      Kind = "payout_failed"
	KindOperationalAlert  Kind = "operational_alert"
)

// Sink is the external delivery collaborator (SMS/email/ops channel).
type Sink interface {
	Notify(ctx context.Context, kind Kind, subMerchantID uuid.UUID, payload map[string]any)
}

// LogSink writes notifications to the structured log. Stands in for the real
// delivery service, whose transport is outside this repo.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a log-backed sink.
func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

// Notify logs the notification.
func (s *LogSink) Notify(_ context.Context, kind Kind, subMerchantID uuid.UUID, payload map[string]any) {
	s.logger.Info("notification", "kind", string(kind), "sub_merchant_id", subMerchantID, "payload", payload)
}

// Wire subscribes the sink to the domain events it delivers.
func Wire(bus eventbus.Bus, sink Sink) {
	bus.Subscribe(events.SettlementCreatedName, func(ctx context.Context, e events.Event) {
		ev, ok := e.(events.SettlementCreated)
		if !ok {
			return
		}
		sink.Notify(ctx, KindSettlementCreated, ev.SubMerchantID, map[string]any{
			"reference":     ev.Reference,
			"net_amount":    ev.NetAmount.StringFixed(2),
			"auto_approved": ev.AutoApproved,
		})
	})
	bus.Subscribe(events.PayoutSentName, func(ctx context.Context, e events.Event) {
		ev, ok := e.(events.PayoutSent)
		if !ok {
			return
		}
		sink.Notify(ctx, KindPayoutSent, ev.SubMerchantID, map[string]any{
			"reference":  ev.Reference,
			"net_amount": ev.NetAmount.StringFixed(2),
		})
	})
	bus.Subscribe(events.PayoutCompletedName, func(ctx context.Context, e events.Event) {
		ev, ok := e.(events.PayoutCompleted)
		if !ok {
			return
		}
		sink.Notify(ctx, KindPayoutCompleted, ev.SubMerchantID, map[string]any{
			"reference":  ev.Reference,
			"net_amount": ev.NetAmount.StringFixed(2),
		})
	})
	bus.Subscribe(events.PayoutFailedName, func(ctx context.Context, e events.Event) {
		ev, ok := e.(events.PayoutFailed)
		if !ok {
			return
		}
		sink.Notify(ctx, KindPayoutFailed, ev.SubMerchantID, map[string]any{
			"reference": ev.Reference,
			"code":      ev.FailureCode,
			"message":   ev.Message,
		})
	})
	bus.Subscribe(events.OperationalAlertName, func(ctx context.Context, e events.Event) {
		ev, ok := e.(events.OperationalAlert)
		if !ok {
			return
		}
		sink.Notify(ctx, KindOperationalAlert, ev.SubMerchantID, map[string]any{
			"subject": ev.Subject,
			"detail":  ev.Detail,
		})
	})
}
