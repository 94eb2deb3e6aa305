// Package events defines the domain events published after financial state
// changes commit. Events are published outside the owning transaction, so
// subscribers observe only durable facts.
package events

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Event is a published domain fact.
type Event interface {
	Name() string
}

const (
	SettlementCreatedName = "settlement.created"
	PayoutSentName        = "payout.sent"
	PayoutCompletedName   = "payout.completed"
	PayoutFailedName      = "payout.failed"
	OperationalAlertName  = "ops.alert"
)

// SettlementCreated fires after a settlement and its items commit.
type SettlementCreated struct {
	SettlementID  uuid.UUID
	Reference     string
	SubMerchantID uuid.UUID
	NetAmount     decimal.Decimal
	AutoApproved  bool
}

func (SettlementCreated) Name() string { return SettlementCreatedName }

// PayoutSent fires when a rail accepts a transfer pending confirmation.
type PayoutSent struct {
	PayoutID      uuid.UUID
	Reference     string
	SubMerchantID uuid.UUID
	NetAmount     decimal.Decimal
}

func (PayoutSent) Name() string { return PayoutSentName }

// PayoutCompleted fires on terminal payout success.
type PayoutCompleted struct {
	PayoutID      uuid.UUID
	Reference     string
	SubMerchantID uuid.UUID
	NetAmount     decimal.Decimal
}

func (PayoutCompleted) Name() string { return PayoutCompletedName }

// PayoutFailed fires on terminal payout failure.
type PayoutFailed struct {
	PayoutID      uuid.UUID
	Reference     string
	SubMerchantID uuid.UUID
	FailureCode   string
	Message       string
}

func (PayoutFailed) Name() string { return PayoutFailedName }

// OperationalAlert asks the ops channel for human attention.
type OperationalAlert struct {
	Subject       string
	Detail        string
	SubMerchantID uuid.UUID
}

func (OperationalAlert) Name() string { return OperationalAlertName }
