// Package ledger holds the settleable money-movement records: captured
// transactions, completed refunds, resolved disputes, and rolling reserve
// holds. A nil settlement id marks a row as unclaimed; claiming is the
// mechanism that makes settlement runs idempotent.
package ledger

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ErrAlreadyClaimed rejects claiming a row a settlement already owns.
var ErrAlreadyClaimed = errors.New("ledger row already claimed by a settlement")

// ErrAlreadyReleased rejects releasing a reserve twice.
var ErrAlreadyReleased = errors.New("reserve already released")

// Transaction is a captured payment.
type Transaction struct {
	ID            uuid.UUID
	SubMerchantID uuid.UUID
	SettlementID  *uuid.UUID

	Amount       decimal.Decimal
	ProcessorFee decimal.Decimal
	PlatformFee  decimal.Decimal
	Currency     string
	Reference    string

	CapturedAt time.Time
	CreatedAt  time.Time
}

// Claim assigns the transaction to a settlement.
func (t *Transaction) Claim(settlementID uuid.UUID) error {
	if t.SettlementID != nil {
		return ErrAlreadyClaimed
	}
	id := settlementID
	t.SettlementID = &id
	return nil
}

// Unclaim returns the transaction to the unsettled pool.
func (t *Transaction) Unclaim() {
	t.SettlementID = nil
}

// Refund is a completed refund of a captured payment.
type Refund struct {
	ID            uuid.UUID
	SubMerchantID uuid.UUID
	TransactionID uuid.UUID
	SettlementID  *uuid.UUID

	Amount    decimal.Decimal
	RefundFee decimal.Decimal

	CompletedAt time.Time
	CreatedAt   time.Time
}

// Claim assigns the refund to a settlement.
func (r *Refund) Claim(settlementID uuid.UUID) error {
	if r.SettlementID != nil {
		return ErrAlreadyClaimed
	}
	id := settlementID
	r.SettlementID = &id
	return nil
}

// Unclaim returns the refund to the unsettled pool.
func (r *Refund) Unclaim() {
	r.SettlementID = nil
}

// DisputeOutcome is the resolution of a dispute. Only lost disputes hit the
// merchant's settlement.
type DisputeOutcome string

const (
	DisputeLost DisputeOutcome = "lost"
	DisputeWon  DisputeOutcome = "won"
)

// Dispute is a resolved chargeback.
type Dispute struct {
	ID            uuid.UUID
	SubMerchantID uuid.UUID
	TransactionID uuid.UUID
	SettlementID  *uuid.UUID

	Amount     decimal.Decimal
	DisputeFee decimal.Decimal
	Outcome    DisputeOutcome

	ResolvedAt time.Time
	CreatedAt  time.Time
}

// Claim assigns the dispute to a settlement.
func (d *Dispute) Claim(settlementID uuid.UUID) error {
	if d.SettlementID != nil {
		return ErrAlreadyClaimed
	}
	id := settlementID
	d.SettlementID = &id
	return nil
}

// ReserveStatus is a reserve hold's state.
type ReserveStatus string

const (
	ReserveHeld     ReserveStatus = "held"
	ReserveReleased ReserveStatus = "released"
)

// Reserve is a rolling reserve hold withheld by one settlement and released
// into a later one once mature.
type Reserve struct {
	ID            uuid.UUID
	SubMerchantID uuid.UUID
	// SettlementID is the settlement that withheld the reserve.
	SettlementID uuid.UUID
	// ReleasedBySettlementID is set exactly once, by the settlement that
	// paid the reserve back out.
	ReleasedBySettlementID *uuid.UUID

	Amount      decimal.Decimal
	ReleaseDate time.Time
	Status      ReserveStatus
	ReleasedAt  *time.Time

	CreatedAt time.Time
}

// Releasable reports whether the reserve is held and mature as of asOf.
func (r *Reserve) Releasable(asOf time.Time) bool {
	return r.Status == ReserveHeld && !r.ReleaseDate.After(asOf)
}

// Release marks the reserve released into the given settlement. Releasing
// twice is an error; the release must be exactly-once.
func (r *Reserve) Release(settlementID uuid.UUID, at time.Time) error {
	if r.Status == ReserveReleased {
		return ErrAlreadyReleased
	}
	id := settlementID
	r.Status = ReserveReleased
	r.ReleasedBySettlementID = &id
	r.ReleasedAt = &at
	return nil
}
