package payout

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BatchStatus is a batch submission's lifecycle state.
type BatchStatus string

const (
	BatchProcessing         BatchStatus = "processing"
	BatchCompleted          BatchStatus = "completed"
	BatchFailed             BatchStatus = "failed"
	BatchPartiallyCompleted BatchStatus = "partially_completed"
)

// Batch is one structured multi-payout submission to a rail. Its status is
// derived from member outcomes, never set directly.
type Batch struct {
	ID                 uuid.UUID
	Reference          string
	ProcessorReference string
	Method             Method
	Status             BatchStatus

	PayoutCount     int
	TotalAmount     decimal.Decimal
	TotalFees       decimal.Decimal
	SuccessfulCount int
	FailedCount     int
	FailureMessage  string

	ScheduledDate time.Time
	SubmittedAt   time.Time
	SettledAt     *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// NewBatch builds a processing batch over the given members, aggregating
// their net amounts and fees.
func NewBatch(method Method, date time.Time, members []*Payout) *Batch {
	now := time.Now().UTC()
	total := decimal.Zero
	fees := decimal.Zero
	for _, p := range members {
		total = total.Add(p.NetAmount)
		fees = fees.Add(p.Fee)
	}
	return &Batch{
		ID:            uuid.New(),
		Reference:     NewReference("PB", date),
		Method:        method,
		Status:        BatchProcessing,
		PayoutCount:   len(members),
		TotalAmount:   total,
		TotalFees:     fees,
		ScheduledDate: date,
		SubmittedAt:   now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// RecordOutcome counts one member's terminal outcome.
func (b *Batch) RecordOutcome(success bool) {
	if success {
		b.SuccessfulCount++
	} else {
		b.FailedCount++
	}
	b.UpdatedAt = time.Now().UTC()
}

// Settled reports whether every member has a recorded outcome.
func (b *Batch) Settled() bool {
	return b.SuccessfulCount+b.FailedCount >= b.PayoutCount
}

// Finalize derives the batch status from member outcomes: completed with no
// failures, failed with no successes, partially completed otherwise.
func (b *Batch) Finalize(at time.Time) {
	switch {
	case b.FailedCount == 0:
		b.Status = BatchCompleted
	case b.SuccessfulCount == 0:
		b.Status = BatchFailed
	default:
		b.Status = BatchPartiallyCompleted
	}
	b.SettledAt = &at
	b.UpdatedAt = at
}
