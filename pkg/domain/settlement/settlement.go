// Package settlement holds the settlement aggregate: the computed statement
// of what the platform owes a sub-merchant for one period, with its line
// items.
package settlement

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status is a settlement's lifecycle state.
type Status string

const (
	StatusCalculated Status = "calculated"
	StatusApproved   Status = "approved"
	StatusOnHold     Status = "on_hold"
	StatusPaid       Status = "paid"
)

// InvalidTransitionError reports an attempted move the state machine forbids.
type InvalidTransitionError struct {
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid settlement transition %s -> %s", e.From, e.To)
}

// Settlement is the aggregated statement for one sub-merchant and period.
type Settlement struct {
	ID            uuid.UUID
	Reference     string
	SubMerchantID uuid.UUID
	PeriodStart   time.Time
	PeriodEnd     time.Time

	GrossSales    decimal.Decimal
	GrossRefunds  decimal.Decimal
	GrossDisputes decimal.Decimal
	GrossAmount   decimal.Decimal

	ProcessorFees decimal.Decimal
	PlatformFees  decimal.Decimal
	RefundFees    decimal.Decimal
	DisputeFees   decimal.Decimal
	TotalFees     decimal.Decimal

	ReserveHeld     decimal.Decimal
	ReserveReleased decimal.Decimal
	NetAmount       decimal.Decimal

	TransactionCount int
	RefundCount      int
	DisputeCount     int

	Status     Status
	ApprovedBy string
	ApprovedAt *time.Time
	HoldReason string
	PayoutID   *uuid.UUID
	PaidAt     *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewReference builds a human-readable settlement reference like
// STL-20240131-1A2B3C4D.
func NewReference(periodEnd time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))[:8]
	return fmt.Sprintf("STL-%s-%s", periodEnd.Format("20060102"), suffix)
}

// Consistent verifies the conservation law across the settlement's amounts:
// net = gross - fees - reserve held + reserve released, with gross itself
// consistent with its components.
func (s *Settlement) Consistent() bool {
	gross := s.GrossSales.Sub(s.GrossRefunds).Sub(s.GrossDisputes)
	if !gross.Equal(s.GrossAmount) {
		return false
	}
	fees := s.ProcessorFees.Add(s.PlatformFees).Add(s.RefundFees).Add(s.DisputeFees)
	if !fees.Equal(s.TotalFees) {
		return false
	}
	net := s.GrossAmount.Sub(s.TotalFees).Sub(s.ReserveHeld).Add(s.ReserveReleased)
	return net.Equal(s.NetAmount)
}

func (s *Settlement) transition(from []Status, to Status) error {
	for _, st := range from {
		if s.Status == st {
			s.Status = to
			s.UpdatedAt = time.Now().UTC()
			return nil
		}
	}
	return &InvalidTransitionError{From: s.Status, To: to}
}

// Approve marks the settlement approved for payout.
func (s *Settlement) Approve(approvedBy string, at time.Time) error {
	if err := s.transition([]Status{StatusCalculated}, StatusApproved); err != nil {
		return err
	}
	s.ApprovedBy = approvedBy
	s.ApprovedAt = &at
	return nil
}

// Hold parks the settlement pending operator review.
func (s *Settlement) Hold(reason string, at time.Time) error {
	if err := s.transition([]Status{StatusCalculated, StatusApproved}, StatusOnHold); err != nil {
		return err
	}
	s.HoldReason = reason
	s.UpdatedAt = at
	return nil
}

// AttachPayout links the executing payout. Only an approved settlement takes
// a payout, and only once.
func (s *Settlement) AttachPayout(payoutID uuid.UUID) error {
	if s.Status != StatusApproved {
		return fmt.Errorf("settlement %s is not approved", s.Reference)
	}
	if s.PayoutID != nil {
		return fmt.Errorf("settlement %s already has a payout", s.Reference)
	}
	id := payoutID
	s.PayoutID = &id
	s.UpdatedAt = time.Now().UTC()
	return nil
}

// MarkPaid records that the attached payout completed.
func (s *Settlement) MarkPaid(at time.Time) error {
	if err := s.transition([]Status{StatusApproved}, StatusPaid); err != nil {
		return err
	}
	s.PaidAt = &at
	return nil
}

// ItemType classifies a settlement line item.
type ItemType string

const (
	ItemTransaction    ItemType = "transaction"
	ItemRefund         ItemType = "refund"
	ItemDispute        ItemType = "dispute"
	ItemReserveHold    ItemType = "reserve_hold"
	ItemReserveRelease ItemType = "reserve_release"
)

// Item is one line of a settlement. SourceID points at the contributing
// ledger row; the synthetic reserve hold line has none.
type Item struct {
	ID           uuid.UUID
	SettlementID uuid.UUID
	Type         ItemType
	SourceID     *uuid.UUID

	Gross decimal.Decimal
	Fee   decimal.Decimal
	Net   decimal.Decimal

	CreatedAt time.Time
}
