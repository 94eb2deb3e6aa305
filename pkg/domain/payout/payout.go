// Package payout holds the payout aggregate and its state machine. All state
// transitions live here; services orchestrate but never mutate fields
// directly.
package payout

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Method is the rail a payout travels on.
type Method string

const (
	MethodInstantTransfer Method = "instant_transfer"
	MethodBankTransfer    Method = "bank_transfer"
	MethodWallet          Method = "wallet"
)

// Status is a payout's lifecycle state.
type Status string

const (
	StatusPending    Status = "pending"
	StatusApproved   Status = "approved"
	StatusProcessing Status = "processing"
	StatusSent       Status = "sent"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusReturned   Status = "returned"
	StatusCancelled  Status = "cancelled"
)

// ErrInvalidAmount rejects non-positive payout amounts.
var ErrInvalidAmount = errors.New("payout amount must be positive")

// ErrInvalidDestination rejects destinations missing the fields their method
// requires.
var ErrInvalidDestination = errors.New("invalid payout destination")

// InvalidTransitionError reports an attempted move the state machine forbids.
type InvalidTransitionError struct {
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid payout transition %s -> %s", e.From, e.To)
}

// Destination identifies where a payout lands. The required fields depend on
// the method: bank transfers need a bank code and account number, instant
// transfers an account number, wallets a wallet phone number.
type Destination struct {
	BankCode      string `json:"bank_code,omitempty"`
	AccountNumber string `json:"account_number,omitempty"`
	AccountName   string `json:"account_name,omitempty"`
	WalletNumber  string `json:"wallet_number,omitempty"`
}

// Validate checks the destination carries the fields the method requires.
func (d Destination) Validate(m Method) error {
	switch m {
	case MethodBankTransfer:
		if strings.TrimSpace(d.BankCode) == "" {
			return fmt.Errorf("%w: bank transfer requires a bank code", ErrInvalidDestination)
		}
		if strings.TrimSpace(d.AccountNumber) == "" {
			return fmt.Errorf("%w: bank transfer requires an account number", ErrInvalidDestination)
		}
	case MethodInstantTransfer:
		if strings.TrimSpace(d.AccountNumber) == "" {
			return fmt.Errorf("%w: instant transfer requires an account number", ErrInvalidDestination)
		}
	case MethodWallet:
		if strings.TrimSpace(d.WalletNumber) == "" {
			return fmt.Errorf("%w: wallet requires a wallet number", ErrInvalidDestination)
		}
	default:
		return fmt.Errorf("%w: unknown payout method %q", ErrInvalidDestination, m)
	}
	return nil
}

// Payout is one transfer of settled funds to a sub-merchant.
type Payout struct {
	ID            uuid.UUID
	Reference     string
	SubMerchantID uuid.UUID
	SettlementID  *uuid.UUID
	BatchID       *uuid.UUID

	Amount    decimal.Decimal
	Fee       decimal.Decimal
	NetAmount decimal.Decimal
	Currency  string

	Method      Method
	Destination Destination

	Status           Status
	RequiresApproval bool
	ApprovedBy       string
	ApprovedAt       *time.Time

	ScheduledDate time.Time
	ProcessedAt   *time.Time
	CompletedAt   *time.Time

	ProcessorReference string
	FailureCode        string
	FailureMessage     string

	RetryCount int
	MaxRetries int

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewReference builds a human-readable payout reference like
// PO-20240131-1A2B3C4D.
func NewReference(prefix string, on time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))[:8]
	return fmt.Sprintf("%s-%s-%s", prefix, on.Format("20060102"), suffix)
}

// Terminal reports whether the payout can make no further progress. A failed
// payout is terminal only once its retry budget is exhausted.
func (p *Payout) Terminal() bool {
	switch p.Status {
	case StatusCompleted, StatusReturned, StatusCancelled:
		return true
	case StatusFailed:
		return p.RetryCount >= p.MaxRetries
	default:
		return false
	}
}

// CanRetry reports whether a failed payout still has retry budget.
func (p *Payout) CanRetry() bool {
	return p.Status == StatusFailed && p.RetryCount < p.MaxRetries
}

func (p *Payout) transition(from []Status, to Status) error {
	for _, s := range from {
		if p.Status == s {
			p.Status = to
			p.UpdatedAt = time.Now().UTC()
			return nil
		}
	}
	return &InvalidTransitionError{From: p.Status, To: to}
}

// Approve releases a pending payout for dispatch.
func (p *Payout) Approve(approvedBy string, at time.Time) error {
	if err := p.transition([]Status{StatusPending}, StatusApproved); err != nil {
		return err
	}
	p.ApprovedBy = approvedBy
	p.ApprovedAt = &at
	return nil
}

// MarkProcessing claims the payout for a dispatch attempt.
func (p *Payout) MarkProcessing(at time.Time) error {
	if err := p.transition([]Status{StatusApproved}, StatusProcessing); err != nil {
		return err
	}
	p.ProcessedAt = &at
	return nil
}

// RecordDispatchReference stamps the reference the rail was called with, so
// an in-flight payout whose outcome is unknown stays reachable by
// reconciliation. A reference already reported by the rail is kept.
func (p *Payout) RecordDispatchReference(ref string) {
	if p.ProcessorReference == "" {
		p.ProcessorReference = ref
	}
	p.UpdatedAt = time.Now().UTC()
}

// MarkSent records that the rail accepted the transfer without a terminal
// confirmation.
func (p *Payout) MarkSent(processorRef string) error {
	if err := p.transition([]Status{StatusProcessing}, StatusSent); err != nil {
		return err
	}
	p.ProcessorReference = processorRef
	return nil
}

// MarkCompleted records terminal success. Reachable from processing
// (synchronous confirmation) or sent (asynchronous confirmation).
func (p *Payout) MarkCompleted(processorRef, details string, at time.Time) error {
	if err := p.transition([]Status{StatusProcessing, StatusSent}, StatusCompleted); err != nil {
		return err
	}
	if processorRef != "" {
		p.ProcessorReference = processorRef
	}
	p.FailureMessage = details
	p.CompletedAt = &at
	return nil
}

// MarkFailed records a failed attempt without touching the retry counter.
func (p *Payout) MarkFailed(code, message string) error {
	if err := p.transition([]Status{StatusProcessing, StatusSent}, StatusFailed); err != nil {
		return err
	}
	p.FailureCode = code
	p.FailureMessage = message
	return nil
}

// MarkReturned records that the rail reversed a sent transfer.
func (p *Payout) MarkReturned(details string) error {
	if err := p.transition([]Status{StatusSent}, StatusReturned); err != nil {
		return err
	}
	p.FailureCode = "returned"
	p.FailureMessage = details
	return nil
}

// RecordAttemptFailure marks the payout failed and consumes one retry.
func (p *Payout) RecordAttemptFailure(code, message string) error {
	if err := p.MarkFailed(code, message); err != nil {
		return err
	}
	p.RetryCount++
	return nil
}

// ExhaustRetries burns the remaining retry budget. Used on authoritative
// rejections, where retrying cannot change the outcome.
func (p *Payout) ExhaustRetries() {
	p.RetryCount = p.MaxRetries
}

// Requeue returns a retryable failed payout to approved for another attempt.
func (p *Payout) Requeue() error {
	if !p.CanRetry() {
		return &InvalidTransitionError{From: p.Status, To: StatusApproved}
	}
	p.Status = StatusApproved
	p.UpdatedAt = time.Now().UTC()
	return nil
}

// Cancel aborts a payout that has not left pending.
func (p *Payout) Cancel() error {
	return p.transition([]Status{StatusPending}, StatusCancelled)
}

// AssignBatch attaches the payout to a batch submission.
func (p *Payout) AssignBatch(batchID uuid.UUID) {
	id := batchID
	p.BatchID = &id
	p.UpdatedAt = time.Now().UTC()
}
