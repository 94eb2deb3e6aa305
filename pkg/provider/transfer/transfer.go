// Package transfer defines the contracts for the external money-movement
// rails. The core treats each rail as an abstract send capability; wire
// formats and signatures live behind these interfaces.
package transfer

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/nilepay/payfac/pkg/domain/payout"
)

// ErrOutcomeUnknown signals that the rail call timed out or the response was
// lost. The payout must stay in flight and await reconciliation; treating
// this as a failure risks paying twice.
var ErrOutcomeUnknown = errors.New("transfer outcome unknown")

// RejectionError is an authoritative decline from the rail (invalid account,
// closed wallet). Retrying cannot change the outcome.
type RejectionError struct {
	Code    string
	Message string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("rail rejected transfer: %s (%s)", e.Message, e.Code)
}

// SendRequest is a single transfer instruction for a rail.
type SendRequest struct {
	Amount      decimal.Decimal
	Currency    string
	Destination payout.Destination
	Reference   string
	Narration   string
}

// Result is the rail's synchronous answer to a send.
type Result struct {
	Success           bool
	ProviderReference string
	Message           string
	// Confirmed reports whether the rail confirmed the transfer terminally
	// in the synchronous response. When false, the transfer is accepted but
	// settles asynchronously.
	Confirmed bool
}

// Provider is a single-transfer rail. Implementations should be idempotent
// on Reference where the underlying rail supports it.
type Provider interface {
	Method() payout.Method
	Send(ctx context.Context, req SendRequest) (*Result, error)
}

// BatchItem is one transfer inside a batch submission.
type BatchItem struct {
	Reference   string
	Amount      decimal.Decimal
	Destination payout.Destination
	Narration   string
}

// BatchResult is the rail's answer to a batch submission. Success applies to
// the batch as a whole; per-item outcomes arrive via reconciliation.
type BatchResult struct {
	Success           bool
	ProviderReference string
	Message           string
}

// BatchProvider is a rail that accepts a structured multi-transfer request.
// Only the bank rail supports batching.
type BatchProvider interface {
	SubmitBatch(ctx context.Context, batchReference string, items []BatchItem) (*BatchResult, error)
}
