// Package mocktransfer simulates the money-movement rails for tests and
// local development.
//
// Usage:
//   - Send succeeds by default; the instant rail confirms synchronously,
//     bank and wallet rails accept without confirmation.
//   - Destinations whose account or wallet number starts with a trigger
//     prefix force a specific outcome: "4000" an authoritative rejection,
//     "5000" a transient failure, "9000" an unknown outcome.
//
// This is NOT for production use. Real rails confirm via webhooks.
package mocktransfer

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/nilepay/payfac/pkg/domain/payout"
	"github.com/nilepay/payfac/pkg/provider/transfer"
)

const (
	rejectPrefix    = "4000"
	transientPrefix = "5000"
	timeoutPrefix   = "9000"
)

// Rail is an in-process transfer rail for one method.
type Rail struct {
	method payout.Method

	mu   sync.Mutex
	sent map[string]transfer.SendRequest
}

// New creates a mock rail for the given method.
func New(method payout.Method) *Rail {
	return &Rail{method: method, sent: make(map[string]transfer.SendRequest)}
}

// Method implements transfer.Provider.
func (r *Rail) Method() payout.Method { return r.method }

// Sent returns the requests the rail accepted, keyed by reference.
func (r *Rail) Sent() map[string]transfer.SendRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]transfer.SendRequest, len(r.sent))
	for k, v := range r.sent {
		out[k] = v
	}
	return out
}

func triggerNumber(d payout.Destination) string {
	if d.WalletNumber != "" {
		return d.WalletNumber
	}
	return d.AccountNumber
}

// Send implements transfer.Provider.
func (r *Rail) Send(ctx context.Context, req transfer.SendRequest) (*transfer.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", transfer.ErrOutcomeUnknown, err)
	}

	number := triggerNumber(req.Destination)
	switch {
	case strings.HasPrefix(number, rejectPrefix):
		return nil, &transfer.RejectionError{Code: "invalid_account", Message: "account does not exist"}
	case strings.HasPrefix(number, transientPrefix):
		return &transfer.Result{Success: false, Message: "rail temporarily unavailable"}, nil
	case strings.HasPrefix(number, timeoutPrefix):
		return nil, fmt.Errorf("%w: simulated lost response", transfer.ErrOutcomeUnknown)
	}

	r.mu.Lock()
	r.sent[req.Reference] = req
	r.mu.Unlock()

	return &transfer.Result{
		Success:           true,
		ProviderReference: "MOCK-" + req.Reference,
		Confirmed:         r.method == payout.MethodInstantTransfer,
	}, nil
}

// BatchRail is an in-process batch-capable bank rail.
type BatchRail struct {
	Rail
}

// NewBatch creates a mock bank rail with batch support.
func NewBatch() *BatchRail {
	return &BatchRail{Rail: Rail{
		method: payout.MethodBankTransfer,
		sent:   make(map[string]transfer.SendRequest),
	}}
}

// SubmitBatch implements transfer.BatchProvider. Any member with a trigger
// destination fails the whole submission, matching how the real rail rejects
// malformed files.
func (b *BatchRail) SubmitBatch(
	ctx context.Context,
	batchReference string,
	items []transfer.BatchItem,
) (*transfer.BatchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", transfer.ErrOutcomeUnknown, err)
	}
	for _, item := range items {
		number := triggerNumber(item.Destination)
		switch {
		case strings.HasPrefix(number, timeoutPrefix):
			return nil, fmt.Errorf("%w: simulated lost response", transfer.ErrOutcomeUnknown)
		case strings.HasPrefix(number, rejectPrefix), strings.HasPrefix(number, transientPrefix):
			return &transfer.BatchResult{
				Success: false,
				Message: fmt.Sprintf("item %s rejected by file validation", item.Reference),
			}, nil
		}
	}

	b.mu.Lock()
	for _, item := range items {
		b.sent[item.Reference] = transfer.SendRequest{
			Amount:      item.Amount,
			Destination: item.Destination,
			Reference:   item.Reference,
			Narration:   item.Narration,
		}
	}
	b.mu.Unlock()

	return &transfer.BatchResult{
		Success:           true,
		ProviderReference: "MOCKB-" + batchReference,
	}, nil
}
