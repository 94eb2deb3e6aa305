package payout

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nilepay/payfac/pkg/domain/events"
	"github.com/nilepay/payfac/pkg/domain/payout"
	"github.com/nilepay/payfac/pkg/repository"
)

// ConfirmationStatus is the terminal state an external confirmation reports.
type ConfirmationStatus string

const (
	ConfirmationCompleted ConfirmationStatus = "completed"
	ConfirmationFailed    ConfirmationStatus = "failed"
	ConfirmationReturned  ConfirmationStatus = "returned"
)

// ConfirmPayoutCompletion folds an already-authenticated external
// confirmation into payout and settlement state. Processing the same
// confirmation twice is a no-op once the payout is terminal, so replayed
// webhooks cannot double-apply side effects.
func (s *Service) ConfirmPayoutCompletion(
	ctx context.Context,
	processorReference string,
	status ConfirmationStatus,
	details string,
) error {
	var (
		p       *payout.Payout
		applied bool
	)
	err := s.uow.Do(ctx, func(uow repository.UnitOfWork) error {
		var err error
		p, err = uow.Payouts().GetByProcessorReference(ctx, processorReference)
		if err != nil {
			return err
		}
		if p.Terminal() {
			s.logger.Info("confirmation for terminal payout ignored",
				"payout", p.Reference, "status", string(status))
			return nil
		}

		now := time.Now().UTC()
		switch status {
		case ConfirmationCompleted:
			if err := p.MarkCompleted("", details, now); err != nil {
				return err
			}
			if p.SettlementID != nil {
				st, err := uow.Settlements().Get(ctx, *p.SettlementID)
				if err != nil {
					return err
				}
				if err := st.MarkPaid(now); err != nil {
					return err
				}
				if err := uow.Settlements().Update(ctx, st); err != nil {
					return err
				}
			}
		case ConfirmationFailed:
			if err := p.RecordAttemptFailure("provider_failure", details); err != nil {
				return err
			}
		case ConfirmationReturned:
			if err := p.MarkReturned(details); err != nil {
				return err
			}
		default:
			return fmt.Errorf("unknown confirmation status %q", status)
		}

		if err := uow.Payouts().Update(ctx, p); err != nil {
			return err
		}
		if p.BatchID != nil && status != ConfirmationCompleted {
			if err := s.adjustBatchCounts(ctx, uow, *p.BatchID, now); err != nil {
				return err
			}
		}
		applied = true
		return nil
	})
	if err != nil {
		return err
	}
	if !applied {
		return nil
	}

	switch status {
	case ConfirmationCompleted:
		s.logger.Info("payout confirmed completed", "payout", p.Reference)
		s.bus.Publish(ctx, events.PayoutCompleted{
			PayoutID:      p.ID,
			Reference:     p.Reference,
			SubMerchantID: p.SubMerchantID,
			NetAmount:     p.NetAmount,
		})
	case ConfirmationFailed:
		s.logger.Error("payout confirmed failed", "payout", p.Reference, "details", details)
		if p.Terminal() {
			s.publishTerminalFailure(ctx, p)
		} else {
			s.bus.Publish(ctx, events.OperationalAlert{
				Subject:       "payout failed at rail",
				Detail:        fmt.Sprintf("payout %s failed: %s", p.Reference, details),
				SubMerchantID: p.SubMerchantID,
			})
		}
	case ConfirmationReturned:
		s.logger.Error("payout returned by rail", "payout", p.Reference, "details", details)
		s.bus.Publish(ctx, events.OperationalAlert{
			Subject:       "payout returned",
			Detail:        fmt.Sprintf("payout %s returned: %s", p.Reference, details),
			SubMerchantID: p.SubMerchantID,
		})
	}
	return nil
}

// adjustBatchCounts moves one member from the successful to the failed
// column after a post-submission failure and re-derives the batch status.
func (s *Service) adjustBatchCounts(ctx context.Context, uow repository.UnitOfWork, batchID uuid.UUID, now time.Time) error {
	b, err := uow.PayoutBatches().Get(ctx, batchID)
	if err != nil {
		return err
	}
	if b.SuccessfulCount > 0 {
		b.SuccessfulCount--
	}
	b.FailedCount++
	b.Finalize(now)
	return uow.PayoutBatches().Update(ctx, b)
}

// RetryReport summarizes one retry sweep.
type RetryReport struct {
	Eligible  int
	Retried   int
	Succeeded int
	Failed    int
}

// RunRetrySweep re-attempts every failed payout whose retry budget is not
// exhausted, one at a time. Per-item errors are logged and never abort the
// sweep.
func (s *Service) RunRetrySweep(ctx context.Context) (*RetryReport, error) {
	eligible, err := s.uow.Payouts().FailedRetryable(ctx)
	if err != nil {
		return nil, fmt.Errorf("query retryable payouts: %w", err)
	}

	report := &RetryReport{Eligible: len(eligible)}
	for i, p := range eligible {
		if i > 0 {
			s.sleep(s.interCallDelay)
		}
		if err := s.requeue(ctx, p); err != nil {
			s.logger.Error("payout requeue failed", "payout", p.Reference, "error", err)
			report.Failed++
			continue
		}
		report.Retried++
		if err := s.ProcessSinglePayout(ctx, p); err != nil {
			s.logger.Error("payout retry failed", "payout", p.Reference, "error", err)
			report.Failed++
			continue
		}
		if p.Status == payout.StatusCompleted || p.Status == payout.StatusSent {
			report.Succeeded++
		}
	}

	s.logger.Info("payout retry sweep finished",
		"eligible", report.Eligible,
		"retried", report.Retried,
		"succeeded", report.Succeeded,
		"failed", report.Failed)
	return report, nil
}

func (s *Service) requeue(ctx context.Context, p *payout.Payout) error {
	return s.uow.Do(ctx, func(uow repository.UnitOfWork) error {
		if err := p.Requeue(); err != nil {
			return err
		}
		return uow.Payouts().Update(ctx, p)
	})
}
