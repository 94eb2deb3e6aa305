package payout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nilepay/payfac/pkg/domain/events"
	"github.com/nilepay/payfac/pkg/domain/payout"
	"github.com/nilepay/payfac/pkg/provider/transfer"
	"github.com/nilepay/payfac/pkg/repository"
)

// DispatchReport summarizes one dispatch run.
type DispatchReport struct {
	Date       time.Time
	Due        int
	Dispatched int
	Batches    int
	Failed     int
}

// DispatchDue processes the run's due payouts (approved, scheduled at or
// before date) per method. Instant and wallet payouts go out one at a time
// with a courtesy delay between calls; the rails rate-limit us, so this loop
// stays sequential. Bank payouts are grouped into one batch per run.
func (s *Service) DispatchDue(ctx context.Context, date time.Time) (*DispatchReport, error) {
	due, err := s.uow.Payouts().DueForDispatch(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("query due payouts: %w", err)
	}

	report := &DispatchReport{Date: date, Due: len(due)}

	byMethod := make(map[payout.Method][]*payout.Payout)
	for _, p := range due {
		byMethod[p.Method] = append(byMethod[p.Method], p)
	}

	for _, method := range []payout.Method{payout.MethodInstantTransfer, payout.MethodWallet} {
		group := byMethod[method]
		for i, p := range group {
			if i > 0 {
				s.sleep(s.interCallDelay)
			}
			if err := s.ProcessSinglePayout(ctx, p); err != nil {
				s.logger.Error("payout dispatch failed", "payout", p.Reference, "error", err)
				report.Failed++
				continue
			}
			report.Dispatched++
		}
	}

	if bank := byMethod[payout.MethodBankTransfer]; len(bank) > 0 {
		if err := s.dispatchBankBatch(ctx, date, bank); err != nil {
			s.logger.Error("bank batch dispatch failed", "error", err)
			report.Failed += len(bank)
		} else {
			report.Dispatched += len(bank)
			report.Batches++
		}
	}

	s.logger.Info("payout dispatch run finished",
		"date", date.Format("2006-01-02"),
		"due", report.Due,
		"dispatched", report.Dispatched,
		"batches", report.Batches,
		"failed", report.Failed)
	return report, nil
}

// dispatchBankBatch submits the run's bank payouts as one structured request.
// Batch-level success moves every member to sent pending individual
// reconciliation; batch-level failure fails every member and counts the
// attempt against each one's retry budget.
func (s *Service) dispatchBankBatch(ctx context.Context, date time.Time, members []*payout.Payout) error {
	if s.batch == nil {
		return errors.New("no batch transfer provider configured")
	}

	now := time.Now().UTC()
	b := payout.NewBatch(payout.MethodBankTransfer, date, members)

	err := s.uow.Do(ctx, func(uow repository.UnitOfWork) error {
		if err := uow.PayoutBatches().Create(ctx, b); err != nil {
			return err
		}
		for _, p := range members {
			if err := p.Destination.Validate(p.Method); err != nil {
				return fmt.Errorf("payout %s: %w", p.Reference, err)
			}
			if err := p.MarkProcessing(now); err != nil {
				return fmt.Errorf("payout %s: %w", p.Reference, err)
			}
			p.AssignBatch(b.ID)
			if err := uow.Payouts().Update(ctx, p); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	items := make([]transfer.BatchItem, 0, len(members))
	for _, p := range members {
		items = append(items, transfer.BatchItem{
			Reference:   p.Reference,
			Amount:      p.NetAmount,
			Destination: p.Destination,
			Narration:   fmt.Sprintf("Payout %s", p.Reference),
		})
	}

	res, err := s.batch.SubmitBatch(ctx, b.Reference, items)
	if err != nil && errors.Is(err, transfer.ErrOutcomeUnknown) {
		// Unknown outcome: members stay processing and the batch stays
		// open until reconciliation reports per-item results. Each member
		// keeps its own reference so those reports can find it.
		s.logger.Warn("batch outcome unknown, awaiting reconciliation", "batch", b.Reference)
		return s.uow.Do(ctx, func(uow repository.UnitOfWork) error {
			for _, p := range members {
				p.RecordDispatchReference(p.Reference)
				if err := uow.Payouts().Update(ctx, p); err != nil {
					return err
				}
			}
			return nil
		})
	}

	if err != nil || !res.Success {
		msg := "batch submission failed"
		if err != nil {
			msg = err.Error()
		} else if res.Message != "" {
			msg = res.Message
		}
		return s.failBatch(ctx, b, members, msg)
	}

	return s.uow.Do(ctx, func(uow repository.UnitOfWork) error {
		for _, p := range members {
			// The rail echoes our per-item reference on confirmations.
			if err := p.MarkSent(p.Reference); err != nil {
				return err
			}
			if err := uow.Payouts().Update(ctx, p); err != nil {
				return err
			}
			b.RecordOutcome(true)
		}
		b.ProcessorReference = res.ProviderReference
		b.Finalize(time.Now().UTC())
		return uow.PayoutBatches().Update(ctx, b)
	})
}

func (s *Service) failBatch(ctx context.Context, b *payout.Batch, members []*payout.Payout, msg string) error {
	err := s.uow.Do(ctx, func(uow repository.UnitOfWork) error {
		for _, p := range members {
			if err := p.RecordAttemptFailure("batch_failure", msg); err != nil {
				return err
			}
			if err := uow.Payouts().Update(ctx, p); err != nil {
				return err
			}
			b.RecordOutcome(false)
		}
		b.FailureMessage = msg
		b.Finalize(time.Now().UTC())
		return uow.PayoutBatches().Update(ctx, b)
	})
	if err != nil {
		return err
	}

	s.bus.Publish(ctx, events.OperationalAlert{
		Subject: "payout batch failed",
		Detail:  fmt.Sprintf("batch %s (%d payouts) failed: %s", b.Reference, b.PayoutCount, msg),
	})
	for _, p := range members {
		if p.Terminal() {
			s.publishTerminalFailure(ctx, p)
		}
	}
	return nil
}
