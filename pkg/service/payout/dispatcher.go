package payout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nilepay/payfac/pkg/domain/events"
	"github.com/nilepay/payfac/pkg/domain/merchant"
	"github.com/nilepay/payfac/pkg/domain/payout"
	"github.com/nilepay/payfac/pkg/domain/settlement"
	"github.com/nilepay/payfac/pkg/money"
	"github.com/nilepay/payfac/pkg/provider/transfer"
	"github.com/nilepay/payfac/pkg/repository"
)

// CreatePayoutInput describes a payout to create, from a settlement or ad
// hoc. Fee is optional; when nil the configured fee schedule applies.
type CreatePayoutInput struct {
	SubMerchantID uuid.UUID
	SettlementID  *uuid.UUID
	Amount        decimal.Decimal
	Fee           *decimal.Decimal
	Method        payout.Method
	Destination   payout.Destination
	ScheduledDate time.Time
}

// CreatePayout validates the input, applies the fee schedule, and persists a
// payout in its initial status. Payouts above the approval threshold start
// pending; smaller ones start approved.
func (s *Service) CreatePayout(ctx context.Context, in CreatePayoutInput) (*payout.Payout, error) {
	if !in.Amount.IsPositive() {
		return nil, payout.ErrInvalidAmount
	}
	if err := in.Destination.Validate(in.Method); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	fee := s.fees.FeeFor(in.Method, in.Amount)
	if in.Fee != nil {
		fee = money.Round2(*in.Fee)
	}
	amount := money.Round2(in.Amount)
	net := money.Round2(amount.Sub(fee))
	if !net.IsPositive() {
		return nil, fmt.Errorf("%w: fee %s consumes the whole amount", payout.ErrInvalidAmount, fee.StringFixed(2))
	}

	scheduled := in.ScheduledDate
	if scheduled.IsZero() {
		scheduled = now
	}

	p := &payout.Payout{
		ID:            uuid.New(),
		Reference:     payout.NewReference("PO", now),
		SubMerchantID: in.SubMerchantID,
		SettlementID:  in.SettlementID,
		Amount:        amount,
		Fee:           fee,
		NetAmount:     net,
		Currency:      s.currency,
		Method:        in.Method,
		Destination:   in.Destination,
		ScheduledDate: scheduled,
		MaxRetries:    s.maxRetries,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if amount.GreaterThan(s.approvalThreshold) {
		p.Status = payout.StatusPending
		p.RequiresApproval = true
	} else {
		p.Status = payout.StatusApproved
	}

	err := s.uow.Do(ctx, func(uow repository.UnitOfWork) error {
		if err := uow.Payouts().Create(ctx, p); err != nil {
			return err
		}
		if in.SettlementID == nil {
			return nil
		}
		st, err := uow.Settlements().Get(ctx, *in.SettlementID)
		if err != nil {
			return err
		}
		if err := st.AttachPayout(p.ID); err != nil {
			return err
		}
		return uow.Settlements().Update(ctx, st)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("payout created",
		"reference", p.Reference,
		"method", string(p.Method),
		"net_amount", p.NetAmount.StringFixed(2),
		"status", string(p.Status))
	return p, nil
}

// CreateForSettlement builds a payout executing an approved settlement's net
// amount using the sub-merchant's configured method and destination.
func (s *Service) CreateForSettlement(
	ctx context.Context,
	st *settlement.Settlement,
	m *merchant.SubMerchant,
) (*payout.Payout, error) {
	if st.Status != settlement.StatusApproved {
		return nil, fmt.Errorf("settlement %s is not approved", st.Reference)
	}
	id := st.ID
	return s.CreatePayout(ctx, CreatePayoutInput{
		SubMerchantID: m.ID,
		SettlementID:  &id,
		Amount:        st.NetAmount,
		Method:        m.PayoutMethod,
		Destination:   m.Destination,
		// D+N cycles delay the payout, not the settlement.
		ScheduledDate: time.Now().UTC().AddDate(0, 0, m.PayoutDelayDays()),
	})
}

// Approve releases a pending payout for dispatch.
func (s *Service) Approve(ctx context.Context, id uuid.UUID, approvedBy string) (*payout.Payout, error) {
	var p *payout.Payout
	err := s.uow.Do(ctx, func(uow repository.UnitOfWork) error {
		var err error
		p, err = uow.Payouts().Get(ctx, id)
		if err != nil {
			return err
		}
		if err := p.Approve(approvedBy, time.Now().UTC()); err != nil {
			return err
		}
		return uow.Payouts().Update(ctx, p)
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Cancel aborts a payout that has not left pending.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID) (*payout.Payout, error) {
	var p *payout.Payout
	err := s.uow.Do(ctx, func(uow repository.UnitOfWork) error {
		var err error
		p, err = uow.Payouts().Get(ctx, id)
		if err != nil {
			return err
		}
		if err := p.Cancel(); err != nil {
			return err
		}
		return uow.Payouts().Update(ctx, p)
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Get returns one payout.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*payout.Payout, error) {
	return s.uow.Payouts().Get(ctx, id)
}

// ProcessSinglePayout drives one approved payout through a dispatch attempt
// against its rail. Outcomes:
//
//   - rail confirms synchronously: completed (and the settlement is paid)
//   - rail accepts without confirmation: sent, awaiting reconciliation
//   - timeout / lost response: stays processing, awaiting reconciliation;
//     the retry counter is untouched because the transfer may have landed
//   - authoritative rejection: failed terminally, retries exhausted
//   - transient failure: failed with the attempt counted; the retry sweep
//     picks it up while budget remains
//
// Handled rail outcomes return nil; only validation and infrastructure
// problems surface as errors.
func (s *Service) ProcessSinglePayout(ctx context.Context, p *payout.Payout) error {
	logger := s.logger.With("payout", p.Reference, "method", string(p.Method))

	provider, ok := s.providers[p.Method]
	if !ok {
		return fmt.Errorf("no transfer provider for method %q", p.Method)
	}
	if err := p.Destination.Validate(p.Method); err != nil {
		return err
	}

	now := time.Now().UTC()
	if err := p.MarkProcessing(now); err != nil {
		return err
	}
	// The claim is committed before the rail call so a crash mid-dispatch
	// leaves an in-flight marker, never a double send.
	if err := s.persist(ctx, p); err != nil {
		return err
	}

	res, err := provider.Send(ctx, transfer.SendRequest{
		Amount:      p.NetAmount,
		Currency:    p.Currency,
		Destination: p.Destination,
		Reference:   p.Reference,
		Narration:   fmt.Sprintf("Payout %s", p.Reference),
	})

	var rejection *transfer.RejectionError
	switch {
	case err != nil && errors.Is(err, transfer.ErrOutcomeUnknown):
		// The rail was called on our reference; stamping it keeps the
		// in-flight payout reachable by confirmation lookups.
		p.RecordDispatchReference(p.Reference)
		if err := s.persist(ctx, p); err != nil {
			return err
		}
		logger.Warn("transfer outcome unknown, awaiting reconciliation", "error", err)
		return nil

	case err != nil && errors.As(err, &rejection):
		p.ExhaustRetries()
		if err := p.RecordAttemptFailure(rejection.Code, rejection.Message); err != nil {
			return err
		}
		if err := s.persist(ctx, p); err != nil {
			return err
		}
		logger.Error("transfer rejected by rail", "code", rejection.Code, "message", rejection.Message)
		s.publishTerminalFailure(ctx, p)
		return nil

	case err != nil || !res.Success:
		msg := "transfer failed"
		if err != nil {
			msg = err.Error()
		} else if res.Message != "" {
			msg = res.Message
		}
		if err := p.RecordAttemptFailure("transient", msg); err != nil {
			return err
		}
		if err := s.persist(ctx, p); err != nil {
			return err
		}
		if p.Terminal() {
			logger.Error("transfer failed, retries exhausted", "message", msg)
			s.publishTerminalFailure(ctx, p)
		} else {
			logger.Warn("transfer failed, will retry",
				"message", msg, "retry_count", p.RetryCount, "max_retries", p.MaxRetries)
		}
		return nil
	}

	if res.Confirmed {
		if err := p.MarkCompleted(res.ProviderReference, res.Message, now); err != nil {
			return err
		}
		if err := s.persistCompletion(ctx, p); err != nil {
			return err
		}
		logger.Info("payout completed", "provider_reference", res.ProviderReference)
		s.bus.Publish(ctx, events.PayoutCompleted{
			PayoutID:      p.ID,
			Reference:     p.Reference,
			SubMerchantID: p.SubMerchantID,
			NetAmount:     p.NetAmount,
		})
		return nil
	}

	if err := p.MarkSent(res.ProviderReference); err != nil {
		return err
	}
	if err := s.persist(ctx, p); err != nil {
		return err
	}
	logger.Info("payout sent, awaiting confirmation", "provider_reference", res.ProviderReference)
	s.bus.Publish(ctx, events.PayoutSent{
		PayoutID:      p.ID,
		Reference:     p.Reference,
		SubMerchantID: p.SubMerchantID,
		NetAmount:     p.NetAmount,
	})
	return nil
}

func (s *Service) persist(ctx context.Context, p *payout.Payout) error {
	return s.uow.Do(ctx, func(uow repository.UnitOfWork) error {
		return uow.Payouts().Update(ctx, p)
	})
}

// persistCompletion updates the payout and marks its settlement paid in the
// same transaction.
func (s *Service) persistCompletion(ctx context.Context, p *payout.Payout) error {
	return s.uow.Do(ctx, func(uow repository.UnitOfWork) error {
		if err := uow.Payouts().Update(ctx, p); err != nil {
			return err
		}
		if p.SettlementID == nil {
			return nil
		}
		st, err := uow.Settlements().Get(ctx, *p.SettlementID)
		if err != nil {
			return err
		}
		if err := st.MarkPaid(time.Now().UTC()); err != nil {
			return err
		}
		return uow.Settlements().Update(ctx, st)
	})
}

func (s *Service) publishTerminalFailure(ctx context.Context, p *payout.Payout) {
	s.bus.Publish(ctx, events.PayoutFailed{
		PayoutID:      p.ID,
		Reference:     p.Reference,
		SubMerchantID: p.SubMerchantID,
		FailureCode:   p.FailureCode,
		Message:       p.FailureMessage,
	})
	s.bus.Publish(ctx, events.OperationalAlert{
		Subject:       "payout failed",
		Detail:        fmt.Sprintf("payout %s failed: %s", p.Reference, p.FailureMessage),
		SubMerchantID: p.SubMerchantID,
	})
}
