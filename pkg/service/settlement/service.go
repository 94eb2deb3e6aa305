package settlement

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nilepay/payfac/pkg/domain/settlement"
	"github.com/nilepay/payfac/pkg/repository"
)

// Approve marks a calculated settlement approved by an operator.
func (s *Service) Approve(ctx context.Context, id uuid.UUID, approvedBy string) (*settlement.Settlement, error) {
	var st *settlement.Settlement
	err := s.uow.Do(ctx, func(uow repository.UnitOfWork) error {
		var err error
		st, err = uow.Settlements().Get(ctx, id)
		if err != nil {
			return err
		}
		if err := st.Approve(approvedBy, time.Now().UTC()); err != nil {
			return err
		}
		return uow.Settlements().Update(ctx, st)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("settlement approved", "reference", st.Reference, "approved_by", approvedBy)
	return st, nil
}

// Reject puts a calculated settlement on hold and reverts its transactions
// and refunds to unsettled so a later run can reclaim them.
//
// Disputes and reserves created or released by the settlement are NOT
// reverted; that asymmetry is a known limitation of the rejection flow.
func (s *Service) Reject(ctx context.Context, id uuid.UUID, reason string) (*settlement.Settlement, error) {
	var st *settlement.Settlement
	err := s.uow.Do(ctx, func(uow repository.UnitOfWork) error {
		var err error
		st, err = uow.Settlements().Get(ctx, id)
		if err != nil {
			return err
		}
		if err := st.Hold(reason, time.Now().UTC()); err != nil {
			return err
		}
		if err := uow.Settlements().Update(ctx, st); err != nil {
			return err
		}
		if err := uow.Transactions().ReleaseFromSettlement(ctx, st.ID); err != nil {
			return fmt.Errorf("release transactions: %w", err)
		}
		if err := uow.Refunds().ReleaseFromSettlement(ctx, st.ID); err != nil {
			return fmt.Errorf("release refunds: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("settlement rejected", "reference", st.Reference, "reason", reason)
	return st, nil
}

// Get returns a settlement with its line items.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*settlement.Settlement, []*settlement.Item, error) {
	st, err := s.uow.Settlements().Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	items, err := s.uow.Settlements().GetItems(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return st, items, nil
}

// ListByStatus returns settlements in the given status.
func (s *Service) ListByStatus(ctx context.Context, status settlement.Status) ([]*settlement.Settlement, error) {
	return s.uow.Settlements().ListByStatus(ctx, status)
}
