// Package merchant provides the administrative operations on sub-merchants.
// The settlement and payout engines only read these records.
package merchant

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nilepay/payfac/pkg/domain/merchant"
	"github.com/nilepay/payfac/pkg/domain/payout"
	"github.com/nilepay/payfac/pkg/repository"
)

// Service manages sub-merchant records.
type Service struct {
	uow    repository.UnitOfWork
	logger *slog.Logger
}

// New creates the sub-merchant service.
func New(uow repository.UnitOfWork, logger *slog.Logger) *Service {
	return &Service{uow: uow, logger: logger}
}

// CreateInput describes a sub-merchant to onboard.
type CreateInput struct {
	Name                 string
	SettlementCycle      merchant.SettlementCycle
	SettlementDayOfWeek  time.Weekday
	SettlementWeekParity int
	SettlementDayOfMonth int
	ReservePercentage    decimal.Decimal
	ReserveDays          int
	MinimumPayoutAmount  decimal.Decimal
	RiskScore            *int
	PayoutMethod         payout.Method
	Destination          payout.Destination
}

// Create onboards a new active sub-merchant.
func (s *Service) Create(ctx context.Context, in CreateInput) (*merchant.SubMerchant, error) {
	now := time.Now().UTC()
	m := &merchant.SubMerchant{
		ID:                   uuid.New(),
		Name:                 in.Name,
		Status:               merchant.StatusActive,
		SettlementCycle:      in.SettlementCycle,
		SettlementDayOfWeek:  in.SettlementDayOfWeek,
		SettlementWeekParity: in.SettlementWeekParity,
		SettlementDayOfMonth: in.SettlementDayOfMonth,
		ReservePercentage:    in.ReservePercentage,
		ReserveDays:          in.ReserveDays,
		MinimumPayoutAmount:  in.MinimumPayoutAmount,
		RiskScore:            in.RiskScore,
		PayoutMethod:         in.PayoutMethod,
		Destination:          in.Destination,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if err := m.ValidateDestination(); err != nil {
		return nil, err
	}
	err := s.uow.Do(ctx, func(uow repository.UnitOfWork) error {
		return uow.SubMerchants().Create(ctx, m)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("sub-merchant onboarded", "id", m.ID, "name", m.Name)
	return m, nil
}

// Get returns one sub-merchant.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*merchant.SubMerchant, error) {
	return s.uow.SubMerchants().Get(ctx, id)
}

// List returns all sub-merchants.
func (s *Service) List(ctx context.Context) ([]*merchant.SubMerchant, error) {
	return s.uow.SubMerchants().List(ctx)
}

// Suspend removes a sub-merchant from settlement and payout runs.
func (s *Service) Suspend(ctx context.Context, id uuid.UUID) (*merchant.SubMerchant, error) {
	return s.mutate(ctx, id, (*merchant.SubMerchant).Suspend)
}

// Reactivate returns a suspended sub-merchant to active.
func (s *Service) Reactivate(ctx context.Context, id uuid.UUID) (*merchant.SubMerchant, error) {
	return s.mutate(ctx, id, (*merchant.SubMerchant).Reactivate)
}

func (s *Service) mutate(ctx context.Context, id uuid.UUID, op func(*merchant.SubMerchant) error) (*merchant.SubMerchant, error) {
	var m *merchant.SubMerchant
	err := s.uow.Do(ctx, func(uow repository.UnitOfWork) error {
		var err error
		m, err = uow.SubMerchants().Get(ctx, id)
		if err != nil {
			return err
		}
		if err := op(m); err != nil {
			return err
		}
		return uow.SubMerchants().Update(ctx, m)
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}
