// Package settlement implements the settlement calculation engine: deciding
// when a sub-merchant is due, aggregating its ledger activity over a period,
// and materializing the settlement with its line items inside one
// transaction.
package settlement

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nilepay/payfac/pkg/config"
	"github.com/nilepay/payfac/pkg/domain/events"
	"github.com/nilepay/payfac/pkg/domain/ledger"
	"github.com/nilepay/payfac/pkg/domain/merchant"
	"github.com/nilepay/payfac/pkg/domain/settlement"
	"github.com/nilepay/payfac/pkg/eventbus"
	"github.com/nilepay/payfac/pkg/money"
	"github.com/nilepay/payfac/pkg/repository"
)

// Service computes and manages settlements.
type Service struct {
	uow            repository.UnitOfWork
	bus            eventbus.Bus
	autoApproveMax decimal.Decimal
	riskCeiling    int
	logger         *slog.Logger
}

// New creates the settlement service.
func New(uow repository.UnitOfWork, bus eventbus.Bus, cfg config.Settlement, logger *slog.Logger) *Service {
	return &Service{
		uow:            uow,
		bus:            bus,
		autoApproveMax: money.FromFloat(cfg.AutoApproveMax),
		riskCeiling:    cfg.RiskCeiling,
		logger:         logger,
	}
}

// ShouldSettleToday evaluates the sub-merchant's settlement cycle against
// date. Daily cycles are always due; weekly and biweekly cycles are due on
// the configured weekday (biweekly additionally on matching ISO week
// parity); monthly cycles on the configured day of month.
func (s *Service) ShouldSettleToday(m *merchant.SubMerchant, date time.Time) bool {
	switch m.SettlementCycle {
	case merchant.CycleWeekly:
		return date.Weekday() == m.SettlementDayOfWeek
	case merchant.CycleBiweekly:
		if date.Weekday() != m.SettlementDayOfWeek {
			return false
		}
		_, week := date.ISOWeek()
		return week%2 == m.SettlementWeekParity
	case merchant.CycleMonthly:
		return date.Day() == m.SettlementDayOfMonth
	default:
		return true
	}
}

// SettlementPeriod returns the closed period [start, end] for a settlement
// dated date: end is end-of-day of date, start is start-of-day of date minus
// (cycle length - 1) days. The monthly cycle uses a 30-day lookback, a
// calendar approximation that is not day-in-month accurate.
func (s *Service) SettlementPeriod(m *merchant.SubMerchant, date time.Time) (time.Time, time.Time) {
	end := endOfDay(date)
	start := startOfDay(date.AddDate(0, 0, -(m.CycleLengthDays() - 1)))
	return start, end
}

func startOfDay(t time.Time) time.Time {
	y, mo, d := t.Date()
	return time.Date(y, mo, d, 0, 0, 0, 0, t.Location())
}

func endOfDay(t time.Time) time.Time {
	return startOfDay(t).AddDate(0, 0, 1).Add(-time.Nanosecond)
}

// Calculation is the aggregated ledger activity for one period.
type Calculation struct {
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

	Transactions []*ledger.Transaction
	Refunds      []*ledger.Refund
	Disputes     []*ledger.Dispute
	Releasable   []*ledger.Reserve
}

// Empty reports whether the period had no activity at all.
func (c *Calculation) Empty() bool {
	return len(c.Transactions) == 0 &&
		len(c.Refunds) == 0 &&
		len(c.Disputes) == 0 &&
		len(c.Releasable) == 0
}

// CalculateAmounts aggregates unsettled transactions captured in the period,
// unsettled refunds completed in the period, unsettled lost disputes
// resolved in the period, and held reserves releasable by the period end.
// Every aggregate is rounded to two decimal places before use.
func (s *Service) CalculateAmounts(
	ctx context.Context,
	uow repository.UnitOfWork,
	m *merchant.SubMerchant,
	start, end time.Time,
) (*Calculation, error) {
	txns, err := uow.Transactions().UnsettledInPeriod(ctx, m.ID, start, end)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	refunds, err := uow.Refunds().UnsettledInPeriod(ctx, m.ID, start, end)
	if err != nil {
		return nil, fmt.Errorf("query refunds: %w", err)
	}
	disputes, err := uow.Disputes().UnsettledLostInPeriod(ctx, m.ID, start, end)
	if err != nil {
		return nil, fmt.Errorf("query disputes: %w", err)
	}
	releasable, err := uow.Reserves().HeldReleasableBy(ctx, m.ID, end)
	if err != nil {
		return nil, fmt.Errorf("query reserves: %w", err)
	}

	calc := &Calculation{
		Transactions: txns,
		Refunds:      refunds,
		Disputes:     disputes,
		Releasable:   releasable,
	}

	sales, processorFees, platformFees := decimal.Zero, decimal.Zero, decimal.Zero
	for _, t := range txns {
		sales = sales.Add(t.Amount)
		processorFees = processorFees.Add(t.ProcessorFee)
		platformFees = platformFees.Add(t.PlatformFee)
	}
	refundsTotal, refundFees := decimal.Zero, decimal.Zero
	for _, r := range refunds {
		refundsTotal = refundsTotal.Add(r.Amount)
		refundFees = refundFees.Add(r.RefundFee)
	}
	disputesTotal, disputeFees := decimal.Zero, decimal.Zero
	for _, d := range disputes {
		disputesTotal = disputesTotal.Add(d.Amount)
		disputeFees = disputeFees.Add(d.DisputeFee)
	}
	released := decimal.Zero
	for _, r := range releasable {
		released = released.Add(r.Amount)
	}

	calc.GrossSales = money.Round2(sales)
	calc.GrossRefunds = money.Round2(refundsTotal)
	calc.GrossDisputes = money.Round2(disputesTotal)
	calc.GrossAmount = money.Round2(calc.GrossSales.Sub(calc.GrossRefunds).Sub(calc.GrossDisputes))

	calc.ProcessorFees = money.Round2(processorFees)
	calc.PlatformFees = money.Round2(platformFees)
	calc.RefundFees = money.Round2(refundFees)
	calc.DisputeFees = money.Round2(disputeFees)
	calc.TotalFees = money.Round2(money.Sum(calc.ProcessorFees, calc.PlatformFees, calc.RefundFees, calc.DisputeFees))

	calc.ReserveHeld = money.Round2(calc.GrossSales.Mul(m.ReservePercentage))
	calc.ReserveReleased = money.Round2(released)

	calc.NetAmount = money.Round2(calc.GrossAmount.
		Sub(calc.TotalFees).
		Sub(calc.ReserveHeld).
		Add(calc.ReserveReleased))

	return calc, nil
}

// CalculateForMerchant runs the settlement calculation for one sub-merchant
// and settlement date. It returns (nil, nil) when nothing is due: zero
// activity in the period, or a net amount below the sub-merchant's minimum
// payout threshold with no releasable reserve forcing a run.
//
// On a due period it persists the settlement and its items, claims the
// contributing ledger rows, creates the new reserve hold, releases mature
// reserves, and auto-approves under the configured threshold. Everything
// commits in a single transaction holding the per-merchant lock, so two
// concurrent runs for the same payee cannot double-claim ledger rows.
func (s *Service) CalculateForMerchant(
	ctx context.Context,
	m *merchant.SubMerchant,
	date time.Time,
) (*settlement.Settlement, error) {
	logger := s.logger.With("sub_merchant", m.ID, "settlement_date", date.Format("2006-01-02"))
	start, end := s.SettlementPeriod(m, date)

	var created *settlement.Settlement
	var autoApproved bool

	err := s.uow.DoWithMerchantLock(ctx, m.ID, func(uow repository.UnitOfWork) error {
		exists, err := uow.Settlements().ExistsForPeriod(ctx, m.ID, end)
		if err != nil {
			return fmt.Errorf("check existing settlement: %w", err)
		}
		if exists {
			logger.Info("settlement already exists for period, skipping")
			return nil
		}

		calc, err := s.CalculateAmounts(ctx, uow, m, start, end)
		if err != nil {
			return err
		}
		if calc.Empty() {
			logger.Debug("no settlement activity in period")
			return nil
		}
		if calc.NetAmount.LessThan(m.MinimumPayoutAmount) && len(calc.Releasable) == 0 {
			logger.Info("net amount below minimum payout threshold, skipping",
				"net_amount", calc.NetAmount.StringFixed(2),
				"minimum", m.MinimumPayoutAmount.StringFixed(2))
			return nil
		}

		now := time.Now().UTC()
		st := &settlement.Settlement{
			ID:            uuid.New(),
			Reference:     settlement.NewReference(end),
			SubMerchantID: m.ID,
			PeriodStart:   start,
			PeriodEnd:     end,

			GrossSales:    calc.GrossSales,
			GrossRefunds:  calc.GrossRefunds,
			GrossDisputes: calc.GrossDisputes,
			GrossAmount:   calc.GrossAmount,

			ProcessorFees: calc.ProcessorFees,
			PlatformFees:  calc.PlatformFees,
			RefundFees:    calc.RefundFees,
			DisputeFees:   calc.DisputeFees,
			TotalFees:     calc.TotalFees,

			ReserveHeld:     calc.ReserveHeld,
			ReserveReleased: calc.ReserveReleased,
			NetAmount:       calc.NetAmount,

			TransactionCount: len(calc.Transactions),
			RefundCount:      len(calc.Refunds),
			DisputeCount:     len(calc.Disputes),

			Status:    settlement.StatusCalculated,
			CreatedAt: now,
			UpdatedAt: now,
		}

		if s.eligibleForAutoApproval(m, calc.NetAmount) {
			if err := st.Approve("auto", now); err != nil {
				return err
			}
			autoApproved = true
		}

		if err := uow.Settlements().Create(ctx, st); err != nil {
			return fmt.Errorf("create settlement: %w", err)
		}
		if err := uow.Settlements().CreateItems(ctx, buildItems(st, calc, now)); err != nil {
			return fmt.Errorf("create settlement items: %w", err)
		}
		if err := claimLedgerRows(ctx, uow, st, calc); err != nil {
			return err
		}
		if err := s.holdAndReleaseReserves(ctx, uow, m, st, calc, date, now); err != nil {
			return err
		}

		created = st
		return nil
	})
	if err != nil {
		return nil, err
	}
	if created == nil {
		return nil, nil
	}

	logger.Info("settlement created",
		"reference", created.Reference,
		"net_amount", created.NetAmount.StringFixed(2),
		"auto_approved", autoApproved)

	s.bus.Publish(ctx, events.SettlementCreated{
		SettlementID:  created.ID,
		Reference:     created.Reference,
		SubMerchantID: m.ID,
		NetAmount:     created.NetAmount,
		AutoApproved:  autoApproved,
	})
	return created, nil
}

func (s *Service) eligibleForAutoApproval(m *merchant.SubMerchant, net decimal.Decimal) bool {
	if net.GreaterThan(s.autoApproveMax) {
		return false
	}
	// An absent risk score passes the ceiling.
	if m.RiskScore != nil && *m.RiskScore > s.riskCeiling {
		return false
	}
	return true
}

func buildItems(st *settlement.Settlement, calc *Calculation, now time.Time) []*settlement.Item {
	items := make([]*settlement.Item, 0,
		len(calc.Transactions)+len(calc.Refunds)+len(calc.Disputes)+len(calc.Releasable)+1)

	for _, t := range calc.Transactions {
		id := t.ID
		fee := money.Round2(t.ProcessorFee.Add(t.PlatformFee))
		items = append(items, &settlement.Item{
			ID:           uuid.New(),
			SettlementID: st.ID,
			Type:         settlement.ItemTransaction,
			SourceID:     &id,
			Gross:        t.Amount,
			Fee:          fee,
			Net:          money.Round2(t.Amount.Sub(fee)),
			CreatedAt:    now,
		})
	}
	for _, r := range calc.Refunds {
		id := r.ID
		items = append(items, &settlement.Item{
			ID:           uuid.New(),
			SettlementID: st.ID,
			Type:         settlement.ItemRefund,
			SourceID:     &id,
			Gross:        r.Amount.Neg(),
			Fee:          r.RefundFee,
			Net:          money.Round2(r.Amount.Neg().Sub(r.RefundFee)),
			CreatedAt:    now,
		})
	}
	for _, d := range calc.Disputes {
		id := d.ID
		items = append(items, &settlement.Item{
			ID:           uuid.New(),
			SettlementID: st.ID,
			Type:         settlement.ItemDispute,
			SourceID:     &id,
			Gross:        d.Amount.Neg(),
			Fee:          d.DisputeFee,
			Net:          money.Round2(d.Amount.Neg().Sub(d.DisputeFee)),
			CreatedAt:    now,
		})
	}
	if st.ReserveHeld.IsPositive() {
		items = append(items, &settlement.Item{
			ID:           uuid.New(),
			SettlementID: st.ID,
			Type:         settlement.ItemReserveHold,
			Gross:        st.ReserveHeld.Neg(),
			Fee:          decimal.Zero,
			Net:          st.ReserveHeld.Neg(),
			CreatedAt:    now,
		})
	}
	for _, r := range calc.Releasable {
		id := r.ID
		items = append(items, &settlement.Item{
			ID:           uuid.New(),
			SettlementID: st.ID,
			Type:         settlement.ItemReserveRelease,
			SourceID:     &id,
			Gross:        r.Amount,
			Fee:          decimal.Zero,
			Net:          r.Amount,
			CreatedAt:    now,
		})
	}
	return items
}

func claimLedgerRows(ctx context.Context, uow repository.UnitOfWork, st *settlement.Settlement, calc *Calculation) error {
	if len(calc.Transactions) > 0 {
		ids := make([]uuid.UUID, 0, len(calc.Transactions))
		for _, t := range calc.Transactions {
			ids = append(ids, t.ID)
		}
		if err := uow.Transactions().ClaimForSettlement(ctx, ids, st.ID); err != nil {
			return fmt.Errorf("claim transactions: %w", err)
		}
	}
	if len(calc.Refunds) > 0 {
		ids := make([]uuid.UUID, 0, len(calc.Refunds))
		for _, r := range calc.Refunds {
			ids = append(ids, r.ID)
		}
		if err := uow.Refunds().ClaimForSettlement(ctx, ids, st.ID); err != nil {
			return fmt.Errorf("claim refunds: %w", err)
		}
	}
	if len(calc.Disputes) > 0 {
		ids := make([]uuid.UUID, 0, len(calc.Disputes))
		for _, d := range calc.Disputes {
			ids = append(ids, d.ID)
		}
		if err := uow.Disputes().ClaimForSettlement(ctx, ids, st.ID); err != nil {
			return fmt.Errorf("claim disputes: %w", err)
		}
	}
	return nil
}

func (s *Service) holdAndReleaseReserves(
	ctx context.Context,
	uow repository.UnitOfWork,
	m *merchant.SubMerchant,
	st *settlement.Settlement,
	calc *Calculation,
	date, now time.Time,
) error {
	if st.ReserveHeld.IsPositive() {
		hold := &ledger.Reserve{
			ID:            uuid.New(),
			SubMerchantID: m.ID,
			SettlementID:  st.ID,
			Amount:        st.ReserveHeld,
			ReleaseDate:   startOfDay(date).AddDate(0, 0, m.ReserveDays),
			Status:        ledger.ReserveHeld,
			CreatedAt:     now,
		}
		if err := uow.Reserves().Create(ctx, hold); err != nil {
			return fmt.Errorf("create reserve hold: %w", err)
		}
	}
	for _, r := range calc.Releasable {
		if err := r.Release(st.ID, now); err != nil {
			return fmt.Errorf("release reserve %s: %w", r.ID, err)
		}
		if err := uow.Reserves().Update(ctx, r); err != nil {
			return fmt.Errorf("persist reserve release: %w", err)
		}
	}
	return nil
}
