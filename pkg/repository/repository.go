// Package repository defines the persistence contracts the services depend
// on, plus the unit-of-work transaction boundary.
package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/nilepay/payfac/pkg/domain/ledger"
	"github.com/nilepay/payfac/pkg/domain/merchant"
	"github.com/nilepay/payfac/pkg/domain/payout"
	"github.com/nilepay/payfac/pkg/domain/settlement"
)

// SubMerchantRepository accesses payee records. The settlement and payout
// engines only read sub-merchants; mutation is administrative.
type SubMerchantRepository interface {
	Get(ctx context.Context, id uuid.UUID) (*merchant.SubMerchant, error)
	ListActive(ctx context.Context) ([]*merchant.SubMerchant, error)
	Create(ctx context.Context, m *merchant.SubMerchant) error
	Update(ctx context.Context, m *merchant.SubMerchant) error
	List(ctx context.Context) ([]*merchant.SubMerchant, error)
}

// TransactionRepository accesses captured payments.
type TransactionRepository interface {
	Create(ctx context.Context, t *ledger.Transaction) error
	// UnsettledInPeriod returns transactions with a nil settlement id
	// captured within [start, end].
	UnsettledInPeriod(ctx context.Context, subMerchantID uuid.UUID, start, end time.Time) ([]*ledger.Transaction, error)
	// ClaimForSettlement sets the settlement id on the given unclaimed rows.
	ClaimForSettlement(ctx context.Context, ids []uuid.UUID, settlementID uuid.UUID) error
	// ReleaseFromSettlement nulls the settlement id on all rows claimed by
	// the given settlement. Used by settlement rejection.
	ReleaseFromSettlement(ctx context.Context, settlementID uuid.UUID) error
}

// RefundRepository accesses completed refunds.
type RefundRepository interface {
	Create(ctx context.Context, r *ledger.Refund) error
	UnsettledInPeriod(ctx context.Context, subMerchantID uuid.UUID, start, end time.Time) ([]*ledger.Refund, error)
	ClaimForSettlement(ctx context.Context, ids []uuid.UUID, settlementID uuid.UUID) error
	ReleaseFromSettlement(ctx context.Context, settlementID uuid.UUID) error
}

// DisputeRepository accesses resolved disputes.
type DisputeRepository interface {
	Create(ctx context.Context, d *ledger.Dispute) error
	// UnsettledLostInPeriod returns lost disputes with a nil settlement id
	// resolved within [start, end].
	UnsettledLostInPeriod(ctx context.Context, subMerchantID uuid.UUID, start, end time.Time) ([]*ledger.Dispute, error)
	ClaimForSettlement(ctx context.Context, ids []uuid.UUID, settlementID uuid.UUID) error
}

// ReserveRepository accesses reserve holds.
type ReserveRepository interface {
	Create(ctx context.Context, r *ledger.Reserve) error
	// HeldReleasableBy returns held reserves with a release date at or
	// before asOf.
	HeldReleasableBy(ctx context.Context, subMerchantID uuid.UUID, asOf time.Time) ([]*ledger.Reserve, error)
	Update(ctx context.Context, r *ledger.Reserve) error
}

// SettlementRepository accesses settlements and their items.
type SettlementRepository interface {
	Create(ctx context.Context, s *settlement.Settlement) error
	CreateItems(ctx context.Context, items []*settlement.Item) error
	Get(ctx context.Context, id uuid.UUID) (*settlement.Settlement, error)
	GetItems(ctx context.Context, settlementID uuid.UUID) ([]*settlement.Item, error)
	Update(ctx context.Context, s *settlement.Settlement) error
	ListByStatus(ctx context.Context, status settlement.Status) ([]*settlement.Settlement, error)
	// ExistsForPeriod reports whether the sub-merchant already has a
	// settlement covering the given period end.
	ExistsForPeriod(ctx context.Context, subMerchantID uuid.UUID, periodEnd time.Time) (bool, error)
}

// PayoutRepository accesses payouts.
type PayoutRepository interface {
	Create(ctx context.Context, p *payout.Payout) error
	Get(ctx context.Context, id uuid.UUID) (*payout.Payout, error)
	GetByProcessorReference(ctx context.Context, processorRef string) (*payout.Payout, error)
	Update(ctx context.Context, p *payout.Payout) error
	// DueForDispatch returns approved payouts scheduled at or before date.
	DueForDispatch(ctx context.Context, date time.Time) ([]*payout.Payout, error)
	// FailedRetryable returns failed payouts whose retry budget is not
	// exhausted.
	FailedRetryable(ctx context.Context) ([]*payout.Payout, error)
	ListBySubMerchant(ctx context.Context, subMerchantID uuid.UUID) ([]*payout.Payout, error)
}

// PayoutBatchRepository accesses batch submissions.
type PayoutBatchRepository interface {
	Create(ctx context.Context, b *payout.Batch) error
	Get(ctx context.Context, id uuid.UUID) (*payout.Batch, error)
	Update(ctx context.Context, b *payout.Batch) error
}

// UnitOfWork provides a transaction boundary with repository access bound to
// the same session, so ledger-claim and settlement creation commit or roll
// back together.
type UnitOfWork interface {
	// Do runs fn inside a transaction. Any error rolls the whole unit back.
	Do(ctx context.Context, fn func(uow UnitOfWork) error) error
	// DoWithMerchantLock runs fn inside a transaction while holding an
	// exclusive per-sub-merchant lock, serializing settlement runs for the
	// same payee.
	DoWithMerchantLock(ctx context.Context, subMerchantID uuid.UUID, fn func(uow UnitOfWork) error) error

	SubMerchants() SubMerchantRepository
	Transactions() TransactionRepository
	Refunds() RefundRepository
	Disputes() DisputeRepository
	Reserves() ReserveRepository
	Settlements() SettlementRepository
	Payouts() PayoutRepository
	PayoutBatches() PayoutBatchRepository
}
