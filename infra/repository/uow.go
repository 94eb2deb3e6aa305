package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/nilepay/payfac/pkg/repository"
)

// UoW provides the transaction boundary and repository access in one
// abstraction. Every repository handed out inside Do is bound to the same
// transaction session, so ledger claims, settlement rows, and reserve
// mutations commit or roll back together.
type UoW struct {
	db *gorm.DB
	// tx is set only inside a Do callback.
	tx *gorm.DB
}

// NewUoW creates a UoW over the given *gorm.DB.
func NewUoW(db *gorm.DB) *UoW {
	return &UoW{db: db}
}

func (u *UoW) conn() *gorm.DB {
	if u.tx != nil {
		return u.tx
	}
	return u.db
}

// Do runs fn inside a transaction. A nested Do joins the enclosing
// transaction instead of opening a new one.
func (u *UoW) Do(ctx context.Context, fn func(uow repository.UnitOfWork) error) error {
	if u.tx != nil {
		return fn(u)
	}
	return u.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&UoW{db: u.db, tx: tx})
	})
}

// DoWithMerchantLock runs fn inside a transaction holding an exclusive
// advisory lock keyed by the sub-merchant id. The lock is transaction-scoped
// on the Postgres side and releases on commit or rollback, serializing
// settlement runs for the same payee across processes.
func (u *UoW) DoWithMerchantLock(
	ctx context.Context,
	subMerchantID uuid.UUID,
	fn func(uow repository.UnitOfWork) error,
) error {
	return u.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("SELECT pg_advisory_xact_lock(hashtext(?))", subMerchantID.String()).Error; err != nil {
			return err
		}
		return fn(&UoW{db: u.db, tx: tx})
	})
}

func (u *UoW) SubMerchants() repository.SubMerchantRepository {
	return NewSubMerchantRepository(u.conn())
}

func (u *UoW) Transactions() repository.TransactionRepository {
	return NewTransactionRepository(u.conn())
}

func (u *UoW) Refunds() repository.RefundRepository {
	return NewRefundRepository(u.conn())
}

func (u *UoW) Disputes() repository.DisputeRepository {
	return NewDisputeRepository(u.conn())
}

func (u *UoW) Reserves() repository.ReserveRepository {
	return NewReserveRepository(u.conn())
}

func (u *UoW) Settlements() repository.SettlementRepository {
	return NewSettlementRepository(u.conn())
}

func (u *UoW) Payouts() repository.PayoutRepository {
	return NewPayoutRepository(u.conn())
}

func (u *UoW) PayoutBatches() repository.PayoutBatchRepository {
	return NewPayoutBatchRepository(u.conn())
}
