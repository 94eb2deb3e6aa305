package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/nilepay/payfac/pkg/domain/ledger"
	"github.com/nilepay/payfac/pkg/repository"
)

type transactionRepository struct {
	db *gorm.DB
}

// NewTransactionRepository creates a Postgres-backed transaction repository.
func NewTransactionRepository(db *gorm.DB) repository.TransactionRepository {
	return &transactionRepository{db: db}
}

func (r *transactionRepository) Create(ctx context.Context, t *ledger.Transaction) error {
	model := transactionToModel(t)
	return r.db.WithContext(ctx).Create(&model).Error
}

func (r *transactionRepository) UnsettledInPeriod(
	ctx context.Context,
	subMerchantID uuid.UUID,
	start, end time.Time,
) ([]*ledger.Transaction, error) {
	var models []Transaction
	err := r.db.WithContext(ctx).
		Where("sub_merchant_id = ? AND settlement_id IS NULL AND captured_at BETWEEN ? AND ?",
			subMerchantID, start, end).
		Order("captured_at").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	result := make([]*ledger.Transaction, 0, len(models))
	for i := range models {
		result = append(result, transactionToDomain(&models[i]))
	}
	return result, nil
}

func (r *transactionRepository) ClaimForSettlement(ctx context.Context, ids []uuid.UUID, settlementID uuid.UUID) error {
	// The unclaimed guard makes the claim idempotent under concurrent runs.
	return r.db.WithContext(ctx).Model(&Transaction{}).
		Where("id IN ? AND settlement_id IS NULL", ids).
		Update("settlement_id", settlementID).Error
}

func (r *transactionRepository) ReleaseFromSettlement(ctx context.Context, settlementID uuid.UUID) error {
	return r.db.WithContext(ctx).Model(&Transaction{}).
		Where("settlement_id = ?", settlementID).
		Update("settlement_id", nil).Error
}

type refundRepository struct {
	db *gorm.DB
}

// NewRefundRepository creates a Postgres-backed refund repository.
func NewRefundRepository(db *gorm.DB) repository.RefundRepository {
	return &refundRepository{db: db}
}

func (r *refundRepository) Create(ctx context.Context, rf *ledger.Refund) error {
	model := refundToModel(rf)
	return r.db.WithContext(ctx).Create(&model).Error
}

func (r *refundRepository) UnsettledInPeriod(
	ctx context.Context,
	subMerchantID uuid.UUID,
	start, end time.Time,
) ([]*ledger.Refund, error) {
	var models []Refund
	err := r.db.WithContext(ctx).
		Where("sub_merchant_id = ? AND settlement_id IS NULL AND completed_at BETWEEN ? AND ?",
			subMerchantID, start, end).
		Order("completed_at").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	result := make([]*ledger.Refund, 0, len(models))
	for i := range models {
		result = append(result, refundToDomain(&models[i]))
	}
	return result, nil
}

func (r *refundRepository) ClaimForSettlement(ctx context.Context, ids []uuid.UUID, settlementID uuid.UUID) error {
	return r.db.WithContext(ctx).Model(&Refund{}).
		Where("id IN ? AND settlement_id IS NULL", ids).
		Update("settlement_id", settlementID).Error
}

func (r *refundRepository) ReleaseFromSettlement(ctx context.Context, settlementID uuid.UUID) error {
	return r.db.WithContext(ctx).Model(&Refund{}).
		Where("settlement_id = ?", settlementID).
		Update("settlement_id", nil).Error
}

type disputeRepository struct {
	db *gorm.DB
}

// NewDisputeRepository creates a Postgres-backed dispute repository.
func NewDisputeRepository(db *gorm.DB) repository.DisputeRepository {
	return &disputeRepository{db: db}
}

func (r *disputeRepository) Create(ctx context.Context, d *ledger.Dispute) error {
	model := disputeToModel(d)
	return r.db.WithContext(ctx).Create(&model).Error
}

func (r *disputeRepository) UnsettledLostInPeriod(
	ctx context.Context,
	subMerchantID uuid.UUID,
	start, end time.Time,
) ([]*ledger.Dispute, error) {
	var models []Dispute
	err := r.db.WithContext(ctx).
		Where("sub_merchant_id = ? AND settlement_id IS NULL AND outcome = ? AND resolved_at BETWEEN ? AND ?",
			subMerchantID, string(ledger.DisputeLost), start, end).
		Order("resolved_at").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	result := make([]*ledger.Dispute, 0, len(models))
	for i := range models {
		result = append(result, disputeToDomain(&models[i]))
	}
	return result, nil
}

func (r *disputeRepository) ClaimForSettlement(ctx context.Context, ids []uuid.UUID, settlementID uuid.UUID) error {
	return r.db.WithContext(ctx).Model(&Dispute{}).
		Where("id IN ? AND settlement_id IS NULL", ids).
		Update("settlement_id", settlementID).Error
}

type reserveRepository struct {
	db *gorm.DB
}

// NewReserveRepository creates a Postgres-backed reserve repository.
func NewReserveRepository(db *gorm.DB) repository.ReserveRepository {
	return &reserveRepository{db: db}
}

func (r *reserveRepository) Create(ctx context.Context, rs *ledger.Reserve) error {
	model := reserveToModel(rs)
	return r.db.WithContext(ctx).Create(&model).Error
}

func (r *reserveRepository) HeldReleasableBy(
	ctx context.Context,
	subMerchantID uuid.UUID,
	asOf time.Time,
) ([]*ledger.Reserve, error) {
	var models []Reserve
	err := r.db.WithContext(ctx).
		Where("sub_merchant_id = ? AND status = ? AND release_date <= ?",
			subMerchantID, string(ledger.ReserveHeld), asOf).
		Order("release_date").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	result := make([]*ledger.Reserve, 0, len(models))
	for i := range models {
		result = append(result, reserveToDomain(&models[i]))
	}
	return result, nil
}

func (r *reserveRepository) Update(ctx context.Context, rs *ledger.Reserve) error {
	model := reserveToModel(rs)
	return r.db.WithContext(ctx).Save(&model).Error
}
