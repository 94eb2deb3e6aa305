package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/nilepay/payfac/pkg/domain/payout"
	"github.com/nilepay/payfac/pkg/repository"
)

type payoutRepository struct {
	db *gorm.DB
}

// NewPayoutRepository creates a Postgres-backed payout repository.
func NewPayoutRepository(db *gorm.DB) repository.PayoutRepository {
	return &payoutRepository{db: db}
}

func (r *payoutRepository) Create(ctx context.Context, p *payout.Payout) error {
	model := payoutToModel(p)
	return r.db.WithContext(ctx).Create(&model).Error
}

func (r *payoutRepository) Get(ctx context.Context, id uuid.UUID) (*payout.Payout, error) {
	var m Payout
	if err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return payoutToDomain(&m), nil
}

func (r *payoutRepository) GetByProcessorReference(ctx context.Context, processorRef string) (*payout.Payout, error) {
	var m Payout
	if err := r.db.WithContext(ctx).First(&m, "processor_reference = ?", processorRef).Error; err != nil {
		return nil, err
	}
	return payoutToDomain(&m), nil
}

func (r *payoutRepository) Update(ctx context.Context, p *payout.Payout) error {
	model := payoutToModel(p)
	return r.db.WithContext(ctx).Save(&model).Error
}

func (r *payoutRepository) DueForDispatch(ctx context.Context, date time.Time) ([]*payout.Payout, error) {
	return r.list(ctx, r.db.
		Where("status = ? AND scheduled_date <= ?", string(payout.StatusApproved), date).
		Order("scheduled_date"))
}

func (r *payoutRepository) FailedRetryable(ctx context.Context) ([]*payout.Payout, error) {
	return r.list(ctx, r.db.
		Where("status = ? AND retry_count < max_retries", string(payout.StatusFailed)).
		Order("updated_at"))
}

func (r *payoutRepository) ListBySubMerchant(ctx context.Context, subMerchantID uuid.UUID) ([]*payout.Payout, error) {
	return r.list(ctx, r.db.
		Where("sub_merchant_id = ?", subMerchantID).
		Order("created_at desc"))
}

func (r *payoutRepository) list(ctx context.Context, q *gorm.DB) ([]*payout.Payout, error) {
	var models []Payout
	if err := q.WithContext(ctx).Find(&models).Error; err != nil {
		return nil, err
	}
	result := make([]*payout.Payout, 0, len(models))
	for i := range models {
		result = append(result, payoutToDomain(&models[i]))
	}
	return result, nil
}

type payoutBatchRepository struct {
	db *gorm.DB
}

// NewPayoutBatchRepository creates a Postgres-backed payout batch repository.
func NewPayoutBatchRepository(db *gorm.DB) repository.PayoutBatchRepository {
	return &payoutBatchRepository{db: db}
}

func (r *payoutBatchRepository) Create(ctx context.Context, b *payout.Batch) error {
	model := batchToModel(b)
	return r.db.WithContext(ctx).Create(&model).Error
}

func (r *payoutBatchRepository) Get(ctx context.Context, id uuid.UUID) (*payout.Batch, error) {
	var m PayoutBatch
	if err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return batchToDomain(&m), nil
}

func (r *payoutBatchRepository) Update(ctx context.Context, b *payout.Batch) error {
	model := batchToModel(b)
	return r.db.WithContext(ctx).Save(&model).Error
}
