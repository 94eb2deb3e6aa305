package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/nilepay/payfac/pkg/domain/settlement"
	"github.com/nilepay/payfac/pkg/repository"
)

type settlementRepository struct {
	db *gorm.DB
}

// NewSettlementRepository creates a Postgres-backed settlement repository.
func NewSettlementRepository(db *gorm.DB) repository.SettlementRepository {
	return &settlementRepository{db: db}
}

func (r *settlementRepository) Create(ctx context.Context, s *settlement.Settlement) error {
	model := settlementToModel(s)
	return r.db.WithContext(ctx).Create(&model).Error
}

func (r *settlementRepository) CreateItems(ctx context.Context, items []*settlement.Item) error {
	if len(items) == 0 {
		return nil
	}
	models := make([]SettlementItem, 0, len(items))
	for _, i := range items {
		models = append(models, itemToModel(i))
	}
	return r.db.WithContext(ctx).CreateInBatches(models, 200).Error
}

func (r *settlementRepository) Get(ctx context.Context, id uuid.UUID) (*settlement.Settlement, error) {
	var m Settlement
	if err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return settlementToDomain(&m), nil
}

func (r *settlementRepository) GetItems(ctx context.Context, settlementID uuid.UUID) ([]*settlement.Item, error) {
	var models []SettlementItem
	err := r.db.WithContext(ctx).
		Where("settlement_id = ?", settlementID).
		Order("created_at").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	result := make([]*settlement.Item, 0, len(models))
	for i := range models {
		result = append(result, itemToDomain(&models[i]))
	}
	return result, nil
}

func (r *settlementRepository) Update(ctx context.Context, s *settlement.Settlement) error {
	model := settlementToModel(s)
	return r.db.WithContext(ctx).Save(&model).Error
}

func (r *settlementRepository) ListByStatus(ctx context.Context, status settlement.Status) ([]*settlement.Settlement, error) {
	var models []Settlement
	err := r.db.WithContext(ctx).
		Where("status = ?", string(status)).
		Order("created_at").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	result := make([]*settlement.Settlement, 0, len(models))
	for i := range models {
		result = append(result, settlementToDomain(&models[i]))
	}
	return result, nil
}

func (r *settlementRepository) ExistsForPeriod(ctx context.Context, subMerchantID uuid.UUID, periodEnd time.Time) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&Settlement{}).
		Where("sub_merchant_id = ? AND period_end = ?", subMerchantID, periodEnd).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
