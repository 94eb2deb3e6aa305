package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/nilepay/payfac/pkg/domain/merchant"
	"github.com/nilepay/payfac/pkg/repository"
)

type subMerchantRepository struct {
	db *gorm.DB
}

// NewSubMerchantRepository creates a Postgres-backed sub-merchant repository.
func NewSubMerchantRepository(db *gorm.DB) repository.SubMerchantRepository {
	return &subMerchantRepository{db: db}
}

func (r *subMerchantRepository) Get(ctx context.Context, id uuid.UUID) (*merchant.SubMerchant, error) {
	var m SubMerchant
	if err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return subMerchantToDomain(&m), nil
}

func (r *subMerchantRepository) ListActive(ctx context.Context) ([]*merchant.SubMerchant, error) {
	return r.list(ctx, r.db.Where("status = ?", string(merchant.StatusActive)))
}

func (r *subMerchantRepository) List(ctx context.Context) ([]*merchant.SubMerchant, error) {
	return r.list(ctx, r.db)
}

func (r *subMerchantRepository) list(ctx context.Context, q *gorm.DB) ([]*merchant.SubMerchant, error) {
	var models []SubMerchant
	if err := q.WithContext(ctx).Order("created_at").Find(&models).Error; err != nil {
		return nil, err
	}
	result := make([]*merchant.SubMerchant, 0, len(models))
	for i := range models {
		result = append(result, subMerchantToDomain(&models[i]))
	}
	return result, nil
}

func (r *subMerchantRepository) Create(ctx context.Context, m *merchant.SubMerchant) error {
	model := subMerchantToModel(m)
	return r.db.WithContext(ctx).Create(&model).Error
}

func (r *subMerchantRepository) Update(ctx context.Context, m *merchant.SubMerchant) error {
	model := subMerchantToModel(m)
	return r.db.WithContext(ctx).Save(&model).Error
}
