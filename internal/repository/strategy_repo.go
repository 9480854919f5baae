package repository

import (
	"context"

	"gorm.io/gorm"

	"golang-backtest/internal/dto"
	"golang-backtest/internal/model"
	"golang-backtest/pkg/utils"
)

type StrategyRepository interface {
	Create(ctx context.Context, strategy *model.Strategy, opts ...utils.DBOption) error
	Update(ctx context.Context, strategy *model.Strategy, opts ...utils.DBOption) error
	FindByID(ctx context.Context, id string, opts ...utils.DBOption) (*model.Strategy, error)
	Get(ctx context.Context, param dto.GetStrategiesParam, opts ...utils.DBOption) ([]model.Strategy, error)
	Delete(ctx context.Context, id string, opts ...utils.DBOption) error
}

type strategyRepository struct {
	db *gorm.DB
}

func NewStrategyRepository(db *gorm.DB) StrategyRepository {
	return &strategyRepository{db: db}
}

func (r *strategyRepository) Create(ctx context.Context, strategy *model.Strategy, opts ...utils.DBOption) error {
	return utils.ApplyOptions(r.db.WithContext(ctx), opts...).Create(strategy).Error
}

// Update writes every column, so zero values such as is_active=false persist.
func (r *strategyRepository) Update(ctx context.Context, strategy *model.Strategy, opts ...utils.DBOption) error {
	res := utils.ApplyOptions(r.db.WithContext(ctx), opts...).Model(strategy).Select("*").Omit("created_at").Updates(strategy)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *strategyRepository) FindByID(ctx context.Context, id string, opts ...utils.DBOption) (*model.Strategy, error) {
	var strategy model.Strategy
	if err := utils.ApplyOptions(r.db.WithContext(ctx), opts...).First(&strategy, "id = ?", id).Error; err != nil {
		return nil, translateError(err)
	}
	return &strategy, nil
}

func (r *strategyRepository) Get(ctx context.Context, param dto.GetStrategiesParam, opts ...utils.DBOption) ([]model.Strategy, error) {
	var strategies []model.Strategy
	db := utils.ApplyOptions(r.db.WithContext(ctx), opts...).Model(&model.Strategy{})
	if param.OwnerID != "" {
		db = db.Where("owner_id = ?", param.OwnerID)
	}
	if param.IsActive != nil {
		db = db.Where("is_active = ?", *param.IsActive)
	}
	if param.IsPublic != nil {
		db = db.Where("is_public = ?", *param.IsPublic)
	}
	if param.Limit > 0 {
		db = db.Limit(param.Limit)
	}
	if err := db.Order("updated_at DESC").Find(&strategies).Error; err != nil {
		return nil, err
	}
	return strategies, nil
}

func (r *strategyRepository) Delete(ctx context.Context, id string, opts ...utils.DBOption) error {
	res := utils.ApplyOptions(r.db.WithContext(ctx), opts...).Delete(&model.Strategy{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
