package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"golang-backtest/internal/model"
	"golang-backtest/pkg/utils"
)

// BacktestResultRepository only appends. Results are never updated.
type BacktestResultRepository interface {
	CreateBatch(ctx context.Context, results []model.BacktestResult, opts ...utils.DBOption) error
	Get(ctx context.Context, param model.GetBacktestResultsParam, opts ...utils.DBOption) ([]model.BacktestResult, error)
	DeleteByStrategy(ctx context.Context, strategyID string, opts ...utils.DBOption) (int64, error)
	DeleteOlderThan(ctx context.Context, date time.Time, opts ...utils.DBOption) (int64, error)
}

type backtestResultRepository struct {
	db *gorm.DB
}

func NewBacktestResultRepository(db *gorm.DB) BacktestResultRepository {
	return &backtestResultRepository{db: db}
}

func (r *backtestResultRepository) CreateBatch(ctx context.Context, results []model.BacktestResult, opts ...utils.DBOption) error {
	if len(results) == 0 {
		return nil
	}
	return utils.ApplyOptions(r.db.WithContext(ctx), opts...).CreateInBatches(results, 100).Error
}

func (r *backtestResultRepository) Get(ctx context.Context, param model.GetBacktestResultsParam, opts ...utils.DBOption) ([]model.BacktestResult, error) {
	var results []model.BacktestResult
	db := utils.ApplyOptions(r.db.WithContext(ctx), opts...).Where("strategy_id = ?", param.StrategyID)
	if param.Version != nil {
		db = db.Where("strategy_version = ?", *param.Version)
	}
	if param.Limit > 0 {
		db = db.Limit(param.Limit)
	}
	if err := db.Order("created_at DESC").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *backtestResultRepository) DeleteByStrategy(ctx context.Context, strategyID string, opts ...utils.DBOption) (int64, error) {
	res := utils.ApplyOptions(r.db.WithContext(ctx), opts...).Where("strategy_id = ?", strategyID).Delete(&model.BacktestResult{})
	return res.RowsAffected, res.Error
}

func (r *backtestResultRepository) DeleteOlderThan(ctx context.Context, date time.Time, opts ...utils.DBOption) (int64, error) {
	res := utils.ApplyOptions(r.db.WithContext(ctx), opts...).Where("created_at < ?", date).Delete(&model.BacktestResult{})
	return res.RowsAffected, res.Error
}
