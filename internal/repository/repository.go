package repository

import (
	"errors"

	"gorm.io/gorm"

	"golang-backtest/config"
	"golang-backtest/pkg/cache"
	"golang-backtest/pkg/logger"
)

// ErrNotFound is returned when a lookup by id matches no row.
var ErrNotFound = errors.New("record not found")

type Repository struct {
	JobRepo            JobRepository
	StrategyRepo       StrategyRepository
	BacktestResultRepo BacktestResultRepository
	AssetRepo          AssetRepository
	DeckRepo           DeckRepository
	MarketDataRepo     BarRepository
	UnitOfWork         UnitOfWork
}

func NewRepository(cfg *config.Config, inmemoryCache cache.Cache, db *gorm.DB, log *logger.Logger) (*Repository, error) {
	yahooRepo, err := NewYahooFinanceRepository(cfg.MarketData, log)
	if err != nil {
		return nil, err
	}
	marketData := NewCandleRepository(yahooRepo, inmemoryCache, cfg.MarketData.CacheTTL)

	return &Repository{
		JobRepo:            NewJobRepository(db),
		StrategyRepo:       NewStrategyRepository(db),
		BacktestResultRepo: NewBacktestResultRepository(db),
		AssetRepo:          NewAssetRepository(db),
		DeckRepo:           NewDeckRepository(db),
		MarketDataRepo:     marketData,
		UnitOfWork:         NewUnitOfWork(db),
	}, nil
}

func translateError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
