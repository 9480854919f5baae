package contract

import (
	"context"

	"golang-backtest/internal/dto"
)

// BacktestContract runs a stored strategy and appends its results.
type BacktestContract interface {
	RunStrategy(ctx context.Context, strategyID string, cfg dto.BacktestConfig) ([]dto.BacktestResult, error)
}

// SignalContract evaluates a stored strategy over its universe.
type SignalContract interface {
	Scan(ctx context.Context, strategyID string, tf dto.Timeframe) ([]dto.Signal, error)
}
