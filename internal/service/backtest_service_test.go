package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"golang-backtest/internal/dto"
	"golang-backtest/internal/engine"
	"golang-backtest/internal/repository"
	"golang-backtest/pkg/logger"
)

// closes produce one trade: entry on bar 3, exit on bar 7.
var tradeCloses = []float64{100, 100, 105, 110, 110, 95, 90, 90}

type backtestFixture struct {
	svc        BacktestService
	strategies *memoryStrategyRepo
	results    *memoryResultRepo
	bars       *memoryBarRepo
}

func newBacktestFixture(series dto.SeriesMap) *backtestFixture {
	f := &backtestFixture{
		strategies: newMemoryStrategyRepo(),
		results:    &memoryResultRepo{},
		bars:       &memoryBarRepo{series: series},
	}
	selector := NewTargetSelector(logger.Nop(), &memoryAssetRepo{}, &memoryDeckRepo{})
	f.svc = NewBacktestService(testConfig(), logger.Nop(), testEngine(selector), selector, f.bars, f.strategies, f.results)
	return f
}

func backtestConfig() dto.BacktestConfig {
	return dto.BacktestConfig{
		StartDate:      day0,
		EndDate:        day0.AddDate(0, 0, len(tradeCloses)-1),
		InitialCapital: 10000,
	}
}

func TestBacktestService_RunInlineSeries(t *testing.T) {
	f := newBacktestFixture(nil)

	results, warnings, err := f.svc.Run(context.Background(), dto.RunBacktestRequest{
		Strategy: *thresholdStrategy("aaa"),
		Config:   backtestConfig(),
		Series:   dto.SeriesMap{"aaa": flatBars(tradeCloses...)},
	})
	require.NoError(t, err)
	assert.Empty(t, warnings)
	require.Len(t, results, 1)
	assert.Equal(t, "AAA", results[0].Symbol)
	require.Len(t, results[0].Trades, 1)
	assert.Equal(t, day0.AddDate(0, 0, 3), results[0].Trades[0].EntryDate)
	assert.Empty(t, f.bars.calls)
	assert.Empty(t, f.results.rows)
}

func TestBacktestService_RunFetchesMissingSeries(t *testing.T) {
	f := newBacktestFixture(dto.SeriesMap{"BBB": flatBars(tradeCloses...)})
	cfg := backtestConfig()

	results, _, err := f.svc.Run(context.Background(), dto.RunBacktestRequest{
		Strategy: *thresholdStrategy("AAA", "BBB"),
		Config:   cfg,
		Series:   dto.SeriesMap{"AAA": flatBars(tradeCloses...)},
	})
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Len(t, f.bars.calls, 1)
	assert.Equal(t, "BBB", f.bars.calls[0].Symbol)
	assert.Equal(t, dto.Timeframe1Day, f.bars.calls[0].Timeframe)
	assert.Equal(t, cfg.StartDate.AddDate(0, 0, -30), f.bars.calls[0].From)
	assert.Equal(t, cfg.EndDate, f.bars.calls[0].To)
}

func TestBacktestService_MissingSymbolFails(t *testing.T) {
	f := newBacktestFixture(nil)

	_, _, err := f.svc.Run(context.Background(), dto.RunBacktestRequest{
		Strategy: *thresholdStrategy("AAA"),
		Config:   backtestConfig(),
	})
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestBacktestService_BenchmarkFailureIsNotFatal(t *testing.T) {
	f := newBacktestFixture(nil)
	cfg := backtestConfig()
	cfg.Benchmark = "SPY"

	results, _, err := f.svc.Run(context.Background(), dto.RunBacktestRequest{
		Strategy: *thresholdStrategy("AAA"),
		Config:   cfg,
		Series:   dto.SeriesMap{"AAA": flatBars(tradeCloses...)},
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Nil(t, results[0].Metrics.Beta)
	require.Len(t, f.bars.calls, 1)
	assert.Equal(t, "SPY", f.bars.calls[0].Symbol)
}

func TestBacktestService_InlineLimit(t *testing.T) {
	f := newBacktestFixture(nil)
	series := dto.SeriesMap{"AAA": flatBars(make([]float64, 1001)...)}

	_, _, err := f.svc.Run(context.Background(), dto.RunBacktestRequest{
		Strategy: *thresholdStrategy("AAA"),
		Config:   backtestConfig(),
		Series:   series,
	})
	var verr *engine.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "series", verr.Problems[0].Field)
}

func TestBacktestService_InvalidConfig(t *testing.T) {
	f := newBacktestFixture(nil)
	cfg := backtestConfig()
	cfg.EndDate = cfg.StartDate

	_, _, err := f.svc.Run(context.Background(), dto.RunBacktestRequest{
		Strategy: *thresholdStrategy("AAA"),
		Config:   cfg,
		Series:   dto.SeriesMap{"AAA": flatBars(tradeCloses...)},
	})
	assert.ErrorIs(t, err, engine.ErrValidation)
}

func TestBacktestService_RunStrategyStoresResults(t *testing.T) {
	f := newBacktestFixture(dto.SeriesMap{"AAA": flatBars(tradeCloses...)})
	ctx := context.Background()

	strategies := NewStrategyService(logger.Nop(), testEngine(nil), inlineUnitOfWork{}, f.strategies, f.results)
	created, _, err := strategies.Create(ctx, thresholdStrategy("AAA"))
	require.NoError(t, err)

	results, err := f.svc.RunStrategy(ctx, created.ID, backtestConfig())
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, created.ID, results[0].StrategyID)
	assert.Equal(t, 1, results[0].StrategyVersion)

	listed, err := f.svc.ListResults(ctx, created.ID, 10)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, results[0].ID, listed[0].ID)
	assert.Len(t, listed[0].Trades, 1)

	got, err := strategies.Get(ctx, created.ID)
	require.NoError(t, err)
	require.NotNil(t, got.PerformanceMetrics)
	assert.InDelta(t, results[0].Metrics.TotalReturn, got.PerformanceMetrics.TotalReturn, 1e-12)
}

func TestBacktestService_RunStrategyUnknown(t *testing.T) {
	f := newBacktestFixture(nil)
	_, err := f.svc.RunStrategy(context.Background(), "missing", backtestConfig())
	assert.ErrorIs(t, err, repository.ErrNotFound)

	_, err = f.svc.ListResults(context.Background(), "missing", 10)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}
