package engine

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"golang-backtest/internal/dto"
)

func curveOf(equity ...float64) []dto.EquityPoint {
	out := make([]dto.EquityPoint, len(equity))
	for i, e := range equity {
		out[i] = dto.EquityPoint{Timestamp: day0.AddDate(0, 0, i), Equity: e, Cash: e}
	}
	return out
}

func TestAnalyze_ReturnsAndDrawdown(t *testing.T) {
	a := NewPerformanceAnalyzer(dto.Timeframe1Day)
	m := a.Analyze(100, nil, curveOf(110, 99, 121), nil)

	assert.InDelta(t, 0.21, m.TotalReturn, 1e-12)
	assert.InDelta(t, math.Pow(1.21, 252.0/3)-1, m.AnnualizedReturn, 1e-6*math.Pow(1.21, 252.0/3))
	assert.InDelta(t, 0.1, m.MaxDrawdown, 1e-12)
	assert.Greater(t, m.SharpeRatio, 0.0)
	assert.Greater(t, m.SortinoRatio, 0.0)
	assert.Greater(t, m.Volatility, 0.0)
	assert.Nil(t, m.Beta)
	assert.Nil(t, m.BenchmarkReturn)
}

func TestAnalyze_DrawdownFromInitialCapital(t *testing.T) {
	m := NewPerformanceAnalyzer(dto.Timeframe1Day).Analyze(100, nil, curveOf(80, 90), nil)
	assert.InDelta(t, 0.2, m.MaxDrawdown, 1e-12)
}

func TestAnalyze_ConstantCurve(t *testing.T) {
	m := NewPerformanceAnalyzer(dto.Timeframe1Day).Analyze(100, nil, curveOf(100, 100, 100, 100), nil)
	assert.Zero(t, m.SharpeRatio)
	assert.Zero(t, m.SortinoRatio)
	assert.Zero(t, m.CalmarRatio)
	assert.Zero(t, m.Volatility)
	assert.Zero(t, m.AnnualizedReturn)
}

func TestAnalyze_TotalLoss(t *testing.T) {
	m := NewPerformanceAnalyzer(dto.Timeframe1Day).Analyze(100, nil, curveOf(50, 0), nil)
	assert.InDelta(t, -1, m.TotalReturn, 1e-12)
	assert.InDelta(t, -1, m.AnnualizedReturn, 1e-12)
	assert.InDelta(t, 1, m.MaxDrawdown, 1e-12)
	assert.False(t, math.IsNaN(m.SharpeRatio))
}

func TestAnalyze_TradeStats(t *testing.T) {
	trades := []dto.Trade{
		{PnL: 100, Return: 0.1, DurationDays: 2},
		{PnL: -50, Return: -0.05, DurationDays: 4},
		{PnL: 50, Return: 0.05, DurationDays: 6},
	}
	m := NewPerformanceAnalyzer(dto.Timeframe1Day).Analyze(1000, trades, curveOf(1100), nil)

	assert.Equal(t, 3, m.TotalTrades)
	assert.Equal(t, 2, m.WinningTrades)
	assert.Equal(t, 1, m.LosingTrades)
	assert.InDelta(t, 2.0/3, m.WinRate, 1e-12)
	assert.InDelta(t, 3, m.ProfitFactor, 1e-12)
	assert.InDelta(t, 0.1/3, m.AverageTradeReturn, 1e-12)
	assert.InDelta(t, 4, m.AverageHoldingDays, 1e-12)
	assert.InDelta(t, 0.1, m.LargestWin, 1e-12)
	assert.InDelta(t, -0.05, m.LargestLoss, 1e-12)
}

func TestAnalyze_ProfitFactorEdges(t *testing.T) {
	a := NewPerformanceAnalyzer(dto.Timeframe1Day)

	m := a.Analyze(1000, []dto.Trade{{PnL: 10, Return: 0.01}}, curveOf(1010), nil)
	assert.Equal(t, dto.ProfitFactorInfinite, m.ProfitFactor)

	m = a.Analyze(1000, []dto.Trade{{PnL: -10, Return: -0.01}}, curveOf(990), nil)
	assert.Zero(t, m.ProfitFactor)
	assert.Zero(t, m.WinRate)
}

func TestAnalyze_BenchmarkRegression(t *testing.T) {
	curve := curveOf(1000, 1200, 960, 1152)
	bench := make([]dto.Bar, 4)
	for i, c := range []float64{100, 110, 99, 108.9} {
		bench[i] = dto.Bar{Timestamp: day0.AddDate(0, 0, i), Close: c}
	}
	// the benchmark skips a day the strategy does not trade
	bench = append(bench, dto.Bar{Timestamp: day0.AddDate(0, 0, 10), Close: 500})

	m := NewPerformanceAnalyzer(dto.Timeframe1Day).Analyze(1000, nil, curve, bench)
	require.NotNil(t, m.Beta)
	require.NotNil(t, m.Alpha)
	require.NotNil(t, m.BenchmarkReturn)
	require.NotNil(t, m.ExcessReturn)
	assert.InDelta(t, 2, *m.Beta, 1e-9)
	assert.InDelta(t, 0, *m.Alpha, 1e-9)
	assert.InDelta(t, 0.089, *m.BenchmarkReturn, 1e-9)
	assert.InDelta(t, 0.152-0.089, *m.ExcessReturn, 1e-9)
}

func TestAnalyze_BenchmarkWithoutOverlap(t *testing.T) {
	bench := []dto.Bar{{Timestamp: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC), Close: 1}}
	m := NewPerformanceAnalyzer(dto.Timeframe1Day).Analyze(100, nil, curveOf(100, 101), bench)
	assert.Nil(t, m.Beta)
	assert.Nil(t, m.BenchmarkReturn)
}

func TestAnalyze_Exposure(t *testing.T) {
	curve := curveOf(100, 100)
	curve[0].Exposure = 0.5
	curve[1].Exposure = 1
	m := NewPerformanceAnalyzer(dto.Timeframe1Day).Analyze(100, nil, curve, nil)
	assert.InDelta(t, 0.75, m.Exposure, 1e-12)
}
