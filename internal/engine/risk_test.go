package engine

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"golang-backtest/internal/dto"
)

func buySignal(price float64) dto.Signal {
	return dto.Signal{Symbol: "AAA", Type: dto.SignalBuy, Price: price}
}

func TestRiskManager_FixedSizing(t *testing.T) {
	m := NewRiskManager(DefaultOptions())
	rm := dto.RiskManagement{PositionSize: 0.1, MaxPositions: 5, StopLoss: 0.05, TakeProfit: 0.1}

	order := m.Size(buySignal(50), rm, PortfolioState{Cash: 10000, Equity: 10000, Volatility: math.NaN()})
	require.NotNil(t, order)
	assert.Equal(t, OrderSideBuy, order.Side)
	assert.InDelta(t, 20, order.Quantity, 1e-9)
	assert.InDelta(t, 47.5, order.StopLoss, 1e-9)
	assert.InDelta(t, 55, order.TakeProfit, 1e-9)
}

func TestRiskManager_DynamicSizing(t *testing.T) {
	m := NewRiskManager(DefaultOptions())
	rm := dto.RiskManagement{PositionSize: 1, MaxPositions: 1, StopLoss: 0.05, RiskPerTrade: 0.01, DynamicSizing: true}

	order := m.Size(buySignal(100), rm, PortfolioState{Cash: 10000, Equity: 10000, Volatility: math.NaN()})
	require.NotNil(t, order)
	// hitting the stop loses exactly 1% of equity
	assert.InDelta(t, 20, order.Quantity, 1e-9)
	assert.InDelta(t, 100, order.Quantity*100*rm.StopLoss, 1e-9)
}

func TestRiskManager_VolatilityAdjustmentNeverExceedsFixed(t *testing.T) {
	m := NewRiskManager(DefaultOptions())
	rm := dto.RiskManagement{PositionSize: 0.2, MaxPositions: 1, VolatilityAdjustment: true}

	// ATR of 4% against a 2% target halves the position
	order := m.Size(buySignal(100), rm, PortfolioState{Cash: 10000, Equity: 10000, Volatility: 4})
	require.NotNil(t, order)
	assert.InDelta(t, 10, order.Quantity, 1e-9)

	// calm markets do not lever up past the fixed size
	order = m.Size(buySignal(100), rm, PortfolioState{Cash: 10000, Equity: 10000, Volatility: 0.5})
	require.NotNil(t, order)
	assert.InDelta(t, 20, order.Quantity, 1e-9)
}

func TestRiskManager_CappedByCash(t *testing.T) {
	m := NewRiskManager(DefaultOptions())
	rm := dto.RiskManagement{PositionSize: 0.5, MaxPositions: 3}

	order := m.Size(buySignal(100), rm, PortfolioState{Cash: 1000, Equity: 10000, Volatility: math.NaN()})
	require.NotNil(t, order)
	assert.InDelta(t, 10, order.Quantity, 1e-9)
}

func TestRiskManager_Rejections(t *testing.T) {
	m := NewRiskManager(DefaultOptions())
	rm := dto.RiskManagement{PositionSize: 0.1, MaxPositions: 2}

	assert.Nil(t, m.Size(buySignal(100), rm, PortfolioState{Cash: 1000, Equity: 1000, OpenPositions: 2}))
	assert.Nil(t, m.Size(buySignal(100), rm, PortfolioState{Cash: 1000, Equity: 1000, PositionQuantity: 3}))
	assert.Nil(t, m.Size(buySignal(100), rm, PortfolioState{Cash: 0, Equity: 1000}))
	assert.Nil(t, m.Size(dto.Signal{Type: dto.SignalHold, Price: 100}, rm, PortfolioState{Cash: 1000, Equity: 1000}))
	assert.Nil(t, m.Size(dto.Signal{Type: dto.SignalSell, Price: 100}, rm, PortfolioState{Cash: 1000, Equity: 1000}))
}

func TestRiskManager_SellClosesWholePosition(t *testing.T) {
	m := NewRiskManager(DefaultOptions())
	rm := dto.RiskManagement{PositionSize: 0.1, MaxPositions: 1}

	order := m.Size(dto.Signal{Symbol: "AAA", Type: dto.SignalStrongSell, Price: 90}, rm,
		PortfolioState{Cash: 0, Equity: 1000, OpenPositions: 1, PositionQuantity: 7})
	require.NotNil(t, order)
	assert.Equal(t, OrderSideSell, order.Side)
	assert.InDelta(t, 7, order.Quantity, 1e-12)
}

func TestLevels(t *testing.T) {
	stop, target := Levels(200, dto.RiskManagement{StopLoss: 0.1, TakeProfit: 0.25})
	assert.InDelta(t, 180, stop, 1e-9)
	assert.InDelta(t, 250, target, 1e-9)

	stop, target = Levels(200, dto.RiskManagement{})
	assert.Zero(t, stop)
	assert.Zero(t, target)
}

func TestTrailStop_NeverLowers(t *testing.T) {
	rm := dto.RiskManagement{TrailingStop: true, TrailingStopDistance: 0.1}

	stop := 90.0
	high := 100.0
	for _, px := range []float64{105, 103, 120, 95, 130, 80} {
		high = math.Max(high, px)
		next := TrailStop(stop, high, rm)
		assert.GreaterOrEqual(t, next, stop)
		stop = next
	}
	assert.InDelta(t, 117, stop, 1e-9)

	assert.InDelta(t, 90, TrailStop(90, 200, dto.RiskManagement{}), 1e-12)
}
