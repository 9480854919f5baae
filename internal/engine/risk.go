package engine

import (
	"math"

	"golang-backtest/internal/dto"
)

type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// PortfolioState is the view of the portfolio the risk manager sizes against.
type PortfolioState struct {
	Cash          float64
	Equity        float64
	OpenPositions int
	// Quantity already held in the signal's symbol.
	PositionQuantity float64
	// Recent ATR of the signal's symbol, NaN while warming up.
	Volatility float64
}

type Order struct {
	Symbol     string
	Side       OrderSide
	Quantity   float64
	Price      float64
	StopLoss   float64
	TakeProfit float64
	Signal     dto.Signal
}

type RiskManager struct {
	opts Options
}

func NewRiskManager(opts Options) *RiskManager {
	return &RiskManager{opts: opts.withDefaults()}
}

// Size converts a signal into an order, or nil when it must be rejected.
// The position cap applies to new entries only; exits are never capped.
func (m *RiskManager) Size(signal dto.Signal, rm dto.RiskManagement, state PortfolioState) *Order {
	switch {
	case signal.Type.IsSell():
		if state.PositionQuantity <= 0 {
			return nil
		}
		return &Order{
			Symbol:   signal.Symbol,
			Side:     OrderSideSell,
			Quantity: state.PositionQuantity,
			Price:    signal.Price,
			Signal:   signal,
		}
	case signal.Type.IsBuy():
		if state.PositionQuantity > 0 || state.OpenPositions >= rm.MaxPositions {
			return nil
		}
		qty := m.quantity(signal.Price, rm, state)
		if qty <= 0 {
			return nil
		}
		stop, target := Levels(signal.Price, rm)
		return &Order{
			Symbol:     signal.Symbol,
			Side:       OrderSideBuy,
			Quantity:   qty,
			Price:      signal.Price,
			StopLoss:   stop,
			TakeProfit: target,
			Signal:     signal,
		}
	default:
		return nil
	}
}

func (m *RiskManager) quantity(price float64, rm dto.RiskManagement, state PortfolioState) float64 {
	if price <= 0 || state.Equity <= 0 {
		return 0
	}

	fixed := rm.PositionSize * state.Equity / price
	qty := fixed
	if rm.DynamicSizing && rm.StopLoss > 0 && rm.RiskPerTrade > 0 {
		// losing StopLoss of price on qty costs exactly RiskPerTrade of equity
		qty = rm.RiskPerTrade * state.Equity / (price * rm.StopLoss)
	}
	if rm.VolatilityAdjustment {
		if vol := state.Volatility; !math.IsNaN(vol) && vol > 0 {
			qty *= m.opts.VolatilityTarget / (vol / price)
		}
		qty = math.Min(qty, fixed)
	}
	return math.Min(qty, state.Cash/price)
}

// Levels returns absolute stop-loss and take-profit prices for a long entry.
// A zero distance disables the level and yields 0.
func Levels(entry float64, rm dto.RiskManagement) (stop, target float64) {
	if rm.StopLoss > 0 {
		stop = entry * (1 - rm.StopLoss)
	}
	if rm.TakeProfit > 0 {
		target = entry * (1 + rm.TakeProfit)
	}
	return stop, target
}

// TrailStop raises the stop to trail highWater by the configured distance.
// The returned level is never below current.
func TrailStop(current, highWater float64, rm dto.RiskManagement) float64 {
	if !rm.TrailingStop || rm.TrailingStopDistance <= 0 {
		return current
	}
	return math.Max(current, highWater*(1-rm.TrailingStopDistance))
}
