package dto

import (
	"time"
)

// ProfitFactorInfinite is reported when there are gains and no losses.
// JSON has no encoding for +Inf.
const ProfitFactorInfinite = 1.7976931348623157e308

// PortfolioSymbol labels the combined result of a shared capital run.
const PortfolioSymbol = "PORTFOLIO"

type RebalanceFrequency string

const (
	RebalanceNone    RebalanceFrequency = "none"
	RebalanceDaily   RebalanceFrequency = "daily"
	RebalanceWeekly  RebalanceFrequency = "weekly"
	RebalanceMonthly RebalanceFrequency = "monthly"
)

// BacktestConfig parameterises one backtest run.
type BacktestConfig struct {
	StartDate          time.Time          `json:"start_date" validate:"required"`
	EndDate            time.Time          `json:"end_date" validate:"required"`
	InitialCapital     float64            `json:"initial_capital" validate:"gt=0"`
	Commission         float64            `json:"commission" validate:"gte=0,lt=1"`
	Slippage           float64            `json:"slippage" validate:"gte=0,lt=1"`
	Benchmark          string             `json:"benchmark,omitempty"`
	RebalanceFrequency RebalanceFrequency `json:"rebalance_frequency,omitempty" validate:"omitempty,oneof=none daily weekly monthly"`
	Timeframe          Timeframe          `json:"timeframe,omitempty"`
	SharedCapital      bool               `json:"shared_capital"`
	IncludeEquityCurve bool               `json:"include_equity_curve"`
}

type ExitReason string

const (
	ExitReasonSignal       ExitReason = "signal"
	ExitReasonStopLoss     ExitReason = "stop_loss"
	ExitReasonTakeProfit   ExitReason = "take_profit"
	ExitReasonTrailingStop ExitReason = "trailing_stop"
	ExitReasonEndOfData    ExitReason = "end_of_data"
)

// Trade is one closed position. Return is a fraction of the entry cost.
type Trade struct {
	ID                  string     `json:"id"`
	Symbol              string     `json:"symbol"`
	EntryDate           time.Time  `json:"entry_date"`
	ExitDate            time.Time  `json:"exit_date"`
	EntryPrice          float64    `json:"entry_price"`
	ExitPrice           float64    `json:"exit_price"`
	Quantity            float64    `json:"quantity"`
	Return              float64    `json:"return"`
	PnL                 float64    `json:"pnl"`
	Commission          float64    `json:"commission"`
	DurationDays        int        `json:"duration_days"`
	SignalType          SignalType `json:"signal_type"`
	SatisfiedConditions []string   `json:"satisfied_conditions"`
	ExitReason          ExitReason `json:"exit_reason"`
	ExitConditions      []string   `json:"exit_conditions,omitempty"`
	Forced              bool       `json:"forced"`
}

type EquityPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Equity    float64   `json:"equity"`
	Cash      float64   `json:"cash"`
	Exposure  float64   `json:"exposure"`
}

type PerformanceMetrics struct {
	TotalReturn        float64  `json:"total_return"`
	AnnualizedReturn   float64  `json:"annualized_return"`
	SharpeRatio        float64  `json:"sharpe_ratio"`
	SortinoRatio       float64  `json:"sortino_ratio"`
	CalmarRatio        float64  `json:"calmar_ratio"`
	Volatility         float64  `json:"volatility"`
	MaxDrawdown        float64  `json:"max_drawdown"`
	WinRate            float64  `json:"win_rate"`
	TotalTrades        int      `json:"total_trades"`
	WinningTrades      int      `json:"winning_trades"`
	LosingTrades       int      `json:"losing_trades"`
	ProfitFactor       float64  `json:"profit_factor"`
	AverageTradeReturn float64  `json:"average_trade_return"`
	AverageHoldingDays float64  `json:"average_holding_days"`
	LargestWin         float64  `json:"largest_win"`
	LargestLoss        float64  `json:"largest_loss"`
	Exposure           float64  `json:"exposure"`
	Beta               *float64 `json:"beta,omitempty"`
	Alpha              *float64 `json:"alpha,omitempty"`
	BenchmarkReturn    *float64 `json:"benchmark_return,omitempty"`
	ExcessReturn       *float64 `json:"excess_return,omitempty"`
}

type BacktestResult struct {
	ID              string             `json:"id"`
	StrategyID      string             `json:"strategy_id"`
	StrategyVersion int                `json:"strategy_version"`
	Symbol          string             `json:"symbol"`
	Symbols         []string           `json:"symbols,omitempty"`
	StartDate       time.Time          `json:"start_date"`
	EndDate         time.Time          `json:"end_date"`
	InitialCapital  float64            `json:"initial_capital"`
	FinalEquity     float64            `json:"final_equity"`
	Metrics         PerformanceMetrics `json:"metrics"`
	Trades          []Trade            `json:"trades"`
	EquityCurve     []EquityPoint      `json:"equity_curve,omitempty"`
	CreatedAt       time.Time          `json:"created_at"`
}

// BacktestSummary is the projection of a result listed on a strategy.
type BacktestSummary struct {
	ID               string    `json:"id"`
	Symbol           string    `json:"symbol"`
	StrategyVersion  int       `json:"strategy_version"`
	StartDate        time.Time `json:"start_date"`
	EndDate          time.Time `json:"end_date"`
	TotalReturn      float64   `json:"total_return"`
	AnnualizedReturn float64   `json:"annualized_return"`
	SharpeRatio      float64   `json:"sharpe_ratio"`
	MaxDrawdown      float64   `json:"max_drawdown"`
	WinRate          float64   `json:"win_rate"`
	TotalTrades      int       `json:"total_trades"`
	ProfitFactor     float64   `json:"profit_factor"`
	CreatedAt        time.Time `json:"created_at"`
}

func (r BacktestResult) Summary() BacktestSummary {
	return BacktestSummary{
		ID:               r.ID,
		Symbol:           r.Symbol,
		StrategyVersion:  r.StrategyVersion,
		StartDate:        r.StartDate,
		EndDate:          r.EndDate,
		TotalReturn:      r.Metrics.TotalReturn,
		AnnualizedReturn: r.Metrics.AnnualizedReturn,
		SharpeRatio:      r.Metrics.SharpeRatio,
		MaxDrawdown:      r.Metrics.MaxDrawdown,
		WinRate:          r.Metrics.WinRate,
		TotalTrades:      r.Metrics.TotalTrades,
		ProfitFactor:     r.Metrics.ProfitFactor,
		CreatedAt:        r.CreatedAt,
	}
}

// RunBacktestRequest runs an unsaved strategy. Bars are fetched from the
// market data provider for any symbol missing from Series.
type RunBacktestRequest struct {
	Strategy Strategy       `json:"strategy"`
	Config   BacktestConfig `json:"config"`
	Series   SeriesMap      `json:"series,omitempty"`
}

// RunStrategyBacktestRequest runs a stored strategy and appends the results.
type RunStrategyBacktestRequest struct {
	Config BacktestConfig `json:"config"`
}

type GetStrategySignalParam struct {
	StrategyID string    `param:"id"`
	Symbol     string    `param:"symbol"`
	Timeframe  Timeframe `query:"timeframe"`
}
