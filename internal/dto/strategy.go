package dto

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

type IndicatorType string

const (
	IndicatorSMA        IndicatorType = "sma"
	IndicatorEMA        IndicatorType = "ema"
	IndicatorRSI        IndicatorType = "rsi"
	IndicatorMACD       IndicatorType = "macd"
	IndicatorBollinger  IndicatorType = "bollinger"
	IndicatorStochastic IndicatorType = "stochastic"
	IndicatorVolume     IndicatorType = "volume"
	IndicatorCustom     IndicatorType = "custom"
)

type Operator string

const (
	OperatorGreaterThan    Operator = ">"
	OperatorLessThan       Operator = "<"
	OperatorGreaterOrEqual Operator = ">="
	OperatorLessOrEqual    Operator = "<="
	OperatorEqual          Operator = "=="
	OperatorNotEqual       Operator = "!="
	OperatorCrossesAbove   Operator = "crosses_above"
	OperatorCrossesBelow   Operator = "crosses_below"
	OperatorBetween        Operator = "between"
	OperatorOutside        Operator = "outside"
)

// IsStateful reports whether the operator needs the prior bar's values.
func (o Operator) IsStateful() bool {
	return o == OperatorCrossesAbove || o == OperatorCrossesBelow
}

// IsRange reports whether the operator needs a second threshold.
func (o Operator) IsRange() bool {
	return o == OperatorBetween || o == OperatorOutside
}

// ConditionValue is either a literal number or a named reference such as
// "sma_200" or "macd_signal".
type ConditionValue struct {
	Number *float64
	Ref    string
}

func NumberValue(v float64) ConditionValue {
	return ConditionValue{Number: &v}
}

func RefValue(ref string) ConditionValue {
	return ConditionValue{Ref: ref}
}

func (v ConditionValue) IsZero() bool {
	return v.Number == nil && v.Ref == ""
}

func (v ConditionValue) IsRef() bool {
	return v.Number == nil && v.Ref != ""
}

func (v ConditionValue) String() string {
	if v.Number != nil {
		return strconv.FormatFloat(*v.Number, 'f', -1, 64)
	}
	return v.Ref
}

func (v ConditionValue) MarshalJSON() ([]byte, error) {
	if v.Number != nil {
		return json.Marshal(*v.Number)
	}
	if v.Ref != "" {
		return json.Marshal(v.Ref)
	}
	return []byte("null"), nil
}

func (v *ConditionValue) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*v = ConditionValue{}
		return nil
	}

	var n float64
	if err := json.Unmarshal(data, &n); err == nil {
		*v = NumberValue(n)
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("condition value must be a number or a reference string: %w", err)
	}
	s = strings.TrimSpace(s)
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		*v = NumberValue(f)
		return nil
	}
	*v = RefValue(strings.ToLower(s))
	return nil
}

// IndicatorParams holds indicator settings (period, fast_period, std_dev,
// output, ...). Values decoded from JSON arrive as float64, from YAML as int.
type IndicatorParams map[string]interface{}

// Int returns the first key present as an int, or def.
func (p IndicatorParams) Int(def int, keys ...string) int {
	for _, k := range keys {
		switch v := p[k].(type) {
		case int:
			return v
		case int64:
			return int(v)
		case float64:
			return int(v)
		case json.Number:
			if n, err := v.Int64(); err == nil {
				return int(n)
			}
		case string:
			if n, err := strconv.Atoi(v); err == nil {
				return n
			}
		}
	}
	return def
}

// Float returns the first key present as a float64, or def.
func (p IndicatorParams) Float(def float64, keys ...string) float64 {
	for _, k := range keys {
		switch v := p[k].(type) {
		case int:
			return float64(v)
		case int64:
			return float64(v)
		case float64:
			return v
		case json.Number:
			if f, err := v.Float64(); err == nil {
				return f
			}
		case string:
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				return f
			}
		}
	}
	return def
}

// String returns the first key present as a string, or def.
func (p IndicatorParams) String(def string, keys ...string) string {
	for _, k := range keys {
		if v, ok := p[k].(string); ok && v != "" {
			return v
		}
	}
	return def
}

// Clone returns a shallow copy that can be modified without touching p.
func (p IndicatorParams) Clone() IndicatorParams {
	out := make(IndicatorParams, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Canonical renders the params in a stable key order, for cache keys.
func (p IndicatorParams) Canonical() string {
	if len(p) == 0 {
		return ""
	}
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "%s=%v", k, p[k])
	}
	return b.String()
}

type StrategyCondition struct {
	ID          string          `json:"id"`
	Indicator   IndicatorType   `json:"indicator" validate:"required,oneof=sma ema rsi macd bollinger stochastic volume custom"`
	Operator    Operator        `json:"operator" validate:"required,oneof=> < >= <= == != crosses_above crosses_below between outside"`
	Value       ConditionValue  `json:"value"`
	SecondValue *ConditionValue `json:"second_value,omitempty"`
	Timeframe   Timeframe       `json:"timeframe,omitempty"`
	Parameters  IndicatorParams `json:"parameters,omitempty"`
	Weight      *float64        `json:"weight,omitempty" validate:"omitempty,gte=0,lte=1"`
}

// EffectiveWeight defaults an unset weight to 1.
func (c StrategyCondition) EffectiveWeight() float64 {
	if c.Weight == nil {
		return 1
	}
	return *c.Weight
}

// Label is the identifier reported in signals and trades.
func (c StrategyCondition) Label(index int) string {
	if c.ID != "" {
		return c.ID
	}
	return fmt.Sprintf("%s_%d", c.Indicator, index)
}

type RiskManagement struct {
	StopLoss             float64 `json:"stop_loss" validate:"gte=0,lt=1"`
	TakeProfit           float64 `json:"take_profit" validate:"gte=0"`
	PositionSize         float64 `json:"position_size" validate:"gt=0,lte=1"`
	MaxPositions         int     `json:"max_positions" validate:"gte=1"`
	RiskPerTrade         float64 `json:"risk_per_trade" validate:"gte=0,lte=1"`
	TrailingStop         bool    `json:"trailing_stop"`
	TrailingStopDistance float64 `json:"trailing_stop_distance" validate:"gte=0,lt=1"`
	DynamicSizing        bool    `json:"dynamic_sizing"`
	VolatilityAdjustment bool    `json:"volatility_adjustment"`
}

type TargetType string

const (
	TargetTypeDeck  TargetType = "deck"
	TargetTypeList  TargetType = "list"
	TargetTypeAsset TargetType = "asset"
)

type MetadataFilter struct {
	MinMarketCap *float64 `json:"min_market_cap,omitempty" validate:"omitempty,gte=0"`
	MaxMarketCap *float64 `json:"max_market_cap,omitempty" validate:"omitempty,gte=0"`
	Sectors      []string `json:"sectors,omitempty"`
	Exchanges    []string `json:"exchanges,omitempty"`
	MinPrice     *float64 `json:"min_price,omitempty" validate:"omitempty,gte=0"`
	MaxPrice     *float64 `json:"max_price,omitempty" validate:"omitempty,gte=0"`
}

type TargetSelection struct {
	Type    TargetType      `json:"type" validate:"required,oneof=deck list asset"`
	DeckID  string          `json:"deck_id,omitempty"`
	Symbols []string        `json:"symbols,omitempty"`
	Filters *MetadataFilter `json:"filters,omitempty"`
}

type StrategyType string

const (
	StrategyTypeMomentum       StrategyType = "momentum"
	StrategyTypeMeanReversion  StrategyType = "mean_reversion"
	StrategyTypeTrendFollowing StrategyType = "trend_following"
	StrategyTypeBreakout       StrategyType = "breakout"
	StrategyTypeCustom         StrategyType = "custom"
)

type Strategy struct {
	ID              string              `json:"id"`
	OwnerID         string              `json:"owner_id"`
	Name            string              `json:"name"`
	Description     string              `json:"description,omitempty"`
	StrategyType    StrategyType        `json:"strategy_type,omitempty" validate:"omitempty,oneof=momentum mean_reversion trend_following breakout custom"`
	BuyConditions   []StrategyCondition `json:"buy_conditions" validate:"required,min=1,dive"`
	SellConditions  []StrategyCondition `json:"sell_conditions" validate:"required,min=1,dive"`
	RiskManagement  RiskManagement      `json:"risk_management"`
	TargetSelection TargetSelection     `json:"target_selection"`
	IsActive        bool                `json:"is_active"`
	IsPublic        bool                `json:"is_public"`
	Version         int                 `json:"version"`
	CreatedAt       time.Time           `json:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at"`

	// Derived on read from BacktestResults, never stored.
	PerformanceMetrics *PerformanceMetrics `json:"performance_metrics,omitempty"`
	BacktestResults    []BacktestSummary   `json:"backtest_results,omitempty"`
}

// AllConditions returns buy conditions followed by sell conditions.
func (s *Strategy) AllConditions() []StrategyCondition {
	out := make([]StrategyCondition, 0, len(s.BuyConditions)+len(s.SellConditions))
	out = append(out, s.BuyConditions...)
	return append(out, s.SellConditions...)
}

type GetStrategiesParam struct {
	OwnerID  string `query:"owner_id"`
	IsActive *bool  `query:"is_active"`
	IsPublic *bool  `query:"is_public"`
	Limit    int    `query:"limit"`
}
