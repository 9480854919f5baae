package dto

import "time"

type SignalType string

const (
	SignalBuy        SignalType = "buy"
	SignalStrongBuy  SignalType = "strong_buy"
	SignalSell       SignalType = "sell"
	SignalStrongSell SignalType = "strong_sell"
	SignalHold       SignalType = "hold"
)

func (s SignalType) IsBuy() bool {
	return s == SignalBuy || s == SignalStrongBuy
}

func (s SignalType) IsSell() bool {
	return s == SignalSell || s == SignalStrongSell
}

type Signal struct {
	StrategyID          string             `json:"strategy_id"`
	Symbol              string             `json:"symbol"`
	Type                SignalType         `json:"signal_type"`
	Confidence          float64            `json:"confidence"`
	Price               float64            `json:"price"`
	Timestamp           time.Time          `json:"timestamp"`
	SatisfiedConditions []string           `json:"satisfied_conditions"`
	Indicators          map[string]float64 `json:"indicators,omitempty"`
}
