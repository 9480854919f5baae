package engine

import (
	"time"

	"golang-backtest/internal/dto"
)

// ConditionInput carries one condition's operands at the evaluated bar and
// the bar before it. Prior is nil when there is no earlier bar.
type ConditionInput struct {
	Current Operand
	Prior   *Operand
}

// MarketSnapshot is everything the signal generator may see at one bar.
// Buy and Sell are index-aligned with the strategy's condition lists.
type MarketSnapshot struct {
	Price      float64
	Buy        []ConditionInput
	Sell       []ConditionInput
	Indicators map[string]float64
}

type listOutcome struct {
	Triggered  bool
	Confidence float64
	Satisfied  []string
	Evaluable  int
}

type SignalGenerator struct {
	opts Options
}

func NewSignalGenerator(opts Options) *SignalGenerator {
	return &SignalGenerator{opts: opts.withDefaults()}
}

// Generate turns a snapshot into a signal. When buy and sell both trigger on
// the same bar the sell wins: exiting or staying flat is the capital
// preserving choice.
func (g *SignalGenerator) Generate(strategy *dto.Strategy, symbol string, ts time.Time, snap MarketSnapshot) dto.Signal {
	sig := dto.Signal{
		StrategyID:          strategy.ID,
		Symbol:              symbol,
		Type:                dto.SignalHold,
		Price:               snap.Price,
		Timestamp:           ts,
		SatisfiedConditions: []string{},
		Indicators:          snap.Indicators,
	}

	sell := g.evaluateList(strategy.SellConditions, snap.Sell)
	if sell.Triggered {
		sig.Type = g.grade(dto.SignalSell, dto.SignalStrongSell, sell.Confidence)
		sig.Confidence = sell.Confidence
		sig.SatisfiedConditions = sell.Satisfied
		return sig
	}

	buy := g.evaluateList(strategy.BuyConditions, snap.Buy)
	if buy.Triggered {
		sig.Type = g.grade(dto.SignalBuy, dto.SignalStrongBuy, buy.Confidence)
		sig.Confidence = buy.Confidence
		sig.SatisfiedConditions = buy.Satisfied
	}
	return sig
}

func (g *SignalGenerator) grade(normal, strong dto.SignalType, confidence float64) dto.SignalType {
	if confidence >= g.opts.StrongSignalThreshold {
		return strong
	}
	return normal
}

// evaluateList aggregates one condition list. Conditions that are not
// evaluable are left out of both the trigger rule and the confidence.
func (g *SignalGenerator) evaluateList(conds []dto.StrategyCondition, inputs []ConditionInput) listOutcome {
	var (
		out               listOutcome
		evaluableWeight   float64
		satisfiedWeight   float64
		unsatisfiedWeight bool
	)
	for i, cond := range conds {
		if i >= len(inputs) {
			break
		}
		res := EvaluateCondition(cond, inputs[i].Current, inputs[i].Prior, g.opts.EqualityEpsilon)
		if !res.Evaluable {
			continue
		}
		w := cond.EffectiveWeight()
		out.Evaluable++
		evaluableWeight += w
		if res.Satisfied {
			satisfiedWeight += w
			out.Satisfied = append(out.Satisfied, cond.Label(i))
		} else if w > 0 {
			unsatisfiedWeight = true
		}
	}

	if evaluableWeight <= 0 {
		return out
	}
	out.Confidence = satisfiedWeight / evaluableWeight

	switch g.opts.TriggerMode {
	case TriggerWeighted:
		out.Triggered = out.Confidence >= g.opts.MinConfidence
	default:
		out.Triggered = !unsatisfiedWeight
	}
	if !out.Triggered {
		out.Satisfied = nil
	}
	return out
}
