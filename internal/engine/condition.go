package engine

import (
	"math"

	"golang-backtest/internal/dto"
)

// Operand is the resolved numeric input of a condition at one bar: the
// indicator value and its thresholds, either literal or referenced.
type Operand struct {
	Value  float64
	Ref    float64
	Second float64
}

type ConditionResult struct {
	Evaluable bool
	Satisfied bool
	Value     float64
}

func notEvaluable(v float64) ConditionResult {
	return ConditionResult{Value: v}
}

// EvaluateCondition applies the condition's operator. A NaN operand means
// an indicator is still warming up, which makes the condition not
// evaluable rather than false. Crossings need prior; a nil prior is also
// not evaluable.
func EvaluateCondition(cond dto.StrategyCondition, current Operand, prior *Operand, epsilon float64) ConditionResult {
	v, ref := current.Value, current.Ref
	if math.IsNaN(v) || math.IsNaN(ref) {
		return notEvaluable(v)
	}

	var ok bool
	switch cond.Operator {
	case dto.OperatorGreaterThan:
		ok = v > ref
	case dto.OperatorLessThan:
		ok = v < ref
	case dto.OperatorGreaterOrEqual:
		ok = v > ref || approxEqual(v, ref, epsilon)
	case dto.OperatorLessOrEqual:
		ok = v < ref || approxEqual(v, ref, epsilon)
	case dto.OperatorEqual:
		ok = approxEqual(v, ref, epsilon)
	case dto.OperatorNotEqual:
		ok = !approxEqual(v, ref, epsilon)
	case dto.OperatorBetween, dto.OperatorOutside:
		if math.IsNaN(current.Second) {
			return notEvaluable(v)
		}
		lo, hi := math.Min(ref, current.Second), math.Max(ref, current.Second)
		inside := v >= lo && v <= hi
		if cond.Operator == dto.OperatorBetween {
			ok = inside
		} else {
			ok = !inside
		}
	case dto.OperatorCrossesAbove, dto.OperatorCrossesBelow:
		if prior == nil || math.IsNaN(prior.Value) || math.IsNaN(prior.Ref) {
			return notEvaluable(v)
		}
		if cond.Operator == dto.OperatorCrossesAbove {
			ok = prior.Value <= prior.Ref && v > ref
		} else {
			ok = prior.Value >= prior.Ref && v < ref
		}
	default:
		return notEvaluable(v)
	}
	return ConditionResult{Evaluable: true, Satisfied: ok, Value: v}
}

// approxEqual compares with a relative tolerance that falls back to an
// absolute one for magnitudes below 1.
func approxEqual(a, b, epsilon float64) bool {
	scale := math.Max(1, math.Max(math.Abs(a), math.Abs(b)))
	return math.Abs(a-b) <= epsilon*scale
}
