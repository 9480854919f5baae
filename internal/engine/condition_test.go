package engine

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"golang-backtest/internal/dto"
)

func TestEvaluateCondition_Comparisons(t *testing.T) {
	tests := []struct {
		name  string
		op    dto.Operator
		value float64
		ref   float64
		want  bool
	}{
		{"greater true", dto.OperatorGreaterThan, 71, 70, true},
		{"greater equal is false", dto.OperatorGreaterThan, 70, 70, false},
		{"less true", dto.OperatorLessThan, 29, 30, true},
		{"greater or equal at equality", dto.OperatorGreaterOrEqual, 70, 70, true},
		{"less or equal below", dto.OperatorLessOrEqual, 69, 70, true},
		{"equal within epsilon", dto.OperatorEqual, 100, 100 + 1e-8, true},
		{"equal outside epsilon", dto.OperatorEqual, 100, 100.01, false},
		{"not equal", dto.OperatorNotEqual, 1, 2, true},
		{"not equal at equality", dto.OperatorNotEqual, 2, 2, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := EvaluateCondition(dto.StrategyCondition{Operator: tt.op}, Operand{Value: tt.value, Ref: tt.ref, Second: math.NaN()}, nil, 1e-9*100)
			assert.True(t, res.Evaluable)
			assert.Equal(t, tt.want, res.Satisfied)
		})
	}
}

func TestEvaluateCondition_RangeIsInclusiveAndOrderFree(t *testing.T) {
	between := dto.StrategyCondition{Operator: dto.OperatorBetween}
	outside := dto.StrategyCondition{Operator: dto.OperatorOutside}

	for _, v := range []float64{30, 50, 70} {
		assert.True(t, EvaluateCondition(between, Operand{Value: v, Ref: 70, Second: 30}, nil, 1e-9).Satisfied, "between %v", v)
		assert.False(t, EvaluateCondition(outside, Operand{Value: v, Ref: 30, Second: 70}, nil, 1e-9).Satisfied, "outside %v", v)
	}
	assert.True(t, EvaluateCondition(outside, Operand{Value: 80, Ref: 30, Second: 70}, nil, 1e-9).Satisfied)

	res := EvaluateCondition(between, Operand{Value: 50, Ref: 30, Second: math.NaN()}, nil, 1e-9)
	assert.False(t, res.Evaluable)
}

func TestEvaluateCondition_Crosses(t *testing.T) {
	above := dto.StrategyCondition{Operator: dto.OperatorCrossesAbove}
	below := dto.StrategyCondition{Operator: dto.OperatorCrossesBelow}

	assert.True(t, EvaluateCondition(above, Operand{Value: 11, Ref: 10}, &Operand{Value: 9, Ref: 10}, 1e-9).Satisfied)
	// touching from below counts as the start of a crossing
	assert.True(t, EvaluateCondition(above, Operand{Value: 11, Ref: 10}, &Operand{Value: 10, Ref: 10}, 1e-9).Satisfied)
	// already above is not a crossing
	assert.False(t, EvaluateCondition(above, Operand{Value: 12, Ref: 10}, &Operand{Value: 11, Ref: 10}, 1e-9).Satisfied)
	// ending on the level is not a crossing
	assert.False(t, EvaluateCondition(above, Operand{Value: 10, Ref: 10}, &Operand{Value: 9, Ref: 10}, 1e-9).Satisfied)

	assert.True(t, EvaluateCondition(below, Operand{Value: 9, Ref: 10}, &Operand{Value: 11, Ref: 10}, 1e-9).Satisfied)
	assert.False(t, EvaluateCondition(below, Operand{Value: 9, Ref: 10}, &Operand{Value: 8, Ref: 10}, 1e-9).Satisfied)
}

func TestEvaluateCondition_NotEvaluable(t *testing.T) {
	gt := dto.StrategyCondition{Operator: dto.OperatorGreaterThan}
	cross := dto.StrategyCondition{Operator: dto.OperatorCrossesAbove}

	assert.False(t, EvaluateCondition(gt, Operand{Value: math.NaN(), Ref: 1}, nil, 1e-9).Evaluable)
	assert.False(t, EvaluateCondition(gt, Operand{Value: 1, Ref: math.NaN()}, nil, 1e-9).Evaluable)
	assert.False(t, EvaluateCondition(cross, Operand{Value: 11, Ref: 10}, nil, 1e-9).Evaluable)
	assert.False(t, EvaluateCondition(cross, Operand{Value: 11, Ref: 10}, &Operand{Value: math.NaN(), Ref: 10}, 1e-9).Evaluable)
	assert.False(t, EvaluateCondition(dto.StrategyCondition{Operator: "~"}, Operand{Value: 1, Ref: 1}, nil, 1e-9).Evaluable)
}

func TestApproxEqual_AbsoluteFloorNearZero(t *testing.T) {
	assert.True(t, approxEqual(0, 1e-10, 1e-9))
	assert.False(t, approxEqual(0, 1e-6, 1e-9))
	assert.True(t, approxEqual(1e6, 1e6+1e-4, 1e-9))
}
