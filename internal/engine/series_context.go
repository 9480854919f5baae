package engine

import (
	"fmt"
	"math"

	"golang-backtest/internal/dto"
	"golang-backtest/internal/indicator"
)

// operandTrack holds a condition's operand series on the condition's own
// timeframe, plus the mapping from base bars to completed buckets.
type operandTrack struct {
	label   string
	refName string
	value   indicator.Series
	ref     indicator.Series
	second  indicator.Series
	// visible[i] is the last completed bucket at base bar i. nil when the
	// condition runs on the base timeframe.
	visible []int
}

func (t *operandTrack) at(k int) Operand {
	return Operand{Value: t.value.At(k), Ref: t.ref.At(k), Second: t.second.At(k)}
}

func (t *operandTrack) input(i int) ConditionInput {
	k, prev := i, i-1
	if t.visible != nil {
		k = t.visible[i]
		if k < 0 {
			return ConditionInput{Current: Operand{Value: math.NaN(), Ref: math.NaN(), Second: math.NaN()}}
		}
		before := -1
		if i > 0 {
			before = t.visible[i-1]
		}
		if before == k {
			// no bucket closed on this bar, so nothing can cross here
			cur := t.at(k)
			return ConditionInput{Current: cur, Prior: &cur}
		}
		prev = k - 1
	}

	cur := t.at(k)
	if prev < 0 {
		return ConditionInput{Current: cur}
	}
	p := t.at(prev)
	return ConditionInput{Current: cur, Prior: &p}
}

// seriesContext is the precomputed, read-only view of one symbol's series
// for one strategy. All series are causal, so reading index i never uses
// bars after i.
type seriesContext struct {
	symbol string
	bars   []dto.Bar
	base   dto.Timeframe
	buy    []*operandTrack
	sell   []*operandTrack
	atr    indicator.Series
}

func (sc *seriesContext) snapshot(i int) MarketSnapshot {
	snap := MarketSnapshot{
		Price:      sc.bars[i].Close,
		Buy:        make([]ConditionInput, len(sc.buy)),
		Sell:       make([]ConditionInput, len(sc.sell)),
		Indicators: make(map[string]float64),
	}
	fill := func(tracks []*operandTrack, dst []ConditionInput) {
		for j, t := range tracks {
			in := t.input(i)
			dst[j] = in
			if !math.IsNaN(in.Current.Value) {
				snap.Indicators[t.label] = in.Current.Value
			}
			if t.refName != "" && !math.IsNaN(in.Current.Ref) {
				snap.Indicators[t.refName] = in.Current.Ref
			}
		}
	}
	fill(sc.buy, snap.Buy)
	fill(sc.sell, snap.Sell)
	if v := sc.atr.At(i); !math.IsNaN(v) {
		snap.Indicators["atr"] = v
	}
	return snap
}

type timeframeBars struct {
	tf      dto.Timeframe
	bars    []dto.Bar
	fp      uint64
	visible []int
}

// prepare computes every series the strategy reads on the supplied bars. It
// fails with InsufficientDataError when a condition can never warm up.
func (e *Engine) prepare(strategy *dto.Strategy, symbol string, bars []dto.Bar, base dto.Timeframe) (*seriesContext, error) {
	sc := &seriesContext{symbol: symbol, bars: bars, base: base}
	baseFP := indicator.Fingerprint(bars)
	frames := map[dto.Timeframe]*timeframeBars{base: {tf: base, bars: bars, fp: baseFP}}

	frameFor := func(tf dto.Timeframe) (*timeframeBars, error) {
		if f, ok := frames[tf]; ok {
			return f, nil
		}
		coarse, fp := e.resample(bars, baseFP, tf)
		visible, err := indicator.Align(bars, base, coarse, tf)
		if err != nil {
			return nil, err
		}
		f := &timeframeBars{tf: tf, bars: coarse, fp: fp, visible: visible}
		frames[tf] = f
		return f, nil
	}

	build := func(field string, conds []dto.StrategyCondition) ([]*operandTrack, error) {
		tracks := make([]*operandTrack, len(conds))
		for i, c := range conds {
			where := fmt.Sprintf("%s[%d]", field, i)
			f, err := frameFor(c.Timeframe.Or(base))
			if err != nil {
				return nil, err
			}
			t, required, err := e.track(c, i, f)
			if err != nil {
				verr := &ValidationError{}
				verr.add(where, "%v", err)
				return nil, verr
			}
			if len(f.bars) < required {
				return nil, &InsufficientDataError{
					Symbol:    symbol,
					Required:  required,
					Available: len(f.bars),
					Reason:    fmt.Sprintf("%s on %s", where, c.Timeframe.Or(base)),
				}
			}
			tracks[i] = t
		}
		return tracks, nil
	}

	var err error
	if sc.buy, err = build("buy_conditions", strategy.BuyConditions); err != nil {
		return nil, err
	}
	if sc.sell, err = build("sell_conditions", strategy.SellConditions); err != nil {
		return nil, err
	}

	atr, err := e.compute(bars, baseFP, base, "atr", dto.IndicatorParams{"period": e.opts.VolatilityPeriod})
	if err != nil {
		return nil, err
	}
	sc.atr, _ = atr.Output("")
	return sc, nil
}

// track resolves one condition into operand series and reports how many
// bars of its timeframe it needs before it can first be evaluated.
func (e *Engine) track(c dto.StrategyCondition, index int, f *timeframeBars) (*operandTrack, int, error) {
	name := string(c.Indicator)
	res, err := e.compute(f.bars, f.fp, f.tf, name, c.Parameters)
	if err != nil {
		return nil, 0, err
	}
	value, err := res.Output(c.Parameters.String("", "output"))
	if err != nil {
		return nil, 0, err
	}

	required := e.lib.Warmup(name, c.Parameters)
	t := &operandTrack{label: c.Label(index), value: value, visible: f.visible}

	resolve := func(v dto.ConditionValue) (indicator.Series, int, error) {
		if !v.IsRef() {
			if v.Number == nil {
				return constant(len(f.bars), math.NaN()), 0, nil
			}
			return constant(len(f.bars), *v.Number), 0, nil
		}
		ref, err := e.lib.ParseReference(v.Ref)
		if err != nil {
			return nil, 0, err
		}
		params := ref.Params(c.Indicator, c.Parameters)
		rr, err := e.compute(f.bars, f.fp, f.tf, ref.Family, params)
		if err != nil {
			return nil, 0, err
		}
		s, err := rr.Output(ref.OutputName())
		if err != nil {
			return nil, 0, err
		}
		return s, e.lib.Warmup(ref.Family, params), nil
	}

	var w int
	if t.ref, w, err = resolve(c.Value); err != nil {
		return nil, 0, err
	}
	if c.Value.IsRef() {
		t.refName = c.Value.Ref
	}
	required = max(required, w)

	t.second = constant(len(f.bars), math.NaN())
	if c.SecondValue != nil {
		if t.second, w, err = resolve(*c.SecondValue); err != nil {
			return nil, 0, err
		}
		required = max(required, w)
	}

	if c.Operator.IsStateful() {
		required++
	}
	return t, required, nil
}

func constant(n int, v float64) indicator.Series {
	s := make(indicator.Series, n)
	for i := range s {
		s[i] = v
	}
	return s
}
