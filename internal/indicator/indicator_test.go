package indicator

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"golang-backtest/internal/dto"
)

func barsFromCloses(closes []float64) []dto.Bar {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]dto.Bar, len(closes))
	for i, c := range closes {
		bars[i] = dto.Bar{
			Timestamp: start.AddDate(0, 0, i),
			Open:      c,
			High:      c + 1,
			Low:       c - 1,
			Close:     c,
			Volume:    1000 + float64(i),
		}
	}
	return bars
}

func linear(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = float64(i + 1)
	}
	return out
}

func TestSMA(t *testing.T) {
	s := SMA(Series(linear(10)), 3)

	for i := 0; i < 2; i++ {
		assert.True(t, math.IsNaN(s[i]), "index %d must be undefined during warm-up", i)
	}
	assert.InDelta(t, 2.0, s[2], 1e-12)
	assert.InDelta(t, 9.0, s[9], 1e-12)
	assert.Equal(t, 2, s.FirstDefined())
}

func TestSMA_RestartsAfterUndefined(t *testing.T) {
	in := Series{1, 2, math.NaN(), 4, 5, 6}
	s := SMA(in, 2)

	assert.InDelta(t, 1.5, s[1], 1e-12)
	assert.True(t, math.IsNaN(s[2]))
	assert.True(t, math.IsNaN(s[3]))
	assert.InDelta(t, 4.5, s[4], 1e-12)
	assert.InDelta(t, 5.5, s[5], 1e-12)
}

func TestEMA_SeededWithSMA(t *testing.T) {
	s := EMA(Series(linear(10)), 3)

	assert.True(t, math.IsNaN(s[1]))
	assert.InDelta(t, 2.0, s[2], 1e-12)
	// alpha = 0.5, a linear ramp settles one step behind the input
	assert.InDelta(t, 3.0, s[3], 1e-12)
	assert.InDelta(t, 9.0, s[9], 1e-12)
}

func TestRSI_WilderReference(t *testing.T) {
	closes := Series{44.34, 44.09, 44.15, 43.61, 44.33, 44.83, 45.10, 45.42, 45.84, 46.08,
		45.89, 46.03, 45.61, 46.28, 46.28, 46.00, 46.03, 46.41, 46.22, 45.64}
	s := RSI(closes, 14)

	assert.True(t, math.IsNaN(s[13]))
	assert.InDelta(t, 70.464135, s[14], 1e-5)
	assert.InDelta(t, 66.249619, s[15], 1e-5)
	assert.InDelta(t, 57.915021, s[19], 1e-5)
}

func TestRSI_Extremes(t *testing.T) {
	up := RSI(Series(linear(20)), 14)
	assert.Equal(t, 100.0, up.Last())

	flat := RSI(Series{5, 5, 5, 5, 5}, 3)
	assert.Equal(t, 50.0, flat.Last())
}

func TestMACD_SubSeries(t *testing.T) {
	m := MACD(Series(linear(60)), 12, 26, 9)

	assert.Equal(t, 25, m.MACD.FirstDefined())
	assert.Equal(t, 33, m.Signal.FirstDefined())
	assert.Equal(t, 33, m.Histogram.FirstDefined())
	// on a linear ramp the EMA lag is (period-1)/2, so the line converges to 7
	assert.InDelta(t, 7.0, m.MACD.Last(), 1e-6)
	assert.InDelta(t, m.MACD.Last()-m.Signal.Last(), m.Histogram.Last(), 1e-12)
}

func TestBollinger_PopulationStdDev(t *testing.T) {
	b := Bollinger(Series{1, 2, 3, 4, 5}, 5, 2)

	assert.InDelta(t, 3.0, b.Middle[4], 1e-12)
	assert.InDelta(t, 3+2*math.Sqrt2, b.Upper[4], 1e-12)
	assert.InDelta(t, 3-2*math.Sqrt2, b.Lower[4], 1e-12)
	assert.InDelta(t, (5-(3-2*math.Sqrt2))/(4*math.Sqrt2), b.PercentB[4], 1e-12)
	assert.True(t, math.IsNaN(b.Upper[3]))
}

func TestStochastic(t *testing.T) {
	bars := barsFromCloses(linear(10))
	for i := range bars {
		bars[i].High = bars[i].Close
	}
	s := Stochastic(bars, 5, 3, 1)

	assert.Equal(t, 4, s.K.FirstDefined())
	assert.Equal(t, 6, s.D.FirstDefined())
	assert.InDelta(t, 100.0, s.K[9], 1e-12)
	assert.InDelta(t, 100.0, s.D[9], 1e-12)
}

func TestNonPositivePeriodsStayUndefined(t *testing.T) {
	bars := barsFromCloses(linear(20))
	closes := Series(linear(20))

	require.NotPanics(t, func() {
		st := Stochastic(bars, 0, 3, 1)
		assert.True(t, math.IsNaN(st.K[19]))
		assert.True(t, math.IsNaN(st.D[19]))
	})
	assert.True(t, math.IsNaN(Stochastic(bars, -2, 3, 1).K[19]))
	assert.True(t, math.IsNaN(SMA(closes, 0)[19]))
	assert.True(t, math.IsNaN(RSI(closes, -1)[19]))
	assert.True(t, math.IsNaN(ATR(bars, 0)[19]))
}

func TestVolume_Ratio(t *testing.T) {
	bars := barsFromCloses(linear(5))
	for i := range bars {
		bars[i].Volume = 100
	}
	bars[4].Volume = 300
	v := Volume(bars, 5)

	assert.InDelta(t, 140.0, v.SMA[4], 1e-12)
	assert.InDelta(t, 300.0/140.0, v.Ratio[4], 1e-12)
	assert.True(t, math.IsNaN(v.Ratio[3]))
}

func TestATR_WilderOnConstantRange(t *testing.T) {
	closes := make([]float64, 20)
	for i := range closes {
		closes[i] = 10
	}
	atr := ATR(barsFromCloses(closes), 14)

	assert.Equal(t, 14, atr.FirstDefined())
	assert.InDelta(t, 2.0, atr.Last(), 1e-12)
}

func TestLibrary_ComputeOutputs(t *testing.T) {
	lib := NewLibrary()
	bars := barsFromCloses(linear(60))

	res, err := lib.Compute("macd", nil, bars)
	require.NoError(t, err)
	for _, name := range []string{"", "value", "signal", "histogram", "hist", "line"} {
		_, err := res.Output(name)
		assert.NoError(t, err, name)
	}
	_, err = res.Output("upper")
	assert.ErrorIs(t, err, ErrUnknownOutput)

	_, err = lib.Compute("ichimoku", nil, bars)
	assert.ErrorIs(t, err, ErrUnknownIndicator)
}

func TestLibrary_CustomIndicator(t *testing.T) {
	lib := NewLibrary()
	require.NoError(t, lib.Register("range", 1, func(bars []dto.Bar, _ dto.IndicatorParams) (Series, error) {
		out := make(Series, len(bars))
		for i, b := range bars {
			out[i] = b.High - b.Low
		}
		return out, nil
	}))
	assert.Error(t, lib.Register("sma", 1, func([]dto.Bar, dto.IndicatorParams) (Series, error) { return nil, nil }))

	bars := barsFromCloses(linear(5))
	res, err := lib.Compute("custom", dto.IndicatorParams{"name": "range"}, bars)
	require.NoError(t, err)
	v, _ := res.Output("")
	assert.Equal(t, 2.0, v[3])

	raw, err := lib.Compute("custom", dto.IndicatorParams{"field": "high"}, bars)
	require.NoError(t, err)
	hv, _ := raw.Output("")
	assert.Equal(t, 6.0, hv[4])
}

func TestLibrary_Warmup(t *testing.T) {
	lib := NewLibrary()
	tests := []struct {
		name   string
		params dto.IndicatorParams
		want   int
	}{
		{name: "sma", params: dto.IndicatorParams{"period": 200}, want: 200},
		{name: "rsi", params: nil, want: 15},
		{name: "macd", params: nil, want: 34},
		{name: "stochastic", params: dto.IndicatorParams{"k_period": 5, "d_period": 3}, want: 7},
		{name: "bollinger", params: dto.IndicatorParams{"period": 10.0}, want: 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, lib.Warmup(tt.name, tt.params))
		})
	}
}

func TestWarmupMatchesFirstDefined(t *testing.T) {
	lib := NewLibrary()
	bars := barsFromCloses(linear(80))
	for _, name := range []string{"sma", "ema", "rsi", "macd", "bollinger", "stochastic", "volume", "atr"} {
		res, err := lib.Compute(name, nil, bars)
		require.NoError(t, err)
		last := 0
		for _, s := range res.Outputs {
			if fd := s.FirstDefined(); fd > last {
				last = fd
			}
		}
		assert.Equal(t, lib.Warmup(name, nil), last+1, name)
	}
}

func TestParseReference(t *testing.T) {
	lib := NewLibrary()
	tests := []struct {
		raw        string
		wantFamily string
		wantOutput string
		wantPeriod int
		wantErr    bool
	}{
		{raw: "sma_200", wantFamily: "sma", wantPeriod: 200},
		{raw: "macd_signal", wantFamily: "macd", wantOutput: "signal"},
		{raw: "bollinger_upper", wantFamily: "bollinger", wantOutput: "upper"},
		{raw: "BB_LOWER_20", wantFamily: "bollinger", wantOutput: "lower", wantPeriod: 20},
		{raw: "stochastic_d", wantFamily: "stochastic", wantOutput: "d"},
		{raw: "volume_sma", wantFamily: "volume", wantOutput: "sma"},
		{raw: "close", wantFamily: "price", wantOutput: "close"},
		{raw: "foo_10", wantErr: true},
		{raw: "sma_0", wantErr: true},
		{raw: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			ref, err := lib.ParseReference(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantFamily, ref.Family)
			assert.Equal(t, tt.wantOutput, ref.Output)
			assert.Equal(t, tt.wantPeriod, ref.Period)
		})
	}
}

func TestReference_InheritsSameFamilyParams(t *testing.T) {
	lib := NewLibrary()
	ref, err := lib.ParseReference("macd_signal")
	require.NoError(t, err)

	p := ref.Params(dto.IndicatorMACD, dto.IndicatorParams{"fast_period": 5, "output": "histogram"})
	assert.Equal(t, 5, p.Int(0, "fast_period"))
	_, hasOutput := p["output"]
	assert.False(t, hasOutput)

	other := ref.Params(dto.IndicatorRSI, dto.IndicatorParams{"period": 7})
	assert.Empty(t, other)
}

func TestFingerprint(t *testing.T) {
	a := barsFromCloses(linear(10))
	b := barsFromCloses(linear(10))
	assert.Equal(t, Fingerprint(a), Fingerprint(b))

	b[9].Close += 0.01
	assert.NotEqual(t, Fingerprint(a), Fingerprint(b))
}
