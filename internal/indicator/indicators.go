package indicator

import (
	"math"

	"golang-backtest/internal/dto"
)

// RSI uses Wilder's smoothing of gains and losses.
func RSI(values Series, period int) Series {
	out := undefinedSeries(len(values))
	if period <= 0 || len(values) <= period {
		return out
	}

	gains := make(Series, len(values)-1)
	losses := make(Series, len(values)-1)
	for i := 1; i < len(values); i++ {
		change := values[i] - values[i-1]
		gains[i-1] = math.Max(change, 0)
		losses[i-1] = math.Max(-change, 0)
	}

	avgGain := wilder(gains, period, 0)
	avgLoss := wilder(losses, period, 0)
	for i := period - 1; i < len(gains); i++ {
		g, l := avgGain[i], avgLoss[i]
		switch {
		case l == 0 && g == 0:
			out[i+1] = 50
		case l == 0:
			out[i+1] = 100
		default:
			out[i+1] = 100 - 100/(1+g/l)
		}
	}
	return out
}

type MACDSeries struct {
	MACD      Series
	Signal    Series
	Histogram Series
}

func MACD(values Series, fast, slow, signal int) MACDSeries {
	fastEMA := EMA(values, fast)
	slowEMA := EMA(values, slow)

	line := undefinedSeries(len(values))
	for i := range values {
		if !math.IsNaN(fastEMA[i]) && !math.IsNaN(slowEMA[i]) {
			line[i] = fastEMA[i] - slowEMA[i]
		}
	}

	sig := EMA(line, signal)
	hist := undefinedSeries(len(values))
	for i := range values {
		if !math.IsNaN(sig[i]) {
			hist[i] = line[i] - sig[i]
		}
	}
	return MACDSeries{MACD: line, Signal: sig, Histogram: hist}
}

type BollingerSeries struct {
	Middle    Series
	Upper     Series
	Lower     Series
	PercentB  Series
	Bandwidth Series
}

func Bollinger(values Series, period int, k float64) BollingerSeries {
	mid := SMA(values, period)
	std := rollingStdDev(values, mid, period)

	n := len(values)
	b := BollingerSeries{
		Middle:    mid,
		Upper:     undefinedSeries(n),
		Lower:     undefinedSeries(n),
		PercentB:  undefinedSeries(n),
		Bandwidth: undefinedSeries(n),
	}
	for i := range values {
		if math.IsNaN(mid[i]) {
			continue
		}
		b.Upper[i] = mid[i] + k*std[i]
		b.Lower[i] = mid[i] - k*std[i]
		if width := b.Upper[i] - b.Lower[i]; width > 0 {
			b.PercentB[i] = (values[i] - b.Lower[i]) / width
		}
		if mid[i] != 0 {
			b.Bandwidth[i] = (b.Upper[i] - b.Lower[i]) / mid[i]
		}
	}
	return b
}

type StochasticSeries struct {
	K Series
	D Series
}

// Stochastic computes %K over kPeriod (optionally smoothed) and %D as its SMA.
// A flat range reports 50.
func Stochastic(bars []dto.Bar, kPeriod, dPeriod, smooth int) StochasticSeries {
	highest, lowest := rollingExtremes(bars, kPeriod)
	raw := undefinedSeries(len(bars))
	for i, b := range bars {
		if math.IsNaN(highest[i]) {
			continue
		}
		rng := highest[i] - lowest[i]
		if rng == 0 {
			raw[i] = 50
			continue
		}
		raw[i] = 100 * (b.Close - lowest[i]) / rng
	}

	k := raw
	if smooth > 1 {
		k = SMA(raw, smooth)
	}
	return StochasticSeries{K: k, D: SMA(k, dPeriod)}
}

type VolumeSeries struct {
	Value Series
	SMA   Series
	Ratio Series
}

func Volume(bars []dto.Bar, period int) VolumeSeries {
	raw, _ := PriceField(bars, "volume")
	avg := SMA(raw, period)
	ratio := undefinedSeries(len(bars))
	for i := range raw {
		if !math.IsNaN(avg[i]) && avg[i] > 0 {
			ratio[i] = raw[i] / avg[i]
		}
	}
	return VolumeSeries{Value: raw, SMA: avg, Ratio: ratio}
}

// TrueRange is undefined on the first bar, which has no previous close.
func TrueRange(bars []dto.Bar) Series {
	out := undefinedSeries(len(bars))
	for i := 1; i < len(bars); i++ {
		prevClose := bars[i-1].Close
		out[i] = math.Max(bars[i].High-bars[i].Low,
			math.Max(math.Abs(bars[i].High-prevClose), math.Abs(bars[i].Low-prevClose)))
	}
	return out
}

// ATR is Wilder-smoothed true range, first defined at index period.
func ATR(bars []dto.Bar, period int) Series {
	return wilder(TrueRange(bars), period, 1)
}
