package indicator

import (
	"math"

	"golang-backtest/internal/dto"
)

// Series is aligned with the input bars. NaN marks an undefined position.
type Series []float64

func undefinedSeries(n int) Series {
	s := make(Series, n)
	for i := range s {
		s[i] = math.NaN()
	}
	return s
}

// At returns the value at i, NaN when out of range.
func (s Series) At(i int) float64 {
	if i < 0 || i >= len(s) {
		return math.NaN()
	}
	return s[i]
}

func (s Series) Defined(i int) bool {
	return !math.IsNaN(s.At(i))
}

// FirstDefined returns the first defined index or -1.
func (s Series) FirstDefined() int {
	for i, v := range s {
		if !math.IsNaN(v) {
			return i
		}
	}
	return -1
}

// Last returns the final value of the series.
func (s Series) Last() float64 {
	return s.At(len(s) - 1)
}

// PriceField extracts a raw field from the bars.
func PriceField(bars []dto.Bar, field string) (Series, bool) {
	out := make(Series, len(bars))
	for i, b := range bars {
		switch field {
		case "open":
			out[i] = b.Open
		case "high":
			out[i] = b.High
		case "low":
			out[i] = b.Low
		case "close", "price":
			out[i] = b.Close
		case "volume":
			out[i] = b.Volume
		case "hl2":
			out[i] = (b.High + b.Low) / 2
		case "hlc3":
			out[i] = (b.High + b.Low + b.Close) / 3
		default:
			return nil, false
		}
	}
	return out, true
}

func closes(bars []dto.Bar) Series {
	s, _ := PriceField(bars, "close")
	return s
}

// SMA is the simple moving average. A window containing NaN is undefined.
func SMA(values Series, period int) Series {
	out := undefinedSeries(len(values))
	if period <= 0 {
		return out
	}

	var sum float64
	valid := 0
	for i, v := range values {
		if math.IsNaN(v) {
			sum, valid = 0, 0
			continue
		}
		sum += v
		valid++
		if valid > period {
			sum -= values[i-period]
			valid = period
		}
		if valid == period {
			out[i] = sum / float64(period)
		}
	}
	return out
}

// EMA uses alpha = 2/(period+1), seeded with the SMA of the first full
// window of defined values.
func EMA(values Series, period int) Series {
	out := undefinedSeries(len(values))
	if period <= 0 {
		return out
	}

	alpha := 2 / float64(period+1)
	seed := SMA(values, period)
	start := seed.FirstDefined()
	if start < 0 {
		return out
	}

	prev := seed[start]
	out[start] = prev
	for i := start + 1; i < len(values); i++ {
		if math.IsNaN(values[i]) {
			break
		}
		prev = alpha*values[i] + (1-alpha)*prev
		out[i] = prev
	}
	return out
}

// wilder applies Wilder's smoothing, seeded with the mean of the first
// period values starting at from.
func wilder(values Series, period, from int) Series {
	out := undefinedSeries(len(values))
	if period <= 0 || from < 0 || from+period > len(values) {
		return out
	}

	var sum float64
	for i := from; i < from+period; i++ {
		sum += values[i]
	}
	avg := sum / float64(period)
	out[from+period-1] = avg
	for i := from + period; i < len(values); i++ {
		avg = (avg*float64(period-1) + values[i]) / float64(period)
		out[i] = avg
	}
	return out
}

// rollingStdDev is the population standard deviation over the window.
func rollingStdDev(values Series, mean Series, period int) Series {
	out := undefinedSeries(len(values))
	for i := range values {
		if math.IsNaN(mean[i]) {
			continue
		}
		var sq float64
		for j := i - period + 1; j <= i; j++ {
			d := values[j] - mean[i]
			sq += d * d
		}
		out[i] = math.Sqrt(sq / float64(period))
	}
	return out
}

func rollingExtremes(bars []dto.Bar, period int) (highest, lowest Series) {
	highest = undefinedSeries(len(bars))
	lowest = undefinedSeries(len(bars))
	if period <= 0 {
		return highest, lowest
	}
	for i := period - 1; i < len(bars); i++ {
		hi, lo := bars[i].High, bars[i].Low
		for j := i - period + 1; j < i; j++ {
			hi = math.Max(hi, bars[j].High)
			lo = math.Min(lo, bars[j].Low)
		}
		highest[i], lowest[i] = hi, lo
	}
	return highest, lowest
}
