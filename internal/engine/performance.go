package engine

import (
	"math"
	"time"

	"golang-backtest/internal/dto"
	"golang-backtest/pkg/utils"
)

// PerformanceAnalyzer derives run statistics from trades and an equity
// curve sampled once per bar.
type PerformanceAnalyzer struct {
	periodsPerYear float64
}

func NewPerformanceAnalyzer(tf dto.Timeframe) *PerformanceAnalyzer {
	return &PerformanceAnalyzer{periodsPerYear: tf.PeriodsPerYear()}
}

// Analyze computes the metrics. Ratios without a defined denominator are
// reported as 0, and benchmark metrics are nil without a usable benchmark.
func (a *PerformanceAnalyzer) Analyze(initialCapital float64, trades []dto.Trade, curve []dto.EquityPoint, benchmark []dto.Bar) dto.PerformanceMetrics {
	var m dto.PerformanceMetrics
	a.tradeStats(&m, trades)
	if len(curve) == 0 || initialCapital <= 0 {
		return m
	}

	final := curve[len(curve)-1].Equity
	m.TotalReturn = final/initialCapital - 1
	n := float64(len(curve))
	if m.TotalReturn <= -1 {
		m.AnnualizedReturn = -1
	} else {
		m.AnnualizedReturn = math.Pow(1+m.TotalReturn, a.periodsPerYear/n) - 1
	}

	returns := periodReturns(initialCapital, curve)
	mean, std := meanStd(returns)
	m.Volatility = std * math.Sqrt(a.periodsPerYear)
	if std > 0 {
		m.SharpeRatio = mean / std * math.Sqrt(a.periodsPerYear)
	}
	if dd := downsideDeviation(returns); dd > 0 {
		m.SortinoRatio = mean / dd * math.Sqrt(a.periodsPerYear)
	}

	m.MaxDrawdown = maxDrawdown(initialCapital, curve)
	if m.MaxDrawdown > 0 {
		m.CalmarRatio = m.AnnualizedReturn / m.MaxDrawdown
	}

	var exposure float64
	for _, p := range curve {
		exposure += p.Exposure
	}
	m.Exposure = exposure / n

	a.benchmarkStats(&m, curve, benchmark)
	sanitize(&m)
	return m
}

func (a *PerformanceAnalyzer) tradeStats(m *dto.PerformanceMetrics, trades []dto.Trade) {
	m.TotalTrades = len(trades)
	if len(trades) == 0 {
		return
	}

	var gains, losses, returns, days float64
	for _, t := range trades {
		returns += t.Return
		days += float64(t.DurationDays)
		switch {
		case t.PnL > 0:
			m.WinningTrades++
			gains += t.PnL
		case t.PnL < 0:
			m.LosingTrades++
			losses -= t.PnL
		}
		if t.Return > m.LargestWin {
			m.LargestWin = t.Return
		}
		if t.Return < m.LargestLoss {
			m.LargestLoss = t.Return
		}
	}

	n := float64(len(trades))
	m.WinRate = float64(m.WinningTrades) / n
	m.AverageTradeReturn = returns / n
	m.AverageHoldingDays = days / n
	switch {
	case losses > 0:
		m.ProfitFactor = gains / losses
	case gains > 0:
		m.ProfitFactor = dto.ProfitFactorInfinite
	}
}

// benchmarkStats regresses per-bar strategy returns on benchmark returns
// over the bars both series share.
func (a *PerformanceAnalyzer) benchmarkStats(m *dto.PerformanceMetrics, curve []dto.EquityPoint, benchmark []dto.Bar) {
	if len(benchmark) == 0 {
		return
	}
	closes := make(map[int64]float64, len(benchmark))
	for _, b := range benchmark {
		closes[b.Timestamp.UnixNano()] = b.Close
	}
	closeAt := func(ts time.Time) (float64, bool) {
		c, ok := closes[ts.UnixNano()]
		return c, ok && c > 0
	}

	var (
		first, last float64
		found       bool
		rs, bs      []float64
	)
	for i, p := range curve {
		c, ok := closeAt(p.Timestamp)
		if !ok {
			continue
		}
		if !found {
			first, found = c, true
		}
		last = c
		if i == 0 {
			continue
		}
		prev, ok := closeAt(curve[i-1].Timestamp)
		if !ok || curve[i-1].Equity <= 0 {
			continue
		}
		rs = append(rs, p.Equity/curve[i-1].Equity-1)
		bs = append(bs, c/prev-1)
	}
	if !found {
		return
	}

	br := last/first - 1
	m.BenchmarkReturn = utils.ToPointer(br)
	m.ExcessReturn = utils.ToPointer(m.TotalReturn - br)

	if len(rs) < 2 {
		return
	}
	meanR, _ := meanStd(rs)
	meanB, stdB := meanStd(bs)
	if stdB == 0 {
		return
	}
	var cov float64
	for i := range rs {
		cov += (rs[i] - meanR) * (bs[i] - meanB)
	}
	cov /= float64(len(rs))
	beta := cov / (stdB * stdB)
	m.Beta = utils.ToPointer(beta)
	m.Alpha = utils.ToPointer((meanR - beta*meanB) * a.periodsPerYear)
}

func periodReturns(initialCapital float64, curve []dto.EquityPoint) []float64 {
	out := make([]float64, 0, len(curve))
	prev := initialCapital
	for _, p := range curve {
		if prev > 0 {
			out = append(out, p.Equity/prev-1)
		} else {
			out = append(out, 0)
		}
		prev = p.Equity
	}
	return out
}

// meanStd returns the mean and population standard deviation.
func meanStd(xs []float64) (float64, float64) {
	if len(xs) == 0 {
		return 0, 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	mean := sum / float64(len(xs))
	var ss float64
	for _, x := range xs {
		ss += (x - mean) * (x - mean)
	}
	return mean, math.Sqrt(ss / float64(len(xs)))
}

func downsideDeviation(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var ss float64
	for _, x := range xs {
		if x < 0 {
			ss += x * x
		}
	}
	return math.Sqrt(ss / float64(len(xs)))
}

// maxDrawdown is the largest peak-to-trough fall as a fraction of the peak.
// The first peak is the initial capital.
func maxDrawdown(initialCapital float64, curve []dto.EquityPoint) float64 {
	peak, worst := initialCapital, 0.0
	for _, p := range curve {
		if p.Equity > peak {
			peak = p.Equity
		}
		if peak > 0 {
			worst = math.Max(worst, (peak-p.Equity)/peak)
		}
	}
	return worst
}

func sanitize(m *dto.PerformanceMetrics) {
	for _, f := range []*float64{
		&m.TotalReturn, &m.AnnualizedReturn, &m.SharpeRatio, &m.SortinoRatio,
		&m.CalmarRatio, &m.Volatility, &m.MaxDrawdown, &m.Exposure,
	} {
		if math.IsNaN(*f) || math.IsInf(*f, 0) {
			*f = 0
		}
	}
	for _, f := range []*float64{m.Beta, m.Alpha, m.BenchmarkReturn, m.ExcessReturn} {
		if f != nil && (math.IsNaN(*f) || math.IsInf(*f, 0)) {
			*f = 0
		}
	}
}
