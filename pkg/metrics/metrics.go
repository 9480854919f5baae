package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	BacktestRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backtest_runs_total",
			Help: "Total number of backtest runs by outcome.",
		},
		[]string{"status"},
	)

	BacktestDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "backtest_duration_seconds",
			Help:    "Wall time of a backtest run including data loading.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
		},
	)

	BacktestTrades = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "backtest_trades_total",
			Help: "Total number of simulated trades across all runs.",
		},
	)

	SignalsGenerated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signals_generated_total",
			Help: "Signals returned by live evaluation, by signal type.",
		},
		[]string{"type"},
	)
)

const (
	StatusSuccess          = "success"
	StatusInvalid          = "invalid"
	StatusInsufficientData = "insufficient_data"
	StatusError            = "error"
)

func init() {
	prometheus.MustRegister(BacktestRuns, BacktestDuration, BacktestTrades, SignalsGenerated)
}

// ObserveBacktest records one finished run.
func ObserveBacktest(status string, elapsed time.Duration, trades int) {
	BacktestRuns.WithLabelValues(status).Inc()
	BacktestDuration.Observe(elapsed.Seconds())
	if trades > 0 {
		BacktestTrades.Add(float64(trades))
	}
}
