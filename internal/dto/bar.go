package dto

import (
	"fmt"
	"time"
)

// Bar is one OHLCV candle. Timestamp marks the start of the bar.
type Bar struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// SeriesMap maps a symbol to its ordered, gap-free bars.
type SeriesMap map[string][]Bar

type Timeframe string

const (
	Timeframe1Min   Timeframe = "1m"
	Timeframe5Min   Timeframe = "5m"
	Timeframe15Min  Timeframe = "15m"
	Timeframe30Min  Timeframe = "30m"
	Timeframe1Hour  Timeframe = "1h"
	Timeframe4Hour  Timeframe = "4h"
	Timeframe1Day   Timeframe = "1d"
	Timeframe1Week  Timeframe = "1w"
	Timeframe1Month Timeframe = "1M"
)

var timeframeOrder = map[Timeframe]int{
	Timeframe1Min:   1,
	Timeframe5Min:   2,
	Timeframe15Min:  3,
	Timeframe30Min:  4,
	Timeframe1Hour:  5,
	Timeframe4Hour:  6,
	Timeframe1Day:   7,
	Timeframe1Week:  8,
	Timeframe1Month: 9,
}

// trading minutes in a regular session, used to annualise intraday bars
const sessionMinutes = 390

func ParseTimeframe(s string) (Timeframe, error) {
	tf := Timeframe(s)
	if _, ok := timeframeOrder[tf]; !ok {
		return "", fmt.Errorf("unknown timeframe %q", s)
	}
	return tf, nil
}

func (t Timeframe) Valid() bool {
	_, ok := timeframeOrder[t]
	return ok
}

// Or returns t, or def when t is empty.
func (t Timeframe) Or(def Timeframe) Timeframe {
	if t == "" {
		return def
	}
	return t
}

// Compare orders timeframes from finest to coarsest.
func (t Timeframe) Compare(other Timeframe) int {
	return timeframeOrder[t] - timeframeOrder[other]
}

// Duration is the nominal bar length. Months report 30 days.
func (t Timeframe) Duration() time.Duration {
	switch t {
	case Timeframe1Min:
		return time.Minute
	case Timeframe5Min:
		return 5 * time.Minute
	case Timeframe15Min:
		return 15 * time.Minute
	case Timeframe30Min:
		return 30 * time.Minute
	case Timeframe1Hour:
		return time.Hour
	case Timeframe4Hour:
		return 4 * time.Hour
	case Timeframe1Day:
		return 24 * time.Hour
	case Timeframe1Week:
		return 7 * 24 * time.Hour
	case Timeframe1Month:
		return 30 * 24 * time.Hour
	default:
		return 0
	}
}

// BucketStart returns the start of the bucket that contains ts.
// Weeks start on Monday, months on the first day, all in UTC.
func (t Timeframe) BucketStart(ts time.Time) time.Time {
	ts = ts.UTC()
	switch t {
	case Timeframe1Month:
		return time.Date(ts.Year(), ts.Month(), 1, 0, 0, 0, 0, time.UTC)
	case Timeframe1Week:
		day := time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC)
		offset := (int(day.Weekday()) + 6) % 7
		return day.AddDate(0, 0, -offset)
	default:
		return ts.Truncate(t.Duration())
	}
}

// BucketEnd returns the exclusive end of the bucket that contains ts.
func (t Timeframe) BucketEnd(ts time.Time) time.Time {
	start := t.BucketStart(ts)
	switch t {
	case Timeframe1Month:
		return start.AddDate(0, 1, 0)
	case Timeframe1Week:
		return start.AddDate(0, 0, 7)
	default:
		return start.Add(t.Duration())
	}
}

// PeriodsPerYear is the annualisation factor for returns sampled at t.
func (t Timeframe) PeriodsPerYear() float64 {
	switch t {
	case Timeframe1Day:
		return 252
	case Timeframe1Week:
		return 52
	case Timeframe1Month:
		return 12
	case "":
		return 252
	default:
		minutes := t.Duration().Minutes()
		if minutes <= 0 {
			return 252
		}
		return 252 * sessionMinutes / minutes
	}
}
