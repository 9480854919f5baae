package indicator

import (
	"fmt"
	"math"
	"time"

	"golang-backtest/internal/dto"
)

// Resample aggregates bars into buckets of tf. The last bucket may be
// incomplete; use Align to decide which buckets a base bar may see.
func Resample(bars []dto.Bar, tf dto.Timeframe) []dto.Bar {
	if len(bars) == 0 {
		return nil
	}
	out := make([]dto.Bar, 0, len(bars)/2+1)
	var cur dto.Bar
	var curStart time.Time
	for i, b := range bars {
		start := tf.BucketStart(b.Timestamp)
		if i == 0 || !start.Equal(curStart) {
			if i > 0 {
				out = append(out, cur)
			}
			curStart = start
			cur = dto.Bar{
				Timestamp: start,
				Open:      b.Open,
				High:      b.High,
				Low:       b.Low,
				Close:     b.Close,
				Volume:    b.Volume,
			}
			continue
		}
		cur.High = math.Max(cur.High, b.High)
		cur.Low = math.Min(cur.Low, b.Low)
		cur.Close = b.Close
		cur.Volume += b.Volume
	}
	return append(out, cur)
}

// Align maps every base bar to the index of the last coarse bucket that is
// complete once that base bar has closed, or -1 if none is. A bucket is
// complete when its end is not after the end of the base bar, so a base bar
// never sees a bucket that still contains later data.
func Align(base []dto.Bar, baseTF dto.Timeframe, buckets []dto.Bar, tf dto.Timeframe) ([]int, error) {
	if tf.Compare(baseTF) < 0 {
		return nil, fmt.Errorf("timeframe %s is finer than series timeframe %s", tf, baseTF)
	}

	visible := make([]int, len(base))
	next := 0
	last := -1
	for i, b := range base {
		barEnd := baseTF.BucketEnd(b.Timestamp)
		for next < len(buckets) && !tf.BucketEnd(buckets[next].Timestamp).After(barEnd) {
			last = next
			next++
		}
		visible[i] = last
	}
	return visible, nil
}
