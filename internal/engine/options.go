package engine

import (
	"time"

	"golang-backtest/internal/dto"
)

type TriggerMode string

const (
	// TriggerAll fires a condition list when every evaluable weighted
	// condition is satisfied.
	TriggerAll TriggerMode = "all"
	// TriggerWeighted fires when the weighted confidence reaches MinConfidence.
	TriggerWeighted TriggerMode = "weighted"
)

type Options struct {
	StrongSignalThreshold float64
	EqualityEpsilon       float64
	TriggerMode           TriggerMode
	MinConfidence         float64
	VolatilityPeriod      int
	VolatilityTarget      float64
	DefaultTimeframe      dto.Timeframe
	MaxConcurrency        int
	CacheTTL              time.Duration
}

func DefaultOptions() Options {
	return Options{
		StrongSignalThreshold: 0.8,
		EqualityEpsilon:       1e-9,
		TriggerMode:           TriggerAll,
		MinConfidence:         0.6,
		VolatilityPeriod:      14,
		VolatilityTarget:      0.02,
		DefaultTimeframe:      dto.Timeframe1Day,
		MaxConcurrency:        4,
		CacheTTL:              10 * time.Minute,
	}
}

// withDefaults fills zero values so a partially populated Options is usable.
func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.StrongSignalThreshold <= 0 {
		o.StrongSignalThreshold = def.StrongSignalThreshold
	}
	if o.EqualityEpsilon <= 0 {
		o.EqualityEpsilon = def.EqualityEpsilon
	}
	if o.TriggerMode == "" {
		o.TriggerMode = def.TriggerMode
	}
	if o.MinConfidence <= 0 {
		o.MinConfidence = def.MinConfidence
	}
	if o.VolatilityPeriod <= 0 {
		o.VolatilityPeriod = def.VolatilityPeriod
	}
	if o.VolatilityTarget <= 0 {
		o.VolatilityTarget = def.VolatilityTarget
	}
	if !o.DefaultTimeframe.Valid() {
		o.DefaultTimeframe = def.DefaultTimeframe
	}
	if o.MaxConcurrency <= 0 {
		o.MaxConcurrency = def.MaxConcurrency
	}
	if o.CacheTTL <= 0 {
		o.CacheTTL = def.CacheTTL
	}
	return o
}
