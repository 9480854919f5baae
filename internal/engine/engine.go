package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"golang-backtest/internal/dto"
	"golang-backtest/internal/indicator"
	"golang-backtest/pkg/cache"
	"golang-backtest/pkg/logger"
)

// UniverseResolver turns a target selection into an ordered symbol list.
type UniverseResolver interface {
	Resolve(ctx context.Context, target dto.TargetSelection) ([]string, error)
}

// StaticResolver resolves list and asset targets from the symbols they
// carry. Decks need a resolver backed by storage.
type StaticResolver struct{}

func (StaticResolver) Resolve(_ context.Context, target dto.TargetSelection) ([]string, error) {
	if target.Type == dto.TargetTypeDeck {
		return nil, fmt.Errorf("deck %q cannot be resolved without a deck store", target.DeckID)
	}
	return DedupeSymbols(target.Symbols), nil
}

// DedupeSymbols normalises symbols and drops repeats, keeping first
// occurrence order.
func DedupeSymbols(symbols []string) []string {
	out := make([]string, 0, len(symbols))
	seen := make(map[string]bool, len(symbols))
	for _, s := range symbols {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

// Engine evaluates strategies over in-memory series. It performs no I/O and
// holds no per-run state, so one Engine serves concurrent runs.
type Engine struct {
	opts      Options
	lib       *indicator.Library
	cache     cache.Cache
	group     singleflight.Group
	log       *logger.Logger
	validator *Validator
	signals   *SignalGenerator
	risk      *RiskManager
	resolver  UniverseResolver

	// observeStop sees the stop level after every bar a position is held.
	observeStop func(symbol string, bar int, stop float64)
}

// New builds an engine. A nil cache disables indicator caching, a nil
// resolver falls back to StaticResolver.
func New(opts Options, lib *indicator.Library, c cache.Cache, log *logger.Logger, resolver UniverseResolver) *Engine {
	opts = opts.withDefaults()
	if lib == nil {
		lib = indicator.NewLibrary()
	}
	if log == nil {
		log = logger.Nop()
	}
	if resolver == nil {
		resolver = StaticResolver{}
	}
	return &Engine{
		opts:      opts,
		lib:       lib,
		cache:     c,
		log:       log,
		validator: NewValidator(lib),
		signals:   NewSignalGenerator(opts),
		risk:      NewRiskManager(opts),
		resolver:  resolver,
	}
}

func (e *Engine) Options() Options {
	return e.opts
}

func (e *Engine) Library() *indicator.Library {
	return e.lib
}

// Validate checks a strategy against this engine's indicator library.
func (e *Engine) Validate(strategy *dto.Strategy) ([]string, error) {
	return e.validator.Validate(strategy)
}

// Signals evaluates the strategy on every bar and returns the non-hold
// signals in bar order.
func (e *Engine) Signals(ctx context.Context, strategy *dto.Strategy, symbol string, bars []dto.Bar, tf dto.Timeframe) ([]dto.Signal, error) {
	sc, err := e.prepareLive(strategy, symbol, bars, tf)
	if err != nil {
		return nil, err
	}

	var out []dto.Signal
	for i := range sc.bars {
		if i%256 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		sig := e.signals.Generate(strategy, symbol, sc.bars[i].Timestamp, sc.snapshot(i))
		if sig.Type != dto.SignalHold {
			out = append(out, sig)
		}
	}
	return out, nil
}

// Evaluate returns the signal for the last bar of the series.
func (e *Engine) Evaluate(strategy *dto.Strategy, symbol string, bars []dto.Bar, tf dto.Timeframe) (dto.Signal, error) {
	sc, err := e.prepareLive(strategy, symbol, bars, tf)
	if err != nil {
		return dto.Signal{}, err
	}
	last := len(sc.bars) - 1
	return e.signals.Generate(strategy, symbol, sc.bars[last].Timestamp, sc.snapshot(last)), nil
}

func (e *Engine) prepareLive(strategy *dto.Strategy, symbol string, bars []dto.Bar, tf dto.Timeframe) (*seriesContext, error) {
	if _, err := e.validator.Validate(strategy); err != nil {
		return nil, err
	}
	tf = tf.Or(e.opts.DefaultTimeframe)
	if err := validateTimeframes(strategy, tf); err != nil {
		return nil, err
	}
	if err := checkOrdered(symbol, bars); err != nil {
		return nil, err
	}
	return e.prepare(strategy, symbol, bars, tf)
}

// checkOrdered rejects series that are empty or not strictly ascending.
func checkOrdered(symbol string, bars []dto.Bar) error {
	if len(bars) == 0 {
		return &InsufficientDataError{Symbol: symbol, Required: 1, Reason: "no bars supplied"}
	}
	for i := 1; i < len(bars); i++ {
		if !bars[i].Timestamp.After(bars[i-1].Timestamp) {
			verr := &ValidationError{}
			verr.add("series."+symbol, "bars must be strictly ascending, bar %d is at %s after %s",
				i, bars[i].Timestamp.Format(time.RFC3339), bars[i-1].Timestamp.Format(time.RFC3339))
			return verr
		}
	}
	return nil
}

// window returns the index range of bars inside [start, end].
func window(bars []dto.Bar, start, end time.Time) (from, to int) {
	from = sort.Search(len(bars), func(i int) bool { return !bars[i].Timestamp.Before(start) })
	to = sort.Search(len(bars), func(i int) bool { return bars[i].Timestamp.After(end) })
	return from, to
}

// compute returns a cached indicator result for the bars, computing it at
// most once across concurrent callers.
func (e *Engine) compute(bars []dto.Bar, fp uint64, tf dto.Timeframe, name string, params dto.IndicatorParams) (indicator.Result, error) {
	key := fmt.Sprintf("ind:%016x:%s:%s:%s", fp, tf, name, params.Canonical())
	if res, ok := cache.GetFromCache[indicator.Result](e.cache, key); ok {
		return res, nil
	}

	v, err, _ := e.group.Do(key, func() (interface{}, error) {
		res, err := e.lib.Compute(name, params, bars)
		if err != nil {
			return nil, err
		}
		if e.cache != nil {
			e.cache.Set(key, res, e.opts.CacheTTL)
		}
		return res, nil
	})
	if err != nil {
		return indicator.Result{}, err
	}
	return v.(indicator.Result), nil
}

// resample returns the bars on tf together with their fingerprint.
func (e *Engine) resample(bars []dto.Bar, fp uint64, tf dto.Timeframe) ([]dto.Bar, uint64) {
	key := fmt.Sprintf("bars:%016x:%s", fp, tf)
	if out, ok := cache.GetFromCache[[]dto.Bar](e.cache, key); ok {
		return out, indicator.Fingerprint(out)
	}
	out := indicator.Resample(bars, tf)
	if e.cache != nil {
		e.cache.Set(key, out, e.opts.CacheTTL)
	}
	return out, indicator.Fingerprint(out)
}
