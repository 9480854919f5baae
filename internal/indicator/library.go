package indicator

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"golang-backtest/internal/dto"
)

var (
	ErrUnknownIndicator = errors.New("unknown indicator")
	ErrUnknownOutput    = errors.New("unknown indicator output")
)

// Output names shared across indicators.
const (
	OutputValue     = "value"
	OutputSignal    = "signal"
	OutputHistogram = "histogram"
	OutputMiddle    = "middle"
	OutputUpper     = "upper"
	OutputLower     = "lower"
	OutputPercentB  = "percent_b"
	OutputBandwidth = "bandwidth"
	OutputK         = "k"
	OutputD         = "d"
	OutputSMA       = "sma"
	OutputRatio     = "ratio"
)

var outputAliases = map[string]string{
	"hist":  OutputHistogram,
	"mid":   OutputMiddle,
	"basis": OutputMiddle,
	"line":  OutputValue,
	"macd":  OutputValue,
	"pb":    OutputPercentB,
	"bw":    OutputBandwidth,
	"avg":   OutputSMA,
}

// Result holds every output of one indicator computation.
type Result struct {
	Name    string
	Outputs map[string]Series
}

// Output selects a sub-series. An empty name selects the primary output.
func (r Result) Output(name string) (Series, error) {
	name = strings.ToLower(name)
	if name == "" {
		name = OutputValue
	}
	if alias, ok := outputAliases[name]; ok {
		name = alias
	}
	s, ok := r.Outputs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s has no %q", ErrUnknownOutput, r.Name, name)
	}
	return s, nil
}

// Func computes a custom indicator. It must be pure and causal.
type Func func(bars []dto.Bar, params dto.IndicatorParams) (Series, error)

type customIndicator struct {
	fn     Func
	warmup int
}

// Library computes built-in indicators and any registered custom ones.
type Library struct {
	mu     sync.RWMutex
	custom map[string]customIndicator
}

func NewLibrary() *Library {
	return &Library{custom: make(map[string]customIndicator)}
}

// Register adds a custom indicator reachable from "custom" conditions via
// params.name and from references by its name.
func (l *Library) Register(name string, warmup int, fn Func) error {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" || fn == nil {
		return errors.New("custom indicator needs a name and a function")
	}
	if isBuiltin(name) {
		return fmt.Errorf("custom indicator %q shadows a built-in", name)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.custom[name] = customIndicator{fn: fn, warmup: warmup}
	return nil
}

func (l *Library) lookup(name string) (customIndicator, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	c, ok := l.custom[name]
	return c, ok
}

// Known reports whether name resolves to an indicator family.
func (l *Library) Known(name string) bool {
	if isBuiltin(name) {
		return true
	}
	_, ok := l.lookup(name)
	return ok
}

func isBuiltin(name string) bool {
	switch name {
	case "sma", "ema", "rsi", "macd", "bollinger", "stochastic", "volume", "atr", "price":
		return true
	}
	return false
}

// Compute evaluates one indicator over the whole series. Every position only
// depends on bars at or before it, so the result can be read bar by bar.
func (l *Library) Compute(name string, params dto.IndicatorParams, bars []dto.Bar) (Result, error) {
	name = strings.ToLower(name)
	field := params.String("close", "field", "source")
	src, ok := PriceField(bars, field)
	if !ok {
		return Result{}, fmt.Errorf("unknown price field %q", field)
	}

	res := Result{Name: name, Outputs: make(map[string]Series)}
	switch name {
	case "sma":
		res.Outputs[OutputValue] = SMA(src, params.Int(20, "period"))
	case "ema":
		res.Outputs[OutputValue] = EMA(src, params.Int(20, "period"))
	case "rsi":
		res.Outputs[OutputValue] = RSI(src, params.Int(14, "period"))
	case "macd":
		m := MACD(src, params.Int(12, "fast_period", "fast"), params.Int(26, "slow_period", "slow"), params.Int(9, "signal_period"))
		res.Outputs[OutputValue] = m.MACD
		res.Outputs[OutputSignal] = m.Signal
		res.Outputs[OutputHistogram] = m.Histogram
	case "bollinger":
		b := Bollinger(src, params.Int(20, "period"), params.Float(2, "std_dev", "k"))
		res.Outputs[OutputValue] = b.Middle
		res.Outputs[OutputMiddle] = b.Middle
		res.Outputs[OutputUpper] = b.Upper
		res.Outputs[OutputLower] = b.Lower
		res.Outputs[OutputPercentB] = b.PercentB
		res.Outputs[OutputBandwidth] = b.Bandwidth
	case "stochastic":
		s := Stochastic(bars, params.Int(14, "k_period", "period"), params.Int(3, "d_period"), params.Int(1, "smooth"))
		res.Outputs[OutputValue] = s.K
		res.Outputs[OutputK] = s.K
		res.Outputs[OutputD] = s.D
	case "volume":
		v := Volume(bars, params.Int(20, "period"))
		res.Outputs[OutputValue] = v.Value
		res.Outputs[OutputSMA] = v.SMA
		res.Outputs[OutputRatio] = v.Ratio
	case "atr":
		res.Outputs[OutputValue] = ATR(bars, params.Int(14, "period"))
	case "price":
		res.Outputs[OutputValue] = src
	case "custom":
		return l.computeCustom(params, bars, src)
	default:
		c, ok := l.lookup(name)
		if !ok {
			return Result{}, fmt.Errorf("%w: %s", ErrUnknownIndicator, name)
		}
		s, err := c.fn(bars, params)
		if err != nil {
			return Result{}, fmt.Errorf("custom indicator %s: %w", name, err)
		}
		res.Outputs[OutputValue] = s
	}
	return res, nil
}

// computeCustom runs the registered function named by params.name, or falls
// back to the raw price field.
func (l *Library) computeCustom(params dto.IndicatorParams, bars []dto.Bar, src Series) (Result, error) {
	name := strings.ToLower(params.String("", "name"))
	if name == "" {
		return Result{Name: "custom", Outputs: map[string]Series{OutputValue: src}}, nil
	}
	if name == "custom" {
		return Result{}, fmt.Errorf("%w: custom cannot name itself", ErrUnknownIndicator)
	}
	res, err := l.Compute(name, params, bars)
	if err != nil {
		return Result{}, err
	}
	res.Name = "custom:" + name
	return res, nil
}

// Warmup is the number of bars needed before every output of the indicator
// is defined.
func (l *Library) Warmup(name string, params dto.IndicatorParams) int {
	switch strings.ToLower(name) {
	case "sma", "ema", "bollinger", "volume":
		return params.Int(20, "period")
	case "rsi", "atr":
		return params.Int(14, "period") + 1
	case "macd":
		slow := params.Int(26, "slow_period", "slow")
		if fast := params.Int(12, "fast_period", "fast"); fast > slow {
			slow = fast
		}
		return slow + params.Int(9, "signal_period") - 1
	case "stochastic":
		return params.Int(14, "k_period", "period") + params.Int(1, "smooth") + params.Int(3, "d_period") - 2
	case "price":
		return 1
	case "custom":
		if n := strings.ToLower(params.String("", "name")); n != "" && n != "custom" {
			return l.Warmup(n, params)
		}
		return 1
	default:
		if c, ok := l.lookup(strings.ToLower(name)); ok && c.warmup > 0 {
			return c.warmup
		}
		return 1
	}
}
