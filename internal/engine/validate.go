package engine

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	goValidator "github.com/go-playground/validator/v10"

	"golang-backtest/internal/dto"
	"golang-backtest/internal/indicator"
)

var structValidator = newStructValidator()

// windowParams are the integer window lengths each built-in indicator reads.
// Indicators not listed are only checked for "period".
var windowParams = map[dto.IndicatorType][]string{
	dto.IndicatorSMA:        {"period"},
	dto.IndicatorEMA:        {"period"},
	dto.IndicatorRSI:        {"period"},
	dto.IndicatorVolume:     {"period"},
	dto.IndicatorBollinger:  {"period"},
	dto.IndicatorMACD:       {"fast_period", "fast", "slow_period", "slow", "signal_period"},
	dto.IndicatorStochastic: {"k_period", "period", "d_period", "smooth"},
}

func newStructValidator() *goValidator.Validate {
	v := goValidator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validator checks strategies and configs without modifying them. Running it
// twice on the same input gives the same answer.
type Validator struct {
	lib *indicator.Library
}

func NewValidator(lib *indicator.Library) *Validator {
	if lib == nil {
		lib = indicator.NewLibrary()
	}
	return &Validator{lib: lib}
}

// Validate checks a strategy with the built-in indicator set.
func Validate(strategy *dto.Strategy) ([]string, error) {
	return NewValidator(nil).Validate(strategy)
}

// Validate returns advisory warnings and a *ValidationError when the
// strategy cannot be evaluated.
func (v *Validator) Validate(strategy *dto.Strategy) ([]string, error) {
	verr := &ValidationError{}
	if strategy == nil {
		verr.add("strategy", "is required")
		return nil, verr
	}

	collectStructErrors(verr, structValidator.Struct(strategy))
	v.validateConditions(verr, "buy_conditions", strategy.BuyConditions)
	v.validateConditions(verr, "sell_conditions", strategy.SellConditions)
	validateRisk(verr, strategy.RiskManagement)
	validateTarget(verr, strategy.TargetSelection)

	var warnings []string
	rm := strategy.RiskManagement
	if rm.PositionSize*float64(rm.MaxPositions) > 1 {
		warnings = append(warnings, fmt.Sprintf(
			"position_size %.4g x max_positions %d exceeds 100%% of equity; later entries will be limited by cash",
			rm.PositionSize, rm.MaxPositions))
	}
	return warnings, verr.orNil()
}

func (v *Validator) validateConditions(verr *ValidationError, field string, conds []dto.StrategyCondition) {
	if len(conds) == 0 {
		// reported by the struct tags
		return
	}

	var total float64
	seen := make(map[string]bool, len(conds))
	for i, c := range conds {
		prefix := fmt.Sprintf("%s[%d]", field, i)
		total += c.EffectiveWeight()

		if c.ID != "" {
			if seen[c.ID] {
				verr.add(prefix+".id", "duplicate condition id %q", c.ID)
			}
			seen[c.ID] = true
		}
		if c.Value.IsZero() {
			verr.add(prefix+".value", "is required")
		} else {
			v.validateValue(verr, prefix+".value", c.Value)
		}
		if c.Operator.IsRange() {
			if c.SecondValue == nil || c.SecondValue.IsZero() {
				verr.add(prefix+".second_value", "is required for operator %s", c.Operator)
			} else {
				v.validateValue(verr, prefix+".second_value", *c.SecondValue)
			}
		}
		if c.Timeframe != "" && !c.Timeframe.Valid() {
			verr.add(prefix+".timeframe", "unknown timeframe %q", c.Timeframe)
		}
		validateParams(verr, prefix+".parameters", c)
		if c.Indicator == dto.IndicatorCustom {
			if name := c.Parameters.String("", "name"); name != "" && !v.lib.Known(strings.ToLower(name)) {
				verr.add(prefix+".parameters.name", "unknown custom indicator %q", name)
			}
		}
	}
	if total <= 0 {
		verr.add(field, "at least one condition needs a positive weight")
	}
}

// validateParams rejects window lengths that would leave an indicator
// undefined forever, or index outside the series.
func validateParams(verr *ValidationError, field string, c dto.StrategyCondition) {
	keys, ok := windowParams[c.Indicator]
	if !ok {
		keys = []string{"period"}
	}
	for _, key := range keys {
		if _, set := c.Parameters[key]; !set {
			continue
		}
		if c.Parameters.Int(0, key) <= 0 {
			verr.add(field+"."+key, "must be a positive integer")
		}
	}
	if c.Indicator == dto.IndicatorBollinger {
		for _, key := range []string{"std_dev", "k"} {
			if _, set := c.Parameters[key]; set && c.Parameters.Float(-1, key) < 0 {
				verr.add(field+"."+key, "must not be negative")
			}
		}
	}
}

func (v *Validator) validateValue(verr *ValidationError, field string, val dto.ConditionValue) {
	if !val.IsRef() {
		return
	}
	if _, err := v.lib.ParseReference(val.Ref); err != nil {
		verr.add(field, "%v", err)
	}
}

func validateRisk(verr *ValidationError, rm dto.RiskManagement) {
	if rm.DynamicSizing && (rm.StopLoss <= 0 || rm.RiskPerTrade <= 0) {
		verr.add("risk_management.dynamic_sizing", "requires stop_loss and risk_per_trade greater than 0")
	}
	if rm.TrailingStop && rm.TrailingStopDistance <= 0 {
		verr.add("risk_management.trailing_stop_distance", "must be greater than 0 when trailing_stop is set")
	}
}

func validateTarget(verr *ValidationError, t dto.TargetSelection) {
	switch t.Type {
	case dto.TargetTypeDeck:
		if t.DeckID == "" {
			verr.add("target_selection.deck_id", "is required for type deck")
		}
		if len(t.Symbols) > 0 {
			verr.add("target_selection.symbols", "must be empty for type deck")
		}
	case dto.TargetTypeList, dto.TargetTypeAsset:
		if t.DeckID != "" {
			verr.add("target_selection.deck_id", "must be empty for type %s", t.Type)
		}
		if len(t.Symbols) == 0 {
			verr.add("target_selection.symbols", "is required for type %s", t.Type)
		}
		if t.Type == dto.TargetTypeAsset && len(t.Symbols) > 1 {
			verr.add("target_selection.symbols", "type asset takes exactly one symbol")
		}
		for i, s := range t.Symbols {
			if strings.TrimSpace(s) == "" {
				verr.add(fmt.Sprintf("target_selection.symbols[%d]", i), "is empty")
			}
		}
	}

	if f := t.Filters; f != nil {
		if f.MinMarketCap != nil && f.MaxMarketCap != nil && *f.MinMarketCap > *f.MaxMarketCap {
			verr.add("target_selection.filters.market_cap", "min is greater than max")
		}
		if f.MinPrice != nil && f.MaxPrice != nil && *f.MinPrice > *f.MaxPrice {
			verr.add("target_selection.filters.price", "min is greater than max")
		}
	}
}

// ValidateBacktestConfig checks a run configuration.
func ValidateBacktestConfig(cfg dto.BacktestConfig) error {
	verr := &ValidationError{}
	collectStructErrors(verr, structValidator.Struct(cfg))
	if !cfg.StartDate.IsZero() && !cfg.EndDate.IsZero() && !cfg.StartDate.Before(cfg.EndDate) {
		verr.add("start_date", "must be before end_date")
	}
	if cfg.Timeframe != "" && !cfg.Timeframe.Valid() {
		verr.add("timeframe", "unknown timeframe %q", cfg.Timeframe)
	}
	return verr.orNil()
}

// validateTimeframes rejects conditions finer than the series they run on.
func validateTimeframes(strategy *dto.Strategy, base dto.Timeframe) error {
	verr := &ValidationError{}
	check := func(field string, conds []dto.StrategyCondition) {
		for i, c := range conds {
			if c.Timeframe != "" && c.Timeframe.Compare(base) < 0 {
				verr.add(fmt.Sprintf("%s[%d].timeframe", field, i), "%s is finer than series timeframe %s", c.Timeframe, base)
			}
		}
	}
	check("buy_conditions", strategy.BuyConditions)
	check("sell_conditions", strategy.SellConditions)
	return verr.orNil()
}

func collectStructErrors(verr *ValidationError, err error) {
	if err == nil {
		return
	}
	var fieldErrs goValidator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		verr.add("", "%v", err)
		return
	}
	for _, fe := range fieldErrs {
		field := fe.Namespace()
		if idx := strings.Index(field, "."); idx >= 0 {
			field = field[idx+1:]
		}
		msg := "failed on " + fe.Tag()
		if fe.Param() != "" {
			msg += "=" + fe.Param()
		}
		verr.add(field, "%s", msg)
	}
}
