package indicator

import (
	"fmt"
	"strconv"
	"strings"

	"golang-backtest/internal/dto"
)

var familyAliases = map[string]string{
	"bb":    "bollinger",
	"bband": "bollinger",
	"stoch": "stochastic",
	"vol":   "volume",
}

var priceFields = map[string]bool{
	"open": true, "high": true, "low": true, "close": true, "price": true, "hl2": true, "hlc3": true,
}

// Reference is a parsed named value such as "sma_200" or "macd_signal".
type Reference struct {
	Raw    string
	Family string
	Output string
	Period int
}

// ParseReference splits a reference into its indicator family, an optional
// period override (numeric token) and an optional output (word token).
// Bare price fields resolve to the "price" family.
func (l *Library) ParseReference(raw string) (Reference, error) {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if raw == "" {
		return Reference{}, fmt.Errorf("empty reference")
	}
	ref := Reference{Raw: raw}
	if priceFields[raw] {
		ref.Family = "price"
		ref.Output = raw
		return ref, nil
	}

	tokens := strings.Split(raw, "_")
	family := tokens[0]
	if alias, ok := familyAliases[family]; ok {
		family = alias
	}
	if !l.Known(family) {
		return Reference{}, fmt.Errorf("%w: reference %q", ErrUnknownIndicator, raw)
	}
	ref.Family = family

	var words []string
	for _, tok := range tokens[1:] {
		if tok == "" {
			continue
		}
		if n, err := strconv.Atoi(tok); err == nil {
			if n <= 0 {
				return Reference{}, fmt.Errorf("reference %q: period must be positive", raw)
			}
			ref.Period = n
			continue
		}
		words = append(words, tok)
	}
	ref.Output = strings.Join(words, "_")
	return ref, nil
}

// Params builds the indicator params for the reference. When the reference
// names the same family as the condition it inherits the condition's
// params, so "macd_signal" reads the signal line of the same MACD.
func (r Reference) Params(condIndicator dto.IndicatorType, condParams dto.IndicatorParams) dto.IndicatorParams {
	var p dto.IndicatorParams
	if string(condIndicator) == r.Family {
		p = condParams.Clone()
		delete(p, "output")
	} else {
		p = dto.IndicatorParams{}
	}
	if r.Family == "price" {
		p["field"] = r.Output
	}
	if r.Period > 0 {
		p["period"] = r.Period
		if r.Family == "stochastic" {
			p["k_period"] = r.Period
		}
	}
	return p
}

// OutputName is the sub-series the reference reads.
func (r Reference) OutputName() string {
	if r.Family == "price" {
		return OutputValue
	}
	return r.Output
}
