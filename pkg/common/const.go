package common

// Cache key formats. Arguments are listed next to each key.
const (
	// symbol, timeframe, from unix, to unix
	KEY_MARKET_BARS = "market_bars:%s:%s:%d:%d"
)
