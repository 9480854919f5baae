package dto

import "time"

// Asset is the market metadata used to filter a target universe.
type Asset struct {
	Symbol    string  `json:"symbol"`
	Name      string  `json:"name"`
	Exchange  string  `json:"exchange"`
	Sector    string  `json:"sector"`
	MarketCap float64 `json:"market_cap"`
	LastPrice float64 `json:"last_price"`
}

type Deck struct {
	ID      string   `json:"id"`
	OwnerID string   `json:"owner_id"`
	Name    string   `json:"name"`
	Symbols []string `json:"symbols"`
}

type GetAssetsParam struct {
	Symbols []string `json:"symbols"`
}

// GetBarsParam requests bars for one symbol between From and To inclusive.
type GetBarsParam struct {
	Symbol    string    `json:"symbol"`
	Timeframe Timeframe `json:"timeframe"`
	From      time.Time `json:"from"`
	To        time.Time `json:"to"`
}

// Yahoo chart API response.
type YahooChartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Symbol             string  `json:"symbol"`
				RegularMarketPrice float64 `json:"regularMarketPrice"`
			} `json:"meta"`
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []float64 `json:"open"`
					High   []float64 `json:"high"`
					Low    []float64 `json:"low"`
					Close  []float64 `json:"close"`
					Volume []float64 `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error interface{} `json:"error"`
	} `json:"chart"`
}
