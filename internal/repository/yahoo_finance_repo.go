package repository

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"golang-backtest/config"
	"golang-backtest/internal/dto"
	"golang-backtest/internal/indicator"
	"golang-backtest/pkg/httpclient"
	"golang-backtest/pkg/logger"
)

// BarRepository supplies historical bars in ascending time order.
type BarRepository interface {
	Get(ctx context.Context, param dto.GetBarsParam) ([]dto.Bar, error)
}

var yahooIntervals = map[dto.Timeframe]string{
	dto.Timeframe1Min:   "1m",
	dto.Timeframe5Min:   "5m",
	dto.Timeframe15Min:  "15m",
	dto.Timeframe30Min:  "30m",
	dto.Timeframe1Hour:  "60m",
	dto.Timeframe1Day:   "1d",
	dto.Timeframe1Week:  "1wk",
	dto.Timeframe1Month: "1mo",
}

// yahooFinanceRepository reads bars from the Yahoo chart API.
type yahooFinanceRepository struct {
	httpClient     httpclient.HTTPClient
	cfg            config.MarketData
	logger         *logger.Logger
	requestLimiter *rate.Limiter
}

func NewYahooFinanceRepository(cfg config.MarketData, log *logger.Logger) (BarRepository, error) {
	if cfg.MaxRequestPerMinute <= 0 {
		return nil, fmt.Errorf("market_data.max_request_per_minute must be greater than 0")
	}
	perRequest := time.Minute / time.Duration(cfg.MaxRequestPerMinute)

	return &yahooFinanceRepository{
		httpClient:     httpclient.New(log, cfg.BaseURL, cfg.Timeout, cfg.RetryCount),
		cfg:            cfg,
		logger:         log,
		requestLimiter: rate.NewLimiter(rate.Every(perRequest), 1),
	}, nil
}

func (r *yahooFinanceRepository) Get(ctx context.Context, param dto.GetBarsParam) ([]dto.Bar, error) {
	tf := param.Timeframe
	if tf == "" {
		tf = dto.Timeframe1Day
	}
	// Yahoo has no 4h bars, build them from hourly ones
	fetchTF := tf
	if tf == dto.Timeframe4Hour {
		fetchTF = dto.Timeframe1Hour
	}
	interval, ok := yahooIntervals[fetchTF]
	if !ok {
		return nil, fmt.Errorf("timeframe %q is not supported by the market data provider", tf)
	}

	if !r.requestLimiter.Allow() {
		r.logger.WarnContext(ctx, "Market data request limit reached, waiting",
			logger.IntField("max_request_per_minute", r.cfg.MaxRequestPerMinute),
			logger.StringField("symbol", param.Symbol),
		)
		if err := r.requestLimiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	to := param.To
	if to.IsZero() {
		to = time.Now().UTC()
	}
	queryParams := map[string]string{
		"period1":        strconv.FormatInt(param.From.Unix(), 10),
		"period2":        strconv.FormatInt(to.Unix(), 10),
		"interval":       interval,
		"includePrePost": "false",
		"events":         "div,split",
	}
	headers := map[string]string{
		"User-Agent": "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 Chrome/120.0.0.0 Safari/537.36",
		"Referer":    "https://finance.yahoo.com/",
	}

	var chart dto.YahooChartResponse
	resp, err := r.httpClient.Get(ctx, "/"+strings.ToUpper(param.Symbol), queryParams, headers, &chart)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch bars for %s: %w", param.Symbol, err)
	}
	if resp.StatusCode != http.StatusOK {
		r.logger.Error("Market data API returned non-OK status",
			logger.IntField("status_code", resp.StatusCode),
			logger.StringField("symbol", param.Symbol),
			logger.StringField("body", string(resp.Body)))
		return nil, fmt.Errorf("market data api returned status %d for %s", resp.StatusCode, param.Symbol)
	}

	bars, err := chartToBars(&chart, param.Symbol)
	if err != nil {
		return nil, err
	}
	if tf == dto.Timeframe4Hour {
		bars = indicator.Resample(bars, tf)
	}
	return bars, nil
}

// chartToBars drops rows with missing prices and returns bars sorted and
// unique by timestamp.
func chartToBars(chart *dto.YahooChartResponse, symbol string) ([]dto.Bar, error) {
	if chart.Chart.Error != nil {
		return nil, fmt.Errorf("market data api error for %s: %v", symbol, chart.Chart.Error)
	}
	if len(chart.Chart.Result) == 0 {
		return nil, fmt.Errorf("no data returned for symbol %s", symbol)
	}
	result := chart.Chart.Result[0]
	if len(result.Indicators.Quote) == 0 {
		return nil, fmt.Errorf("no quote data available for symbol %s", symbol)
	}
	quote := result.Indicators.Quote[0]

	seen := make(map[int64]bool, len(result.Timestamp))
	bars := make([]dto.Bar, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		if i >= len(quote.Open) || i >= len(quote.High) || i >= len(quote.Low) || i >= len(quote.Close) {
			continue
		}
		if quote.Open[i] == 0 || quote.High[i] == 0 || quote.Low[i] == 0 || quote.Close[i] == 0 || seen[ts] {
			continue
		}
		seen[ts] = true
		var volume float64
		if i < len(quote.Volume) {
			volume = quote.Volume[i]
		}
		bars = append(bars, dto.Bar{
			Timestamp: time.Unix(ts, 0).UTC(),
			Open:      quote.Open[i],
			High:      quote.High[i],
			Low:       quote.Low[i],
			Close:     quote.Close[i],
			Volume:    volume,
		})
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("no valid OHLCV data found for symbol %s", symbol)
	}
	sort.Slice(bars, func(i, j int) bool { return bars[i].Timestamp.Before(bars[j].Timestamp) })
	return bars, nil
}
