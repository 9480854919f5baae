package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"golang-backtest/internal/dto"
	"golang-backtest/internal/engine"
)

type Config struct {
	Log        Logger     `mapstructure:"logger"`
	DB         Database   `mapstructure:"database"`
	API        API        `mapstructure:"api"`
	Scheduler  Scheduler  `mapstructure:"scheduler"`
	Cache      Cache      `mapstructure:"cache"`
	Engine     Engine     `mapstructure:"engine"`
	MarketData MarketData `mapstructure:"market_data"`
	Backtest   Backtest   `mapstructure:"backtest"`
}

type Logger struct {
	Level    string `mapstructure:"level"`
	Encoding string `mapstructure:"encoding"`
}

type Database struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	DBName          string `mapstructure:"name"`
	SSLMode         string `mapstructure:"ssl_mode"`
	TimeZone        string `mapstructure:"time_zone"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	ConnMaxLifetime string `mapstructure:"conn_max_lifetime"`
	LogLevel        string `mapstructure:"log_level"`
}

type Scheduler struct {
	MaxConcurrency  int           `mapstructure:"max_concurrency"`
	TimeoutDuration time.Duration `mapstructure:"timeout_duration"`
}

type API struct {
	Port              int     `mapstructure:"port"`
	RateLimitPerSec   float64 `mapstructure:"rate_limit_per_sec"`
	RateLimitBurst    int     `mapstructure:"rate_limit_burst"`
	MaxInlineBarCount int     `mapstructure:"max_inline_bar_count"`
}

type Cache struct {
	DefaultExpiration time.Duration `mapstructure:"default_expiration"`
	CleanupInterval   time.Duration `mapstructure:"cleanup_interval"`
}

// Engine tunes signal generation and simulation. Zero values fall back to
// the engine defaults.
type Engine struct {
	MaxConcurrency        int           `mapstructure:"max_concurrency"`
	StrongSignalThreshold float64       `mapstructure:"strong_signal_threshold"`
	EqualityEpsilon       float64       `mapstructure:"equality_epsilon"`
	TriggerMode           string        `mapstructure:"trigger_mode"`
	MinConfidence         float64       `mapstructure:"min_confidence"`
	VolatilityPeriod      int           `mapstructure:"volatility_period"`
	VolatilityTarget      float64       `mapstructure:"volatility_target"`
	DefaultTimeframe      string        `mapstructure:"default_timeframe"`
	IndicatorCacheTTL     time.Duration `mapstructure:"indicator_cache_ttl"`
}

func (e Engine) ToOptions() engine.Options {
	return engine.Options{
		StrongSignalThreshold: e.StrongSignalThreshold,
		EqualityEpsilon:       e.EqualityEpsilon,
		TriggerMode:           engine.TriggerMode(strings.ToLower(e.TriggerMode)),
		MinConfidence:         e.MinConfidence,
		VolatilityPeriod:      e.VolatilityPeriod,
		VolatilityTarget:      e.VolatilityTarget,
		DefaultTimeframe:      dto.Timeframe(e.DefaultTimeframe),
		MaxConcurrency:        e.MaxConcurrency,
		CacheTTL:              e.IndicatorCacheTTL,
	}
}

type MarketData struct {
	BaseURL             string        `mapstructure:"base_url"`
	Timeout             time.Duration `mapstructure:"timeout"`
	MaxRequestPerMinute int           `mapstructure:"max_request_per_minute"`
	RetryCount          int           `mapstructure:"retry_count"`
	CacheTTL            time.Duration `mapstructure:"cache_ttl"`
	// Bars fetched before the requested start so indicators are warm.
	LookbackDays int `mapstructure:"lookback_days"`
}

type Backtest struct {
	// History loaded before the latest bar when evaluating live signals.
	SignalLookbackDays int `mapstructure:"signal_lookback_days"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.encoding", "json")
	v.SetDefault("api.port", 8080)
	v.SetDefault("api.rate_limit_per_sec", 20)
	v.SetDefault("api.rate_limit_burst", 40)
	v.SetDefault("api.max_inline_bar_count", 100000)
	v.SetDefault("scheduler.max_concurrency", 2)
	v.SetDefault("scheduler.timeout_duration", "10m")
	v.SetDefault("cache.default_expiration", "10m")
	v.SetDefault("cache.cleanup_interval", "15m")
	v.SetDefault("engine.max_concurrency", 4)
	v.SetDefault("engine.trigger_mode", string(engine.TriggerAll))
	v.SetDefault("engine.default_timeframe", string(dto.Timeframe1Day))
	v.SetDefault("market_data.base_url", "https://query1.finance.yahoo.com/v8/finance/chart")
	v.SetDefault("market_data.timeout", "15s")
	v.SetDefault("market_data.max_request_per_minute", 60)
	v.SetDefault("market_data.retry_count", 2)
	v.SetDefault("market_data.cache_ttl", "5m")
	v.SetDefault("market_data.lookback_days", 400)
	v.SetDefault("backtest.signal_lookback_days", 400)
}

// Load reads config.yaml from the working directory, an optional .env file
// and the environment. Environment keys replace "." with "_".
func Load() (*Config, error) {
	if err := godotenv.Load(); err == nil {
		fmt.Println("Loaded environment from .env")
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AddConfigPath(".")
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		fmt.Println("No config file loaded:", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
