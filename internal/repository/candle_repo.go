package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang-backtest/internal/dto"
	"golang-backtest/pkg/cache"
	"golang-backtest/pkg/common"
)

// candleRepository answers repeated bar requests from cache before going to
// the market data source. Cached slices are shared and must not be mutated.
type candleRepository struct {
	source BarRepository
	cache  cache.Cache
	ttl    time.Duration
}

func NewCandleRepository(source BarRepository, c cache.Cache, ttl time.Duration) BarRepository {
	if c == nil || ttl <= 0 {
		return source
	}
	return &candleRepository{
		source: source,
		cache:  c,
		ttl:    ttl,
	}
}

func (r *candleRepository) Get(ctx context.Context, param dto.GetBarsParam) ([]dto.Bar, error) {
	return cache.GetOrLoad(r.cache, barsCacheKey(param), r.ttl, func() ([]dto.Bar, error) {
		return r.source.Get(ctx, param)
	})
}

// barsCacheKey rounds the window to the minute so requests anchored on
// "now" share an entry.
func barsCacheKey(param dto.GetBarsParam) string {
	to := param.To
	if !to.IsZero() {
		to = to.Truncate(time.Minute)
	}
	return fmt.Sprintf(common.KEY_MARKET_BARS,
		strings.ToUpper(param.Symbol),
		param.Timeframe,
		param.From.Truncate(time.Minute).Unix(),
		to.Unix(),
	)
}
