package middleware

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	"golang-backtest/config"
	"golang-backtest/internal/dto"
	"golang-backtest/pkg/ratelimit"
)

// NewRateLimiterMiddleware limits requests per client IP. A non-positive
// rate disables limiting.
func NewRateLimiterMiddleware(cfg config.API) echo.MiddlewareFunc {
	if cfg.RateLimitPerSec <= 0 {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	burst := cfg.RateLimitBurst
	if burst <= 0 {
		burst = max(1, int(cfg.RateLimitPerSec))
	}

	config := middleware.RateLimiterConfig{
		Skipper: middleware.DefaultSkipper,
		Store:   ratelimit.NewLimiterStore(rate.Limit(cfg.RateLimitPerSec), burst, 3*time.Minute),

		IdentifierExtractor: func(ctx echo.Context) (string, error) {
			return ctx.RealIP(), nil
		},

		ErrorHandler: func(context echo.Context, err error) error {
			return context.JSON(http.StatusForbidden,
				dto.NewBaseResponse(http.StatusForbidden, "Access forbidden: Rate limiter error occurred", nil))
		},

		DenyHandler: func(context echo.Context, identifier string, err error) error {
			return context.JSON(http.StatusTooManyRequests,
				dto.NewBaseResponse(http.StatusTooManyRequests, "Too many requests: Rate limit exceeded. Please try again later", nil))
		},
	}

	return middleware.RateLimiterWithConfig(config)
}
