package http

import (
	"context"

	goValidator "github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"golang-backtest/internal/service"
)

type HttpAPIHandler struct {
	echo      *echo.Echo
	validator *goValidator.Validate
	service   *service.Service
}

func NewHttpAPIHandler(ctx context.Context, echo *echo.Echo, validator *goValidator.Validate, service *service.Service) *HttpAPIHandler {
	return &HttpAPIHandler{
		echo:      echo,
		validator: validator,
		service:   service,
	}
}

// SetupRoutes mounts the API under /api. Extra middleware, such as the rate
// limiter, applies to the API group only so /metrics stays reachable.
func (h *HttpAPIHandler) SetupRoutes(mw ...echo.MiddlewareFunc) {
	h.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	base := h.echo.Group("/api", mw...)
	h.SetupStrategies(base)
	h.SetupBacktest(base)
	h.SetupJobs(base)
}
