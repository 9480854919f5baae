package http

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"golang-backtest/internal/dto"
)

func (h *HttpAPIHandler) SetupBacktest(base *echo.Group) {
	backtestGroup := base.Group("/v1/backtest")
	backtestGroup.POST("", h.runBacktest)
}

// runBacktest runs an unsaved strategy. Bars may be supplied inline under
// "series"; any symbol left out is fetched from market data.
func (h *HttpAPIHandler) runBacktest(c echo.Context) error {
	req := new(dto.RunBacktestRequest)
	if err := c.Bind(req); err != nil {
		return badRequest(c, "invalid request body")
	}

	results, warnings, err := h.service.BacktestService.Run(c.Request().Context(), *req)
	if err != nil {
		return errorResponse(c, err)
	}
	resp := dto.NewSuccessResponse("Backtest completed", results)
	resp.Warnings = warnings
	return c.JSON(http.StatusOK, resp)
}
