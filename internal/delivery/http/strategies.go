package http

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"golang-backtest/internal/dto"
)

const defaultResultLimit = 50

func (h *HttpAPIHandler) SetupStrategies(base *echo.Group) {
	v1 := base.Group("/v1/strategies")
	{
		v1.POST("", h.createStrategy)
		v1.GET("", h.listStrategies)
		v1.GET("/:id", h.getStrategy)
		v1.PUT("/:id", h.updateStrategy)
		v1.DELETE("/:id", h.deleteStrategy)

		v1.POST("/:id/backtests", h.runStrategyBacktest)
		v1.GET("/:id/backtests", h.listBacktestResults)

		v1.GET("/:id/signals", h.scanSignals)
		v1.GET("/:id/signals/:symbol", h.getSignal)
	}
}

func (h *HttpAPIHandler) createStrategy(c echo.Context) error {
	req := new(dto.Strategy)
	if err := c.Bind(req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if err := h.validator.Var(req.OwnerID, "required"); err != nil {
		return badRequest(c, "owner_id is required")
	}

	strategy, warnings, err := h.service.StrategyService.Create(c.Request().Context(), req)
	if err != nil {
		return errorResponse(c, err)
	}
	resp := dto.NewCreatedResponse("Strategy created", strategy)
	resp.Warnings = warnings
	return c.JSON(resp.Code, resp)
}

func (h *HttpAPIHandler) listStrategies(c echo.Context) error {
	var (
		param  dto.GetStrategiesParam
		active bool
		public bool
	)
	err := echo.QueryParamsBinder(c).
		String("owner_id", &param.OwnerID).
		Int("limit", &param.Limit).
		Bool("is_active", &active).
		Bool("is_public", &public).
		BindError()
	if err != nil {
		return badRequest(c, "invalid query parameters")
	}
	if c.QueryParam("is_active") != "" {
		param.IsActive = &active
	}
	if c.QueryParam("is_public") != "" {
		param.IsPublic = &public
	}

	strategies, err := h.service.StrategyService.List(c.Request().Context(), param)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, dto.NewSuccessResponse("OK", strategies))
}

func (h *HttpAPIHandler) getStrategy(c echo.Context) error {
	strategy, err := h.service.StrategyService.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, dto.NewSuccessResponse("OK", strategy))
}

func (h *HttpAPIHandler) updateStrategy(c echo.Context) error {
	req := new(dto.Strategy)
	if err := c.Bind(req); err != nil {
		return badRequest(c, "invalid request body")
	}

	strategy, warnings, err := h.service.StrategyService.Update(c.Request().Context(), c.Param("id"), req)
	if err != nil {
		return errorResponse(c, err)
	}
	resp := dto.NewSuccessResponse("Strategy updated", strategy)
	resp.Warnings = warnings
	return c.JSON(resp.Code, resp)
}

func (h *HttpAPIHandler) deleteStrategy(c echo.Context) error {
	if err := h.service.StrategyService.Delete(c.Request().Context(), c.Param("id"), c.QueryParam("owner_id")); err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, dto.NewSuccessResponse("Strategy deleted", nil))
}

func (h *HttpAPIHandler) runStrategyBacktest(c echo.Context) error {
	req := new(dto.RunStrategyBacktestRequest)
	if err := c.Bind(&req.Config); err != nil {
		return badRequest(c, "invalid request body")
	}

	results, err := h.service.BacktestService.RunStrategy(c.Request().Context(), c.Param("id"), req.Config)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusCreated, dto.NewCreatedResponse("Backtest completed", results))
}

func (h *HttpAPIHandler) listBacktestResults(c echo.Context) error {
	limit := defaultResultLimit
	if err := echo.QueryParamsBinder(c).Int("limit", &limit).BindError(); err != nil {
		return badRequest(c, "invalid limit")
	}

	results, err := h.service.BacktestService.ListResults(c.Request().Context(), c.Param("id"), limit)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, dto.NewSuccessResponse("OK", results))
}

func (h *HttpAPIHandler) getSignal(c echo.Context) error {
	param := dto.GetStrategySignalParam{
		StrategyID: c.Param("id"),
		Symbol:     c.Param("symbol"),
		Timeframe:  dto.Timeframe(c.QueryParam("timeframe")),
	}

	signal, err := h.service.SignalService.Evaluate(c.Request().Context(), param)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, dto.NewSuccessResponse("OK", signal))
}

func (h *HttpAPIHandler) scanSignals(c echo.Context) error {
	signals, err := h.service.SignalService.Scan(c.Request().Context(), c.Param("id"), dto.Timeframe(c.QueryParam("timeframe")))
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, dto.NewSuccessResponse("OK", signals))
}
