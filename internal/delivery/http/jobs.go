package http

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"golang-backtest/internal/dto"
	"golang-backtest/internal/model"
)

func (h *HttpAPIHandler) SetupJobs(base *echo.Group) {
	v1 := base.Group("/v1/jobs")
	{
		v1.GET("", h.ListJobs)
		v1.POST("/run", h.RunJobs)
		v1.POST("/:id/run", h.RunJob)
	}
}

func (h *HttpAPIHandler) RunJobs(c echo.Context) error {
	response := dto.NewBaseResponse(http.StatusOK, "Start running jobs", nil)
	if err := h.service.SchedulerService.Execute(c.Request().Context()); err != nil {
		response.Code = http.StatusInternalServerError
		response.Message = err.Error()
	}
	return c.JSON(response.Code, response)
}

func (h *HttpAPIHandler) RunJob(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return badRequest(c, "invalid job id")
	}
	if err := h.service.SchedulerService.RunJobTask(c.Request().Context(), uint(id)); err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, dto.NewSuccessResponse("Job started", nil))
}

func (h *HttpAPIHandler) ListJobs(c echo.Context) error {
	var param model.GetJobParam
	param.Types = c.QueryParams()["type"]

	jobs, err := h.service.SchedulerService.GetJobSchedule(c.Request().Context(), param)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, dto.NewSuccessResponse("OK", jobs))
}
