package http

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"golang-backtest/internal/dto"
	"golang-backtest/internal/engine"
	"golang-backtest/internal/repository"
	"golang-backtest/internal/service"
)

// errorResponse maps service errors onto status codes. Validation problems
// are returned field by field.
func errorResponse(c echo.Context, err error) error {
	var verr *engine.ValidationError
	var ierr *engine.InsufficientDataError
	switch {
	case errors.As(err, &verr):
		return c.JSON(http.StatusBadRequest, dto.NewErrorResponse(http.StatusBadRequest, "invalid request", verr.Problems))
	case errors.As(err, &ierr):
		return c.JSON(http.StatusUnprocessableEntity, dto.NewErrorResponse(http.StatusUnprocessableEntity, err.Error(), ierr))
	case errors.Is(err, repository.ErrNotFound):
		return c.JSON(http.StatusNotFound, dto.NewBaseResponse(http.StatusNotFound, err.Error(), nil))
	case errors.Is(err, service.ErrForbidden):
		return c.JSON(http.StatusForbidden, dto.NewBaseResponse(http.StatusForbidden, err.Error(), nil))
	default:
		c.Logger().Error(err)
		return c.JSON(http.StatusInternalServerError, dto.NewBaseResponse(http.StatusInternalServerError, "internal server error", nil))
	}
}

func badRequest(c echo.Context, message string) error {
	return c.JSON(http.StatusBadRequest, dto.NewBadRequestResponse(message))
}
