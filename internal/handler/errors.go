package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/property-booking/internal/payment"
	"github.com/iliyamo/property-booking/internal/service"
)

// respondError translates an engine error into a JSON error response.
// Inconsistent state is checked first because it wraps the cause that
// triggered it.
func respondError(c echo.Context, log *zap.Logger, err error) error {
	status, msg := http.StatusInternalServerError, "internal error"
	var gwErr *payment.GatewayError
	switch {
	case errors.Is(err, service.ErrInconsistentState):
		msg = service.ErrInconsistentState.Error()
	case errors.Is(err, service.ErrValidation),
		errors.Is(err, service.ErrInvalidStateTransition),
		errors.Is(err, service.ErrMissingPaymentReference):
		status, msg = http.StatusBadRequest, err.Error()
	case errors.Is(err, service.ErrNotFound):
		status, msg = http.StatusNotFound, err.Error()
	case errors.Is(err, service.ErrForbidden):
		status, msg = http.StatusForbidden, "you do not own this booking"
	case errors.Is(err, service.ErrConflict):
		status, msg = http.StatusConflict, service.ErrConflict.Error()
	case errors.Is(err, service.ErrConcurrentModification):
		status, msg = http.StatusConflict, service.ErrConcurrentModification.Error()
	case errors.As(err, &gwErr):
		msg = "payment processing failed"
	}
	if status >= http.StatusInternalServerError && log != nil {
		log.Error("request failed", zap.String("method", c.Request().Method),
			zap.String("path", c.Path()), zap.Error(err))
	}
	return c.JSON(status, echo.Map{"error": msg})
}
