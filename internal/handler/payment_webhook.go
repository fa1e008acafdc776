package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/property-booking/internal/payment"
	"github.com/iliyamo/property-booking/internal/service"
)

// maxWebhookBody bounds the payload read from the gateway.
const maxWebhookBody = 64 << 10

// WebhookParser verifies a signed gateway callback.  A nil outcome means
// the event is not one the engine acts on.
type WebhookParser interface {
	ParseWebhook(payload []byte, signature string) (*payment.Outcome, error)
}

// WebhookHandler applies payment outcomes pushed by the gateway.
type WebhookHandler struct {
	parser WebhookParser
	svc    *service.BookingService
	log    *zap.Logger
}

func NewWebhookHandler(parser WebhookParser, svc *service.BookingService, log *zap.Logger) *WebhookHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &WebhookHandler{parser: parser, svc: svc, log: log}
}

// Handle serves POST /payments/webhook.  The route is unauthenticated; the
// Stripe-Signature header is verified instead.  Bad signatures yield 400.
// Events for unknown intents are acknowledged so the gateway stops
// retrying them, while store failures return 500 so it retries later.
func (h *WebhookHandler) Handle(c echo.Context) error {
	payload, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBody))
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "unreadable body"})
	}
	out, err := h.parser.ParseWebhook(payload, c.Request().Header.Get("Stripe-Signature"))
	if err != nil {
		h.log.Warn("webhook rejected", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid webhook"})
	}
	if out == nil {
		return c.JSON(http.StatusOK, echo.Map{"received": true})
	}

	b, err := h.svc.ApplyPaymentOutcome(c.Request().Context(), *out)
	switch {
	case errors.Is(err, service.ErrNotFound):
		h.log.Warn("webhook for unknown payment intent", zap.String("intent_id", out.IntentID))
		return c.JSON(http.StatusOK, echo.Map{"received": true})
	case err != nil:
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"received": true, "booking_id": b.ID, "status": b.Status})
}
