package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/property-booking/internal/handler"
	"github.com/iliyamo/property-booking/internal/middleware"
)

// RegisterRoutes registers routes that do not require authentication:
// the health check and the payment gateway webhook, which is verified by
// signature instead of a token.
func RegisterRoutes(e *echo.Echo, db handler.Pinger, wh *handler.WebhookHandler) {
	e.GET("/healthz", handler.Health(db))
	if wh != nil {
		e.POST("/payments/webhook", wh.Handle)
	}
}

// RegisterBookings registers the guest booking routes.  Every route runs
// JWTAuth first; extra middleware such as the rate limiter is applied after
// it so that limits can be keyed by user.
func RegisterBookings(e *echo.Echo, h *handler.BookingHandler, jwtSecret string, mw ...echo.MiddlewareFunc) {
	chain := append([]echo.MiddlewareFunc{middleware.JWTAuth(jwtSecret)}, mw...)
	e.POST("/bookings", h.Create, chain...)
	e.GET("/bookings/:id", h.Get, chain...)
	e.PATCH("/bookings/:id", h.Patch, chain...)
	e.DELETE("/bookings/:id", h.Cancel, chain...)
	e.GET("/users/bookings", h.List, chain...)
}

// RegisterNotifications registers the caller's notification inbox.
func RegisterNotifications(e *echo.Echo, h *handler.NotificationHandler, jwtSecret string) {
	g := e.Group("/notifications", middleware.JWTAuth(jwtSecret))
	g.GET("", h.List)
	g.PATCH("/:id/read", h.MarkRead)
}
