package handler

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/property-booking/internal/middleware"
	"github.com/iliyamo/property-booking/internal/service"
)

// BookingHandler exposes the booking engine over HTTP.  All methods assume
// JWTAuth has already run; they return 401 if no caller is in the context.
// Ownership, availability and payment rules live in the service.
type BookingHandler struct {
	svc *service.BookingService
	log *zap.Logger
}

// NewBookingHandler constructs a BookingHandler.  svc must be non-nil.
func NewBookingHandler(svc *service.BookingService, log *zap.Logger) *BookingHandler {
	if svc == nil {
		panic("nil booking service passed to NewBookingHandler")
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &BookingHandler{svc: svc, log: log}
}

type createBookingRequest struct {
	PropertyID      string  `json:"property_id" validate:"required"`
	CheckIn         string  `json:"check_in" validate:"required"`
	CheckOut        string  `json:"check_out" validate:"required"`
	GuestCount      int     `json:"guest_count" validate:"required,min=1"`
	SpecialRequests *string `json:"special_requests" validate:"omitempty,max=2000"`
}

type patchBookingRequest struct {
	CheckIn         *string `json:"check_in" validate:"omitempty"`
	CheckOut        *string `json:"check_out" validate:"omitempty"`
	GuestCount      *int    `json:"guest_count" validate:"omitempty,min=1"`
	SpecialRequests *string `json:"special_requests" validate:"omitempty,max=2000"`
}

// Create handles POST /bookings.  The body carries property_id, check_in,
// check_out, guest_count and optional special_requests.  On success it
// returns 201 with the booking id and the payment details the client needs
// to collect the card (client secret, ephemeral key and customer id).  It
// returns 400 for invalid input, 404 for an unknown property, 409 when the
// dates overlap an active booking and 500 when the payment setup fails.
func (h *BookingHandler) Create(c echo.Context) error {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var body createBookingRequest
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if err := c.Validate(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	checkIn, err := parseDate("check_in", body.CheckIn)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	checkOut, err := parseDate("check_out", body.CheckOut)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}

	res, err := h.svc.Create(c.Request().Context(), user, service.CreateInput{
		PropertyID:      body.PropertyID,
		CheckIn:         checkIn,
		CheckOut:        checkOut,
		GuestCount:      body.GuestCount,
		SpecialRequests: body.SpecialRequests,
	})
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{
		"message":       "Booking created successfully",
		"booking_id":    res.Booking.ID,
		"clientSecret":  res.Payment.ClientSecret,
		"ephemeralKey":  res.Payment.EphemeralKey,
		"customerId":    res.Payment.CustomerID,
		"paymentIntent": res.Payment.ClientSecret,
	})
}

// List handles GET /users/bookings.  Optional query parameters page and
// pageSize select the page; invalid values fall back to page 1 and 10
// items.  Bookings are returned newest first together with paging totals.
func (h *BookingHandler) List(c echo.Context) error {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	page, _ := strconv.Atoi(c.QueryParam("page"))
	pageSize, _ := strconv.Atoi(c.QueryParam("pageSize"))

	res, err := h.svc.List(c.Request().Context(), user, page, pageSize)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, res)
}

// Get handles GET /bookings/:id and returns the caller's booking.  Another
// guest's booking yields 403.
func (h *BookingHandler) Get(c echo.Context) error {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	b, err := h.svc.Get(c.Request().Context(), user, c.Param("id"))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"booking": b})
}

// Patch handles PATCH /bookings/:id.  Any subset of check_in, check_out,
// guest_count and special_requests may be sent.  Changing the dates
// re-checks availability and updates the amount on the payment intent.
// Cancelled and completed bookings cannot be modified (400).
func (h *BookingHandler) Patch(c echo.Context) error {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var body patchBookingRequest
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if err := c.Validate(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}

	in := service.PatchInput{GuestCount: body.GuestCount, SpecialRequests: body.SpecialRequests}
	if body.CheckIn != nil {
		t, err := parseDate("check_in", *body.CheckIn)
		if err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
		}
		in.CheckIn = &t
	}
	if body.CheckOut != nil {
		t, err := parseDate("check_out", *body.CheckOut)
		if err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
		}
		in.CheckOut = &t
	}

	b, err := h.svc.Patch(c.Request().Context(), user, c.Param("id"), in)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "Booking updated successfully", "booking": b})
}

// Cancel handles DELETE /bookings/:id.  A pending payment intent is
// cancelled at the gateway first.  Cancelling twice returns the cancelled
// booking again; completed bookings yield 400.
func (h *BookingHandler) Cancel(c echo.Context) error {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	b, err := h.svc.Cancel(c.Request().Context(), user, c.Param("id"))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "Booking cancelled successfully", "booking": b})
}

