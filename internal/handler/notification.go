package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/property-booking/internal/middleware"
	"github.com/iliyamo/property-booking/internal/model"
	"github.com/iliyamo/property-booking/internal/repository"
)

const notificationLimit = 100

// NotificationHandler serves the caller's stored notifications.
type NotificationHandler struct {
	store repository.NotificationStore
	log   *zap.Logger
}

func NewNotificationHandler(store repository.NotificationStore, log *zap.Logger) *NotificationHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &NotificationHandler{store: store, log: log}
}

// List handles GET /notifications.  Unread notifications come first, then
// newest first, capped at 100 entries.
func (h *NotificationHandler) List(c echo.Context) error {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	items, err := h.store.ListNotifications(c.Request().Context(), user.ID, notificationLimit)
	if err != nil {
		h.log.Error("list notifications", zap.String("user_id", user.ID), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	if items == nil {
		items = []model.Notification{}
	}
	return c.JSON(http.StatusOK, echo.Map{"notifications": items})
}

// MarkRead handles PATCH /notifications/:id/read.  Notifications belonging
// to another user are reported as not found.
func (h *NotificationHandler) MarkRead(c echo.Context) error {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid notification id"})
	}
	err = h.store.MarkNotificationRead(c.Request().Context(), id, user.ID)
	if errors.Is(err, repository.ErrNotFound) {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "notification not found"})
	}
	if err != nil {
		h.log.Error("mark notification read", zap.Uint64("id", id), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	return c.NoContent(http.StatusNoContent)
}
