package middleware

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/property-booking/internal/model"
)

// Context keys written by JWTAuth.
const (
	userKey   = "user"
	userIDKey = "user_id"
)

// CurrentUser returns the caller authenticated by JWTAuth.
func CurrentUser(c echo.Context) (model.User, bool) {
	u, ok := c.Get(userKey).(model.User)
	if !ok || u.ID == "" {
		return model.User{}, false
	}
	return u, true
}

// currentUserID returns the caller's id, or "anon" on public routes.
func currentUserID(c echo.Context) string {
	if s, ok := c.Get(userIDKey).(string); ok && s != "" {
		return s
	}
	return "anon"
}
