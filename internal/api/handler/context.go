package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/jesi-ai/account-service/internal/api/middleware"
)

// ctxUserID returns the subject injected by the Auth middleware. An empty
// value means the route was mounted without it.
func ctxUserID(c echo.Context) (string, error) {
	userID, _ := c.Get(middleware.ContextKeyUserID).(string)
	if userID == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "missing authentication claims")
	}
	return userID, nil
}
