package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/jesi-ai/account-service/internal/core/domain"
	"github.com/jesi-ai/account-service/internal/core/ports"
)

// ContextKeyUserID is the echo.Context key holding the authenticated user id.
const ContextKeyUserID = "user_id"

// Auth validates the bearer token and injects its subject into the context.
// Only login tokens are accepted; verification and reset tokens are rejected.
func Auth(tokens ports.TokenIssuer) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			authHeader := c.Request().Header.Get(echo.HeaderAuthorization)
			if authHeader == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || strings.TrimSpace(parts[1]) == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization header")
			}

			claims, err := tokens.Decode(strings.TrimSpace(parts[1]))
			if err != nil || claims.Purpose != domain.PurposeLogin {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}

			c.Set(ContextKeyUserID, claims.Subject)
			return next(c)
		}
	}
}
