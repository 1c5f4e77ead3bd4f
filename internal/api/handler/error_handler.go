package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/jesi-ai/account-service/internal/core/domain"
)

// errorResponse is the canonical error envelope for all API errors.
type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// NewHTTPErrorHandler returns an echo.HTTPErrorHandler that:
//   - Maps domain errors to their HTTP status and machine code.
//   - Logs infrastructure failures without leaking details to the client.
//   - Renders {"error": "<message>", "code": "<code>"}.
func NewHTTPErrorHandler(log zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status, body := resolveError(err, log, c)
		if c.Request().Method == http.MethodHead {
			_ = c.NoContent(status)
			return
		}
		_ = c.JSON(status, body)
	}
}

func resolveError(err error, log zerolog.Logger, c echo.Context) (int, errorResponse) {
	// Echo's own errors (router 404/405, middleware 401, ...).
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code, errorResponse{Error: fmt.Sprintf("%v", he.Message), Code: statusCode(he.Code)}
	}

	code := domain.Code(err)
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest, errorResponse{Error: validationMessage(err), Code: code}
	case errors.Is(err, domain.ErrDuplicateEmail),
		errors.Is(err, domain.ErrInvalidToken),
		errors.Is(err, domain.ErrAlreadyVerified):
		return http.StatusBadRequest, errorResponse{Error: err.Error(), Code: code}
	case errors.Is(err, domain.ErrInvalidCredentials),
		errors.Is(err, domain.ErrNotVerified),
		errors.Is(err, domain.ErrUnauthenticated):
		return http.StatusUnauthorized, errorResponse{Error: err.Error(), Code: code}
	}

	// Everything else is internal; only the retryable distinction is exposed.
	event := log.Error()
	status, msg, code := http.StatusInternalServerError, "internal server error", domain.CodeInternal
	if domain.IsRetryable(err) {
		event = log.Warn()
		status, msg, code = http.StatusServiceUnavailable, "service temporarily unavailable", domain.CodeUnavailable
	}
	event.Err(err).
		Str("method", c.Request().Method).
		Str("path", c.Path()).
		Str("request_id", c.Response().Header().Get(echo.HeaderXRequestID)).
		Msg("request failed")

	return status, errorResponse{Error: msg, Code: code}
}

// validationMessage strips the sentinel prefix so clients see only the
// field-level detail.
func validationMessage(err error) string {
	msg := strings.TrimPrefix(err.Error(), domain.ErrValidation.Error()+": ")
	if msg == "" {
		return domain.ErrValidation.Error()
	}
	return msg
}

func statusCode(status int) string {
	text := http.StatusText(status)
	if text == "" {
		return domain.CodeInternal
	}
	return strings.ReplaceAll(strings.ToLower(text), " ", "_")
}
