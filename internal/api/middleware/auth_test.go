package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/jesi-ai/account-service/internal/core/domain"
	"github.com/jesi-ai/account-service/internal/infrastructure/security"
)

func newIssuer(t *testing.T) *security.JWTIssuer {
	t.Helper()
	issuer, err := security.NewJWTIssuer("secret")
	if err != nil {
		t.Fatalf("NewJWTIssuer error: %v", err)
	}
	return issuer
}

func runAuth(t *testing.T, issuer *security.JWTIssuer, header string, next echo.HandlerFunc) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if header != "" {
		req.Header.Set(echo.HeaderAuthorization, header)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := Auth(issuer)(next)(c); err != nil {
		e.HTTPErrorHandler(err, c)
	}
	return rec
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	issuer := newIssuer(t)
	token, err := issuer.Issue("user-1", domain.PurposeLogin, time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	called := false
	rec := runAuth(t, issuer, "Bearer "+token, func(c echo.Context) error {
		called = true
		if c.Get(ContextKeyUserID) != "user-1" {
			t.Fatalf("user id not set")
		}
		return c.NoContent(http.StatusOK)
	})

	if !called {
		t.Fatalf("next not called")
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestAuthMiddleware_Rejects(t *testing.T) {
	issuer := newIssuer(t)
	verifyToken, err := issuer.Issue("user-1", domain.PurposeVerifyEmail, time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	other, err := security.NewJWTIssuer("other-secret")
	if err != nil {
		t.Fatalf("NewJWTIssuer error: %v", err)
	}
	foreign, err := other.Issue("user-1", domain.PurposeLogin, time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	cases := map[string]string{
		"missing header":       "",
		"wrong scheme":         "Token abc",
		"empty bearer":         "Bearer ",
		"garbage token":        "Bearer not-a-token",
		"verification token":   "Bearer " + verifyToken,
		"foreign secret token": "Bearer " + foreign,
	}

	for name, header := range cases {
		rec := runAuth(t, issuer, header, func(c echo.Context) error {
			t.Fatalf("%s: should not reach next", name)
			return nil
		})
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401, got %d", name, rec.Code)
		}
	}
}
