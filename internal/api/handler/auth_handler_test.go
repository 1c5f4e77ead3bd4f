package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/jesi-ai/account-service/internal/api/middleware"
	"github.com/jesi-ai/account-service/internal/core/domain"
	"github.com/jesi-ai/account-service/internal/core/ports"
)

type stubAuthService struct {
	registerFn func(ctx context.Context, in ports.RegisterInput) (*domain.User, error)
	loginFn    func(ctx context.Context, email, password string) (string, *domain.User, error)
	verifyFn   func(ctx context.Context, token string) (bool, error)
	forgotFn   func(ctx context.Context, email string) error
	resetFn    func(ctx context.Context, token, newPassword string) error
	resendFn   func(ctx context.Context, email string) error
	logoutFn   func(ctx context.Context, userID string) error
	meFn       func(ctx context.Context, userID string) (*domain.User, error)
}

func (s *stubAuthService) Register(ctx context.Context, in ports.RegisterInput) (*domain.User, error) {
	return s.registerFn(ctx, in)
}

func (s *stubAuthService) Login(ctx context.Context, email, password string) (string, *domain.User, error) {
	return s.loginFn(ctx, email, password)
}

func (s *stubAuthService) VerifyEmail(ctx context.Context, token string) (bool, error) {
	return s.verifyFn(ctx, token)
}

func (s *stubAuthService) ForgotPassword(ctx context.Context, email string) error {
	return s.forgotFn(ctx, email)
}

func (s *stubAuthService) ResetPassword(ctx context.Context, token, newPassword string) error {
	return s.resetFn(ctx, token, newPassword)
}

func (s *stubAuthService) ResendVerification(ctx context.Context, email string) error {
	return s.resendFn(ctx, email)
}

func (s *stubAuthService) Logout(ctx context.Context, userID string) error {
	return s.logoutFn(ctx, userID)
}

func (s *stubAuthService) Me(ctx context.Context, userID string) (*domain.User, error) {
	return s.meFn(ctx, userID)
}

// fakeAuth stands in for the Auth middleware and trusts the X-User header.
func fakeAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if id := c.Request().Header.Get("X-User"); id != "" {
			c.Set(middleware.ContextKeyUserID, id)
		}
		return next(c)
	}
}

func newTestServer(svc ports.AuthService) *echo.Echo {
	e := echo.New()
	e.Validator = NewValidator()
	e.HTTPErrorHandler = NewHTTPErrorHandler(zerolog.Nop())

	h := NewAuthHandler(svc)
	g := e.Group("/api/v1/users")
	g.POST("/register", h.Register)
	g.POST("/login", h.Login)
	g.POST("/verify-email", h.VerifyEmail)
	g.POST("/forgot-password", h.ForgotPassword)
	g.POST("/reset-password", h.ResetPassword)
	g.POST("/resend-verification", h.ResendVerification)
	g.POST("/logout", h.Logout, fakeAuth)
	g.GET("/me", h.Me, fakeAuth)
	return e
}

func do(e *echo.Echo, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var resp errorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json: %v (%s)", err, rec.Body.String())
	}
	return resp
}

func TestAuthHandler_Register_Success(t *testing.T) {
	stub := &stubAuthService{
		registerFn: func(ctx context.Context, in ports.RegisterInput) (*domain.User, error) {
			if in.Email != "ada@example.com" || in.FirstName != "Ada" || in.Surname != "Lovelace" {
				t.Fatalf("unexpected input: %+v", in)
			}
			return &domain.User{ID: "u-1", Email: in.Email, PasswordHash: "$2a$secret", VerificationToken: "digest"}, nil
		},
	}

	rec := do(newTestServer(stub), http.MethodPost, "/api/v1/users/register",
		`{"email":"ada@example.com","first_name":"Ada","surname":"Lovelace","password":"s3cretpass"}`, nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	body := rec.Body.String()
	if strings.Contains(body, "$2a$secret") || strings.Contains(body, "digest") {
		t.Fatalf("secret fields leaked: %s", body)
	}
	var user map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &user); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if user["id"] != "u-1" || user["email"] != "ada@example.com" {
		t.Fatalf("unexpected user: %v", user)
	}
}

func TestAuthHandler_Register_Validation(t *testing.T) {
	stub := &stubAuthService{
		registerFn: func(context.Context, ports.RegisterInput) (*domain.User, error) {
			t.Fatalf("service must not be called for invalid input")
			return nil, nil
		},
	}
	e := newTestServer(stub)

	cases := map[string]struct {
		body string
		want string
	}{
		"malformed json":   {`{"email":`, "invalid payload"},
		"bad email":        {`{"email":"nope","first_name":"A","surname":"B","password":"s3cretpass"}`, "email must be a valid email"},
		"missing surname":  {`{"email":"a@example.com","first_name":"A","password":"s3cretpass"}`, "surname is required"},
		"short password":   {`{"email":"a@example.com","first_name":"A","surname":"B","password":"ab1"}`, "password must be 8-72 characters"},
		"letters only":     {`{"email":"a@example.com","first_name":"A","surname":"B","password":"abcdefghij"}`, "contain a digit or special character"},
		"password too big": {fmt.Sprintf(`{"email":"a@example.com","first_name":"A","surname":"B","password":"%s1"}`, strings.Repeat("a", 72)), "password must be"},
	}

	for name, tc := range cases {
		rec := do(e, http.MethodPost, "/api/v1/users/register", tc.body, nil)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", name, rec.Code)
		}
		resp := decodeError(t, rec)
		if resp.Code != domain.CodeValidation || !strings.Contains(resp.Error, tc.want) {
			t.Fatalf("%s: unexpected error %+v", name, resp)
		}
	}
}

func TestAuthHandler_Register_Duplicate(t *testing.T) {
	stub := &stubAuthService{
		registerFn: func(context.Context, ports.RegisterInput) (*domain.User, error) {
			return nil, domain.ErrDuplicateEmail
		},
	}

	rec := do(newTestServer(stub), http.MethodPost, "/api/v1/users/register",
		`{"email":"ada@example.com","first_name":"Ada","surname":"Lovelace","password":"s3cretpass"}`, nil)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if resp := decodeError(t, rec); resp.Code != domain.CodeDuplicateEmail || resp.Error != "email already registered" {
		t.Fatalf("unexpected error %+v", resp)
	}
}

func TestAuthHandler_Login(t *testing.T) {
	cases := map[string]struct {
		err      error
		wantCode int
		wantKind string
	}{
		"success":             {nil, http.StatusOK, ""},
		"invalid credentials": {domain.ErrInvalidCredentials, http.StatusUnauthorized, domain.CodeInvalidCredentials},
		"not verified":        {domain.ErrNotVerified, http.StatusUnauthorized, domain.CodeNotVerified},
		"store timeout":       {fmt.Errorf("find user: %w", domain.ErrUnavailable), http.StatusServiceUnavailable, domain.CodeUnavailable},
		"unexpected":          {errors.New("boom"), http.StatusInternalServerError, domain.CodeInternal},
	}

	for name, tc := range cases {
		stub := &stubAuthService{
			loginFn: func(ctx context.Context, email, password string) (string, *domain.User, error) {
				if tc.err != nil {
					return "", nil, tc.err
				}
				return "jwt-token", &domain.User{ID: "u-1"}, nil
			},
		}

		rec := do(newTestServer(stub), http.MethodPost, "/api/v1/users/login",
			`{"email":"ada@example.com","password":"s3cretpass"}`, nil)
		if rec.Code != tc.wantCode {
			t.Fatalf("%s: expected %d, got %d", name, tc.wantCode, rec.Code)
		}

		if tc.err == nil {
			var resp tokenResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatalf("%s: invalid json: %v", name, err)
			}
			if resp.AccessToken != "jwt-token" || resp.TokenType != "bearer" {
				t.Fatalf("%s: unexpected response %+v", name, resp)
			}
			continue
		}

		resp := decodeError(t, rec)
		if resp.Code != tc.wantKind {
			t.Fatalf("%s: expected code %q, got %+v", name, tc.wantKind, resp)
		}
		if tc.wantCode >= 500 && (strings.Contains(resp.Error, "boom") || strings.Contains(resp.Error, "find user")) {
			t.Fatalf("%s: internal detail leaked: %q", name, resp.Error)
		}
	}
}

func TestAuthHandler_VerifyEmail(t *testing.T) {
	cases := []struct {
		already  bool
		err      error
		wantCode int
		wantMsg  string
	}{
		{false, nil, http.StatusOK, msgEmailVerified},
		{true, nil, http.StatusOK, msgAlreadyVerified},
		{false, domain.ErrInvalidToken, http.StatusBadRequest, "invalid or expired token"},
	}

	for _, tc := range cases {
		stub := &stubAuthService{
			verifyFn: func(ctx context.Context, token string) (bool, error) {
				if token != "tok" {
					t.Fatalf("unexpected token %q", token)
				}
				return tc.already, tc.err
			},
		}

		rec := do(newTestServer(stub), http.MethodPost, "/api/v1/users/verify-email", `{"token":"tok"}`, nil)
		if rec.Code != tc.wantCode {
			t.Fatalf("expected %d, got %d", tc.wantCode, rec.Code)
		}
		if !strings.Contains(rec.Body.String(), tc.wantMsg) {
			t.Fatalf("expected %q in %s", tc.wantMsg, rec.Body.String())
		}
	}
}

func TestAuthHandler_ForgotPassword_GenericResponse(t *testing.T) {
	stub := &stubAuthService{
		forgotFn: func(context.Context, string) error { return nil },
	}
	e := newTestServer(stub)

	known := do(e, http.MethodPost, "/api/v1/users/forgot-password", `{"email":"ada@example.com"}`, nil)
	unknown := do(e, http.MethodPost, "/api/v1/users/forgot-password", `{"email":"ghost@example.com"}`, nil)

	if known.Code != http.StatusOK || unknown.Code != http.StatusOK {
		t.Fatalf("expected 200s, got %d and %d", known.Code, unknown.Code)
	}
	if known.Body.String() != unknown.Body.String() {
		t.Fatalf("bodies differ: %q vs %q", known.Body.String(), unknown.Body.String())
	}
}

func TestAuthHandler_ResetPassword(t *testing.T) {
	stub := &stubAuthService{
		resetFn: func(ctx context.Context, token, newPassword string) error {
			if token == "good" && newPassword == "newpass123" {
				return nil
			}
			return domain.ErrInvalidToken
		},
	}
	e := newTestServer(stub)

	if rec := do(e, http.MethodPost, "/api/v1/users/reset-password", `{"token":"good","new_password":"newpass123"}`, nil); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	rec := do(e, http.MethodPost, "/api/v1/users/reset-password", `{"token":"bad","new_password":"newpass123"}`, nil)
	if rec.Code != http.StatusBadRequest || decodeError(t, rec).Code != domain.CodeInvalidToken {
		t.Fatalf("expected 400 invalid_token, got %d %s", rec.Code, rec.Body.String())
	}
	if rec := do(e, http.MethodPost, "/api/v1/users/reset-password", `{"token":"good","new_password":"short"}`, nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for weak password, got %d", rec.Code)
	}
}

func TestAuthHandler_ResendVerification(t *testing.T) {
	stub := &stubAuthService{
		resendFn: func(ctx context.Context, email string) error {
			if email == "verified@example.com" {
				return domain.ErrAlreadyVerified
			}
			return nil
		},
	}
	e := newTestServer(stub)

	if rec := do(e, http.MethodPost, "/api/v1/users/resend-verification", `{"email":"ada@example.com"}`, nil); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	rec := do(e, http.MethodPost, "/api/v1/users/resend-verification", `{"email":"verified@example.com"}`, nil)
	if rec.Code != http.StatusBadRequest || decodeError(t, rec).Code != domain.CodeAlreadyVerified {
		t.Fatalf("expected 400 already_verified, got %d %s", rec.Code, rec.Body.String())
	}
}

func TestAuthHandler_LogoutAndMe(t *testing.T) {
	var loggedOut string
	stub := &stubAuthService{
		logoutFn: func(ctx context.Context, userID string) error {
			loggedOut = userID
			return nil
		},
		meFn: func(ctx context.Context, userID string) (*domain.User, error) {
			return &domain.User{ID: userID, Email: "ada@example.com"}, nil
		},
	}
	e := newTestServer(stub)

	if rec := do(e, http.MethodPost, "/api/v1/users/logout", "", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without identity, got %d", rec.Code)
	}

	auth := map[string]string{"X-User": "u-1"}
	if rec := do(e, http.MethodPost, "/api/v1/users/logout", "", auth); rec.Code != http.StatusOK || loggedOut != "u-1" {
		t.Fatalf("logout: got %d, user %q", rec.Code, loggedOut)
	}

	rec := do(e, http.MethodGet, "/api/v1/users/me", "", auth)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"id":"u-1"`) {
		t.Fatalf("me: got %d %s", rec.Code, rec.Body.String())
	}
}
