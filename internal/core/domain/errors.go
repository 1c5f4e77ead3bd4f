package domain

import (
	"context"
	"errors"
)

// Business errors. Each maps to a stable machine code via Code.
var (
	ErrDuplicateEmail     = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("incorrect email or password")
	ErrNotVerified        = errors.New("please verify your email before logging in")
	ErrInvalidToken       = errors.New("invalid or expired token")
	ErrAlreadyVerified    = errors.New("email is already verified")
	ErrUserNotFound       = errors.New("user not found")
	ErrUnauthenticated    = errors.New("not authenticated")
	ErrValidation         = errors.New("validation failed")
)

// Infrastructure errors. ErrUnavailable is retryable (timeouts, lost
// connections); ErrInfrastructure is not.
var (
	ErrInfrastructure = errors.New("infrastructure failure")
	ErrUnavailable    = errors.New("dependency unavailable")
	ErrHashing        = errors.New("password hashing failed")
)

const (
	CodeDuplicateEmail     = "duplicate_email"
	CodeInvalidCredentials = "invalid_credentials"
	CodeNotVerified        = "not_verified"
	CodeInvalidToken       = "invalid_token"
	CodeAlreadyVerified    = "already_verified"
	CodeUserNotFound       = "user_not_found"
	CodeUnauthenticated    = "unauthorized"
	CodeValidation         = "validation_error"
	CodeUnavailable        = "service_unavailable"
	CodeInternal           = "internal_error"
)

// Code returns the machine-readable kind of err. Anything that is not a
// known business error is reported as internal.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrDuplicateEmail):
		return CodeDuplicateEmail
	case errors.Is(err, ErrInvalidCredentials):
		return CodeInvalidCredentials
	case errors.Is(err, ErrNotVerified):
		return CodeNotVerified
	case errors.Is(err, ErrInvalidToken):
		return CodeInvalidToken
	case errors.Is(err, ErrAlreadyVerified):
		return CodeAlreadyVerified
	case errors.Is(err, ErrUserNotFound):
		return CodeUserNotFound
	case errors.Is(err, ErrUnauthenticated):
		return CodeUnauthenticated
	case errors.Is(err, ErrValidation):
		return CodeValidation
	case IsRetryable(err):
		return CodeUnavailable
	default:
		return CodeInternal
	}
}

// IsRetryable reports whether err is a transient infrastructure failure.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrUnavailable) || errors.Is(err, context.DeadlineExceeded)
}
