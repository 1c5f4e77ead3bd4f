package ports

import (
	"context"

	"github.com/jesi-ai/account-service/internal/core/domain"
)

// RegisterInput carries the fields accepted by AuthService.Register.
type RegisterInput struct {
	Email     string
	FirstName string
	Surname   string
	Password  string
}

type AuthService interface {
	Register(ctx context.Context, in RegisterInput) (*domain.User, error)
	Login(ctx context.Context, email, password string) (string, *domain.User, error)
	// VerifyEmail reports alreadyVerified=true when a still-valid token is
	// replayed for an account that is verified already.
	VerifyEmail(ctx context.Context, token string) (alreadyVerified bool, err error)
	ForgotPassword(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, token, newPassword string) error
	ResendVerification(ctx context.Context, email string) error
	Logout(ctx context.Context, userID string) error
	Me(ctx context.Context, userID string) (*domain.User, error)
}
