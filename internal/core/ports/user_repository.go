package ports

import (
	"context"
	"time"

	"github.com/jesi-ai/account-service/internal/core/domain"
)

// UserRepository is the persistence contract for the users table. Lookups
// return domain.ErrUserNotFound when nothing matches; mutations by id return
// it when the row does not exist.
type UserRepository interface {
	// Create inserts a new user. Uniqueness of the email is enforced by the
	// store itself and reported as domain.ErrDuplicateEmail.
	Create(ctx context.Context, user *domain.User) (*domain.User, error)

	FindByEmail(ctx context.Context, email string) (*domain.User, error)
	FindByID(ctx context.Context, id string) (*domain.User, error)
	FindByVerificationToken(ctx context.Context, digest string) (*domain.User, error)
	FindByResetToken(ctx context.Context, digest string) (*domain.User, error)

	// Save upserts every mutable column of user by id.
	Save(ctx context.Context, user *domain.User) error

	SetVerified(ctx context.Context, id string) error
	SetVerificationToken(ctx context.Context, id, digest string) error
	SetResetToken(ctx context.Context, id, digest string) error
	ClearResetToken(ctx context.Context, id string) error
	UpdatePassword(ctx context.Context, id, passwordHash string) error
	TouchLastLogin(ctx context.Context, id string, at time.Time) error
	TouchLastLogout(ctx context.Context, id string, at time.Time) error

	// ConsumeVerificationToken marks the user holding digest as verified and
	// active and clears the token, in a single conditional write.
	ConsumeVerificationToken(ctx context.Context, digest string) (*domain.User, error)
	// ConsumeResetToken replaces the password of the user holding digest and
	// clears the token, in a single conditional write.
	ConsumeResetToken(ctx context.Context, digest, passwordHash string) (*domain.User, error)
}
