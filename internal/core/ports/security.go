package ports

import (
	"time"

	"github.com/jesi-ai/account-service/internal/core/domain"
)

// PasswordHasher hashes and checks passwords with a slow, salted algorithm.
type PasswordHasher interface {
	Hash(password string) (string, error)
	// Verify returns false without an error for a wrong password. An error
	// means the stored hash itself is unusable.
	Verify(password, hash string) (bool, error)
}

// TokenIssuer signs and decodes purpose-tagged bearer tokens. Decode fails
// with domain.ErrInvalidToken for every kind of rejection.
type TokenIssuer interface {
	Issue(subject string, purpose domain.TokenPurpose, ttl time.Duration) (string, error)
	Decode(token string) (*domain.TokenClaims, error)
}
