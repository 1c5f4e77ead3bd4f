package security

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/jesi-ai/account-service/internal/core/domain"
)

type tokenClaims struct {
	Purpose domain.TokenPurpose `json:"purpose"`
	jwt.RegisteredClaims
}

// JWTIssuer implements ports.TokenIssuer with HS256-signed JWTs.
type JWTIssuer struct {
	secret []byte
	now    func() time.Time
}

// IssuerOption customises a JWTIssuer.
type IssuerOption func(*JWTIssuer)

// WithClock injects the time source used both for issuing and validating.
func WithClock(now func() time.Time) IssuerOption {
	return func(i *JWTIssuer) {
		if now != nil {
			i.now = now
		}
	}
}

func NewJWTIssuer(secret string, opts ...IssuerOption) (*JWTIssuer, error) {
	if secret == "" {
		return nil, errors.New("jwt issuer: secret is required")
	}
	i := &JWTIssuer{secret: []byte(secret), now: time.Now}
	for _, opt := range opts {
		opt(i)
	}
	return i, nil
}

func (i *JWTIssuer) Issue(subject string, purpose domain.TokenPurpose, ttl time.Duration) (string, error) {
	if subject == "" || !purpose.Valid() || ttl <= 0 {
		return "", fmt.Errorf("issue token: invalid arguments (purpose %q, ttl %s)", purpose, ttl)
	}

	now := i.now()
	claims := tokenClaims{
		Purpose: purpose,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiry(now, ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// expiry rounds now+ttl up to a whole second. NumericDate truncates, which
// would otherwise end the token's life early.
func expiry(now time.Time, ttl time.Duration) time.Time {
	exp := now.Add(ttl)
	if t := exp.Truncate(time.Second); !t.Equal(exp) {
		return t.Add(time.Second)
	}
	return exp
}

// Decode validates signature, algorithm, expiry and purpose. Every failure
// collapses into domain.ErrInvalidToken.
func (i *JWTIssuer) Decode(token string) (*domain.TokenClaims, error) {
	claims := &tokenClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil || !parsed.Valid {
		return nil, domain.ErrInvalidToken
	}
	if claims.Subject == "" || !claims.Purpose.Valid() {
		return nil, domain.ErrInvalidToken
	}

	return &domain.TokenClaims{
		Subject:   claims.Subject,
		Purpose:   claims.Purpose,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}
