package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jesi-ai/account-service/internal/core/domain"
	"github.com/jesi-ai/account-service/internal/core/ports"
	"github.com/jesi-ai/account-service/internal/pkg/metrics"
	"github.com/jesi-ai/account-service/pkg/logger"
)

// TokenTTLs holds the lifetime of each token purpose.
type TokenTTLs struct {
	Access       time.Duration
	Verification time.Duration
	Reset        time.Duration
}

func (t TokenTTLs) withDefaults() TokenTTLs {
	if t.Access <= 0 {
		t.Access = 30 * time.Minute
	}
	if t.Verification <= 0 {
		t.Verification = 24 * time.Hour
	}
	if t.Reset <= 0 {
		t.Reset = time.Hour
	}
	return t
}

// Options configures AuthService beyond its collaborators.
type Options struct {
	TTLs TokenTTLs
	// RevealVerificationStatus lets ResendVerification answer
	// domain.ErrAlreadyVerified instead of the generic success.
	RevealVerificationStatus bool
	Now                      func() time.Time
}

// AuthService implements the account lifecycle: registration, verification,
// login, password reset and logout bookkeeping.
type AuthService struct {
	repo     ports.UserRepository
	hasher   ports.PasswordHasher
	tokens   ports.TokenIssuer
	notifier ports.Notifier
	log      zerolog.Logger

	ttls          TokenTTLs
	revealStatus  bool
	now           func() time.Time
	dummyPassHash string
}

func NewAuthService(
	repo ports.UserRepository,
	hasher ports.PasswordHasher,
	tokens ports.TokenIssuer,
	notifier ports.Notifier,
	log zerolog.Logger,
	opts Options,
) *AuthService {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	s := &AuthService{
		repo:         repo,
		hasher:       hasher,
		tokens:       tokens,
		notifier:     notifier,
		log:          log,
		ttls:         opts.TTLs.withDefaults(),
		revealStatus: opts.RevealVerificationStatus,
		now:          now,
	}
	// Compared against when the email is unknown so both login failures
	// cost one hash comparison.
	if h, err := hasher.Hash(uuid.NewString()); err == nil {
		s.dummyPassHash = h
	}
	return s
}

func (s *AuthService) Register(ctx context.Context, in ports.RegisterInput) (*domain.User, error) {
	in.Email = strings.TrimSpace(in.Email)
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.Surname = strings.TrimSpace(in.Surname)
	if in.Email == "" || in.FirstName == "" || in.Surname == "" || in.Password == "" {
		return nil, fmt.Errorf("%w: email, first_name, surname and password are required", domain.ErrValidation)
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	token, err := s.tokens.Issue(id, domain.PurposeVerifyEmail, s.ttls.Verification)
	if err != nil {
		return nil, fmt.Errorf("register: %w", err)
	}

	now := s.now().UTC()
	created, err := s.repo.Create(ctx, &domain.User{
		ID:                id,
		Email:             in.Email,
		FirstName:         in.FirstName,
		Surname:           in.Surname,
		PasswordHash:      hash,
		Role:              domain.RoleUser,
		VerificationToken: domain.TokenDigest(token),
		CreatedAt:         now,
		UpdatedAt:         now,
	})
	if err != nil {
		s.record("register", err)
		return nil, err
	}

	s.notify(created.Email, func() error {
		return s.notifier.SendVerificationEmail(ctx, created.Email, token)
	})

	s.log.Info().Str("user_id", created.ID).Msg("user registered")
	s.record("register", nil)
	return created, nil
}

func (s *AuthService) Login(ctx context.Context, email, password string) (string, *domain.User, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return "", nil, domain.ErrInvalidCredentials
	}

	user, err := s.repo.FindByEmail(ctx, email)
	if errors.Is(err, domain.ErrUserNotFound) {
		if s.dummyPassHash != "" {
			_, _ = s.hasher.Verify(password, s.dummyPassHash)
		}
		s.record("login", domain.ErrInvalidCredentials)
		return "", nil, domain.ErrInvalidCredentials
	}
	if err != nil {
		s.record("login", err)
		return "", nil, err
	}

	ok, err := s.hasher.Verify(password, user.PasswordHash)
	if err != nil {
		s.log.Error().Err(err).Str("user_id", user.ID).Msg("stored password hash is unusable")
		s.record("login", err)
		return "", nil, err
	}
	if !ok {
		s.record("login", domain.ErrInvalidCredentials)
		return "", nil, domain.ErrInvalidCredentials
	}

	if !user.IsVerified {
		s.record("login", domain.ErrNotVerified)
		return "", nil, domain.ErrNotVerified
	}

	now := s.now().UTC()
	if err := s.repo.TouchLastLogin(ctx, user.ID, now); err != nil {
		s.log.Warn().Err(err).Str("user_id", user.ID).Msg("failed to update last login")
	} else {
		user.LastLogin = &now
	}

	token, err := s.tokens.Issue(user.ID, domain.PurposeLogin, s.ttls.Access)
	if err != nil {
		s.record("login", err)
		return "", nil, fmt.Errorf("login: %w", err)
	}

	s.record("login", nil)
	return token, user, nil
}

func (s *AuthService) VerifyEmail(ctx context.Context, token string) (bool, error) {
	token = strings.TrimSpace(token)
	claims, err := s.decode(token, domain.PurposeVerifyEmail)
	if err != nil {
		s.record("verify_email", err)
		return false, err
	}

	user, err := s.repo.ConsumeVerificationToken(ctx, domain.TokenDigest(token))
	if err == nil {
		if user.ID != claims.Subject {
			s.log.Error().Str("subject", claims.Subject).Str("user_id", user.ID).Msg("verification token subject mismatch")
			s.record("verify_email", domain.ErrInfrastructure)
			return false, fmt.Errorf("verify email: %w", domain.ErrInfrastructure)
		}
		s.log.Info().Str("user_id", user.ID).Msg("email verified")
		s.record("verify_email", nil)
		return false, nil
	}
	if !errors.Is(err, domain.ErrUserNotFound) {
		s.record("verify_email", err)
		return false, err
	}

	// The digest no longer matches: either the token was superseded or it
	// was already consumed. Only the latter is answered with success.
	existing, err := s.repo.FindByID(ctx, claims.Subject)
	switch {
	case errors.Is(err, domain.ErrUserNotFound):
		s.record("verify_email", domain.ErrInvalidToken)
		return false, domain.ErrInvalidToken
	case err != nil:
		s.record("verify_email", err)
		return false, err
	case existing.IsVerified:
		s.record("verify_email", nil)
		return true, nil
	default:
		s.record("verify_email", domain.ErrInvalidToken)
		return false, domain.ErrInvalidToken
	}
}

func (s *AuthService) ForgotPassword(ctx context.Context, email string) error {
	user, err := s.lookupForMail(ctx, email)
	if err != nil || user == nil {
		s.record("forgot_password", err)
		return err
	}

	token, err := s.tokens.Issue(user.ID, domain.PurposeResetPassword, s.ttls.Reset)
	if err != nil {
		s.record("forgot_password", err)
		return fmt.Errorf("forgot password: %w", err)
	}
	if err := s.repo.SetResetToken(ctx, user.ID, domain.TokenDigest(token)); err != nil {
		s.record("forgot_password", err)
		return err
	}

	s.notify(user.Email, func() error {
		return s.notifier.SendPasswordResetEmail(ctx, user.Email, token)
	})
	s.record("forgot_password", nil)
	return nil
}

func (s *AuthService) ResetPassword(ctx context.Context, token, newPassword string) error {
	if newPassword == "" {
		return fmt.Errorf("%w: new_password is required", domain.ErrValidation)
	}

	token = strings.TrimSpace(token)
	claims, err := s.decode(token, domain.PurposeResetPassword)
	if err != nil {
		s.record("reset_password", err)
		return err
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		s.record("reset_password", err)
		return err
	}

	user, err := s.repo.ConsumeResetToken(ctx, domain.TokenDigest(token), hash)
	if errors.Is(err, domain.ErrUserNotFound) {
		s.record("reset_password", domain.ErrInvalidToken)
		return domain.ErrInvalidToken
	}
	if err != nil {
		s.record("reset_password", err)
		return err
	}

	if user.ID != claims.Subject {
		s.log.Error().Str("subject", claims.Subject).Str("user_id", user.ID).Msg("reset token subject mismatch")
		s.record("reset_password", domain.ErrInfrastructure)
		return fmt.Errorf("reset password: %w", domain.ErrInfrastructure)
	}
	s.log.Info().Str("user_id", user.ID).Msg("password reset")
	s.record("reset_password", nil)
	return nil
}

func (s *AuthService) ResendVerification(ctx context.Context, email string) error {
	user, err := s.lookupForMail(ctx, email)
	if err != nil || user == nil {
		s.record("resend_verification", err)
		return err
	}

	if user.IsVerified {
		if s.revealStatus {
			s.record("resend_verification", domain.ErrAlreadyVerified)
			return domain.ErrAlreadyVerified
		}
		s.log.Debug().Str("user_id", user.ID).Msg("resend verification skipped, already verified")
		s.record("resend_verification", nil)
		return nil
	}

	token, err := s.tokens.Issue(user.ID, domain.PurposeVerifyEmail, s.ttls.Verification)
	if err != nil {
		s.record("resend_verification", err)
		return fmt.Errorf("resend verification: %w", err)
	}
	if err := s.repo.SetVerificationToken(ctx, user.ID, domain.TokenDigest(token)); err != nil {
		s.record("resend_verification", err)
		return err
	}

	s.notify(user.Email, func() error {
		return s.notifier.SendVerificationEmail(ctx, user.Email, token)
	})
	s.record("resend_verification", nil)
	return nil
}

func (s *AuthService) Logout(ctx context.Context, userID string) error {
	err := authenticated(s.repo.TouchLastLogout(ctx, userID, s.now().UTC()))
	s.record("logout", err)
	return err
}

func (s *AuthService) Me(ctx context.Context, userID string) (*domain.User, error) {
	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		return nil, authenticated(err)
	}
	return user, nil
}

// authenticated reports a bearer whose account no longer exists as
// unauthenticated rather than as a lookup miss.
func authenticated(err error) error {
	if errors.Is(err, domain.ErrUserNotFound) {
		return domain.ErrUnauthenticated
	}
	return err
}

// lookupForMail returns (nil, nil) for an unknown email so callers can answer
// identically whether or not the address is registered.
func (s *AuthService) lookupForMail(ctx context.Context, email string) (*domain.User, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, fmt.Errorf("%w: email is required", domain.ErrValidation)
	}
	user, err := s.repo.FindByEmail(ctx, email)
	if errors.Is(err, domain.ErrUserNotFound) {
		return nil, nil
	}
	return user, err
}

func (s *AuthService) decode(token string, purpose domain.TokenPurpose) (*domain.TokenClaims, error) {
	claims, err := s.tokens.Decode(token)
	if err != nil {
		return nil, domain.ErrInvalidToken
	}
	if claims.Purpose != purpose {
		return nil, domain.ErrInvalidToken
	}
	return claims, nil
}

// notify schedules an email. Scheduling failures are logged only.
func (s *AuthService) notify(to string, send func() error) {
	if s.notifier == nil {
		return
	}
	if err := send(); err != nil {
		s.log.Error().Err(err).Str("to", logger.MaskEmail(to)).Msg("failed to schedule email")
	}
}

func (s *AuthService) record(operation string, err error) {
	outcome := "success"
	if err != nil {
		outcome = domain.Code(err)
	}
	metrics.AuthOperationsTotal.WithLabelValues(operation, outcome).Inc()
}
