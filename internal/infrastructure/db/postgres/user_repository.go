package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/jesi-ai/account-service/internal/core/domain"
)

const uniqueViolation = "23505"

// DBTX is the subset of database/sql used by the repository.
// Both *sql.DB and *sql.Tx satisfy it.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const userColumns = `id, email, first_name, surname, hashed_password, role, is_active, is_verified,
       verification_token, reset_token, created_at, updated_at, last_login, last_logout`

type UserRepository struct {
	db      DBTX
	timeout time.Duration
}

// NewUserRepository bounds every statement by timeout; zero means the
// package default.
func NewUserRepository(db DBTX, timeout time.Duration) *UserRepository {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &UserRepository{db: db, timeout: timeout}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*domain.User, error) {
	var (
		u                   domain.User
		verifyTok, resetTok sql.NullString
		lastLogin, lastOut  sql.NullTime
	)
	err := row.Scan(
		&u.ID, &u.Email, &u.FirstName, &u.Surname, &u.PasswordHash, &u.Role,
		&u.IsActive, &u.IsVerified, &verifyTok, &resetTok,
		&u.CreatedAt, &u.UpdatedAt, &lastLogin, &lastOut,
	)
	if err != nil {
		return nil, err
	}
	u.VerificationToken = verifyTok.String
	u.ResetToken = resetTok.String
	if lastLogin.Valid {
		t := lastLogin.Time
		u.LastLogin = &t
	}
	if lastOut.Valid {
		t := lastOut.Time
		u.LastLogout = &t
	}
	return &u, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// wrapDBError maps driver failures onto domain errors. Timeouts and lost
// connections become domain.ErrUnavailable.
func wrapDBError(op string, err error) error {
	var pgErr *pgconn.PgError
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return domain.ErrUserNotFound
	case errors.As(err, &pgErr) && pgErr.Code == uniqueViolation:
		return domain.ErrDuplicateEmail
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, driver.ErrBadConn),
		errors.Is(err, sql.ErrConnDone),
		pgconn.Timeout(err):
		return fmt.Errorf("db error: %s: %w: %w", op, domain.ErrUnavailable, err)
	default:
		return fmt.Errorf("db error: %s: %w: %w", op, domain.ErrInfrastructure, err)
	}
}

func (r *UserRepository) Create(ctx context.Context, user *domain.User) (*domain.User, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	role := user.Role
	if role == "" {
		role = domain.RoleUser
	}
	query :=
		`INSERT INTO users (id, email, first_name, surname, hashed_password, role, is_active, is_verified,
                    verification_token, reset_token, created_at, updated_at)
         VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
         RETURNING ` + userColumns

	created, err := scanUser(r.db.QueryRowContext(ctx, query,
		user.ID, user.Email, user.FirstName, user.Surname, user.PasswordHash, role,
		user.IsActive, user.IsVerified, nullString(user.VerificationToken), nullString(user.ResetToken),
		user.CreatedAt, user.UpdatedAt,
	))
	if err != nil {
		return nil, wrapDBError("create user", err)
	}
	return created, nil
}

func (r *UserRepository) findOne(ctx context.Context, op, where string, arg any) (*domain.User, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `SELECT ` + userColumns + ` FROM users WHERE ` + where
	u, err := scanUser(r.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		return nil, wrapDBError(op, err)
	}
	return u, nil
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.findOne(ctx, "find user by email", "email = $1", email)
}

func (r *UserRepository) FindByID(ctx context.Context, id string) (*domain.User, error) {
	return r.findOne(ctx, "find user by id", "id = $1", id)
}

func (r *UserRepository) FindByVerificationToken(ctx context.Context, digest string) (*domain.User, error) {
	if digest == "" {
		return nil, domain.ErrUserNotFound
	}
	return r.findOne(ctx, "find user by verification token", "verification_token = $1", digest)
}

func (r *UserRepository) FindByResetToken(ctx context.Context, digest string) (*domain.User, error) {
	if digest == "" {
		return nil, domain.ErrUserNotFound
	}
	return r.findOne(ctx, "find user by reset token", "reset_token = $1", digest)
}

func (r *UserRepository) Save(ctx context.Context, user *domain.User) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query :=
		`INSERT INTO users (id, email, first_name, surname, hashed_password, role, is_active, is_verified,
                    verification_token, reset_token, last_login, last_logout)
         VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
         ON CONFLICT (id) DO UPDATE SET
             email = EXCLUDED.email,
             first_name = EXCLUDED.first_name,
             surname = EXCLUDED.surname,
             hashed_password = EXCLUDED.hashed_password,
             role = EXCLUDED.role,
             is_active = EXCLUDED.is_active,
             is_verified = EXCLUDED.is_verified,
             verification_token = EXCLUDED.verification_token,
             reset_token = EXCLUDED.reset_token,
             last_login = EXCLUDED.last_login,
             last_logout = EXCLUDED.last_logout,
             updated_at = now()`

	_, err := r.db.ExecContext(ctx, query,
		user.ID, user.Email, user.FirstName, user.Surname, user.PasswordHash, user.Role,
		user.IsActive, user.IsVerified, nullString(user.VerificationToken), nullString(user.ResetToken),
		nullTime(user.LastLogin), nullTime(user.LastLogout),
	)
	if err != nil {
		return wrapDBError("save user", err)
	}
	return nil
}

// exec runs an UPDATE keyed by id and reports domain.ErrUserNotFound when no
// row was touched.
func (r *UserRepository) exec(ctx context.Context, op, set string, args ...any) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `UPDATE users SET ` + set + `, updated_at = now() WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return wrapDBError(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return wrapDBError(op, err)
	}
	if n == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

func (r *UserRepository) SetVerified(ctx context.Context, id string) error {
	return r.exec(ctx, "set verified", "is_verified = TRUE, is_active = TRUE, verification_token = NULL", id)
}

func (r *UserRepository) SetVerificationToken(ctx context.Context, id, digest string) error {
	return r.exec(ctx, "set verification token", "verification_token = $2", id, nullString(digest))
}

func (r *UserRepository) SetResetToken(ctx context.Context, id, digest string) error {
	return r.exec(ctx, "set reset token", "reset_token = $2", id, nullString(digest))
}

func (r *UserRepository) ClearResetToken(ctx context.Context, id string) error {
	return r.exec(ctx, "clear reset token", "reset_token = NULL", id)
}

func (r *UserRepository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	return r.exec(ctx, "update password", "hashed_password = $2", id, passwordHash)
}

func (r *UserRepository) TouchLastLogin(ctx context.Context, id string, at time.Time) error {
	return r.exec(ctx, "touch last login", "last_login = $2", id, at)
}

func (r *UserRepository) TouchLastLogout(ctx context.Context, id string, at time.Time) error {
	return r.exec(ctx, "touch last logout", "last_logout = $2", id, at)
}

func (r *UserRepository) ConsumeVerificationToken(ctx context.Context, digest string) (*domain.User, error) {
	if digest == "" {
		return nil, domain.ErrUserNotFound
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query :=
		`UPDATE users
         SET is_verified = TRUE, is_active = TRUE, verification_token = NULL, updated_at = now()
         WHERE verification_token = $1
         RETURNING ` + userColumns

	u, err := scanUser(r.db.QueryRowContext(ctx, query, digest))
	if err != nil {
		return nil, wrapDBError("consume verification token", err)
	}
	return u, nil
}

func (r *UserRepository) ConsumeResetToken(ctx context.Context, digest, passwordHash string) (*domain.User, error) {
	if digest == "" {
		return nil, domain.ErrUserNotFound
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query :=
		`UPDATE users
         SET hashed_password = $2, reset_token = NULL, updated_at = now()
         WHERE reset_token = $1
         RETURNING ` + userColumns

	u, err := scanUser(r.db.QueryRowContext(ctx, query, digest, passwordHash))
	if err != nil {
		return nil, wrapDBError("consume reset token", err)
	}
	return u, nil
}
