// Package memory provides a process-local UserRepository. It gives the same
// uniqueness and single-use guarantees as the database backends within one
// process and is meant for development and tests.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/jesi-ai/account-service/internal/core/domain"
)

type UserRepository struct {
	mu      sync.RWMutex
	byID    map[string]*domain.User
	byEmail map[string]string
	now     func() time.Time
}

func NewUserRepository() *UserRepository {
	return &UserRepository{
		byID:    make(map[string]*domain.User),
		byEmail: make(map[string]string),
		now:     time.Now,
	}
}

func cloneUser(u *domain.User) *domain.User {
	if u == nil {
		return nil
	}
	clone := *u
	if u.LastLogin != nil {
		t := *u.LastLogin
		clone.LastLogin = &t
	}
	if u.LastLogout != nil {
		t := *u.LastLogout
		clone.LastLogout = &t
	}
	return &clone
}

func (r *UserRepository) Create(_ context.Context, user *domain.User) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byEmail[user.Email]; exists {
		return nil, domain.ErrDuplicateEmail
	}
	stored := cloneUser(user)
	if stored.Role == "" {
		stored.Role = domain.RoleUser
	}
	now := r.now().UTC()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	if stored.UpdatedAt.IsZero() {
		stored.UpdatedAt = now
	}
	r.byID[stored.ID] = stored
	r.byEmail[stored.Email] = stored.ID
	return cloneUser(stored), nil
}

func (r *UserRepository) FindByEmail(_ context.Context, email string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byEmail[email]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return cloneUser(r.byID[id]), nil
}

func (r *UserRepository) FindByID(_ context.Context, id string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.byID[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return cloneUser(u), nil
}

func (r *UserRepository) FindByVerificationToken(_ context.Context, digest string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if u := r.findLocked(verificationToken, digest); u != nil {
		return cloneUser(u), nil
	}
	return nil, domain.ErrUserNotFound
}

func (r *UserRepository) FindByResetToken(_ context.Context, digest string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if u := r.findLocked(resetToken, digest); u != nil {
		return cloneUser(u), nil
	}
	return nil, domain.ErrUserNotFound
}

func (r *UserRepository) Save(_ context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if ownerID, taken := r.byEmail[user.Email]; taken && ownerID != user.ID {
		return domain.ErrDuplicateEmail
	}
	stored := cloneUser(user)
	stored.UpdatedAt = r.now().UTC()
	if prev, ok := r.byID[user.ID]; ok {
		stored.CreatedAt = prev.CreatedAt
		if prev.Email != user.Email {
			delete(r.byEmail, prev.Email)
		}
	} else if stored.CreatedAt.IsZero() {
		stored.CreatedAt = stored.UpdatedAt
	}
	r.byID[stored.ID] = stored
	r.byEmail[stored.Email] = stored.ID
	return nil
}

func (r *UserRepository) SetVerified(_ context.Context, id string) error {
	return r.update(id, func(u *domain.User) {
		u.IsVerified = true
		u.IsActive = true
		u.VerificationToken = ""
	})
}

func (r *UserRepository) SetVerificationToken(_ context.Context, id, digest string) error {
	return r.update(id, func(u *domain.User) { u.VerificationToken = digest })
}

func (r *UserRepository) SetResetToken(_ context.Context, id, digest string) error {
	return r.update(id, func(u *domain.User) { u.ResetToken = digest })
}

func (r *UserRepository) ClearResetToken(_ context.Context, id string) error {
	return r.update(id, func(u *domain.User) { u.ResetToken = "" })
}

func (r *UserRepository) UpdatePassword(_ context.Context, id, passwordHash string) error {
	return r.update(id, func(u *domain.User) { u.PasswordHash = passwordHash })
}

func (r *UserRepository) TouchLastLogin(_ context.Context, id string, at time.Time) error {
	return r.update(id, func(u *domain.User) { u.LastLogin = &at })
}

func (r *UserRepository) TouchLastLogout(_ context.Context, id string, at time.Time) error {
	return r.update(id, func(u *domain.User) { u.LastLogout = &at })
}

func (r *UserRepository) ConsumeVerificationToken(_ context.Context, digest string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u := r.findLocked(verificationToken, digest)
	if u == nil {
		return nil, domain.ErrUserNotFound
	}
	u.IsVerified = true
	u.IsActive = true
	u.VerificationToken = ""
	u.UpdatedAt = r.now().UTC()
	return cloneUser(u), nil
}

func (r *UserRepository) ConsumeResetToken(_ context.Context, digest, passwordHash string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u := r.findLocked(resetToken, digest)
	if u == nil {
		return nil, domain.ErrUserNotFound
	}
	u.PasswordHash = passwordHash
	u.ResetToken = ""
	u.UpdatedAt = r.now().UTC()
	return cloneUser(u), nil
}

func verificationToken(u *domain.User) string { return u.VerificationToken }
func resetToken(u *domain.User) string { return u.ResetToken }

// findLocked scans for the user whose token column equals digest. An empty
// digest never matches.
func (r *UserRepository) findLocked(column func(*domain.User) string, digest string) *domain.User {
	if digest == "" {
		return nil
	}
	for _, u := range r.byID {
		if column(u) == digest {
			return u
		}
	}
	return nil
}

func (r *UserRepository) update(id string, mutate func(*domain.User)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.byID[id]
	if !ok {
		return domain.ErrUserNotFound
	}
	mutate(u)
	u.UpdatedAt = r.now().UTC()
	return nil
}
