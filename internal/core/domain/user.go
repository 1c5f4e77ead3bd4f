package domain

import "time"

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User models an account holder. Token fields hold digests, never the raw
// token that was mailed out.
type User struct {
	ID                string     `json:"id"`
	Email             string     `json:"email"`
	FirstName         string     `json:"first_name"`
	Surname           string     `json:"surname"`
	PasswordHash      string     `json:"-"`
	Role              string     `json:"role"`
	IsActive          bool       `json:"is_active"`
	IsVerified        bool       `json:"is_verified"`
	VerificationToken string     `json:"-"`
	ResetToken        string     `json:"-"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
	LastLogin         *time.Time `json:"last_login,omitempty"`
	LastLogout        *time.Time `json:"last_logout,omitempty"`
}
