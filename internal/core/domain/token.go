package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// TokenPurpose tags what a signed token may be used for. A token issued for
// one purpose is rejected everywhere else.
type TokenPurpose string

const (
	PurposeLogin         TokenPurpose = "login"
	PurposeVerifyEmail   TokenPurpose = "verify_email"
	PurposeResetPassword TokenPurpose = "reset_password"
)

func (p TokenPurpose) Valid() bool {
	switch p {
	case PurposeLogin, PurposeVerifyEmail, PurposeResetPassword:
		return true
	}
	return false
}

// TokenClaims is the decoded, already-validated content of a token.
type TokenClaims struct {
	Subject   string
	Purpose   TokenPurpose
	ExpiresAt time.Time
}

// MailKind identifies which templated email a notification job carries.
type MailKind string

const (
	MailVerification  MailKind = "verification"
	MailPasswordReset MailKind = "password_reset"
)

// TokenDigest is the form in which single-use tokens are persisted, so a
// leaked users table does not hand out working links.
func TokenDigest(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
