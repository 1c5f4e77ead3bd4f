package ports

import (
	"context"

	"github.com/jesi-ai/account-service/internal/core/domain"
)

// Notifier delivers account emails. Implementations handed to the auth
// service are asynchronous; a returned error only means the job could not be
// scheduled.
type Notifier interface {
	SendVerificationEmail(ctx context.Context, to, token string) error
	SendPasswordResetEmail(ctx context.Context, to, token string) error
}

// MailJob is one queued notification.
type MailJob struct {
	Kind  domain.MailKind `json:"kind"`
	To    string          `json:"to"`
	Token string          `json:"token"`
}
