package mail

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/jesi-ai/account-service/internal/core/domain"
	"github.com/jesi-ai/account-service/internal/core/ports"
)

// Deliverer renders queued jobs into messages and sends them.
type Deliverer struct {
	mailer      Mailer
	frontendURL string
}

func NewDeliverer(mailer Mailer, frontendURL string) *Deliverer {
	return &Deliverer{mailer: mailer, frontendURL: strings.TrimRight(frontendURL, "/")}
}

func (d *Deliverer) Deliver(ctx context.Context, job ports.MailJob) error {
	msg, err := d.render(job)
	if err != nil {
		return err
	}
	return d.mailer.Send(ctx, msg)
}

func (d *Deliverer) render(job ports.MailJob) (Message, error) {
	switch job.Kind {
	case domain.MailVerification:
		link := d.link("/verify-email", job.Token)
		return Message{
			To:      job.To,
			Subject: "Verify your email",
			Body: "Welcome!\n\n" +
				"Please open the link below to verify your email address:\n\n" +
				link + "\n\n" +
				"If you did not create an account, you can ignore this message.\n",
		}, nil
	case domain.MailPasswordReset:
		link := d.link("/reset-password", job.Token)
		return Message{
			To:      job.To,
			Subject: "Reset your password",
			Body: "We received a request to reset your password.\n\n" +
				"Open the link below to choose a new one:\n\n" +
				link + "\n\n" +
				"If you did not ask for a reset, no action is needed.\n",
		}, nil
	default:
		return Message{}, fmt.Errorf("mail: unknown job kind %q", job.Kind)
	}
}

func (d *Deliverer) link(path, token string) string {
	return d.frontendURL + path + "?" + url.Values{"token": {token}}.Encode()
}
