package mail

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"net/smtp"
	"strings"
	"testing"
	"time"
)

type fakeSMTPClient struct {
	from   string
	rcpts  []string
	body   bytes.Buffer
	quit   bool
	rcptFn func(string) error
}

type bufferCloser struct{ *bytes.Buffer }

func (bufferCloser) Close() error { return nil }

func (c *fakeSMTPClient) Mail(from string) error { c.from = from; return nil }
func (c *fakeSMTPClient) Rcpt(to string) error {
	if c.rcptFn != nil {
		if err := c.rcptFn(to); err != nil {
			return err
		}
	}
	c.rcpts = append(c.rcpts, to)
	return nil
}
func (c *fakeSMTPClient) Data() (io.WriteCloser, error)   { return bufferCloser{&c.body}, nil }
func (c *fakeSMTPClient) Quit() error                     { c.quit = true; return nil }
func (c *fakeSMTPClient) Close() error                    { return nil }
func (c *fakeSMTPClient) StartTLS(*tls.Config) error      { return nil }
func (c *fakeSMTPClient) Auth(smtp.Auth) error            { return nil }
func (c *fakeSMTPClient) Extension(string) (bool, string) { return true, "" }

func newTestMailer(t *testing.T, client *fakeSMTPClient) *SMTPMailer {
	t.Helper()
	m, err := NewSMTPMailer(SMTPSettings{
		Enabled:  true,
		Host:     "smtp.example.com",
		Port:     587,
		From:     "no-reply@example.com",
		FromName: "Accounts",
	})
	if err != nil {
		t.Fatalf("unexpected error creating mailer: %v", err)
	}
	m.dialFn = func(ctx context.Context, cfg SMTPSettings) (net.Conn, smtpClient, error) {
		local, remote := net.Pipe()
		_ = remote.Close()
		return local, client, nil
	}
	return m
}

func TestNewSMTPMailerValidatesConfig(t *testing.T) {
	if _, err := NewSMTPMailer(SMTPSettings{Enabled: true}); err == nil || !strings.Contains(err.Error(), "host is required") {
		t.Fatalf("expected host validation error, got %v", err)
	}
	if _, err := NewSMTPMailer(SMTPSettings{Enabled: true, Host: "smtp.example.com", Port: 587, From: "nope"}); err == nil || !strings.Contains(err.Error(), "invalid from address") {
		t.Fatalf("expected from validation error, got %v", err)
	}

	m, err := NewSMTPMailer(SMTPSettings{})
	if err != nil {
		t.Fatalf("expected disabled configuration to succeed: %v", err)
	}
	if m.cfg.Timeout != 10*time.Second {
		t.Fatalf("expected default timeout, got %v", m.cfg.Timeout)
	}
	if err := m.Send(context.Background(), Message{To: "user@example.com"}); !errors.Is(err, ErrSMTPDisabled) {
		t.Fatalf("expected ErrSMTPDisabled, got %v", err)
	}
}

func TestSMTPMailerSend(t *testing.T) {
	client := &fakeSMTPClient{}
	m := newTestMailer(t, client)

	err := m.Send(context.Background(), Message{To: "user@example.com", Subject: "Hi", Body: "line1\nline2"})
	if err != nil {
		t.Fatalf("Send error: %v", err)
	}
	if client.from != "no-reply@example.com" {
		t.Fatalf("unexpected envelope sender %q", client.from)
	}
	if len(client.rcpts) != 1 || client.rcpts[0] != "user@example.com" {
		t.Fatalf("unexpected recipients %v", client.rcpts)
	}
	if !client.quit {
		t.Fatalf("expected QUIT to be sent")
	}
	body := client.body.String()
	if !strings.Contains(body, `From: "Accounts" <no-reply@example.com>`) {
		t.Fatalf("expected display name in From header, got %q", body)
	}
	if !strings.HasSuffix(body, "line1\r\nline2") {
		t.Fatalf("expected CRLF body, got %q", body)
	}
}

func TestSMTPMailerSendErrors(t *testing.T) {
	client := &fakeSMTPClient{rcptFn: func(string) error { return errors.New("550 mailbox unavailable") }}
	m := newTestMailer(t, client)

	if err := m.Send(context.Background(), Message{To: "bad-address"}); err == nil || !strings.Contains(err.Error(), "invalid recipient address") {
		t.Fatalf("expected invalid recipient error, got %v", err)
	}
	if err := m.Send(context.Background(), Message{To: "user@example.com"}); err == nil || !strings.Contains(err.Error(), "rcpt to") {
		t.Fatalf("expected rcpt error, got %v", err)
	}

	m.dialFn = func(context.Context, SMTPSettings) (net.Conn, smtpClient, error) {
		return nil, nil, errors.New("smtp: dial smtp.example.com:587: refused")
	}
	if err := m.Send(context.Background(), Message{To: "user@example.com"}); err == nil || !strings.Contains(err.Error(), "dial") {
		t.Fatalf("expected dial error, got %v", err)
	}
}

func TestFormatMessage(t *testing.T) {
	content := formatMessage("from@example.com", "to@example.com", "Subject\r\nBreak", "Body")
	if !strings.Contains(content, "Subject: Subject  Break") {
		t.Fatalf("expected sanitised subject, got %q", content)
	}
	if !strings.Contains(content, "To: to@example.com\r\n") {
		t.Fatalf("expected to header, got %q", content)
	}
	if !strings.HasSuffix(content, "\r\n\r\nBody") {
		t.Fatalf("expected header/body separator, got %q", content)
	}
}
