package mail

import (
	"context"
	"fmt"
	"net/smtp"
	"time"

	"github.com/jordan-wright/email"

	"github.com/segyhp/loan-tracker/internal/config"
)

// DefaultTimeout bounds a single delivery when MailConfig.Timeout is unset
const DefaultTimeout = 30 * time.Second

// Message is a plain-text email
type Message struct {
	To      string
	Subject string
	Body    string
}

// Mailer delivers a single message
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// SMTPMailer sends email through an SMTP relay
type SMTPMailer struct {
	cfg  config.MailConfig
	send func(e *email.Email, addr string, a smtp.Auth) error
}

func NewSMTPMailer(cfg config.MailConfig) *SMTPMailer {
	return &SMTPMailer{
		cfg: cfg,
		send: func(e *email.Email, addr string, a smtp.Auth) error {
			return e.Send(addr, a)
		},
	}
}

// Send returns once the relay accepts the message, the timeout passes or
// ctx is done. A send abandoned on timeout may still complete in the
// background.
func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	e := m.build(msg)

	addr := fmt.Sprintf("%s:%s", m.cfg.SMTPHost, m.cfg.SMTPPort)
	var auth smtp.Auth
	if m.cfg.SMTPUsername != "" {
		auth = smtp.PlainAuth("", m.cfg.SMTPUsername, m.cfg.SMTPPassword, m.cfg.SMTPHost)
	}

	timeout := m.cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- m.send(e, addr, auth) }()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("failed to send email to %s: %w", msg.To, err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("failed to send email to %s: %w", msg.To, ctx.Err())
	}
}

func (m *SMTPMailer) build(msg Message) *email.Email {
	e := email.NewEmail()
	e.From = m.cfg.From
	e.To = []string{msg.To}
	e.Subject = msg.Subject
	e.Text = []byte(msg.Body)
	return e
}
