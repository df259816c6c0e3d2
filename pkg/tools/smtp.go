package tools

import (
	"context"
	"fmt"
	"time"

	"github.com/wneessen/go-mail"

	apperrors "github.com/randalmurphal/portfolio-agent/pkg/errors"
)

// SMTPConfig configures an SMTPMailer.
type SMTPConfig struct {
	Host string
	// Port defaults to 587.
	Port     int
	User     string
	Password string
	From     string
	// Timeout bounds the whole dial-and-send. Default: 30s.
	Timeout time.Duration
}

// sender is the part of *mail.Client the mailer uses.
type sender interface {
	DialAndSendWithContext(ctx context.Context, msgs ...*mail.Msg) error
}

// SMTPMailer sends plain-text mail over SMTP with mandatory STARTTLS and,
// when a user is configured, PLAIN authentication.
type SMTPMailer struct {
	from      string
	newSender func() (sender, error)
}

var _ Mailer = (*SMTPMailer)(nil)

// NewSMTPMailer validates cfg and returns a mailer. Connections are made
// per Send.
func NewSMTPMailer(cfg SMTPConfig) (*SMTPMailer, error) {
	if cfg.Host == "" {
		return nil, &apperrors.ConfigError{Key: "SMTP_HOST", Message: "not set"}
	}
	if cfg.From == "" {
		return nil, &apperrors.ConfigError{Key: "EMAIL_FROM", Message: "not set"}
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	opts := []mail.Option{
		mail.WithPort(cfg.Port),
		mail.WithTLSPolicy(mail.TLSMandatory),
		mail.WithTimeout(cfg.Timeout),
	}
	if cfg.User != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.User),
			mail.WithPassword(cfg.Password),
		)
	}

	return &SMTPMailer{
		from: cfg.From,
		newSender: func() (sender, error) {
			return mail.NewClient(cfg.Host, opts...)
		},
	}, nil
}

// Send implements Mailer.
func (m *SMTPMailer) Send(ctx context.Context, e Email) error {
	msg, err := m.message(e)
	if err != nil {
		return err
	}
	client, err := m.newSender()
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}
	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("send mail to %s: %w", e.To, err)
	}
	return nil
}

func (m *SMTPMailer) message(e Email) (*mail.Msg, error) {
	if e.To == "" {
		return nil, ErrNoRecipient
	}
	msg := mail.NewMsg()
	if err := msg.From(m.from); err != nil {
		return nil, fmt.Errorf("from address: %w", err)
	}
	if err := msg.To(e.To); err != nil {
		return nil, fmt.Errorf("to address: %w", err)
	}
	subject := e.Subject
	if subject == "" {
		subject = DefaultSubject
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextPlain, e.Body)
	return msg, nil
}
