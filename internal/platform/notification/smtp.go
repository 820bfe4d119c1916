package notification

import (
	"context"
	"fmt"

	"gopkg.in/gomail.v2"
)

// SMTPConfig configures the SMTP email sender.
type SMTPConfig struct {
	Host      string
	Port      int
	Username  string
	Password  string
	FromName  string
	FromEmail string
}

// SMTPSender sends HTML email through an SMTP relay.
type SMTPSender struct {
	cfg    SMTPConfig
	dialer *gomail.Dialer
}

func NewSMTPSender(cfg SMTPConfig) (*SMTPSender, error) {
	if cfg.Username == "" || cfg.Password == "" {
		return nil, fmt.Errorf("SMTP credentials not configured")
	}
	if cfg.FromEmail == "" {
		cfg.FromEmail = cfg.Username
	}
	return &SMTPSender{
		cfg:    cfg,
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
	}, nil
}

func (s *SMTPSender) message(to, subject, htmlBody string) *gomail.Message {
	m := gomail.NewMessage()
	m.SetAddressHeader("From", s.cfg.FromEmail, s.cfg.FromName)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/html", htmlBody)
	return m
}

// SendEmail dials the relay for each message. gomail has no context support,
// so cancellation is only checked before dialing.
func (s *SMTPSender) SendEmail(ctx context.Context, to, subject, htmlBody string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.dialer.DialAndSend(s.message(to, subject, htmlBody)); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}
