package service

import (
	"context"
	"fmt"

	"github.com/pmassist/authd/internal/config"
	"github.com/sirupsen/logrus"
	"gopkg.in/gomail.v2"
)

// CodeSender delivers the plaintext code to the address that requested
// it. Delivery is synchronous: a failure fails the whole request.
type CodeSender interface {
	Send(ctx context.Context, email, code string) error
}

type SMTPSender struct {
	dialer *gomail.Dialer
	from   string
	logger *logrus.Logger
}

func NewSMTPSender(cfg *config.SMTPConfig, logger *logrus.Logger) *SMTPSender {
	return &SMTPSender{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:   cfg.From,
		logger: logger,
	}
}

func (s *SMTPSender) Send(ctx context.Context, email, code string) error {
	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", email)
	m.SetHeader("Subject", "Your sign-in code")

	body := fmt.Sprintf(`
		<h3>Your sign-in code</h3>
		<p>Enter the following code to sign in: <strong>%s</strong></p>
		<p>The code expires in 10 minutes. If you did not request it, you can ignore this email.</p>
	`, code)

	m.SetBody("text/html", body)

	if err := s.dialer.DialAndSend(m); err != nil {
		s.logger.WithError(err).WithField("email", email).Error("Failed to send sign-in code")
		return fmt.Errorf("failed to send sign-in code: %w", err)
	}

	return nil
}

// LogSender logs codes instead of emailing them. Used when SMTP is not
// configured, for local development only.
type LogSender struct {
	logger *logrus.Logger
}

func NewLogSender(logger *logrus.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(ctx context.Context, email, code string) error {
	s.logger.WithFields(logrus.Fields{
		"email": email,
		"code":  code,
	}).Info("Sign-in code generated (logged for development)")
	return nil
}
