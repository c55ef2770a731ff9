package services

import (
	"context"
	"errors"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/ekklesia/backend/internal/config"
)

// Mailer delivers a one-time login code to an address. Implementations
// report failure; they never retry.
type Mailer interface {
	SendCode(ctx context.Context, to, code string) error
}

// SMTPMailer is the production Mailer, sending a plain-text templated
// message over SMTP.
type SMTPMailer struct {
	Config config.MailConfig
}

func NewSMTPMailer(cfg config.MailConfig) *SMTPMailer {
	return &SMTPMailer{Config: cfg}
}

func (m *SMTPMailer) SendCode(_ context.Context, to, code string) error {
	if m.Config.Host == "" {
		return errors.New("mail delivery not configured")
	}

	var body strings.Builder
	fmt.Fprintf(&body, "From: %s\r\n", m.Config.From)
	fmt.Fprintf(&body, "To: %s\r\n", to)
	fmt.Fprintf(&body, "Subject: Your login code\r\n")
	fmt.Fprintf(&body, "\r\n")
	fmt.Fprintf(&body, "Your one-time login code is %s.\r\n", code)
	fmt.Fprintf(&body, "It expires in 10 minutes. If you did not request it, ignore this message.\r\n")

	addr := m.Config.Host + ":" + m.Config.Port
	var auth smtp.Auth
	if m.Config.Username != "" {
		auth = smtp.PlainAuth("", m.Config.Username, m.Config.Password, m.Config.Host)
	}

	return smtp.SendMail(addr, auth, m.Config.From, []string{to}, []byte(body.String()))
}
