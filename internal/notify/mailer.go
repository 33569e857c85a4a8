package notify

import (
	"fmt"
	"net/smtp"

	"github.com/rs/zerolog/log"

	"github.com/Shashwathi05/deskhop/internal/config"
)

// Mailer sends account mail. Delivery failures must never fail the
// calling operation; callers log them as activity instead.
type Mailer interface {
	SendVerification(to, username, token string) error
}

// SMTPMailer sends mail through a plain SMTP relay.
type SMTPMailer struct {
	config *config.SMTPConfig
}

// NewSMTPMailer creates a mailer for the given SMTP configuration.
func NewSMTPMailer(cfg *config.SMTPConfig) *SMTPMailer {
	return &SMTPMailer{config: cfg}
}

// SendVerification sends the email verification link for a new account.
// With no SMTP host configured the link is logged so development setups
// can complete signup without a relay.
func (m *SMTPMailer) SendVerification(to, username, token string) error {
	link := fmt.Sprintf("%s/verify?token=%s", m.config.BaseURL, token)

	if m.config.Host == "" {
		log.Info().
			Str("to", to).
			Str("link", link).
			Msg("SMTP not configured, verification link logged")
		return nil
	}

	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: Verify your account\r\n"+
		"MIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n"+
		"Hi %s,\r\n\r\nConfirm your email address to activate your account:\r\n\r\n%s\r\n",
		m.config.From, to, username, link)

	addr := fmt.Sprintf("%s:%d", m.config.Host, m.config.Port)

	var auth smtp.Auth
	if m.config.Username != "" {
		auth = smtp.PlainAuth("", m.config.Username, m.config.Password, m.config.Host)
	}

	if err := smtp.SendMail(addr, auth, m.config.From, []string{to}, []byte(msg)); err != nil {
		return fmt.Errorf("send verification mail: %w", err)
	}

	return nil
}
