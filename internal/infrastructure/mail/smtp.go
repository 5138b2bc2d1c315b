package mail

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"time"

	"ArxivIntel/internal/config"
	"ArxivIntel/internal/ports"
)

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPMailer delivers digests through an SMTP relay. smtp.SendMail upgrades to
// STARTTLS whenever the server offers it.
type SMTPMailer struct {
	addr string
	auth smtp.Auth
	from string
	to   []string
	send sendFunc
	now  func() time.Time
}

var _ ports.Mailer = (*SMTPMailer)(nil)

// NewSMTPMailer builds a mailer from the email section of the config.
func NewSMTPMailer(cfg config.EmailConfig) *SMTPMailer {
	var auth smtp.Auth
	if cfg.User != "" && cfg.Password != "" {
		auth = smtp.PlainAuth("", cfg.User, cfg.Password, cfg.Host)
	}
	return &SMTPMailer{
		addr: net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		auth: auth,
		from: cfg.From,
		to:   splitRecipients(cfg.To),
		send: smtp.SendMail,
		now:  time.Now,
	}
}

// Send renders the email as multipart/alternative and hands it to the relay.
func (m *SMTPMailer) Send(ctx context.Context, email ports.Email) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled before sending email: %w", err)
	}
	if len(m.to) == 0 {
		return errors.New("smtp mailer has no recipients")
	}

	msg, err := buildMIME(m.from, m.to, email, m.now())
	if err != nil {
		return err
	}
	if err := m.send(m.addr, m.auth, m.from, m.to, msg); err != nil {
		return fmt.Errorf("smtp send via %s: %w", m.addr, err)
	}
	return nil
}
