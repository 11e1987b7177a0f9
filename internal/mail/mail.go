// Package mail sends transactional email through SendGrid, or logs it when no key is configured.
package mail

import (
	"context"
	"errors"
	"strings"

	"github.com/diewo77/go-btp/internal/config"
	"github.com/diewo77/go-btp/internal/logger"
)

// ErrNotConfigured is returned by mailers that cannot deliver anything.
var ErrNotConfigured = errors.New("mail: transport not configured")

type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

type Address struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type Attachment struct {
	Filename string
	MIMEType string
	Content  []byte
}

type Message struct {
	From        Address
	To          []Address
	Cc          []Address
	Bcc         []Address
	Subject     string
	Text        string
	HTML        string
	Attachments []Attachment
}

// Addresses turns plain emails into Address values, skipping blanks.
func Addresses(emails ...string) []Address {
	out := make([]Address, 0, len(emails))
	for _, e := range emails {
		if e = strings.TrimSpace(e); e != "" {
			out = append(out, Address{Email: e})
		}
	}
	return out
}

// New picks SendGrid when an API key is set, the log mailer otherwise.
func New(cfg config.MailConfig, log *logger.Logger) Mailer {
	if strings.TrimSpace(cfg.APIKey) == "" {
		log.Warn("SENDGRID_API_KEY not set, emails will only be logged")
		return NewLogMailer(log)
	}
	return NewSendGrid(cfg, log)
}

// LogMailer writes messages to the log instead of sending them.
type LogMailer struct {
	log *logger.Logger
}

func NewLogMailer(log *logger.Logger) *LogMailer {
	return &LogMailer{log: log.With("service", "LogMailer")}
}

func (m *LogMailer) Send(_ context.Context, msg Message) error {
	to := make([]string, 0, len(msg.To))
	for _, a := range msg.To {
		to = append(to, a.Email)
	}
	m.log.Info("email not sent (no transport)",
		"to", strings.Join(to, ","),
		"subject", msg.Subject,
		"attachments", len(msg.Attachments),
	)
	return nil
}

// Configured reports whether mailer actually delivers.
func Configured(m Mailer) bool {
	_, isLog := m.(*LogMailer)
	return m != nil && !isLog
}
