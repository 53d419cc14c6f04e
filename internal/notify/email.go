package notify

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/smtp"
	"strings"

	"slotwatch/internal/config"
	"slotwatch/internal/models"
)

// sendMailFunc is swappable in tests.
type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// EmailNotifier delivers the notification over plain SMTP. The
// recipient from the stored user settings, when present, overrides the
// configured one.
type EmailNotifier struct {
	cfg      config.EmailNotifyConfig
	override string
	send     sendMailFunc
}

func NewEmailNotifier(cfg config.EmailNotifyConfig) *EmailNotifier {
	return &EmailNotifier{cfg: cfg, send: smtp.SendMail}
}

func (e *EmailNotifier) Name() string { return "email" }

// WithRecipient returns a copy targeting another address.
func (e *EmailNotifier) WithRecipient(to string) *EmailNotifier {
	clone := *e
	clone.override = to
	return &clone
}

func (e *EmailNotifier) recipient() string {
	if e.override != "" {
		return e.override
	}
	return e.cfg.To
}

func (e *EmailNotifier) Notify(ctx context.Context, n models.Notification) error {
	to := e.recipient()
	if to == "" {
		return fmt.Errorf("email notify: no recipient configured")
	}

	var auth smtp.Auth
	if e.cfg.Username != "" {
		auth = smtp.PlainAuth("", e.cfg.Username, e.cfg.Password, e.cfg.SMTPHost)
	}
	addr := fmt.Sprintf("%s:%d", e.cfg.SMTPHost, e.cfg.SMTPPort)

	msg := buildMessage(e.cfg.From, to, subject, renderText(n))

	done := make(chan error, 1)
	go func() {
		done <- e.send(addr, auth, e.cfg.From, []string{to}, msg)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		if err != nil {
			return fmt.Errorf("email notify: %w", err)
		}
		return nil
	}
}

// buildMessage assembles an RFC 5322 message with the subject encoded
// for non-ASCII text.
func buildMessage(from, to, subj, body string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: =?UTF-8?B?%s?=\r\n", base64.StdEncoding.EncodeToString([]byte(subj)))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(body)
	b.WriteString("\r\n")
	return []byte(b.String())
}
