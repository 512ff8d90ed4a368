package notification

import (
	"context"
	"fmt"
	"mime/multipart"
	"net/smtp"
	"net/textproto"
	"strings"

	"github.com/rs/zerolog"

	"github.com/eventis/backstage-api/internal/config"
)

// Email is one outbound escalation message. Both bodies are always set;
// the client picks whichever part it can render.
type Email struct {
	To       string
	Subject  string
	TextBody string
	HTMLBody string
}

// Dispatcher sends escalation emails. Implementations are best-effort:
// the caller treats every returned error as log-and-continue, never as a
// reason to fail the notification that triggered the send.
type Dispatcher interface {
	Send(ctx context.Context, email Email) error
}

// SMTPDispatcher delivers escalation emails over plain SMTP.
type SMTPDispatcher struct {
	host     string
	port     int
	username string
	password string
	from     string
	logger   zerolog.Logger
}

func NewSMTPDispatcher(cfg config.EmailConfig, logger zerolog.Logger) (*SMTPDispatcher, error) {
	host := strings.TrimSpace(cfg.SMTPHost)
	from := strings.TrimSpace(cfg.From)
	if host == "" {
		return nil, fmt.Errorf("smtp_host is required for email dispatch")
	}
	if from == "" {
		return nil, fmt.Errorf("from is required for email dispatch")
	}
	port := cfg.SMTPPort
	if port == 0 {
		port = 587
	}

	return &SMTPDispatcher{
		host:     host,
		port:     port,
		username: strings.TrimSpace(cfg.Username),
		password: cfg.Password,
		from:     from,
		logger:   logger.With().Str("component", "email_dispatcher").Logger(),
	}, nil
}

func (d *SMTPDispatcher) Send(_ context.Context, email Email) error {
	message, err := buildMessage(d.from, email)
	if err != nil {
		return fmt.Errorf("build email message: %w", err)
	}

	addr := fmt.Sprintf("%s:%d", d.host, d.port)
	var auth smtp.Auth
	if d.username != "" {
		auth = smtp.PlainAuth("", d.username, d.password, d.host)
	}

	if err := smtp.SendMail(addr, auth, d.from, []string{email.To}, message); err != nil {
		return err
	}

	d.logger.Info().
		Str("to", email.To).
		Str("subject", email.Subject).
		Msg("escalation email sent")
	return nil
}

// buildMessage assembles a multipart/alternative MIME message with a
// plaintext part and an HTML part.
func buildMessage(from string, email Email) ([]byte, error) {
	var body strings.Builder
	writer := multipart.NewWriter(&body)

	headers := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: multipart/alternative; boundary=%q\r\n\r\n",
		from, email.To, email.Subject, writer.Boundary())

	textPart, err := writer.CreatePart(textproto.MIMEHeader{
		"Content-Type": {`text/plain; charset="UTF-8"`},
	})
	if err != nil {
		return nil, err
	}
	if _, err := textPart.Write([]byte(email.TextBody)); err != nil {
		return nil, err
	}

	htmlPart, err := writer.CreatePart(textproto.MIMEHeader{
		"Content-Type": {`text/html; charset="UTF-8"`},
	})
	if err != nil {
		return nil, err
	}
	if _, err := htmlPart.Write([]byte(email.HTMLBody)); err != nil {
		return nil, err
	}

	if err := writer.Close(); err != nil {
		return nil, err
	}
	return []byte(headers + body.String()), nil
}
