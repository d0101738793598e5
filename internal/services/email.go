package services

import (
	"context"
	"errors"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/resend/resend-go/v2"

	"github.com/beaconhq/beacon/internal/config"
	"github.com/beaconhq/beacon/internal/logging"
)

// Email is a single outbound message.
type Email struct {
	To      string
	Subject string
	HTML    string
	Text    string
}

// EmailProvider sends a composed email through one delivery channel.
type EmailProvider interface {
	Send(ctx context.Context, email *Email) error
}

// EmailSender is the alert-mirroring surface the notification service uses.
type EmailSender interface {
	SendAlertEmail(ctx context.Context, userID uuid.UUID, title, message, location string) error
}

// EmailService mirrors high-priority alerts to email. Delivery is always
// best-effort; in-app notifications are the source of truth.
type EmailService struct {
	provider    EmailProvider
	db          DBConn
	fromAddress string
	fromName    string
}

func NewEmailService(cfg *config.EmailConfig, db DBConn) *EmailService {
	from := fmt.Sprintf("%s <%s>", cfg.FromName, cfg.FromAddress)

	var provider EmailProvider
	switch cfg.Provider {
	case "resend":
		provider = NewResendProvider(cfg.ResendAPIKey, from)
	case "smtp":
		provider = NewSMTPProvider(cfg.SMTPHost, cfg.SMTPPort, cfg.FromAddress)
	default:
		provider = NewConsoleProvider()
	}

	return &EmailService{
		provider:    provider,
		db:          db,
		fromAddress: cfg.FromAddress,
		fromName:    cfg.FromName,
	}
}

func (s *EmailService) SendAlertEmail(ctx context.Context, userID uuid.UUID, title, message, location string) error {
	var email string
	err := s.db.QueryRow(ctx, "SELECT email FROM users WHERE id = $1", userID).Scan(&email)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrUserNotFound
	}
	if err != nil {
		return fmt.Errorf("looking up recipient email: %w", err)
	}

	subject := title
	body := message
	if location != "" {
		body = fmt.Sprintf("%s\n\nLocation: %s", message, location)
	}

	html := fmt.Sprintf(`<!DOCTYPE html>
<html>
<body style="font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; max-width: 600px; margin: 0 auto; padding: 20px;">
  <h1 style="color: #B91C1C; font-size: 22px;">%s</h1>
  <p style="font-size: 16px;">%s</p>
  <p style="color: #999; font-size: 12px;">Beacon emergency alerts</p>
</body>
</html>`, htmlEscape(subject), strings.ReplaceAll(htmlEscape(body), "\n", "<br>"))

	return s.provider.Send(ctx, &Email{
		To:      email,
		Subject: subject,
		HTML:    html,
		Text:    body,
	})
}

func htmlEscape(value string) string {
	replacer := strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
		"\"", "&quot;",
		"'", "&#39;",
	)
	return replacer.Replace(value)
}

// ResendProvider delivers through the Resend API.
type ResendProvider struct {
	client *resend.Client
	from   string
}

func NewResendProvider(apiKey, from string) *ResendProvider {
	return &ResendProvider{client: resend.NewClient(apiKey), from: from}
}

func (p *ResendProvider) Send(ctx context.Context, email *Email) error {
	params := &resend.SendEmailRequest{
		From:    p.from,
		To:      []string{email.To},
		Subject: email.Subject,
		Html:    email.HTML,
		Text:    email.Text,
	}
	if _, err := p.client.Emails.SendWithContext(ctx, params); err != nil {
		return fmt.Errorf("sending via resend: %w", err)
	}
	return nil
}

// SMTPProvider delivers through a plain SMTP relay (Mailpit in local dev).
type SMTPProvider struct {
	host string
	port int
	from string
}

func NewSMTPProvider(host string, port int, from string) *SMTPProvider {
	return &SMTPProvider{host: host, port: port, from: from}
}

func (p *SMTPProvider) Send(ctx context.Context, email *Email) error {
	addr := fmt.Sprintf("%s:%d", p.host, p.port)
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/plain; charset=UTF-8\r\n\r\n%s",
		p.from, email.To, email.Subject, email.Text)
	if err := smtp.SendMail(addr, nil, p.from, []string{email.To}, []byte(msg)); err != nil {
		return fmt.Errorf("sending via smtp: %w", err)
	}
	return nil
}

// ConsoleProvider logs emails instead of sending them.
type ConsoleProvider struct{}

func NewConsoleProvider() *ConsoleProvider {
	return &ConsoleProvider{}
}

func (p *ConsoleProvider) Send(ctx context.Context, email *Email) error {
	logging.Info("Email (console provider)", map[string]interface{}{
		"to":      email.To,
		"subject": email.Subject,
		"text":    email.Text,
	})
	return nil
}
