package notifications

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

const (
	sendGridHost     = "https://api.sendgrid.com"
	sendGridEndpoint = "/v3/mail/send"
)

type EmailConfig struct {
	APIKey   string
	From     string
	FromName string
	To       []string
	Host     string // empty means the SendGrid API
}

// EmailNotifier mails the text and HTML bodies through SendGrid.
type EmailNotifier struct {
	cfg    EmailConfig
	client *sendgrid.Client
}

func NewEmailNotifier(cfg EmailConfig) (*EmailNotifier, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("email: SENDGRID_API_KEY not set")
	}
	if cfg.From == "" || len(cfg.To) == 0 {
		return nil, errors.New("email: FROM_EMAIL and TO_EMAIL are required")
	}
	if cfg.Host == "" {
		cfg.Host = sendGridHost
	}

	req := sendgrid.GetRequest(cfg.APIKey, sendGridEndpoint, cfg.Host)
	req.Method = "POST"
	return &EmailNotifier{cfg: cfg, client: &sendgrid.Client{Request: req}}, nil
}

func (e *EmailNotifier) message(report Report) *mail.SGMailV3 {
	msg := mail.NewV3Mail()
	msg.SetFrom(mail.NewEmail(e.cfg.FromName, e.cfg.From))
	msg.Subject = report.Subject

	p := mail.NewPersonalization()
	for _, to := range e.cfg.To {
		p.AddTos(mail.NewEmail("", to))
	}
	msg.AddPersonalizations(p)

	// SendGrid requires text/plain ahead of text/html.
	msg.AddContent(mail.NewContent("text/plain", report.Text))
	if report.HTML != "" {
		msg.AddContent(mail.NewContent("text/html", report.HTML))
	}
	return msg
}

func (e *EmailNotifier) Send(ctx context.Context, report Report) error {
	resp, err := e.client.SendWithContext(ctx, e.message(report))
	if err != nil {
		return fmt.Errorf("email: send: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("email: unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(resp.Body))
	}

	slog.InfoContext(ctx, "email delivered",
		slog.String("kind", string(report.Kind)),
		slog.Int("recipients", len(e.cfg.To)))
	return nil
}
