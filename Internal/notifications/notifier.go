// Package notifications renders run reports and delivers them by email,
// webhook or console.
package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// Notifier is the interface for all delivery backends.
type Notifier interface {
	Send(ctx context.Context, report Report) error
}

// LogNotifier logs a summary line and prints the text body to out.
type LogNotifier struct {
	out io.Writer
}

// NewLogNotifier creates a console notifier. A nil writer only logs.
func NewLogNotifier(out io.Writer) *LogNotifier {
	return &LogNotifier{out: out}
}

func (n *LogNotifier) Send(ctx context.Context, report Report) error {
	slog.InfoContext(ctx, "report ready",
		slog.String("kind", string(report.Kind)),
		slog.String("subject", report.Subject))
	if n.out == nil {
		return nil
	}
	_, err := io.WriteString(n.out, report.Text)
	return err
}

// WebhookNotifier posts reports as JSON to an HTTP endpoint.
type WebhookNotifier struct {
	url    string
	client *http.Client
}

func NewWebhookNotifier(url string) *WebhookNotifier {
	return &WebhookNotifier{
		url: url,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (w *WebhookNotifier) Send(ctx context.Context, report Report) error {
	payload := map[string]interface{}{
		"kind":    string(report.Kind),
		"subject": report.Subject,
		"text":    report.Text,
		"html":    report.HTML,
		"ts":      time.Now().UTC().Format(time.RFC3339Nano),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("webhook: marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook: unexpected status %d", resp.StatusCode)
	}

	slog.InfoContext(ctx, "webhook delivered", slog.String("subject", report.Subject))
	return nil
}

// MultiNotifier sends to every backend and joins their failures. One
// failing backend does not stop the others.
type MultiNotifier []Notifier

func (m MultiNotifier) Send(ctx context.Context, report Report) error {
	var errs []error
	for _, n := range m {
		if err := n.Send(ctx, report); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
