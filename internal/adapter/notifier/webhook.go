package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

type webhookPayload struct {
	Subject string         `json:"subject"`
	Body    map[string]any `json:"body"`
	SentAt  time.Time      `json:"sent_at"`
}

// WebhookNotifier POSTs a JSON payload to each configured URL.
type WebhookNotifier struct {
	urls   []string
	client *http.Client
	logger *slog.Logger
}

func NewWebhookNotifier(urls []string, timeout time.Duration, logger *slog.Logger) *WebhookNotifier {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &WebhookNotifier{
		urls:   urls,
		client: &http.Client{Timeout: timeout},
		logger: logger.With("component", "webhook_notifier"),
	}
}

// Notify fails if any URL rejects the payload, so the job is retried.
func (w *WebhookNotifier) Notify(ctx context.Context, subject string, body map[string]any) error {
	if len(w.urls) == 0 {
		return nil
	}
	data, err := json.Marshal(webhookPayload{Subject: subject, Body: body, SentAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("failed to marshal webhook payload: %w", err)
	}

	var errs []string
	for _, url := range w.urls {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", url, err))
			continue
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := w.client.Do(req)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", url, err))
			continue
		}
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		_ = resp.Body.Close()
		if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
			msg := strings.TrimSpace(string(respBody))
			if msg == "" {
				msg = resp.Status
			}
			errs = append(errs, fmt.Sprintf("%s: status %d (%s)", url, resp.StatusCode, msg))
			continue
		}
		w.logger.Debug("Webhook delivered", "url", url, "subject", subject)
	}
	if len(errs) > 0 {
		return fmt.Errorf("webhook delivery failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
