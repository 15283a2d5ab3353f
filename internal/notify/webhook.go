// Package notify delivers budget alerts to the chat bot.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"zapgastos/internal/alert"
	"zapgastos/internal/logger"
)

// Notifier delivers an alert to the user.
type Notifier interface {
	Notify(ctx context.Context, d *alert.Descriptor) error
}

// Event is the body posted to the webhook.
type Event struct {
	Event  string            `json:"event"`
	SentAt time.Time         `json:"sent_at"`
	Alert  *alert.Descriptor `json:"alert"`
}

// EventBudgetAlert names budget alert events.
const EventBudgetAlert = "budget_alert"

// Webhook posts alerts to an N8N webhook URL.
type Webhook struct {
	url    string
	client *http.Client
}

// NewWebhook returns a Webhook notifier. It returns nil when url is empty,
// which callers treat as notifications disabled.
func NewWebhook(url string, timeout time.Duration) *Webhook {
	if url == "" {
		return nil
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Webhook{url: url, client: &http.Client{Timeout: timeout}}
}

// Notify posts the descriptor. Any non-2xx response is an error.
func (w *Webhook) Notify(ctx context.Context, d *alert.Descriptor) error {
	body, err := json.Marshal(Event{Event: EventBudgetAlert, SentAt: time.Now().UTC(), Alert: d})
	if err != nil {
		return fmt.Errorf("encode alert: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	logger.Named("notify").Debugw("budget alert delivered", "period_id", d.PeriodID, "kind", d.Kind)
	return nil
}
