package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"
)

// WebhookNotifier POSTs the alert struct as JSON to a configured
// endpoint. Any 2xx response counts as delivered.
type WebhookNotifier struct {
	url    string
	client *http.Client
}

// NewWebhookNotifier creates a webhook notifier targeting url.
func NewWebhookNotifier(url string) *WebhookNotifier {
	return &WebhookNotifier{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (w *WebhookNotifier) Send(ctx context.Context, alert Alert) error {
	if alert.TS.IsZero() {
		alert.TS = time.Now().UTC()
	}
	body, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("webhook: marshal: %w", err)
	}

	status, err := postJSON(ctx, w.client, w.url, body)
	if err != nil {
		return fmt.Errorf("webhook: %w", err)
	}
	if status/100 != 2 {
		return fmt.Errorf("webhook: unexpected status %d", status)
	}

	log.Printf("[webhook] sent alert to %s: %s", w.url, alert.Title)
	return nil
}

// postJSON issues the request and returns the response status. Shared
// by the webhook and Telegram backends.
func postJSON(ctx context.Context, client *http.Client, url string, body []byte) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("send: %w", err)
	}
	resp.Body.Close()
	return resp.StatusCode, nil
}
