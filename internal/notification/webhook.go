package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"signal-engine/internal/strategy"
)

// WebhookNotifier POSTs each signal as JSON to an HTTP endpoint owned by a
// display layer.
type WebhookNotifier struct {
	url    string
	client *http.Client
}

// webhookPayload is the body posted for each signal.
type webhookPayload struct {
	Level  Level           `json:"level"`
	Signal strategy.Signal `json:"signal"`
	SentAt time.Time       `json:"sentAt"`
}

// NewWebhookNotifier creates a webhook notifier.
// url: The HTTP endpoint to POST signals to.
func NewWebhookNotifier(url string) *WebhookNotifier {
	return &WebhookNotifier{
		url: url,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (w *WebhookNotifier) Send(ctx context.Context, s strategy.Signal) error {
	body, err := json.Marshal(webhookPayload{
		Level:  LevelOf(s),
		Signal: s,
		SentAt: time.Now().UTC(),
	})
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
	return nil
}
