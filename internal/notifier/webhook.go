// Package notifier publishes terminal-state transfer events to downstream
// consumers.
package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/mide-ajayi/transflow/internal/domain"
	"github.com/mide-ajayi/transflow/internal/logging"
)

// Webhook POSTs each terminal event as JSON. Delivery is at-least-once;
// the receiver deduplicates on reference+status.
type Webhook struct {
	url        string
	httpClient *http.Client
}

func NewWebhook(url string) *Webhook {
	return &Webhook{
		url: url,
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

func (w *Webhook) Publish(ctx context.Context, event domain.TransferEvent) error {
	log := logging.FromContext(ctx)

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("Publish: marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("Publish: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("Publish: send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("Publish: unexpected status %d: %s", resp.StatusCode, string(raw))
	}

	log.Info("terminal event published", "reference", event.Reference, "status", event.Status)
	return nil
}

// Log is the fallback notifier when no webhook is configured: terminal
// events land in the structured log only.
type Log struct{}

func (Log) Publish(ctx context.Context, event domain.TransferEvent) error {
	logging.FromContext(ctx).Info("transfer reached terminal state",
		"reference", event.Reference,
		"status", event.Status,
		"failure_reason", event.FailureReason,
	)
	return nil
}
