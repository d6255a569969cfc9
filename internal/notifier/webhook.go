package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

// WebhookNotifier POSTs events as JSON to a configured endpoint.
type WebhookNotifier struct {
	URL        string
	Client     *http.Client
	MaxRetries int
}

// NewWebhookNotifier creates a notifier for the given endpoint.
func NewWebhookNotifier(url string) *WebhookNotifier {
	return &WebhookNotifier{
		URL:        url,
		Client:     &http.Client{Timeout: 30 * time.Second},
		MaxRetries: 3,
	}
}

// Publish delivers the event with exponential backoff retry. No backoff is
// slept after the final attempt.
func (w *WebhookNotifier) Publish(ctx context.Context, evt Event) error {
	var lastErr error
	for i := 0; i <= w.MaxRetries; i++ {
		err := w.send(ctx, evt)
		if err == nil {
			return nil
		}
		lastErr = err
		if i == w.MaxRetries {
			break
		}
		backoff := time.Duration(1<<uint(i)) * time.Second
		log.Printf("[WARN] webhook send failed (attempt %d/%d): %v, retrying in %v",
			i+1, w.MaxRetries+1, lastErr, backoff)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
	return fmt.Errorf("all %d retries exhausted: %w", w.MaxRetries+1, lastErr)
}

func (w *WebhookNotifier) send(ctx context.Context, evt Event) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := w.Client.Do(req)
	if err != nil {
		return fmt.Errorf("post event: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("webhook error: status %d, body: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

// LogNotifier writes formatted event summaries to the process log.
type LogNotifier struct{}

func NewLogNotifier() *LogNotifier { return &LogNotifier{} }

func (l *LogNotifier) Publish(_ context.Context, evt Event) error {
	log.Printf("[INFO] event: %s", FormatEvent(evt))
	return nil
}
