package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const maxAttempts = 3

// WebhookDispatcher posts messages to an SMS gateway webhook. Each Send makes
// up to three attempts with exponential backoff before giving up.
type WebhookDispatcher struct {
	url     string
	token   string
	http    *http.Client
	backoff time.Duration
}

func NewWebhookDispatcher(url, token string) *WebhookDispatcher {
	return &WebhookDispatcher{
		url:   strings.TrimSpace(url),
		token: strings.TrimSpace(token),
		http: &http.Client{
			Timeout: 5 * time.Second,
		},
		backoff: time.Second,
	}
}

func (d *WebhookDispatcher) Send(ctx context.Context, phone, text string) error {
	if d.url == "" {
		return errors.New("notify webhook url not configured")
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(d.backoff << (attempt - 1)):
			}
		}

		if lastErr = d.post(ctx, phone, text); lastErr == nil {
			return nil
		}
	}

	return fmt.Errorf("send after %d attempts: %w", maxAttempts, lastErr)
}

func (d *WebhookDispatcher) post(ctx context.Context, phone, text string) error {
	payload := map[string]string{
		"to":   phone,
		"body": text,
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if d.token != "" {
		req.Header.Set("Authorization", "Bearer "+d.token)
	}

	resp, err := d.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("notify webhook returned %d", resp.StatusCode)
	}
	return nil
}
