package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// WebhookSink posts the full event JSON to an external automation
// endpoint.
type WebhookSink struct {
	url        string
	token      string
	httpClient *http.Client
}

// NewWebhook creates a webhook sink. The token is optional; when set
// it is sent as a Bearer credential.
func NewWebhook(url, token string) *WebhookSink {
	return &WebhookSink{
		url:        url,
		token:      token,
		httpClient: &http.Client{Timeout: sinkTimeout},
	}
}

func (s *WebhookSink) Name() string { return "webhook" }

// Send posts the event as-is: the receiving automation gets the event
// ID, timestamp, and the complete record payload.
func (s *WebhookSink) Send(ctx context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshaling webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(
		ctx, http.MethodPost, s.url, bytes.NewReader(data),
	)
	if err != nil {
		return fmt.Errorf("creating webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("posting webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("webhook returned status %d: %s", resp.StatusCode, string(body))
	}
	return nil
}
