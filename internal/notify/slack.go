package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const sinkTimeout = 10 * time.Second

// SlackSink posts a formatted message to a Slack incoming webhook.
type SlackSink struct {
	webhookURL string
	httpClient *http.Client
}

// NewSlack creates a Slack sink for the given incoming webhook URL.
func NewSlack(webhookURL string) *SlackSink {
	return &SlackSink{
		webhookURL: webhookURL,
		httpClient: &http.Client{Timeout: sinkTimeout},
	}
}

func (s *SlackSink) Name() string { return "slack" }

type slackMessage struct {
	Text string `json:"text"`
}

// Send posts the event summary. Slack answers incoming webhooks with a
// plain "ok" body, so only the status code is checked.
func (s *SlackSink) Send(ctx context.Context, ev Event) error {
	msg := slackMessage{
		Text: fmt.Sprintf("New interested reply from %s\n*%s*\n%s",
			ev.Record.Sender, ev.Record.Subject, ev.Record.ID),
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshaling slack message: %w", err)
	}

	req, err := http.NewRequestWithContext(
		ctx, http.MethodPost, s.webhookURL, bytes.NewReader(data),
	)
	if err != nil {
		return fmt.Errorf("creating slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("posting to slack: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("slack returned status %d: %s", resp.StatusCode, string(body))
	}
	return nil
}
