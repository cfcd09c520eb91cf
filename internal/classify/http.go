// Package classify assigns one of the closed label set to an email
// record. The primary implementation calls an external model endpoint
// over HTTP; a keyword rule classifier is available for deployments
// without one.
package classify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tdnguyen/mailsift/internal/model"
)

const defaultTimeout = 30 * time.Second

// HTTPClassifier sends the record text to a classification endpoint
// and validates the returned label against the closed set.
type HTTPClassifier struct {
	endpoint   string
	token      string
	httpClient *http.Client
}

// NewHTTP creates a classifier for the given endpoint. The token is
// optional; when set it is sent as a Bearer credential.
func NewHTTP(endpoint, token string, timeout time.Duration) *HTTPClassifier {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &HTTPClassifier{
		endpoint: strings.TrimRight(endpoint, "/"),
		token:    token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type classifyRequest struct {
	Subject string `json:"subject"`
	Sender  string `json:"sender"`
	Body    string `json:"body"`
}

type classifyResponse struct {
	Label string `json:"label"`
}

// Classify posts the record to the endpoint and returns the validated
// label. Any transport, status, or label-validation problem is
// returned as an error; the caller decides the fallback.
func (c *HTTPClassifier) Classify(ctx context.Context, rec model.EmailRecord) (model.Label, error) {
	data, err := json.Marshal(classifyRequest{
		Subject: rec.Subject,
		Sender:  rec.Sender,
		Body:    rec.Body,
	})
	if err != nil {
		return "", fmt.Errorf("marshaling classify request: %w", err)
	}

	req, err := http.NewRequestWithContext(
		ctx, http.MethodPost, c.endpoint, bytes.NewReader(data),
	)
	if err != nil {
		return "", fmt.Errorf("creating classify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("calling classifier: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading classifier response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf(
			"classifier returned status %d: %s",
			resp.StatusCode, string(respBody),
		)
	}

	var parsed classifyResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("unmarshaling classifier response: %w", err)
	}

	label, err := model.ParseLabel(parsed.Label)
	if err != nil {
		return "", fmt.Errorf("classifier returned unusable label: %w", err)
	}
	return label, nil
}
