package classify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tdnguyen/mailsift/internal/model"
)

func testRecord() model.EmailRecord {
	return model.EmailRecord{
		ID:      "INBOX/42",
		Subject: "Re: partnership proposal",
		Sender:  "Bob <bob@example.com>",
		Body:    "This looks promising, tell me more.",
	}
}

func TestHTTPClassifierReturnsValidatedLabel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		var req classifyRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "Re: partnership proposal", req.Subject)

		json.NewEncoder(w).Encode(classifyResponse{Label: "Interested"})
	}))
	defer srv.Close()

	c := NewHTTP(srv.URL, "secret", 0)
	label, err := c.Classify(context.Background(), testRecord())
	require.NoError(t, err)
	assert.Equal(t, model.LabelInterested, label)
}

func TestHTTPClassifierRejectsUnknownLabel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(classifyResponse{Label: "very_keen"})
	}))
	defer srv.Close()

	c := NewHTTP(srv.URL, "", 0)
	_, err := c.Classify(context.Background(), testRecord())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unusable label")
}

func TestHTTPClassifierSurfacesServerErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewHTTP(srv.URL, "", 0)
	_, err := c.Classify(context.Background(), testRecord())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestHTTPClassifierUnreachableEndpoint(t *testing.T) {
	c := NewHTTP("http://127.0.0.1:1", "", 0)
	_, err := c.Classify(context.Background(), testRecord())
	require.Error(t, err)
}

func TestRuleClassifier(t *testing.T) {
	tests := []struct {
		name    string
		subject string
		body    string
		want    model.Label
	}{
		{"interested reply", "Re: demo", "Sounds good, schedule a call next week", model.LabelInterested},
		{"auto reply wins over interested", "Automatic Reply: demo", "I am out of office but interested", model.LabelOutOfOffice},
		{"meeting confirmation", "Meeting confirmed", "See you Tuesday", model.LabelMeetingBooked},
		{"explicit rejection", "Re: demo", "We are not interested, please remove me", model.LabelNotInterested},
		{"promotional", "Deals", "Limited time offer! Unsubscribe below", model.LabelSpam},
		{"no match falls back to default", "FYI", "Forwarding the quarterly report", model.DefaultLabel},
	}

	c := NewRules()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			label, err := c.Classify(context.Background(), model.EmailRecord{
				Subject: tt.subject,
				Body:    tt.body,
			})
			require.NoError(t, err)
			assert.Equal(t, tt.want, label)
		})
	}
}
