package imapx

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseBodyPlainText(t *testing.T) {
	raw := strings.Join([]string{
		"From: alice@example.org",
		"To: bob@example.com",
		"Subject: hello",
		"Content-Type: text/plain; charset=utf-8",
		"",
		"Yes, I'm interested. Let's set up a call.",
		"",
	}, "\r\n")

	body := ParseBody([]byte(raw))
	assert.Equal(t, "Yes, I'm interested. Let's set up a call.", body)
}

func TestParseBodyPrefersPlainOverHTML(t *testing.T) {
	raw := strings.Join([]string{
		"From: alice@example.org",
		"To: bob@example.com",
		"Subject: hello",
		"MIME-Version: 1.0",
		"Content-Type: multipart/alternative; boundary=frontier",
		"",
		"--frontier",
		"Content-Type: text/plain; charset=utf-8",
		"",
		"plain text wins",
		"--frontier",
		"Content-Type: text/html; charset=utf-8",
		"",
		"<p>html loses</p>",
		"--frontier--",
		"",
	}, "\r\n")

	body := ParseBody([]byte(raw))
	assert.Equal(t, "plain text wins", body)
}

func TestParseBodyFallsBackToHTML(t *testing.T) {
	raw := strings.Join([]string{
		"From: alice@example.org",
		"To: bob@example.com",
		"Subject: hello",
		"MIME-Version: 1.0",
		"Content-Type: multipart/alternative; boundary=frontier",
		"",
		"--frontier",
		"Content-Type: text/html; charset=utf-8",
		"",
		"<p>only html here</p>",
		"--frontier--",
		"",
	}, "\r\n")

	body := ParseBody([]byte(raw))
	assert.Equal(t, "<p>only html here</p>", body)
}

func TestParseBodyUnparseableFallsBackToRaw(t *testing.T) {
	body := ParseBody([]byte("not an rfc5322 message at all"))
	assert.Equal(t, "not an rfc5322 message at all", body)
}
