package imapx

import (
	"bytes"
	"io"
	"strings"

	"github.com/emersion/go-message/mail"
)

// ParseBody extracts the text content from a raw RFC 5322 message.
// The text/plain part is preferred; an HTML part is used as a
// fallback, and a message that cannot be parsed as MIME at all is
// treated as plain text.
func ParseBody(raw []byte) string {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		return string(raw)
	}
	defer mr.Close()

	var textBody, htmlBody string

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			break
		}

		h, ok := part.Header.(*mail.InlineHeader)
		if !ok {
			// Attachments are metadata-only for this system; the
			// record store never carries their content.
			continue
		}

		contentType, _, _ := h.ContentType()
		body, readErr := io.ReadAll(part.Body)
		if readErr != nil {
			continue
		}

		switch {
		case strings.HasPrefix(contentType, "text/plain"):
			textBody = string(body)
		case strings.HasPrefix(contentType, "text/html"):
			htmlBody = string(body)
		}
	}

	if textBody != "" {
		return strings.TrimSpace(textBody)
	}
	return strings.TrimSpace(htmlBody)
}
