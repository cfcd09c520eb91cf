package model

import (
	"fmt"
	"strings"
)

// Label is the classification assigned to a stored message.
// The set of valid labels is closed; anything else is rejected at the
// boundary and never persisted.
type Label string

const (
	// LabelInterested marks a reply expressing genuine interest. It is
	// the only label that triggers outbound notifications.
	LabelInterested Label = "interested"

	// LabelMeetingBooked marks a reply confirming a scheduled meeting.
	LabelMeetingBooked Label = "meeting_booked"

	// LabelNotInterested marks a negative or irrelevant reply. It is
	// also the conservative default applied when classification fails.
	LabelNotInterested Label = "not_interested"

	// LabelSpam marks unsolicited or junk mail.
	LabelSpam Label = "spam"

	// LabelOutOfOffice marks an automated out-of-office response.
	LabelOutOfOffice Label = "out_of_office"
)

// DefaultLabel is applied when the classifier is unavailable or returns
// a value outside the closed set.
const DefaultLabel = LabelNotInterested

// labels holds every valid label for membership checks.
var labels = map[Label]struct{}{
	LabelInterested:    {},
	LabelMeetingBooked: {},
	LabelNotInterested: {},
	LabelSpam:          {},
	LabelOutOfOffice:   {},
}

// Valid reports whether l is a member of the closed label set.
func (l Label) Valid() bool {
	_, ok := labels[l]
	return ok
}

// ParseLabel normalizes raw into a Label. It accepts case and
// whitespace variations ("Meeting Booked" -> meeting_booked) but
// rejects any value outside the closed set.
func ParseLabel(raw string) (Label, error) {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	normalized = strings.ReplaceAll(normalized, " ", "_")
	normalized = strings.ReplaceAll(normalized, "-", "_")

	l := Label(normalized)
	if !l.Valid() {
		return "", fmt.Errorf("invalid label %q", raw)
	}
	return l, nil
}
