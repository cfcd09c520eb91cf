package classify

import (
	"context"
	"strings"

	"github.com/tdnguyen/mailsift/internal/model"
)

// RuleClassifier matches keyword phrases against the subject and body.
// Rules are checked in order and the first hit wins; a record matching
// nothing gets the conservative default.
type RuleClassifier struct {
	rules []rule
}

type rule struct {
	label    model.Label
	keywords []string
}

// NewRules creates a classifier with the built-in phrase table.
func NewRules() *RuleClassifier {
	return &RuleClassifier{
		rules: []rule{
			{model.LabelOutOfOffice, []string{
				"out of office", "on vacation", "annual leave",
				"auto-reply", "automatic reply",
			}},
			{model.LabelMeetingBooked, []string{
				"meeting confirmed", "invite accepted", "calendar invite",
				"has been scheduled", "booked a meeting",
			}},
			{model.LabelSpam, []string{
				"unsubscribe", "limited time offer", "act now",
				"congratulations you",
			}},
			{model.LabelNotInterested, []string{
				"not interested", "no thanks", "please remove me",
				"stop contacting",
			}},
			{model.LabelInterested, []string{
				"interested", "tell me more", "sounds good",
				"let's talk", "schedule a call", "send more details",
			}},
		},
	}
}

// Classify never fails; it exists so small deployments can run the
// pipeline without an external model endpoint.
func (c *RuleClassifier) Classify(_ context.Context, rec model.EmailRecord) (model.Label, error) {
	text := strings.ToLower(rec.Subject + "\n" + rec.Body)
	for _, r := range c.rules {
		for _, kw := range r.keywords {
			if strings.Contains(text, kw) {
				return r.label, nil
			}
		}
	}
	return model.DefaultLabel, nil
}
