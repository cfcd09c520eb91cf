// Package notify delivers interest notifications to configured sinks.
// Every sink gets the full record payload; delivery is fan-out and a
// failing sink never blocks the others.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/tdnguyen/mailsift/internal/model"
)

// Event is the notification payload delivered to every sink.
type Event struct {
	ID        string            `json:"id"`
	EmittedAt time.Time         `json:"emitted_at"`
	Record    model.EmailRecord `json:"record"`
}

// NewEvent wraps a record in a uniquely identified event.
func NewEvent(rec model.EmailRecord) Event {
	return Event{
		ID:        uuid.NewString(),
		EmittedAt: time.Now().UTC(),
		Record:    rec,
	}
}

// Sink delivers one event to one destination.
type Sink interface {
	Name() string
	Send(ctx context.Context, ev Event) error
}

// Fanout publishes each record to every configured sink.
type Fanout struct {
	sinks  []Sink
	logger *slog.Logger
}

// NewFanout creates a fan-out notifier over the given sinks.
func NewFanout(sinks []Sink, logger *slog.Logger) *Fanout {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fanout{sinks: sinks, logger: logger}
}

// Publish sends the record to every sink and joins the failures. A
// partial delivery still reaches the healthy sinks.
func (f *Fanout) Publish(ctx context.Context, rec model.EmailRecord) error {
	ev := NewEvent(rec)

	var errs []error
	for _, sink := range f.sinks {
		if err := sink.Send(ctx, ev); err != nil {
			f.logger.Error("notification delivery failed",
				"sink", sink.Name(), "record", rec.ID, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", sink.Name(), err))
			continue
		}
		f.logger.Debug("notification delivered",
			"sink", sink.Name(), "record", rec.ID, "event", ev.ID)
	}
	return errors.Join(errs...)
}
