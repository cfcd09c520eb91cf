// Package pipeline runs fetched mailbox records through the fixed
// persist, classify, annotate, notify stage chain. Records are
// processed concurrently up to a configured bound; stages within one
// record always run in order, and one record's failure never touches
// its siblings.
package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"

	"github.com/tdnguyen/mailsift/internal/model"
	"github.com/tdnguyen/mailsift/internal/store"
)

const defaultWorkers = 4

// Classifier assigns a label to a record. An error means the label
// could not be determined; the pipeline then falls back to the
// conservative default instead of dropping the record.
type Classifier interface {
	Classify(ctx context.Context, rec model.EmailRecord) (model.Label, error)
}

// Notifier delivers a notification for a record that earned one.
type Notifier interface {
	Publish(ctx context.Context, rec model.EmailRecord) error
}

// Config holds pipeline tuning.
type Config struct {
	// Workers bounds how many records are in flight at once.
	Workers int
}

// Pipeline wires the stage chain to its external dependencies.
type Pipeline struct {
	store      store.RecordStore
	classifier Classifier
	notifier   Notifier
	logger     *slog.Logger
	sem        *semaphore.Weighted
}

// New creates a pipeline. The notifier may be nil when no sinks are
// configured; notification then degrades to a log line.
func New(cfg Config, st store.RecordStore, cls Classifier, n Notifier, logger *slog.Logger) *Pipeline {
	workers := cfg.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Pipeline{
		store:      st,
		classifier: cls,
		notifier:   n,
		logger:     logger,
		sem:        semaphore.NewWeighted(int64(workers)),
	}
}

// ProcessBatch drains records and runs each through the stage chain,
// at most Workers at a time. When live is false the batch is a
// historical backfill and the notify stage is suppressed. It returns
// once every record in the batch has settled.
func (p *Pipeline) ProcessBatch(ctx context.Context, records <-chan model.EmailRecord, live bool) (processed, failed int) {
	var (
		wg      sync.WaitGroup
		okCount atomic.Int64
		errCount atomic.Int64
	)

	for rec := range records {
		if err := p.sem.Acquire(ctx, 1); err != nil {
			// Canceled mid-batch: everything still queued is a failure.
			errCount.Add(1)
			for range records {
				errCount.Add(1)
			}
			break
		}

		wg.Add(1)
		go func(rec model.EmailRecord) {
			defer wg.Done()
			defer p.sem.Release(1)

			if err := p.process(ctx, rec, live); err != nil {
				errCount.Add(1)
				return
			}
			okCount.Add(1)
		}(rec)
	}

	wg.Wait()
	return int(okCount.Load()), int(errCount.Load())
}

// process runs the four stages for a single record.
func (p *Pipeline) process(ctx context.Context, rec model.EmailRecord, live bool) error {
	if err := p.store.Upsert(ctx, rec); err != nil {
		p.logger.Error("persisting record", "record", rec.ID, "error", err)
		return err
	}

	label, err := p.classifier.Classify(ctx, rec)
	if err != nil {
		p.logger.Warn("classification failed, using default label",
			"record", rec.ID, "default", model.DefaultLabel, "error", err)
		label = model.DefaultLabel
	}

	if err := p.store.SetLabel(ctx, rec.ID, label); err != nil {
		p.logger.Error("annotating record", "record", rec.ID, "label", label, "error", err)
		return err
	}

	if label != model.LabelInterested || !live {
		return nil
	}

	if p.notifier == nil {
		p.logger.Info("interested record, no notifier configured", "record", rec.ID)
		return nil
	}

	// The record is already persisted and labeled; a failed delivery
	// is logged, not counted against the record.
	if err := p.notifier.Publish(ctx, rec); err != nil {
		p.logger.Error("delivering notification", "record", rec.ID, "error", err)
	}
	return nil
}
