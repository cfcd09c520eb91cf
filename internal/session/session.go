// Package session owns the single persistent mailbox connection: the
// connect/select/backfill/idle lifecycle, the keep-alive watchdog, and
// reconnection with capped exponential backoff. All connection state
// is mutated by one worker goroutine (the Run loop); the watchdog
// probe and new-mail fetches are serialized on that worker, so a probe
// can never interleave with an in-flight fetch.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/tdnguyen/mailsift/internal/imapx"
	"github.com/tdnguyen/mailsift/internal/model"
)

// Conn is the mailbox connection surface the session drives. It is
// implemented by imapx.Client; tests substitute a fake.
type Conn interface {
	// SelectFolder opens a folder and reports its status.
	SelectFolder(ctx context.Context, folder string) (*imapx.FolderStatus, error)

	// SearchSince returns handles for messages received within the
	// backfill window.
	SearchSince(ctx context.Context, since time.Time) ([]imapx.Handle, error)

	// SearchFromUID returns handles for messages with UID >= uid.
	SearchFromUID(ctx context.Context, uid uint32) ([]imapx.Handle, error)

	// Fetch streams parsed records for the given handles.
	Fetch(ctx context.Context, handles []imapx.Handle) <-chan model.EmailRecord

	// Wait blocks until a new-mail push, the watchdog period, or ctx
	// cancellation. A non-nil error means the connection is dead.
	Wait(ctx context.Context, watchdog time.Duration) (imapx.Event, error)

	// Noop sends the keep-alive probe.
	Noop(ctx context.Context) error

	// Close tears down the connection.
	Close() error
}

// Dialer establishes a new authenticated connection. It returns an
// imapx.AuthError on bad credentials, which the session treats as
// terminal; any other error is retried with backoff.
type Dialer func(ctx context.Context) (Conn, error)

// Processor consumes a batch of fetched records. When live is false
// the batch comes from the startup backfill and must not trigger
// notifications.
type Processor interface {
	ProcessBatch(ctx context.Context, records <-chan model.EmailRecord, live bool) (processed, failed int)
}

// Config holds session behavior settings.
type Config struct {
	// Folder is the mailbox folder to watch. Defaults to INBOX.
	Folder string

	// BackfillWindow is the lookback window for the startup
	// reconciliation search. Defaults to 30 days.
	BackfillWindow time.Duration

	// WatchdogPeriod is how long the session idles before sending a
	// keep-alive probe. Defaults to 29 minutes, just under the 30
	// minute idle limit many servers and middleboxes enforce.
	WatchdogPeriod time.Duration

	// IndexBackfill controls whether backfilled messages are pushed
	// through the processing pipeline (without notifications) or only
	// reconciled and discarded.
	IndexBackfill bool

	// StartupRetries bounds connection attempts before the first
	// successful folder selection. Zero means unbounded, matching the
	// run-indefinitely contract; once a folder has been selected,
	// reconnection is always unbounded.
	StartupRetries int

	// InitialBackoff and MaxBackoff shape the reconnect delays.
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// Session keeps one mailbox connection alive indefinitely and turns
// server push notifications into processed record batches. Exactly one
// Session exists per process; it is torn down only on shutdown or an
// unrecoverable auth failure.
type Session struct {
	cfg    Config
	dial   Dialer
	proc   Processor
	logger *slog.Logger

	state atomic.Int32

	// lastUID is the high-water mark of processed UIDs. It survives
	// reconnects so already-backfilled messages are never replayed as
	// live notifications. Only the Run worker touches it.
	lastUID uint32
}

// New creates a session. The dialer and processor are injected so the
// session never owns ambient global clients.
func New(cfg Config, dial Dialer, proc Processor, logger *slog.Logger) *Session {
	if cfg.Folder == "" {
		cfg.Folder = "INBOX"
	}
	if cfg.BackfillWindow <= 0 {
		cfg.BackfillWindow = 30 * 24 * time.Hour
	}
	if cfg.WatchdogPeriod <= 0 {
		cfg.WatchdogPeriod = 29 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Session{
		cfg:    cfg,
		dial:   dial,
		proc:   proc,
		logger: logger,
	}
}

// State returns the current lifecycle state. Safe for concurrent use.
func (s *Session) State() State {
	return State(s.state.Load())
}

func (s *Session) setState(st State) {
	prev := State(s.state.Swap(int32(st)))
	if prev != st {
		s.logger.Debug("session state changed", "from", prev.String(), "to", st.String())
	}
}

// Run drives the session until ctx is canceled or an unrecoverable
// error occurs. Transport errors never end the loop: the session backs
// off and reconnects, indefinitely. Only an auth failure (or an
// exhausted startup retry budget) is returned.
func (s *Session) Run(ctx context.Context) error {
	bo := newBackoff(s.cfg.InitialBackoff, s.cfg.MaxBackoff)
	attempts := 0
	everServed := false

	defer s.setState(StateDisconnected)

	for {
		if ctx.Err() != nil {
			return nil
		}

		s.setState(StateConnecting)
		conn, err := s.dial(ctx)
		if err != nil {
			if imapx.IsAuthError(err) {
				return fmt.Errorf("connecting mailbox session: %w", err)
			}
			if ctx.Err() != nil {
				return nil
			}

			attempts++
			if !everServed && s.cfg.StartupRetries > 0 && attempts > s.cfg.StartupRetries {
				return fmt.Errorf("startup connection budget (%d) exhausted: %w",
					s.cfg.StartupRetries, err)
			}

			s.setState(StateReconnecting)
			delay := bo.Next()
			s.logger.Warn("mailbox connection failed, backing off",
				"error", err, "delay", delay, "attempt", attempts)
			if !sleep(ctx, delay) {
				return nil
			}
			continue
		}

		s.setState(StateAuthenticated)

		served, err := s.serve(ctx, conn, bo)
		_ = conn.Close()
		if served {
			everServed = true
			attempts = 0
		}

		if ctx.Err() != nil {
			return nil
		}
		if imapx.IsAuthError(err) {
			return fmt.Errorf("mailbox session: %w", err)
		}

		// A clean server-initiated close lands here too: a closed
		// mailbox connection is indistinguishable in intent from a
		// transient failure, so both reconnect.
		s.setState(StateReconnecting)
		delay := bo.Next()
		s.logger.Warn("mailbox session interrupted, reconnecting",
			"error", err, "delay", delay)
		if !sleep(ctx, delay) {
			return nil
		}
	}
}

// serve runs one connected episode: select the folder, reconcile the
// backfill window, then idle for pushes until the connection dies or
// ctx is canceled. The returned bool reports whether the folder was
// successfully selected at least once.
func (s *Session) serve(ctx context.Context, conn Conn, bo *backoff) (bool, error) {
	status, err := conn.SelectFolder(ctx, s.cfg.Folder)
	if err != nil {
		return false, err
	}
	s.setState(StateFolderSelected)
	bo.Reset()

	if err := s.backfill(ctx, conn, status); err != nil {
		return true, err
	}

	for {
		s.setState(StateIdle)

		event, err := conn.Wait(ctx, s.cfg.WatchdogPeriod)
		if ctx.Err() != nil {
			return true, nil
		}
		if err != nil {
			return true, err
		}

		switch event {
		case imapx.EventWatchdog:
			if err := conn.Noop(ctx); err != nil {
				return true, err
			}

		case imapx.EventNewMail:
			s.setState(StateBusy)
			if err := s.handleNewMail(ctx, conn); err != nil {
				return true, err
			}
		}
	}
}

// backfill reconciles the configured lookback window once per
// connection and seeds the UID high-water mark so live processing only
// ever sees messages that arrived after this point.
func (s *Session) backfill(ctx context.Context, conn Conn, status *imapx.FolderStatus) error {
	since := time.Now().Add(-s.cfg.BackfillWindow)
	handles, err := conn.SearchSince(ctx, since)
	if err != nil {
		return err
	}

	high := s.lastUID
	if status.UIDNext > 0 && status.UIDNext-1 > high {
		high = status.UIDNext - 1
	}
	for _, h := range handles {
		if h.UID > high {
			high = h.UID
		}
	}
	s.lastUID = high

	if len(handles) == 0 {
		s.logger.Info("backfill window empty", "folder", s.cfg.Folder)
		return nil
	}

	records := conn.Fetch(ctx, handles)
	if s.cfg.IndexBackfill {
		processed, failed := s.proc.ProcessBatch(ctx, records, false)
		s.logger.Info("backfill indexed",
			"folder", s.cfg.Folder, "handles", len(handles),
			"processed", processed, "failed", failed)
		return nil
	}

	// Reconciliation only: fetch and discard, so parse problems in
	// historical mail surface in logs without ever touching the store.
	count := 0
	for range records {
		count++
	}
	s.logger.Info("backfill reconciled",
		"folder", s.cfg.Folder, "handles", len(handles), "parsed", count)
	return nil
}

// handleNewMail resolves a push notification to the set of new UIDs
// and runs the batch through the pipeline. The UID search is the
// source of truth; sequence numbers from the push are never used.
func (s *Session) handleNewMail(ctx context.Context, conn Conn) error {
	handles, err := conn.SearchFromUID(ctx, s.lastUID+1)
	if err != nil {
		return err
	}
	if len(handles) == 0 {
		return nil
	}

	records := conn.Fetch(ctx, handles)
	processed, failed := s.proc.ProcessBatch(ctx, records, true)

	for _, h := range handles {
		if h.UID > s.lastUID {
			s.lastUID = h.UID
		}
	}

	s.logger.Info("new mail processed",
		"folder", s.cfg.Folder, "handles", len(handles),
		"processed", processed, "failed", failed)
	return nil
}

// sleep waits for d or until ctx is canceled. It reports false when
// the wait was interrupted by cancellation.
func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
