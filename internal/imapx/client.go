package imapx

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"

	// Register charset decoders (windows-1252, iso-8859-*, koi8-r, etc.)
	_ "github.com/emersion/go-message/charset"

	"github.com/tdnguyen/mailsift/internal/model"
)

// Config holds the IMAP connection settings for one account.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	TLS      bool
}

// Addr returns the host:port dial address.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Client is a live, authenticated IMAP connection. It is owned and
// mutated by a single session worker; none of its methods are safe for
// concurrent use with each other.
type Client struct {
	cfg    Config
	cli    *imapclient.Client
	folder string
	logger *slog.Logger

	// updates receives one signal per unilateral new-mail push. The
	// buffer of 1 coalesces bursts: the session drains everything new
	// in one UID search anyway.
	updates chan struct{}
}

// Dial connects to the IMAP server and authenticates. Bad credentials
// yield an AuthError; transport failures are returned as-is and are
// retryable. The caller owns the returned client and must Close it.
func Dial(_ context.Context, cfg Config, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}

	c := &Client{
		cfg:     cfg,
		logger:  logger,
		updates: make(chan struct{}, 1),
	}

	opts := &imapclient.Options{
		UnilateralDataHandler: &imapclient.UnilateralDataHandler{
			Mailbox: func(data *imapclient.UnilateralDataMailbox) {
				if data.NumMessages == nil {
					return
				}
				select {
				case c.updates <- struct{}{}:
				default:
				}
			},
		},
	}

	var cli *imapclient.Client
	var err error
	if cfg.TLS {
		cli, err = imapclient.DialTLS(cfg.Addr(), opts)
	} else {
		cli, err = imapclient.DialStartTLS(cfg.Addr(), opts)
	}
	if err != nil {
		return nil, fmt.Errorf("connecting to IMAP %s: %w", cfg.Addr(), err)
	}

	if err := cli.Login(cfg.Username, cfg.Password).Wait(); err != nil {
		_ = cli.Close()
		return nil, &AuthError{
			Account: cfg.Username,
			Message: fmt.Sprintf("authentication failed: %v", err),
		}
	}

	c.cli = cli
	return c, nil
}

// SelectFolder opens the given folder and remembers it for subsequent
// search and fetch calls.
func (c *Client) SelectFolder(_ context.Context, folder string) (*FolderStatus, error) {
	data, err := c.cli.Select(folder, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("selecting folder %s: %w", folder, err)
	}

	c.folder = folder
	return &FolderStatus{
		NumMessages: data.NumMessages,
		UIDNext:     uint32(data.UIDNext),
	}, nil
}

// SearchSince returns handles for all messages received on or after
// the given time, in the selected folder.
func (c *Client) SearchSince(_ context.Context, since time.Time) ([]Handle, error) {
	criteria := &imap.SearchCriteria{Since: since}

	data, err := c.cli.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("searching messages since %s: %w",
			since.Format(time.DateOnly), err)
	}

	return c.toHandles(data.AllUIDs()), nil
}

// SearchFromUID returns handles for all messages with a UID greater
// than or equal to uid. The session calls this after a new-mail push
// with its high-water mark + 1; searching by UID rather than trusting
// the notification's sequence numbers is deliberate, since sequence
// numbers can shift between the push and the fetch.
func (c *Client) SearchFromUID(_ context.Context, uid uint32) ([]Handle, error) {
	criteria := &imap.SearchCriteria{
		UID: []imap.UIDSet{
			{imap.UIDRange{Start: imap.UID(uid), Stop: 0}}, // uid:*
		},
	}

	data, err := c.cli.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("searching messages from uid %d: %w", uid, err)
	}

	// Servers answer "uid:*" with at least the last message even when
	// nothing is new, so filter the lower bound explicitly.
	var handles []Handle
	for _, h := range c.toHandles(data.AllUIDs()) {
		if h.UID >= uid {
			handles = append(handles, h)
		}
	}
	return handles, nil
}

// Fetch retrieves and parses the messages for the given handles,
// streaming records as the server delivers them. The sequence is
// finite and not restartable; issue a new Fetch to retry. A message
// that fails to parse is logged and skipped, never aborting the batch.
func (c *Client) Fetch(_ context.Context, handles []Handle) <-chan model.EmailRecord {
	out := make(chan model.EmailRecord)

	if len(handles) == 0 {
		close(out)
		return out
	}

	uids := make([]imap.UID, len(handles))
	for i, h := range handles {
		uids[i] = imap.UID(h.UID)
	}

	go func() {
		defer close(out)

		bodySection := &imap.FetchItemBodySection{Peek: true}
		fetchOpts := &imap.FetchOptions{
			Envelope: true,
			// The UID is requested explicitly: identity must come from
			// the server's answer, never from batch position.
			UID:         true,
			BodySection: []*imap.FetchItemBodySection{bodySection},
		}

		fetchCmd := c.cli.Fetch(imap.UIDSetNum(uids...), fetchOpts)

		for {
			msg := fetchCmd.Next()
			if msg == nil {
				break
			}

			buf, err := msg.Collect()
			if err != nil {
				c.logger.Warn("collecting message failed, skipping", "error", err)
				continue
			}

			rec, err := c.buildRecord(buf, bodySection)
			if err != nil {
				c.logger.Warn("parsing message failed, skipping",
					"uid", uint32(buf.UID), "error", err)
				continue
			}

			out <- rec
		}

		if err := fetchCmd.Close(); err != nil {
			c.logger.Warn("closing fetch", "error", err)
		}
	}()

	return out
}

// buildRecord maps a fetched message buffer to an EmailRecord.
func (c *Client) buildRecord(
	buf *imapclient.FetchMessageBuffer,
	section *imap.FetchItemBodySection,
) (model.EmailRecord, error) {
	uid := uint32(buf.UID)
	if uid == 0 {
		return model.EmailRecord{}, fmt.Errorf("server returned no UID")
	}

	rec := model.EmailRecord{
		ID:        model.RecordID(c.folder, uid),
		AccountID: c.cfg.Username,
		Folder:    c.folder,
		UID:       uid,
	}

	if buf.Envelope != nil {
		rec.Subject = buf.Envelope.Subject
		rec.ReceivedAt = buf.Envelope.Date
		if len(buf.Envelope.From) > 0 {
			from := buf.Envelope.From[0]
			if from.Name != "" {
				rec.Sender = fmt.Sprintf("%s <%s>", from.Name, from.Addr())
			} else {
				rec.Sender = from.Addr()
			}
		}
	}
	if rec.ReceivedAt.IsZero() {
		rec.ReceivedAt = time.Now().UTC()
	}

	raw := buf.FindBodySection(section)
	if raw == nil {
		return rec, fmt.Errorf("server returned no body section")
	}
	rec.Body = ParseBody(raw)

	return rec, nil
}

// Wait blocks in IDLE until the server pushes a new-mail notification,
// the watchdog period elapses, or ctx is canceled. In all cases the
// IDLE command is terminated before Wait returns, so the connection is
// free for the next command. A non-nil error means the connection is
// no longer usable.
func (c *Client) Wait(ctx context.Context, watchdog time.Duration) (Event, error) {
	// A push that raced the previous fetch may already be pending.
	select {
	case <-c.updates:
		return EventNewMail, nil
	default:
	}

	idleCmd, err := c.cli.Idle()
	if err != nil {
		return 0, fmt.Errorf("entering idle: %w", err)
	}

	timer := time.NewTimer(watchdog)
	defer timer.Stop()

	var event Event
	select {
	case <-ctx.Done():
		_ = idleCmd.Close()
		_ = idleCmd.Wait()
		return 0, ctx.Err()
	case <-c.updates:
		event = EventNewMail
	case <-timer.C:
		event = EventWatchdog
	}

	if err := idleCmd.Close(); err != nil {
		return 0, fmt.Errorf("leaving idle: %w", err)
	}
	if err := idleCmd.Wait(); err != nil {
		return 0, fmt.Errorf("leaving idle: %w", err)
	}

	return event, nil
}

// Noop sends the keep-alive probe: a NOOP control message, not a
// folder operation. The session only calls this between idle cycles,
// never while a fetch is in flight.
func (c *Client) Noop(_ context.Context) error {
	if err := c.cli.Noop().Wait(); err != nil {
		return fmt.Errorf("sending noop probe: %w", err)
	}
	return nil
}

// Close logs out and tears down the connection.
func (c *Client) Close() error {
	if c.cli == nil {
		return nil
	}
	if err := c.cli.Logout().Wait(); err != nil {
		// The server may already be gone; closing the socket is what matters.
		return c.cli.Close()
	}
	return c.cli.Close()
}

// toHandles converts the server's UIDs to handles in the selected folder.
func (c *Client) toHandles(uids []imap.UID) []Handle {
	handles := make([]Handle, 0, len(uids))
	for _, uid := range uids {
		handles = append(handles, Handle{UID: uint32(uid), Folder: c.folder})
	}
	return handles
}
