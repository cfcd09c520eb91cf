// Package imapx wraps go-imap v2 with the small surface the mailbox
// session needs: a persistent authenticated connection, UID-based
// search and fetch, and an IDLE wait that surfaces server push
// notifications as events.
package imapx

import (
	"errors"
	"fmt"
)

// AuthError indicates that authentication failed for the mailbox
// account. It is terminal: retrying with the same credentials cannot
// succeed, so the session must not reconnect on it.
type AuthError struct {
	Account string
	Message string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("auth error (%s): %s", e.Account, e.Message)
}

// IsAuthError reports whether err (or any error in its chain) is an AuthError.
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

// Handle identifies one message on the server: the server-assigned UID
// plus the folder it belongs to. Handles are ephemeral; they are
// produced by a search or a push notification, consumed by a fetch,
// and discarded after parsing.
type Handle struct {
	UID    uint32
	Folder string
}

// FolderStatus is the state of a folder at selection time.
type FolderStatus struct {
	NumMessages uint32

	// UIDNext is the UID the server will assign to the next message.
	// The session uses UIDNext-1 as its initial high-water mark.
	UIDNext uint32
}

// Event is the reason an idle wait returned.
type Event int

const (
	// EventWatchdog means the watchdog period elapsed with no server
	// activity; the caller should send a keep-alive probe.
	EventWatchdog Event = iota

	// EventNewMail means the server pushed a new-mail notification.
	EventNewMail
)

// String returns a human-readable event name for logging.
func (e Event) String() string {
	switch e {
	case EventWatchdog:
		return "watchdog"
	case EventNewMail:
		return "new-mail"
	default:
		return fmt.Sprintf("event(%d)", int(e))
	}
}
