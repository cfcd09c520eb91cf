package session

// State is the connection lifecycle state of the mailbox session.
//
// The legal transitions are:
//
//	Disconnected → Connecting → Authenticated → FolderSelected → Idle ⇄ Busy
//
// with Reconnecting reachable from any connected state after a
// transport error, and Disconnected terminal on shutdown or
// unrecoverable auth failure.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateAuthenticated
	StateFolderSelected
	StateIdle
	StateBusy
	StateReconnecting
)

// String returns a human-readable state name for logging.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateAuthenticated:
		return "authenticated"
	case StateFolderSelected:
		return "folder-selected"
	case StateIdle:
		return "idle"
	case StateBusy:
		return "busy"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}
