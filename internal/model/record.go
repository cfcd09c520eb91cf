package model

import (
	"fmt"
	"time"
)

// EmailRecord is the durable unit stored for every mirrored message.
// ID is derived from the folder and the server-assigned UID and is
// immutable once assigned; it is the sole key used for upserts.
// Re-processing a record with the same ID must be idempotent, with
// last-write-wins semantics on the mutable Label field only.
type EmailRecord struct {
	ID         string    `db:"id" json:"id"`
	AccountID  string    `db:"account_id" json:"account_id"`
	Folder     string    `db:"folder" json:"folder"`
	UID        uint32    `db:"uid" json:"uid"`
	Subject    string    `db:"subject" json:"subject"`
	Sender     string    `db:"sender" json:"sender"`
	Body       string    `db:"body" json:"body"`
	ReceivedAt time.Time `db:"received_at" json:"received_at"`

	// Label is empty until the record has been classified.
	Label Label `db:"label" json:"label,omitempty"`
}

// RecordID builds the stable unique identifier for a message. It is
// UID-derived on purpose: sequence numbers shift as the mailbox
// changes, UIDs do not.
func RecordID(folder string, uid uint32) string {
	return fmt.Sprintf("%s/%d", folder, uid)
}
