// Package store defines the record store contract used by the
// processing pipeline and the search surface. Implementations live in
// the sqlite and mongo subpackages.
package store

import (
	"context"
	"errors"

	"github.com/tdnguyen/mailsift/internal/model"
)

// Sentinel errors returned by RecordStore implementations.
// Use errors.Is() to check for these.
var (
	// ErrNotFound is returned when no record exists for an ID.
	ErrNotFound = errors.New("store: record not found")

	// ErrInvalidID is returned when an empty or malformed ID is provided.
	ErrInvalidID = errors.New("store: invalid record id")

	// ErrInvalidLabel is returned when a label outside the closed set
	// is offered for persistence.
	ErrInvalidLabel = errors.New("store: invalid label")
)

// Query describes a search over stored records: free text plus
// optional equality filters and pagination.
type Query struct {
	// Text is matched against subject, sender, and body.
	Text string

	// AccountID restricts results to one account when non-empty.
	AccountID string

	// Folder restricts results to one folder when non-empty.
	Folder string

	// Page is 1-based; values below 1 are treated as 1.
	Page int

	// PageSize caps the number of records returned; implementations
	// apply a default when it is 0 or negative.
	PageSize int
}

// Page holds one page of search results.
type Page struct {
	Records []model.EmailRecord `json:"records"`
	Total   int                 `json:"total"`
	HasMore bool                `json:"has_more"`
}

// RecordStore persists EmailRecords keyed by their unique identifier.
//
// Upsert and SetLabel must provide read-after-write visibility: once
// either returns nil, the written state is observable by subsequent
// queries on any connection. All operations must be safe for
// concurrent use; each call is scoped to a single record ID, so no
// cross-record coordination is required of callers.
type RecordStore interface {
	// Upsert inserts or updates the record by ID. It writes every
	// field except Label, so re-persisting an already-annotated
	// record never clears its label. Idempotent.
	Upsert(ctx context.Context, rec model.EmailRecord) error

	// SetLabel merges the label onto an existing record as a partial
	// update. Returns ErrNotFound if the record does not exist and
	// ErrInvalidLabel if the label is outside the closed set.
	SetLabel(ctx context.Context, id string, label model.Label) error

	// Get retrieves a single record by ID.
	// Returns ErrNotFound if no record exists.
	Get(ctx context.Context, id string) (*model.EmailRecord, error)

	// Search returns the page of records matching the query,
	// newest first.
	Search(ctx context.Context, q Query) (*Page, error)

	// Close releases the underlying connection.
	Close() error
}
