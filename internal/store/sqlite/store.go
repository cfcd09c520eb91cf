// Package sqlite implements store.RecordStore on a local SQLite
// database. It is the default backend: a single file, no external
// service, and read-after-write visibility by construction.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/tdnguyen/mailsift/internal/model"
	"github.com/tdnguyen/mailsift/internal/store"
)

// defaultPageSize is applied when a query does not specify one.
const defaultPageSize = 20

// maxPageSize caps a single page of search results.
const maxPageSize = 100

// Store implements store.RecordStore using SQLite.
type Store struct {
	db *sqlx.DB
}

// New opens (or creates) a SQLite database at dbPath, enables WAL
// mode, and runs any pending schema migrations.
func New(dbPath string) (*Store, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// runMigrations checks the current schema version and applies any
// outstanding migrations in order.
func (s *Store) runMigrations() error {
	currentVersion := 0

	// Check if schema_version table exists.
	var tableCount int
	err := s.db.Get(
		&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	)
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}

	if tableCount > 0 {
		err = s.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}

	return nil
}

// Upsert inserts or updates a record by ID. The label column is
// deliberately excluded from the conflict update so that re-persisting
// a message never clears a previously assigned label.
func (s *Store) Upsert(ctx context.Context, rec model.EmailRecord) error {
	if rec.ID == "" {
		return store.ErrInvalidID
	}

	const query = `
		INSERT INTO records (
			id, account_id, folder, uid,
			subject, sender, body, received_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			account_id  = excluded.account_id,
			folder      = excluded.folder,
			uid         = excluded.uid,
			subject     = excluded.subject,
			sender      = excluded.sender,
			body        = excluded.body,
			received_at = excluded.received_at,
			updated_at  = CURRENT_TIMESTAMP`

	_, err := s.db.ExecContext(ctx, query,
		rec.ID, rec.AccountID, rec.Folder, rec.UID,
		rec.Subject, rec.Sender, rec.Body, rec.ReceivedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("upserting record %s: %w", rec.ID, err)
	}

	return nil
}

// SetLabel merges a label onto an existing record as a partial update.
func (s *Store) SetLabel(ctx context.Context, id string, label model.Label) error {
	if id == "" {
		return store.ErrInvalidID
	}
	if !label.Valid() {
		return fmt.Errorf("%w: %q", store.ErrInvalidLabel, label)
	}

	const query = `
		UPDATE records
		SET label = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`

	result, err := s.db.ExecContext(ctx, query, string(label), id)
	if err != nil {
		return fmt.Errorf("labeling record %s: %w", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking label update for %s: %w", id, err)
	}
	if affected == 0 {
		return store.ErrNotFound
	}

	return nil
}

// Get retrieves a single record by its ID.
func (s *Store) Get(ctx context.Context, id string) (*model.EmailRecord, error) {
	if id == "" {
		return nil, store.ErrInvalidID
	}

	var row recordRow
	err := s.db.GetContext(ctx, &row,
		"SELECT id, account_id, folder, uid, subject, sender, body, received_at, label FROM records WHERE id = ?",
		id,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting record %s: %w", id, err)
	}

	rec := row.toRecord()
	return &rec, nil
}

// Search returns the page of records matching the query, newest first.
func (s *Store) Search(ctx context.Context, q store.Query) (*store.Page, error) {
	var conditions []string
	var args []interface{}

	if q.Text != "" {
		conditions = append(conditions, "(subject LIKE ? OR sender LIKE ? OR body LIKE ?)")
		pattern := "%" + q.Text + "%"
		args = append(args, pattern, pattern, pattern)
	}
	if q.AccountID != "" {
		conditions = append(conditions, "account_id = ?")
		args = append(args, q.AccountID)
	}
	if q.Folder != "" {
		conditions = append(conditions, "folder = ?")
		args = append(args, q.Folder)
	}

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := s.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM records"+where, args...); err != nil {
		return nil, fmt.Errorf("counting records: %w", err)
	}

	page := q.Page
	if page < 1 {
		page = 1
	}
	size := q.PageSize
	if size <= 0 {
		size = defaultPageSize
	}
	if size > maxPageSize {
		size = maxPageSize
	}
	offset := (page - 1) * size

	query := "SELECT id, account_id, folder, uid, subject, sender, body, received_at, label FROM records" +
		where +
		fmt.Sprintf(" ORDER BY received_at DESC LIMIT %d OFFSET %d", size, offset)

	var rows []recordRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("searching records: %w", err)
	}

	records := make([]model.EmailRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, row.toRecord())
	}

	return &store.Page{
		Records: records,
		Total:   total,
		HasMore: offset+len(records) < total,
	}, nil
}

// recordRow is the scan target for record queries. Label is scanned as
// a plain string so an empty column maps to the zero Label.
type recordRow struct {
	ID         string    `db:"id"`
	AccountID  string    `db:"account_id"`
	Folder     string    `db:"folder"`
	UID        uint32    `db:"uid"`
	Subject    string    `db:"subject"`
	Sender     string    `db:"sender"`
	Body       string    `db:"body"`
	ReceivedAt time.Time `db:"received_at"`
	Label      string    `db:"label"`
}

func (r recordRow) toRecord() model.EmailRecord {
	return model.EmailRecord{
		ID:         r.ID,
		AccountID:  r.AccountID,
		Folder:     r.Folder,
		UID:        r.UID,
		Subject:    r.Subject,
		Sender:     r.Sender,
		Body:       r.Body,
		ReceivedAt: r.ReceivedAt,
		Label:      model.Label(r.Label),
	}
}
