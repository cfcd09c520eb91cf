package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tdnguyen/mailsift/internal/model"
	"github.com/tdnguyen/mailsift/internal/store"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := New(":memory:")
	require.NoError(t, err, "creating test store")

	t.Cleanup(func() {
		assert.NoError(t, s.Close(), "closing test store")
	})

	return s
}

func testRecord(uid uint32) model.EmailRecord {
	return model.EmailRecord{
		ID:         model.RecordID("INBOX", uid),
		AccountID:  "user@example.com",
		Folder:     "INBOX",
		UID:        uid,
		Subject:    "Re: your proposal",
		Sender:     "alice@example.org",
		Body:       "Sounds great, let's talk.",
		ReceivedAt: time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC),
	}
}

func TestUpsertIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec := testRecord(117)
	require.NoError(t, s.Upsert(ctx, rec))

	rec.Subject = "Re: your proposal (edited)"
	require.NoError(t, s.Upsert(ctx, rec))

	got, err := s.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "Re: your proposal (edited)", got.Subject)

	page, err := s.Search(ctx, store.Query{})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total, "double upsert must not duplicate")
}

func TestUpsertPreservesExistingLabel(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec := testRecord(117)
	require.NoError(t, s.Upsert(ctx, rec))
	require.NoError(t, s.SetLabel(ctx, rec.ID, model.LabelInterested))

	// Re-processing the same message persists again without a label;
	// the stored label must survive.
	require.NoError(t, s.Upsert(ctx, rec))

	got, err := s.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, model.LabelInterested, got.Label)
}

func TestSetLabelOverwritesPreviousLabel(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec := testRecord(118)
	require.NoError(t, s.Upsert(ctx, rec))
	require.NoError(t, s.SetLabel(ctx, rec.ID, model.LabelNotInterested))
	require.NoError(t, s.SetLabel(ctx, rec.ID, model.LabelMeetingBooked))

	got, err := s.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, model.LabelMeetingBooked, got.Label, "last write wins on label")
}

func TestSetLabelErrors(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	err := s.SetLabel(ctx, "INBOX/999", model.LabelSpam)
	assert.ErrorIs(t, err, store.ErrNotFound)

	rec := testRecord(1)
	require.NoError(t, s.Upsert(ctx, rec))

	err = s.SetLabel(ctx, rec.ID, model.Label("urgent"))
	assert.ErrorIs(t, err, store.ErrInvalidLabel)

	err = s.SetLabel(ctx, "", model.LabelSpam)
	assert.ErrorIs(t, err, store.ErrInvalidID)
}

func TestGetMissingRecord(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Get(context.Background(), "INBOX/404")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestSearchFiltersAndPagination(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	for i := uint32(1); i <= 5; i++ {
		rec := testRecord(i)
		rec.ReceivedAt = base.Add(time.Duration(i) * time.Hour)
		if i%2 == 0 {
			rec.Folder = "Archive"
			rec.ID = model.RecordID("Archive", i)
			rec.Subject = "weekly newsletter"
		}
		require.NoError(t, s.Upsert(ctx, rec))
	}

	page, err := s.Search(ctx, store.Query{Folder: "INBOX"})
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)
	for _, rec := range page.Records {
		assert.Equal(t, "INBOX", rec.Folder)
	}

	page, err = s.Search(ctx, store.Query{Text: "newsletter"})
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total)

	page, err = s.Search(ctx, store.Query{Page: 1, PageSize: 2})
	require.NoError(t, err)
	assert.Len(t, page.Records, 2)
	assert.Equal(t, 5, page.Total)
	assert.True(t, page.HasMore)

	// Newest first.
	assert.True(t, page.Records[0].ReceivedAt.After(page.Records[1].ReceivedAt))

	page, err = s.Search(ctx, store.Query{Page: 3, PageSize: 2})
	require.NoError(t, err)
	assert.Len(t, page.Records, 1)
	assert.False(t, page.HasMore)
}
