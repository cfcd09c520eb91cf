package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tdnguyen/mailsift/internal/model"
	"github.com/tdnguyen/mailsift/internal/store"
)

// memStore is a map-backed record store for pipeline tests.
type memStore struct {
	mu        sync.Mutex
	records   map[string]model.EmailRecord
	upsertErr map[string]error
}

func newMemStore() *memStore {
	return &memStore{
		records:   make(map[string]model.EmailRecord),
		upsertErr: make(map[string]error),
	}
}

func (s *memStore) Upsert(_ context.Context, rec model.EmailRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.upsertErr[rec.ID]; err != nil {
		return err
	}
	if existing, ok := s.records[rec.ID]; ok {
		rec.Label = existing.Label
	} else {
		rec.Label = ""
	}
	s.records[rec.ID] = rec
	return nil
}

func (s *memStore) SetLabel(_ context.Context, id string, label model.Label) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return store.ErrNotFound
	}
	rec.Label = label
	s.records[id] = rec
	return nil
}

func (s *memStore) Get(_ context.Context, id string) (*model.EmailRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &rec, nil
}

func (s *memStore) Search(context.Context, store.Query) (*store.Page, error) {
	return &store.Page{}, nil
}

func (s *memStore) Close() error { return nil }

func (s *memStore) get(t *testing.T, id string) model.EmailRecord {
	t.Helper()
	rec, err := s.Get(context.Background(), id)
	require.NoError(t, err)
	return *rec
}

// classifierFunc adapts a function to the Classifier interface.
type classifierFunc func(ctx context.Context, rec model.EmailRecord) (model.Label, error)

func (f classifierFunc) Classify(ctx context.Context, rec model.EmailRecord) (model.Label, error) {
	return f(ctx, rec)
}

func labelAll(label model.Label) classifierFunc {
	return func(context.Context, model.EmailRecord) (model.Label, error) {
		return label, nil
	}
}

// recordingNotifier captures every published record ID.
type recordingNotifier struct {
	mu  sync.Mutex
	ids []string
}

func (n *recordingNotifier) Publish(_ context.Context, rec model.EmailRecord) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.ids = append(n.ids, rec.ID)
	return nil
}

func (n *recordingNotifier) published() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.ids...)
}

func feed(records ...model.EmailRecord) <-chan model.EmailRecord {
	ch := make(chan model.EmailRecord, len(records))
	for _, rec := range records {
		ch <- rec
	}
	close(ch)
	return ch
}

func record(uid uint32) model.EmailRecord {
	return model.EmailRecord{
		ID:         model.RecordID("INBOX", uid),
		Folder:     "INBOX",
		UID:        uid,
		Subject:    fmt.Sprintf("message %d", uid),
		Sender:     "Alice <alice@example.com>",
		Body:       "hello",
		ReceivedAt: time.Now(),
	}
}

func TestInterestedRecordIsPersistedLabeledAndNotified(t *testing.T) {
	st := newMemStore()
	sink := &recordingNotifier{}
	p := New(Config{}, st, labelAll(model.LabelInterested), sink, nil)

	processed, failed := p.ProcessBatch(context.Background(), feed(record(117)), true)

	assert.Equal(t, 1, processed)
	assert.Equal(t, 0, failed)
	assert.Equal(t, model.LabelInterested, st.get(t, "INBOX/117").Label)
	assert.Equal(t, []string{"INBOX/117"}, sink.published())
}

func TestClassifierFailureFallsBackToDefault(t *testing.T) {
	st := newMemStore()
	sink := &recordingNotifier{}
	cls := classifierFunc(func(context.Context, model.EmailRecord) (model.Label, error) {
		return "", errors.New("model endpoint returned 503")
	})
	p := New(Config{}, st, cls, sink, nil)

	processed, failed := p.ProcessBatch(context.Background(), feed(record(118)), true)

	assert.Equal(t, 1, processed, "classification failure must not drop the record")
	assert.Equal(t, 0, failed)
	assert.Equal(t, model.DefaultLabel, st.get(t, "INBOX/118").Label)
	assert.Empty(t, sink.published(), "default label must not notify")
}

func TestUninterestingLabelsDoNotNotify(t *testing.T) {
	for _, label := range []model.Label{
		model.LabelMeetingBooked,
		model.LabelNotInterested,
		model.LabelSpam,
		model.LabelOutOfOffice,
	} {
		t.Run(string(label), func(t *testing.T) {
			st := newMemStore()
			sink := &recordingNotifier{}
			p := New(Config{}, st, labelAll(label), sink, nil)

			processed, _ := p.ProcessBatch(context.Background(), feed(record(1)), true)

			assert.Equal(t, 1, processed)
			assert.Equal(t, label, st.get(t, "INBOX/1").Label)
			assert.Empty(t, sink.published())
		})
	}
}

func TestBackfillBatchNeverNotifies(t *testing.T) {
	st := newMemStore()
	sink := &recordingNotifier{}
	p := New(Config{}, st, labelAll(model.LabelInterested), sink, nil)

	processed, failed := p.ProcessBatch(context.Background(), feed(record(5), record(6)), false)

	assert.Equal(t, 2, processed)
	assert.Equal(t, 0, failed)
	assert.Equal(t, model.LabelInterested, st.get(t, "INBOX/5").Label)
	assert.Empty(t, sink.published(), "historical mail must not notify")
}

func TestPersistFailureIsolatesRecord(t *testing.T) {
	st := newMemStore()
	st.upsertErr["INBOX/2"] = errors.New("disk full")
	sink := &recordingNotifier{}
	p := New(Config{}, st, labelAll(model.LabelInterested), sink, nil)

	processed, failed := p.ProcessBatch(context.Background(),
		feed(record(1), record(2), record(3)), true)

	assert.Equal(t, 2, processed)
	assert.Equal(t, 1, failed)
	assert.Equal(t, model.LabelInterested, st.get(t, "INBOX/1").Label)
	assert.Equal(t, model.LabelInterested, st.get(t, "INBOX/3").Label)
	_, err := st.Get(context.Background(), "INBOX/2")
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.ElementsMatch(t, []string{"INBOX/1", "INBOX/3"}, sink.published())
}

func TestConcurrencyIsBounded(t *testing.T) {
	const workers = 2

	var inFlight, peak atomic.Int64
	cls := classifierFunc(func(context.Context, model.EmailRecord) (model.Label, error) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		inFlight.Add(-1)
		return model.LabelSpam, nil
	})

	st := newMemStore()
	p := New(Config{Workers: workers}, st, cls, nil, nil)

	records := make([]model.EmailRecord, 0, 8)
	for uid := uint32(1); uid <= 8; uid++ {
		records = append(records, record(uid))
	}
	processed, failed := p.ProcessBatch(context.Background(), feed(records...), true)

	assert.Equal(t, 8, processed)
	assert.Equal(t, 0, failed)
	assert.LessOrEqual(t, peak.Load(), int64(workers))
}

func TestReprocessingIsIdempotent(t *testing.T) {
	st := newMemStore()
	p := New(Config{}, st, labelAll(model.LabelInterested), &recordingNotifier{}, nil)

	_, _ = p.ProcessBatch(context.Background(), feed(record(7)), true)
	processed, failed := p.ProcessBatch(context.Background(), feed(record(7)), true)

	assert.Equal(t, 1, processed)
	assert.Equal(t, 0, failed)

	st.mu.Lock()
	count := len(st.records)
	st.mu.Unlock()
	assert.Equal(t, 1, count, "reprocessing must not duplicate the record")
	assert.Equal(t, model.LabelInterested, st.get(t, "INBOX/7").Label)
}
