// Package mongo implements store.RecordStore on MongoDB. Upserts use
// atomic UpdateOne operations with majority write concern, so a
// completed write is visible to the pipeline's next stage without any
// external coordination.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	mongoopts "go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/writeconcern"

	"github.com/tdnguyen/mailsift/internal/model"
	"github.com/tdnguyen/mailsift/internal/store"
)

// regexMetaChars matches regex metacharacters that need escaping.
var regexMetaChars = regexp.MustCompile(`[\\^$.|?*+()[\]{}]`)

// escapeRegex escapes regex metacharacters in a string to prevent regex injection.
func escapeRegex(s string) string {
	return regexMetaChars.ReplaceAllString(s, `\$0`)
}

// defaultPageSize is applied when a query does not specify one.
const defaultPageSize = 20

// maxPageSize caps a single page of search results.
const maxPageSize = 100

// Store implements store.RecordStore using MongoDB.
type Store struct {
	client     *mongo.Client
	collection *mongo.Collection
	opts       *options
	logger     *slog.Logger
}

// New connects to MongoDB at uri, pings the deployment, and ensures
// the indexes the search surface relies on.
func New(ctx context.Context, uri string, opts ...Option) (*Store, error) {
	o := newOptions(opts...)

	clientOpts := mongoopts.Client().
		ApplyURI(uri).
		SetWriteConcern(writeconcern.Majority())

	client, err := mongo.Connect(clientOpts)
	if err != nil {
		return nil, fmt.Errorf("connecting to mongodb: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("pinging mongodb: %w", err)
	}

	s := &Store{
		client:     client,
		collection: client.Database(o.database).Collection(o.collection),
		opts:       o,
		logger:     o.logger,
	}

	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ensuring indexes: %w", err)
	}

	s.logger.Info("connected to mongodb",
		"database", o.database, "collection", o.collection)
	return s, nil
}

// Close disconnects the underlying MongoDB client.
func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.opts.timeout)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// ensureIndexes creates the indexes used by filters and sorting.
func (s *Store) ensureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	indexes := []mongo.IndexModel{
		{Keys: bson.D{bson.E{Key: "account_id", Value: 1}}},
		{Keys: bson.D{bson.E{Key: "folder", Value: 1}}},
		{Keys: bson.D{bson.E{Key: "label", Value: 1}}},
		{Keys: bson.D{bson.E{Key: "received_at", Value: -1}}},
		{Keys: bson.D{
			bson.E{Key: "account_id", Value: 1},
			bson.E{Key: "folder", Value: 1},
		}},
	}

	_, err := s.collection.Indexes().CreateMany(ctx, indexes)
	return err
}

// recordDoc is the BSON shape of a stored record.
type recordDoc struct {
	ID         string    `bson:"_id"`
	AccountID  string    `bson:"account_id"`
	Folder     string    `bson:"folder"`
	UID        uint32    `bson:"uid"`
	Subject    string    `bson:"subject"`
	Sender     string    `bson:"sender"`
	Body       string    `bson:"body"`
	ReceivedAt time.Time `bson:"received_at"`
	Label      string    `bson:"label,omitempty"`
}

func (d recordDoc) toRecord() model.EmailRecord {
	return model.EmailRecord{
		ID:         d.ID,
		AccountID:  d.AccountID,
		Folder:     d.Folder,
		UID:        d.UID,
		Subject:    d.Subject,
		Sender:     d.Sender,
		Body:       d.Body,
		ReceivedAt: d.ReceivedAt,
		Label:      model.Label(d.Label),
	}
}

// Upsert inserts or updates a record by ID. Only the message fields
// are written; an existing label is left untouched.
func (s *Store) Upsert(ctx context.Context, rec model.EmailRecord) error {
	if rec.ID == "" {
		return store.ErrInvalidID
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	now := time.Now().UTC()
	update := bson.M{
		"$set": bson.M{
			"account_id":  rec.AccountID,
			"folder":      rec.Folder,
			"uid":         rec.UID,
			"subject":     rec.Subject,
			"sender":      rec.Sender,
			"body":        rec.Body,
			"received_at": rec.ReceivedAt.UTC(),
			"updated_at":  now,
		},
		"$setOnInsert": bson.M{
			"created_at": now,
		},
	}

	_, err := s.collection.UpdateOne(ctx,
		bson.M{"_id": rec.ID},
		update,
		mongoopts.UpdateOne().SetUpsert(true),
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

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	result, err := s.collection.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{
			"label":      string(label),
			"updated_at": time.Now().UTC(),
		}},
	)
	if err != nil {
		return fmt.Errorf("labeling record %s: %w", id, err)
	}
	if result.MatchedCount == 0 {
		return store.ErrNotFound
	}

	return nil
}

// Get retrieves a single record by its ID.
func (s *Store) Get(ctx context.Context, id string) (*model.EmailRecord, error) {
	if id == "" {
		return nil, store.ErrInvalidID
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	var doc recordDoc
	err := s.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting record %s: %w", id, err)
	}

	rec := doc.toRecord()
	return &rec, nil
}

// Search returns the page of records matching the query, newest first.
func (s *Store) Search(ctx context.Context, q store.Query) (*store.Page, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	filter := bson.M{}
	if q.Text != "" {
		pattern := escapeRegex(q.Text)
		regex := bson.M{"$regex": pattern, "$options": "i"}
		filter["$or"] = []bson.M{
			{"subject": regex},
			{"sender": regex},
			{"body": regex},
		}
	}
	if q.AccountID != "" {
		filter["account_id"] = q.AccountID
	}
	if q.Folder != "" {
		filter["folder"] = q.Folder
	}

	total, err := s.collection.CountDocuments(ctx, filter)
	if err != nil {
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

	findOpts := mongoopts.Find().
		SetSort(bson.D{bson.E{Key: "received_at", Value: -1}}).
		SetLimit(int64(size)).
		SetSkip(int64(offset))

	cursor, err := s.collection.Find(ctx, filter, findOpts)
	if err != nil {
		return nil, fmt.Errorf("searching records: %w", err)
	}
	defer cursor.Close(ctx)

	var records []model.EmailRecord
	for cursor.Next(ctx) {
		var doc recordDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decoding record: %w", err)
		}
		records = append(records, doc.toRecord())
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("iterating records: %w", err)
	}

	return &store.Page{
		Records: records,
		Total:   int(total),
		HasMore: offset+len(records) < int(total),
	}, nil
}
