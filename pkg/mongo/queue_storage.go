package mongo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/dmitrymomot/deferq/pkg/queue"
)

// QueueStorage keeps queue entries in a MongoDB collection.
// Every state change is a single-document update filtered on the expected state,
// which MongoDB applies atomically.
type QueueStorage struct {
	coll   *mongo.Collection
	logger *slog.Logger
}

// StorageOption configures a QueueStorage
type StorageOption func(*QueueStorage)

// WithLogger sets the logger used to report documents that cannot be decoded
func WithLogger(logger *slog.Logger) StorageOption {
	return func(s *QueueStorage) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewQueueStorage returns a storage backed by the named collection of db.
// An empty name selects queue.DefaultQueueCollection.
func NewQueueStorage(db *mongo.Database, collection string, opts ...StorageOption) (*QueueStorage, error) {
	if db == nil {
		return nil, ErrDatabaseNil
	}
	if collection == "" {
		collection = queue.DefaultQueueCollection
	}

	s := &QueueStorage{coll: db.Collection(collection), logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// EnsureIndexes creates the indexes behind the due and expired-lease queries
func (s *QueueStorage) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: fieldState, Value: 1}, {Key: fieldDeliverTime, Value: 1}}},
		{Keys: bson.D{{Key: fieldState, Value: 1}, {Key: fieldLeaseExpireTime, Value: 1}}},
	})
	if err != nil {
		return errors.Join(ErrCreateIndexes, err)
	}
	return nil
}

// CreateEntry implements queue.EnqueuerRepository
func (s *QueueStorage) CreateEntry(ctx context.Context, entry *queue.Entry) error {
	if entry == nil {
		return fmt.Errorf("entry cannot be nil")
	}
	if _, err := s.coll.InsertOne(ctx, toDocument(entry)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("entry %s: %w", entry.ID, queue.ErrEntryExists)
		}
		return fmt.Errorf("failed to insert entry %s: %w", entry.ID, err)
	}
	return nil
}

// GetEntry returns the stored entry
func (s *QueueStorage) GetEntry(ctx context.Context, id uuid.UUID) (*queue.Entry, error) {
	var doc entryDocument
	if err := s.coll.FindOne(ctx, bson.M{fieldID: id.String()}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("entry %s: %w", id, queue.ErrEntryNotFound)
		}
		return nil, fmt.Errorf("failed to load entry %s: %w", id, err)
	}
	return doc.toEntry()
}

// FindDue implements queue.ProcessorRepository
func (s *QueueStorage) FindDue(ctx context.Context, now time.Time, limit int) ([]*queue.Entry, error) {
	filter := bson.M{
		fieldState:       string(queue.StatePending),
		fieldDeliverTime: bson.M{"$lte": now},
	}
	opts := options.Find().
		SetSort(bson.D{{Key: fieldDeliverTime, Value: 1}, {Key: fieldID, Value: 1}}).
		SetLimit(int64(limit))
	return s.find(ctx, queue.StatePending, now, filter, opts)
}

// FindExpiredLeases implements queue.ProcessorRepository
func (s *QueueStorage) FindExpiredLeases(ctx context.Context, now time.Time, limit int) ([]*queue.Entry, error) {
	filter := bson.M{
		fieldState:           string(queue.StateProcessing),
		fieldLeaseExpireTime: bson.M{"$lte": now},
	}
	opts := options.Find().
		SetSort(bson.D{{Key: fieldLeaseExpireTime, Value: 1}}).
		SetLimit(int64(limit))
	return s.find(ctx, queue.StateProcessing, now, filter, opts)
}

// find decodes the matching documents. Documents that are not queue entries are moved to
// FAILED so they stop matching, and the rest of the page is still returned.
func (s *QueueStorage) find(ctx context.Context, state queue.State, now time.Time, filter bson.M, opts *options.FindOptionsBuilder) ([]*queue.Entry, error) {
	cursor, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}

	var raws []bson.Raw
	if err := cursor.All(ctx, &raws); err != nil {
		return nil, err
	}

	entries, rejected := decodeEntries(raws)
	for _, r := range rejected {
		s.quarantine(ctx, state, now, r)
	}
	return entries, nil
}

func (s *QueueStorage) quarantine(ctx context.Context, state queue.State, now time.Time, r rejectedDocument) {
	s.logger.ErrorContext(ctx, "undecodable queue document",
		slog.String("document_id", r.id.String()),
		slog.Any("error", r.err))

	msg := r.err.Error()
	filter := bson.M{fieldID: r.id, fieldState: string(state)}
	if _, err := s.coll.UpdateOne(ctx, filter, finishUpdate(queue.EventFail, now, &msg)); err != nil {
		s.logger.ErrorContext(ctx, "failed to mark undecodable queue document as failed",
			slog.String("document_id", r.id.String()),
			slog.Any("error", err))
	}
}

// ClaimEntry implements queue.ProcessorRepository
func (s *QueueStorage) ClaimEntry(ctx context.Context, id uuid.UUID, now time.Time, lease time.Duration) (*queue.Entry, error) {
	var doc entryDocument
	err := s.coll.FindOneAndUpdate(ctx,
		stateFilter(id, queue.EventClaim),
		claimUpdate(now, lease),
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, s.conflict(ctx, id, queue.EventClaim, 0)
		}
		return nil, fmt.Errorf("failed to claim entry %s: %w", id, err)
	}
	return doc.toEntry()
}

// ResetEntry implements queue.ProcessorRepository
func (s *QueueStorage) ResetEntry(ctx context.Context, id uuid.UUID, now time.Time) error {
	filter := stateFilter(id, queue.EventTimeout)
	filter[fieldLeaseExpireTime] = bson.M{"$lte": now}
	return s.update(ctx, id, queue.EventTimeout, 0, filter, resetUpdate(now))
}

// CompleteEntry implements queue.ProcessorRepository
func (s *QueueStorage) CompleteEntry(ctx context.Context, id uuid.UUID, attempt int, now time.Time) error {
	return s.update(ctx, id, queue.EventDeliver, attempt,
		claimFilter(id, queue.EventDeliver, attempt),
		finishUpdate(queue.EventDeliver, now, nil))
}

// FailEntry implements queue.ProcessorRepository
func (s *QueueStorage) FailEntry(ctx context.Context, id uuid.UUID, attempt int, now time.Time, errorMsg string) error {
	return s.update(ctx, id, queue.EventFail, attempt,
		claimFilter(id, queue.EventFail, attempt),
		finishUpdate(queue.EventFail, now, &errorMsg))
}

// DeleteEntry implements queue.ProcessorRepository.
// Only a delivered entry still held by the given claim is removed.
func (s *QueueStorage) DeleteEntry(ctx context.Context, id uuid.UUID, attempt int) error {
	res, err := s.coll.DeleteOne(ctx, claimFilter(id, queue.EventDeliver, attempt))
	if err != nil {
		return fmt.Errorf("failed to delete entry %s: %w", id, err)
	}
	if res.DeletedCount == 0 {
		return s.conflict(ctx, id, queue.EventDeliver, attempt)
	}
	return nil
}

func (s *QueueStorage) update(ctx context.Context, id uuid.UUID, event queue.Event, attempt int, filter, update bson.M) error {
	res, err := s.coll.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to %s entry %s: %w", event, id, err)
	}
	if res.MatchedCount == 0 {
		return s.conflict(ctx, id, event, attempt)
	}
	return nil
}

// conflict explains why a conditional update matched nothing.
// attempt is the claim that must still hold the entry, 0 skips that check.
func (s *QueueStorage) conflict(ctx context.Context, id uuid.UUID, event queue.Event, attempt int) error {
	current, err := s.GetEntry(ctx, id)
	if err != nil {
		return err
	}
	return queue.ConflictError(current, event, attempt)
}
