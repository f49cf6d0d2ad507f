package mongo

import (
	"context"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/dmitrymomot/deferq/pkg/queue"
)

// DocumentWriter applies delivered payloads to documents of a MongoDB database.
// It implements queue.Writer. Both modes upsert, so applying a payload twice leaves the
// same document behind.
type DocumentWriter struct {
	db *mongo.Database
}

// NewDocumentWriter creates a writer for documents in db
func NewDocumentWriter(db *mongo.Database) (*DocumentWriter, error) {
	if db == nil {
		return nil, ErrDatabaseNil
	}
	return &DocumentWriter{db: db}, nil
}

// Write sets the payload fields on the document when merge is true and replaces the
// document otherwise.
func (w *DocumentWriter) Write(ctx context.Context, loc queue.Location, data map[string]any, merge bool) error {
	coll := w.db.Collection(collectionName(loc.Collection))
	filter := bson.M{fieldID: loc.ID}

	if merge {
		if _, err := coll.UpdateOne(ctx, filter, mergeUpdate(loc.ID, data), options.UpdateOne().SetUpsert(true)); err != nil {
			return fmt.Errorf("failed to merge into %s: %w", loc, err)
		}
		return nil
	}

	if _, err := coll.ReplaceOne(ctx, filter, replacement(loc.ID, data), options.Replace().SetUpsert(true)); err != nil {
		return fmt.Errorf("failed to replace %s: %w", loc, err)
	}
	return nil
}

// collectionName maps a nested collection path such as "users/42/devices" to a
// MongoDB collection name
func collectionName(path string) string {
	return strings.ReplaceAll(path, "/", ".")
}

func mergeUpdate(id string, data map[string]any) bson.M {
	set := bson.M{}
	for k, v := range data {
		// _id is immutable and already fixed by the filter
		if k != fieldID {
			set[k] = v
		}
	}
	if len(set) == 0 {
		// $set rejects an empty document; still create the target
		return bson.M{"$setOnInsert": bson.M{fieldID: id}}
	}
	return bson.M{"$set": set}
}

func replacement(id string, data map[string]any) bson.M {
	doc := bson.M{}
	for k, v := range data {
		doc[k] = v
	}
	doc[fieldID] = id
	return doc
}
