package idempotency

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const collectionName = "idempotency_keys"

// Store persists idempotency records. Acquire must be atomic per
// (serviceId, key): exactly one caller observes acquired == true until the
// record is completed, released or its lock goes stale.
type Store interface {
	Acquire(ctx context.Context, rec *Record, staleBefore time.Time) (*Record, bool, error)
	Complete(ctx context.Context, rec *Record, code int, body []byte, headers map[string]string) error
	Release(ctx context.Context, rec *Record) error
}

// MongoStore implements Store using MongoDB
type MongoStore struct {
	collection *mongo.Collection
}

// NewMongoStore creates a new MongoDB-backed store
func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{collection: db.Collection(collectionName)}
}

// Acquire inserts rec unless a record with the same key exists. A stale
// uncompleted lock for the same fingerprint is taken over.
func (s *MongoStore) Acquire(ctx context.Context, rec *Record, staleBefore time.Time) (*Record, bool, error) {
	filter := bson.M{"serviceId": rec.ServiceID, "key": rec.Key}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var existing Record
	err := s.collection.FindOneAndUpdate(ctx, filter, bson.M{"$setOnInsert": rec}, opts).Decode(&existing)
	if mongo.IsDuplicateKeyError(err) {
		// lost an upsert race; the winner's document is now visible
		err = s.collection.FindOne(ctx, filter).Decode(&existing)
	}
	if err != nil {
		return nil, false, err
	}
	if existing.LockToken == rec.LockToken {
		return &existing, true, nil
	}
	if existing.IsCompleted() || !existing.LockedAt.Before(staleBefore) {
		return &existing, false, nil
	}

	takeover := bson.M{
		"_id":         existing.ID,
		"lockToken":   existing.LockToken,
		"fingerprint": rec.Fingerprint,
		"completedAt": bson.M{"$exists": false},
	}
	update := bson.M{"$set": bson.M{
		"lockToken": rec.LockToken,
		"lockedAt":  rec.LockedAt,
	}}
	var claimed Record
	err = s.collection.FindOneAndUpdate(ctx, takeover, update, options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&claimed)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return &existing, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return &claimed, true, nil
}

// Complete stores the response and marks the record completed
func (s *MongoStore) Complete(ctx context.Context, rec *Record, code int, body []byte, headers map[string]string) error {
	now := time.Now().UTC()
	_, err := s.collection.UpdateOne(ctx,
		bson.M{"_id": rec.ID, "lockToken": rec.LockToken},
		bson.M{"$set": bson.M{
			"responseCode":    code,
			"responseBody":    body,
			"responseHeaders": headers,
			"completedAt":     now,
		}},
	)
	return err
}

// Release deletes an uncompleted record so the request can be retried
func (s *MongoStore) Release(ctx context.Context, rec *Record) error {
	_, err := s.collection.DeleteOne(ctx, bson.M{
		"_id":         rec.ID,
		"lockToken":   rec.LockToken,
		"completedAt": bson.M{"$exists": false},
	})
	return err
}

// EnsureIndexes creates the unique key index and the retention TTL index
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "serviceId", Value: 1}, {Key: "key", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("idx_service_key"),
		},
		{
			Keys:    bson.D{{Key: "expiresAt", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(0).SetName("idx_ttl"),
		},
	}
	_, err := s.collection.Indexes().CreateMany(ctx, indexes)
	return err
}
