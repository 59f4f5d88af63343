package mongodb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/wms-platform/cfs-destuffing-service/pkg/outbox"
)

// DefaultCollectionName holds the pending destuffing events
const DefaultCollectionName = "outbox_events"

// relayed events are kept a week for replay investigations
const publishedRetention = 7 * 24 * time.Hour

var pendingFilter = bson.M{
	"publishedAt": bson.M{"$exists": false},
	"$expr":       bson.M{"$lt": bson.A{"$retryCount", "$maxRetries"}},
}

// OutboxRepository stores outbox.OutboxEvent documents in Mongo
type OutboxRepository struct {
	collection *mongo.Collection
	now        func() time.Time
}

func NewOutboxRepository(db *mongo.Database) *OutboxRepository {
	return &OutboxRepository{
		collection: db.Collection(DefaultCollectionName),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// SaveAll inserts events. With a session context the insert joins the
// caller's transaction.
func (r *OutboxRepository) SaveAll(ctx context.Context, events []*outbox.OutboxEvent) error {
	if len(events) == 0 {
		return nil
	}
	docs := make([]any, 0, len(events))
	for _, event := range events {
		docs = append(docs, event)
	}
	if _, err := r.collection.InsertMany(ctx, docs); err != nil {
		return fmt.Errorf("failed to save outbox events: %w", err)
	}
	return nil
}

func (r *OutboxRepository) FindUnpublished(ctx context.Context, limit int) ([]*outbox.OutboxEvent, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}}).SetLimit(int64(limit))
	return r.find(ctx, pendingFilter, opts)
}

// FindByAggregateID lists every event of one container or plan, oldest first
func (r *OutboxRepository) FindByAggregateID(ctx context.Context, aggregateID string) ([]*outbox.OutboxEvent, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}})
	return r.find(ctx, bson.M{"aggregateId": aggregateID}, opts)
}

func (r *OutboxRepository) MarkPublished(ctx context.Context, eventID string) error {
	return r.update(ctx, eventID, bson.M{"$set": bson.M{"publishedAt": r.now()}})
}

func (r *OutboxRepository) IncrementRetry(ctx context.Context, eventID string, errorMsg string) error {
	return r.update(ctx, eventID, bson.M{
		"$inc": bson.M{"retryCount": 1},
		"$set": bson.M{"lastError": errorMsg},
	})
}

// EnsureIndexes creates the polling, aggregate lookup and retention indexes.
// The TTL index only expires documents that have publishedAt set.
func (r *OutboxRepository) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "publishedAt", Value: 1}, {Key: "createdAt", Value: 1}},
			Options: options.Index().SetName("idx_pending"),
		},
		{
			Keys:    bson.D{{Key: "aggregateId", Value: 1}, {Key: "createdAt", Value: 1}},
			Options: options.Index().SetName("idx_aggregate"),
		},
		{
			Keys: bson.D{{Key: "publishedAt", Value: 1}},
			Options: options.Index().
				SetName("idx_published_ttl").
				SetExpireAfterSeconds(int32(publishedRetention.Seconds())),
		},
	}
	if _, err := r.collection.Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("failed to create outbox indexes: %w", err)
	}
	return nil
}

func (r *OutboxRepository) find(ctx context.Context, filter any, opts *options.FindOptions) ([]*outbox.OutboxEvent, error) {
	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query outbox: %w", err)
	}
	defer cursor.Close(ctx)

	events := []*outbox.OutboxEvent{}
	if err := cursor.All(ctx, &events); err != nil {
		return nil, fmt.Errorf("failed to decode outbox events: %w", err)
	}
	return events, nil
}

func (r *OutboxRepository) update(ctx context.Context, eventID string, change bson.M) error {
	result, err := r.collection.UpdateByID(ctx, eventID, change)
	if err != nil {
		return fmt.Errorf("failed to update outbox event %s: %w", eventID, err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("outbox event not found: %s", eventID)
	}
	return nil
}
