package mongodb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/wms-platform/cfs-destuffing-service/internal/domain"
	"github.com/wms-platform/cfs-destuffing-service/pkg/cloudevents"
	"github.com/wms-platform/cfs-destuffing-service/pkg/kafka"
	platformmongo "github.com/wms-platform/cfs-destuffing-service/pkg/mongodb"
	"github.com/wms-platform/cfs-destuffing-service/pkg/outbox"
	outboxMongo "github.com/wms-platform/cfs-destuffing-service/pkg/outbox/mongodb"
	platformtemporal "github.com/wms-platform/cfs-destuffing-service/pkg/temporal"
)

// ContainersCollection holds the latest snapshot of every journaled container
const ContainersCollection = "plan_containers"

const (
	aggregatePlanContainer = "PlanContainer"
	aggregatePlan          = "Plan"
)

// transactor runs fn inside a multi-document transaction
type transactor interface {
	WithTransaction(ctx context.Context, fn func(sessCtx mongo.SessionContext) error) error
}

// containerDocument is the stored snapshot of one plan container
type containerDocument struct {
	ID            string                    `bson:"_id"`
	Container     domain.PlanContainer      `bson:",inline"`
	Hbls          []domain.HblDestuffStatus `bson:"hbls"`
	ResealHistory []domain.ResealRecord     `bson:"resealHistory"`
	UpdatedAt     time.Time                 `bson:"updatedAt"`
}

func containerDocumentID(planID, containerID string) string {
	return planID + "/" + containerID
}

// ExecutionJournal implements domain.ExecutionJournal. A snapshot and the
// outbox events it produced are written in one transaction.
type ExecutionJournal struct {
	tx           transactor
	collection   *mongo.Collection
	outboxRepo   outbox.Repository
	eventFactory *cloudevents.EventFactory
	topic        string
	clock        func() time.Time
}

// NewExecutionJournal creates a journal on the client's database
func NewExecutionJournal(client *platformmongo.Client, eventFactory *cloudevents.EventFactory) *ExecutionJournal {
	db := client.Database()
	return newExecutionJournal(client, db, outboxMongo.NewOutboxRepository(db), eventFactory)
}

func newExecutionJournal(tx transactor, db *mongo.Database, outboxRepo outbox.Repository, eventFactory *cloudevents.EventFactory) *ExecutionJournal {
	return &ExecutionJournal{
		tx:           tx,
		collection:   db.Collection(ContainersCollection),
		outboxRepo:   outboxRepo,
		eventFactory: eventFactory,
		topic:        kafka.Topics.DestuffingEvents,
		clock:        func() time.Time { return time.Now().UTC() },
	}
}

// WithTopic routes journaled events to topic instead of the default
// destuffing events topic
func (j *ExecutionJournal) WithTopic(topic string) *ExecutionJournal {
	if topic != "" {
		j.topic = topic
	}
	return j
}

// EnsureIndexes creates the snapshot indexes
func (j *ExecutionJournal) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "planId", Value: 1}}},
		{Keys: bson.D{{Key: "workingStatus", Value: 1}, {Key: "updatedAt", Value: -1}}},
	}
	if _, err := j.collection.Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("failed to create plan container indexes: %w", err)
	}
	return nil
}

// Append stores the entry's snapshot, when it names a container, and
// enqueues its events for publication
func (j *ExecutionJournal) Append(ctx context.Context, entry domain.JournalEntry) error {
	return j.tx.WithTransaction(ctx, func(sessCtx mongo.SessionContext) error {
		if entry.Container.ContainerID != "" {
			doc := containerDocument{
				ID:            containerDocumentID(entry.Container.PlanID, entry.Container.ContainerID),
				Container:     entry.Container,
				Hbls:          entry.Hbls,
				ResealHistory: entry.ResealHistory,
				UpdatedAt:     j.clock(),
			}
			if doc.Hbls == nil {
				doc.Hbls = []domain.HblDestuffStatus{}
			}
			if doc.ResealHistory == nil {
				doc.ResealHistory = []domain.ResealRecord{}
			}
			opts := options.Replace().SetUpsert(true)
			if _, err := j.collection.ReplaceOne(sessCtx, bson.M{"_id": doc.ID}, doc, opts); err != nil {
				return fmt.Errorf("failed to save container snapshot: %w", err)
			}
		}

		events, err := j.outboxEvents(sessCtx, entry)
		if err != nil {
			return err
		}
		if err := j.outboxRepo.SaveAll(sessCtx, events); err != nil {
			return fmt.Errorf("failed to save outbox events: %w", err)
		}
		return nil
	})
}

func (j *ExecutionJournal) outboxEvents(ctx context.Context, entry domain.JournalEntry) ([]*outbox.OutboxEvent, error) {
	planID := entry.Container.PlanID
	containerID := entry.Container.ContainerID

	events := make([]*outbox.OutboxEvent, 0, len(entry.Events))
	for _, event := range entry.Events {
		var (
			cloudEvent    *cloudevents.WMSCloudEvent
			aggregateID   string
			aggregateType string
		)
		if containerID == "" {
			cloudEvent = j.eventFactory.CreatePlanEvent(ctx, event.EventType(), planID, platformtemporal.PlanExecutionWorkflowID(planID), event)
			aggregateID, aggregateType = planID, aggregatePlan
		} else {
			cloudEvent = j.eventFactory.CreateContainerEvent(ctx, event.EventType(), planID, containerID, event)
			aggregateID, aggregateType = containerDocumentID(planID, containerID), aggregatePlanContainer
		}
		if at := event.OccurredAt(); !at.IsZero() {
			cloudEvent.Time = at.UTC()
		}

		outboxEvent, err := outbox.NewOutboxEventFromCloudEvent(aggregateID, aggregateType, j.topic, cloudEvent)
		if err != nil {
			return nil, fmt.Errorf("failed to create outbox event: %w", err)
		}
		events = append(events, outboxEvent)
	}
	return events, nil
}
