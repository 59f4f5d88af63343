package mongodb

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/wms-platform/cfs-destuffing-service/internal/domain"
	"github.com/wms-platform/cfs-destuffing-service/pkg/cloudevents"
	"github.com/wms-platform/cfs-destuffing-service/pkg/kafka"
	platformmongo "github.com/wms-platform/cfs-destuffing-service/pkg/mongodb"
	"github.com/wms-platform/cfs-destuffing-service/pkg/outbox"
	outboxMongo "github.com/wms-platform/cfs-destuffing-service/pkg/outbox/mongodb"
	testhelpers "github.com/wms-platform/cfs-destuffing-service/pkg/testing"
)

type inlineTransactor struct{}

func (inlineTransactor) WithTransaction(ctx context.Context, fn func(sessCtx mongo.SessionContext) error) error {
	return fn(mongo.NewSessionContext(ctx, nil))
}

type capturingOutbox struct {
	outbox.Repository
	saved []*outbox.OutboxEvent
	err   error
}

func (c *capturingOutbox) SaveAll(_ context.Context, events []*outbox.OutboxEvent) error {
	if c.err != nil {
		return c.err
	}
	c.saved = append(c.saved, events...)
	return nil
}

func TestExecutionJournal_PlanLevelEntry(t *testing.T) {
	repo := &capturingOutbox{}
	journal := &ExecutionJournal{
		tx:           inlineTransactor{},
		outboxRepo:   repo,
		eventFactory: cloudevents.NewEventFactory(cloudevents.SourceDestuffing),
		topic:        kafka.Topics.DestuffingEvents,
		clock:        time.Now,
	}
	completedAt := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	err := journal.Append(context.Background(), domain.JournalEntry{
		Container: domain.PlanContainer{PlanID: "P1"},
		Events: []domain.DomainEvent{&domain.PlanCompletedEvent{
			PlanID:       "P1",
			ContainerIDs: []string{"C1", "C2"},
			CompletedAt:  completedAt,
		}},
	})
	require.NoError(t, err)
	require.Len(t, repo.saved, 1)

	saved := repo.saved[0]
	assert.Equal(t, "P1", saved.AggregateID)
	assert.Equal(t, aggregatePlan, saved.AggregateType)
	assert.Equal(t, kafka.Topics.DestuffingEvents, saved.Topic)
	assert.Equal(t, domain.EventPlanCompleted, saved.EventType)

	ce, err := saved.ToCloudEvent()
	require.NoError(t, err)
	assert.Equal(t, "plan-execution-P1", ce.WorkflowID)
	assert.Equal(t, "plan/P1", ce.Subject)
	assert.True(t, completedAt.Equal(ce.Time))
}

func TestExecutionJournal_OutboxFailure(t *testing.T) {
	journal := &ExecutionJournal{
		tx:           inlineTransactor{},
		outboxRepo:   &capturingOutbox{err: errors.New("write conflict")},
		eventFactory: cloudevents.NewEventFactory(cloudevents.SourceDestuffing),
		topic:        kafka.Topics.DestuffingEvents,
		clock:        time.Now,
	}

	err := journal.Append(context.Background(), domain.JournalEntry{
		Container: domain.PlanContainer{PlanID: "P1"},
		Events:    []domain.DomainEvent{&domain.PlanCompletedEvent{PlanID: "P1"}},
	})
	assert.ErrorContains(t, err, "write conflict")
}

func TestExecutionJournal_WithTopic(t *testing.T) {
	repo := &capturingOutbox{}
	journal := (&ExecutionJournal{
		tx:           inlineTransactor{},
		outboxRepo:   repo,
		eventFactory: cloudevents.NewEventFactory(cloudevents.SourceDestuffing),
		topic:        kafka.Topics.DestuffingEvents,
		clock:        time.Now,
	}).WithTopic("cfs.destuffing.events.v2").WithTopic("")

	err := journal.Append(context.Background(), domain.JournalEntry{
		Container: domain.PlanContainer{PlanID: "P1"},
		Events:    []domain.DomainEvent{&domain.PlanCompletedEvent{PlanID: "P1"}},
	})
	require.NoError(t, err)
	require.Len(t, repo.saved, 1)
	assert.Equal(t, "cfs.destuffing.events.v2", repo.saved[0].Topic)
}

func TestExecutionJournal_Mongo(t *testing.T) {
	db := testhelpers.SetupMongo(t, "journal_test")
	ctx := context.Background()

	client := platformmongo.Wrap(db.Client(), db.Name())
	journal := NewExecutionJournal(client, cloudevents.NewEventFactory(cloudevents.SourceDestuffing))
	require.NoError(t, journal.EnsureIndexes(ctx))

	unsealedAt := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	container := domain.PlanContainer{
		PlanID:            "P1",
		ContainerID:       "C1",
		SealNumber:        "S-1",
		CargoLoadedStatus: domain.CargoLoaded,
		WorkingStatus:     domain.WorkingStatusInProgress,
	}
	require.NoError(t, journal.Append(ctx, domain.JournalEntry{
		Container: container,
		Hbls:      []domain.HblDestuffStatus{{HblID: "H1", HblCode: "HBL-1", DestuffStatus: domain.DestuffStatusWaiting}},
		Events:    []domain.DomainEvent{&domain.ContainerUnsealedEvent{PlanID: "P1", ContainerID: "C1", UnsealedAt: unsealedAt}},
	}))

	history := []domain.ResealRecord{{NewSealNumber: "S-2", OnHoldFlag: true, ResealedAt: unsealedAt.Add(time.Hour)}}
	container.NewSealNumber = "S-2"
	require.NoError(t, journal.Append(ctx, domain.JournalEntry{
		Container:     container,
		ResealHistory: history,
		Events: []domain.DomainEvent{&domain.ContainerResealedEvent{
			PlanID:        "P1",
			ContainerID:   "C1",
			NewSealNumber: "S-2",
			ResealedAt:    unsealedAt.Add(time.Hour),
		}},
	}))

	var doc containerDocument
	require.NoError(t, db.Collection(ContainersCollection).FindOne(ctx, bson.M{"_id": "P1/C1"}).Decode(&doc))
	assert.Equal(t, "S-2", doc.Container.NewSealNumber)
	assert.Empty(t, doc.Hbls, "latest snapshot replaces the previous one")
	require.Len(t, doc.ResealHistory, 1)
	assert.True(t, doc.ResealHistory[0].OnHoldFlag)

	count, err := db.Collection(ContainersCollection).CountDocuments(ctx, bson.M{"planId": "P1"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	events, err := outboxMongo.NewOutboxRepository(db).FindByAggregateID(ctx, "P1/C1")
	require.NoError(t, err)
	require.Len(t, events, 2)
	types := []string{events[0].EventType, events[1].EventType}
	assert.ElementsMatch(t, []string{domain.EventContainerUnsealed, domain.EventContainerResealed}, types)
}
