package outbox

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/wms-platform/cfs-destuffing-service/pkg/cloudevents"
)

// DefaultMaxRetries is how many failed relays an event survives before the
// publisher stops picking it up.
const DefaultMaxRetries = 10

// OutboxEvent is a CloudEvent waiting in Mongo to be relayed to Kafka. It is
// written in the same transaction as the container snapshot that caused it.
type OutboxEvent struct {
	ID            string          `bson:"_id" json:"id"`
	AggregateID   string          `bson:"aggregateId" json:"aggregateId"`
	AggregateType string          `bson:"aggregateType" json:"aggregateType"`
	EventType     string          `bson:"eventType" json:"eventType"`
	Topic         string          `bson:"topic" json:"topic"`
	Payload       json.RawMessage `bson:"payload" json:"payload"`
	CreatedAt     time.Time       `bson:"createdAt" json:"createdAt"`
	PublishedAt   *time.Time      `bson:"publishedAt,omitempty" json:"publishedAt,omitempty"`
	RetryCount    int             `bson:"retryCount" json:"retryCount"`
	LastError     string          `bson:"lastError,omitempty" json:"lastError,omitempty"`
	MaxRetries    int             `bson:"maxRetries" json:"maxRetries"`
}

// NewOutboxEventFromCloudEvent stores ce as the payload of a new pending event
func NewOutboxEventFromCloudEvent(aggregateID, aggregateType, topic string, ce *cloudevents.WMSCloudEvent) (*OutboxEvent, error) {
	if ce == nil {
		return nil, errors.New("outbox: nil cloud event")
	}
	payload, err := json.Marshal(ce)
	if err != nil {
		return nil, err
	}
	return &OutboxEvent{
		ID:            uuid.NewString(),
		AggregateID:   aggregateID,
		AggregateType: aggregateType,
		EventType:     ce.Type,
		Topic:         topic,
		Payload:       payload,
		CreatedAt:     time.Now().UTC(),
		MaxRetries:    DefaultMaxRetries,
	}, nil
}

func (e *OutboxEvent) IsPublished() bool {
	return e.PublishedAt != nil
}

// ShouldRetry is false once the event was relayed or ran out of attempts
func (e *OutboxEvent) ShouldRetry() bool {
	return e.PublishedAt == nil && e.RetryCount < e.MaxRetries
}

// ToCloudEvent decodes the stored payload
func (e *OutboxEvent) ToCloudEvent() (*cloudevents.WMSCloudEvent, error) {
	ce := &cloudevents.WMSCloudEvent{}
	if err := json.Unmarshal(e.Payload, ce); err != nil {
		return nil, err
	}
	return ce, nil
}
