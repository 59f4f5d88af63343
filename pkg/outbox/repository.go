package outbox

import (
	"context"

	"github.com/wms-platform/cfs-destuffing-service/pkg/cloudevents"
)

// Repository persists pending events. SaveAll is called inside the journal
// transaction; the other methods are used by the Publisher.
type Repository interface {
	SaveAll(ctx context.Context, events []*OutboxEvent) error
	// FindUnpublished returns at most limit retryable events, oldest first
	FindUnpublished(ctx context.Context, limit int) ([]*OutboxEvent, error)
	MarkPublished(ctx context.Context, eventID string) error
	IncrementRetry(ctx context.Context, eventID string, errorMsg string) error
}

// EventPublisher is satisfied by kafka.Producer
type EventPublisher interface {
	PublishEvent(ctx context.Context, topic string, event *cloudevents.WMSCloudEvent) error
}
