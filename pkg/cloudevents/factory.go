package cloudevents

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/wms-platform/cfs-destuffing-service/pkg/logging"
)

// EventFactory creates CloudEvents for one source
type EventFactory struct {
	source string
	clock  func() time.Time
}

// NewEventFactory creates a new EventFactory for a specific source
func NewEventFactory(source string) *EventFactory {
	return &EventFactory{
		source: source,
		clock:  func() time.Time { return time.Now().UTC() },
	}
}

// CreateEvent creates a new WMSCloudEvent. The correlation id is taken from ctx when present.
func (f *EventFactory) CreateEvent(ctx context.Context, eventType, subject string, data any) *WMSCloudEvent {
	return &WMSCloudEvent{
		SpecVersion:     SpecVersion,
		Type:            eventType,
		Source:          f.source,
		Subject:         subject,
		ID:              uuid.New().String(),
		Time:            f.clock(),
		DataContentType: "application/json",
		Data:            data,
		CorrelationID:   logging.CorrelationIDFromContext(ctx),
	}
}

// CreateContainerEvent creates an event scoped to one plan container
func (f *EventFactory) CreateContainerEvent(ctx context.Context, eventType, planID, containerID string, data any) *WMSCloudEvent {
	event := f.CreateEvent(ctx, eventType, "plan/"+planID+"/container/"+containerID, data)
	event.PlanID = planID
	event.ContainerID = containerID
	return event
}

// CreatePlanEvent creates an event scoped to a plan and the workflow tracking it
func (f *EventFactory) CreatePlanEvent(ctx context.Context, eventType, planID, workflowID string, data any) *WMSCloudEvent {
	event := f.CreateEvent(ctx, eventType, "plan/"+planID, data)
	event.PlanID = planID
	event.WorkflowID = workflowID
	return event
}
