package kafka

import (
	"context"
	"errors"

	"github.com/wms-platform/cfs-destuffing-service/internal/application"
	"github.com/wms-platform/cfs-destuffing-service/internal/domain"
	"github.com/wms-platform/cfs-destuffing-service/pkg/cloudevents"
	"github.com/wms-platform/cfs-destuffing-service/pkg/contracts/eventschema"
	platformkafka "github.com/wms-platform/cfs-destuffing-service/pkg/kafka"
	"github.com/wms-platform/cfs-destuffing-service/pkg/logging"
)

// ContainerLoader refetches a container and reconciles its cached view
type ContainerLoader interface {
	LoadContainer(ctx context.Context, ref application.ContainerRef) (*application.ContainerView, error)
}

// Subscriber registers event handlers on a topic
type Subscriber interface {
	Subscribe(topic string, eventType string, handler platformkafka.EventHandler)
}

// InspectionEventHandler reconciles containers when an inspection session ends
type InspectionEventHandler struct {
	loader    ContainerLoader
	validator *eventschema.Validator
	logger    *logging.Logger
	topic     string
}

// NewInspectionEventHandler creates a handler for topic. An empty topic
// selects the platform inspection events topic.
func NewInspectionEventHandler(loader ContainerLoader, validator *eventschema.Validator, logger *logging.Logger, topic string) *InspectionEventHandler {
	if topic == "" {
		topic = platformkafka.Topics.InspectionEvents
	}
	return &InspectionEventHandler{
		loader:    loader,
		validator: validator,
		logger:    logger.WithComponent("inspection-events"),
		topic:     topic,
	}
}

// Register subscribes the handler to every inspection event it understands
func (h *InspectionEventHandler) Register(s Subscriber) {
	s.Subscribe(h.topic, cloudevents.InspectionSessionCompleted, h.Handle)
	s.Subscribe(h.topic, cloudevents.InspectionSessionCancelled, h.Handle)
}

// Handle reloads the container an inspection session belongs to. Events
// that fail validation or name an unknown container are dropped; a failed
// reload is returned so the consumer retries it.
func (h *InspectionEventHandler) Handle(ctx context.Context, event *cloudevents.WMSCloudEvent) error {
	log := h.logger.WithContext(ctx)

	if err := h.validator.Validate(event); err != nil {
		log.WithError(err).Warn("Dropping invalid inspection event", "eventId", event.ID, "eventType", event.Type)
		return nil
	}

	var data cloudevents.SessionCompletedData
	if err := event.DecodeData(&data); err != nil {
		log.WithError(err).Warn("Dropping undecodable inspection event", "eventId", event.ID)
		return nil
	}

	ref := application.ContainerRef{PlanID: data.PlanID, ContainerID: data.ContainerID}
	view, err := h.loader.LoadContainer(ctx, ref)
	switch {
	case errors.Is(err, domain.ErrContainerNotFound), errors.Is(err, domain.ErrPlanNotFound):
		log.Warn("Inspection event names an unknown container",
			"planId", ref.PlanID, "containerId", ref.ContainerID, "sessionId", data.SessionID)
		return nil
	case err != nil:
		return err
	}

	log.Info("Container reconciled after inspection",
		"eventType", event.Type,
		"planId", ref.PlanID,
		"containerId", ref.ContainerID,
		"hblId", data.HblID,
		"sessionId", data.SessionID,
		"version", view.Version,
	)
	return nil
}
