package clients

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/wms-platform/cfs-destuffing-service/internal/domain"
	"github.com/wms-platform/cfs-destuffing-service/pkg/metrics"
)

// ServiceInspection is the breaker and metrics name of the inspection service
const ServiceInspection = "inspection-service"

// InspectionClient implements domain.InspectionService over REST
type InspectionClient struct {
	rest *restClient
}

// NewInspectionClient creates a new InspectionClient
func NewInspectionClient(config Config, logger *slog.Logger, m *metrics.Metrics) *InspectionClient {
	return &InspectionClient{rest: newRESTClient(ServiceInspection, config, logger, m)}
}

// GetOrCreateInspectionSession returns the session linked to a packing list,
// creating it on first use
func (c *InspectionClient) GetOrCreateInspectionSession(ctx context.Context, packingListID string, flow domain.FlowType) (string, error) {
	var resp sessionResponse
	err := c.rest.send(ctx, "get-or-create-session", http.MethodPost, "/api/v1/inspection/sessions",
		sessionRequest{PackingListID: packingListID, Flow: flow}, &resp, nil)
	if err != nil {
		return "", err
	}
	id := firstNonEmpty(resp.SessionID, resp.ID)
	if id == "" {
		return "", &domain.CollaboratorError{
			Service:   ServiceInspection,
			Operation: "get-or-create-session",
			Message:   "response carried no session id",
			Err:       domain.ErrCollaboratorRejected,
		}
	}
	return id, nil
}
