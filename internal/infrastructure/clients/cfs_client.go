package clients

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/wms-platform/cfs-destuffing-service/internal/domain"
	"github.com/wms-platform/cfs-destuffing-service/pkg/metrics"
)

// ServiceCFS is the breaker and metrics name of the CFS backend
const ServiceCFS = "cfs-backend"

// codeConcurrentModification distinguishes a write race from a reseal requirement
const codeConcurrentModification = "CONCURRENT_MODIFICATION"

// CFSClient implements domain.CFSBackend over the CFS REST API
type CFSClient struct {
	rest *restClient
}

// NewCFSClient creates a new CFSClient
func NewCFSClient(config Config, logger *slog.Logger, m *metrics.Metrics) *CFSClient {
	return &CFSClient{rest: newRESTClient(ServiceCFS, config, logger, m)}
}

func containerPath(planID, containerID string) string {
	return fmt.Sprintf("/api/v1/cfs/plans/%s/containers/%s", url.PathEscape(planID), url.PathEscape(containerID))
}

// FetchPlan returns nil when the plan does not exist
func (c *CFSClient) FetchPlan(ctx context.Context, planID string) (*domain.Plan, error) {
	var record planRecord
	err := c.rest.get(ctx, "fetch-plan", "/api/v1/cfs/plans/"+url.PathEscape(planID), &record)
	if errors.Is(err, errNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return record.toDomain(planID), nil
}

// FetchPlanContainer returns nil when the container is not part of the plan
func (c *CFSClient) FetchPlanContainer(ctx context.Context, planID, containerID string) (*domain.ContainerRecord, error) {
	var record containerRecord
	err := c.rest.get(ctx, "fetch-plan-container", containerPath(planID, containerID), &record)
	if errors.Is(err, errNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return record.toDomain(planID), nil
}

// FetchHblStatuses returns the live rows for hblIDs, normalized
func (c *CFSClient) FetchHblStatuses(ctx context.Context, planID, containerID string, hblIDs []string) ([]domain.HblDestuffStatus, error) {
	query := url.Values{}
	for _, id := range hblIDs {
		query.Add("hblId", id)
	}
	var rows []domain.RawHblRecord
	err := c.rest.get(ctx, "fetch-hbl-statuses", containerPath(planID, containerID)+"/hbl-statuses?"+query.Encode(), &rows)
	if errors.Is(err, errNotFound) {
		return []domain.HblDestuffStatus{}, nil
	}
	if err != nil {
		return nil, err
	}
	return domain.NormalizeLive(rows), nil
}

// UnsealContainer is not idempotent upstream
func (c *CFSClient) UnsealContainer(ctx context.Context, planID, containerID string) error {
	return c.rest.send(ctx, "unseal-container", http.MethodPost, containerPath(planID, containerID)+"/unseal", nil, nil, nil)
}

// ResealContainer records a new seal
func (c *CFSClient) ResealContainer(ctx context.Context, planID, containerID string, req domain.ResealRequest) error {
	return c.rest.send(ctx, "reseal-container", http.MethodPost, containerPath(planID, containerID)+"/reseal", req, nil, nil)
}

// CompleteContainer maps a 409 to domain.ErrNeedsReseal unless the backend
// reports a concurrent modification
func (c *CFSClient) CompleteContainer(ctx context.Context, planID, containerID string) error {
	return c.rest.send(ctx, "complete-container", http.MethodPost, containerPath(planID, containerID)+"/complete", nil, nil, completionStatusMapper)
}

func completionStatusMapper(status int, body upstreamError) error {
	if status == http.StatusConflict {
		if body.Code == codeConcurrentModification {
			return domain.ErrConcurrentModification
		}
		return domain.ErrNeedsReseal
	}
	return defaultStatusMapper(status, body)
}

// UpdateHblBypassFlag writes the bypass storage flag of one hbl
func (c *CFSClient) UpdateHblBypassFlag(ctx context.Context, hblID string, flag bool) error {
	return c.rest.send(ctx, "update-hbl-bypass-flag", http.MethodPatch,
		"/api/v1/cfs/hbls/"+url.PathEscape(hblID)+"/bypass-storage", bypassFlagRequest{BypassStorageFlag: flag}, nil, hblStatusMapper)
}

// RecordDestuffResult stores the operator's result for one hbl
func (c *CFSClient) RecordDestuffResult(ctx context.Context, planID, containerID, hblID string, payload domain.DestuffResultPayload) error {
	return c.rest.send(ctx, "record-destuff-result", http.MethodPost,
		containerPath(planID, containerID)+"/hbls/"+url.PathEscape(hblID)+"/destuff-result", payload, nil, hblStatusMapper)
}

func hblStatusMapper(status int, body upstreamError) error {
	if status == http.StatusNotFound {
		return domain.ErrHblNotFound
	}
	return defaultStatusMapper(status, body)
}
