package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/google/uuid"

	"github.com/wms-platform/cfs-destuffing-service/internal/api/dto"
	"github.com/wms-platform/cfs-destuffing-service/pkg/idempotency"
	"github.com/wms-platform/cfs-destuffing-service/pkg/middleware"
)

// apiError is a non-2xx answer from the destuffing API
type apiError struct {
	Status  int
	Code    string
	Message string
	Details map[string]string
}

func (e *apiError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("api returned status %d", e.Status)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

type apiClient struct {
	baseURL     string
	permissions string
	http        *http.Client
}

func newAPIClient(cfg cliConfig) *apiClient {
	return &apiClient{
		baseURL:     cfg.APIURL,
		permissions: cfg.Permissions,
		http:        &http.Client{Timeout: cfg.timeout()},
	}
}

func containerPath(planID, containerID string) string {
	return fmt.Sprintf("/api/v1/plans/%s/containers/%s", url.PathEscape(planID), url.PathEscape(containerID))
}

func hblPath(planID, containerID, hblID, action string) string {
	return fmt.Sprintf("%s/hbls/%s/%s", containerPath(planID, containerID), url.PathEscape(hblID), action)
}

// do sends one request. Mutating requests carry a fresh idempotency key.
// accept lists extra statuses whose body decodes into out instead of failing.
func (c *apiClient) do(ctx context.Context, method, path string, body, out any, accept ...int) (int, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.permissions != "" {
		req.Header.Set(middleware.HeaderPermissions, c.permissions)
	}
	if method != http.MethodGet {
		req.Header.Set(idempotency.HeaderIdempotencyKey, uuid.NewString())
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("call %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 300 && !accepted(resp.StatusCode, accept) {
		apiErr := &apiError{Status: resp.StatusCode}
		var payload middleware.APIErrorResponse
		if json.Unmarshal(raw, &payload) == nil {
			apiErr.Code = payload.Code
			apiErr.Message = payload.Message
			apiErr.Details = payload.Details
		}
		return resp.StatusCode, apiErr
	}

	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

func accepted(status int, accept []int) bool {
	for _, s := range accept {
		if s == status {
			return true
		}
	}
	return false
}

func (c *apiClient) container(ctx context.Context, planID, containerID string, refresh bool) (*dto.ContainerResponse, error) {
	var out dto.ContainerResponse
	method, path := http.MethodGet, containerPath(planID, containerID)
	if refresh {
		method, path = http.MethodPost, path+"/refresh"
	}
	if _, err := c.do(ctx, method, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *apiClient) unseal(ctx context.Context, planID, containerID string) (*dto.ContainerResponse, error) {
	var out dto.ContainerResponse
	if _, err := c.do(ctx, http.MethodPost, containerPath(planID, containerID)+"/unseal", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *apiClient) reseal(ctx context.Context, planID, containerID string, req dto.ResealRequest) (*dto.ContainerResponse, error) {
	var out dto.ContainerResponse
	if _, err := c.do(ctx, http.MethodPost, containerPath(planID, containerID)+"/reseal", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *apiClient) complete(ctx context.Context, planID, containerID string) (*dto.CompletionResponse, error) {
	var out dto.CompletionResponse
	if _, err := c.do(ctx, http.MethodPost, containerPath(planID, containerID)+"/complete", nil, &out, http.StatusConflict); err != nil {
		return nil, err
	}
	if out.Outcome == "" {
		// a 409 without an outcome is a plain conflict
		return nil, &apiError{Status: http.StatusConflict, Code: "CONFLICT", Message: "container changed concurrently, refresh and retry"}
	}
	return &out, nil
}

func (c *apiClient) start(ctx context.Context, planID, containerID, hblID string) (*dto.StartDestuffResponse, error) {
	var out dto.StartDestuffResponse
	if _, err := c.do(ctx, http.MethodPost, hblPath(planID, containerID, hblID, "start"), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *apiClient) result(ctx context.Context, planID, containerID, hblID string, req dto.DestuffResultRequest) (*dto.RecordResultResponse, error) {
	var out dto.RecordResultResponse
	if _, err := c.do(ctx, http.MethodPost, hblPath(planID, containerID, hblID, "result"), req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
