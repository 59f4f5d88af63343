package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/propagation"

	"github.com/wms-platform/cfs-destuffing-service/internal/domain"
	"github.com/wms-platform/cfs-destuffing-service/pkg/logging"
	"github.com/wms-platform/cfs-destuffing-service/pkg/metrics"
	"github.com/wms-platform/cfs-destuffing-service/pkg/resilience"
	"github.com/wms-platform/cfs-destuffing-service/pkg/tracing"
)

// Config holds the connection settings of one collaborator
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// upstreamError is the error body collaborators return
type upstreamError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// statusMapper turns a non-2xx response into a domain error
type statusMapper func(status int, body upstreamError) error

// restClient performs JSON calls against one collaborator through a circuit breaker
type restClient struct {
	service    string
	baseURL    string
	httpClient *http.Client
	breaker    *resilience.CircuitBreaker
	retry      *resilience.RetryConfig
	metrics    *metrics.Metrics
}

func newRESTClient(service string, config Config, logger *slog.Logger, m *metrics.Metrics) *restClient {
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	breakerConfig := resilience.DefaultCircuitBreakerConfig(service)
	breakerConfig.IsSuccessful = isHealthyOutcome

	retry := resilience.DefaultRetryConfig()
	retry.Retryable = isRetryable

	return &restClient{
		service:    service,
		baseURL:    strings.TrimRight(config.BaseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		breaker:    resilience.NewCircuitBreaker(breakerConfig, logger, m),
		retry:      retry,
		metrics:    m,
	}
}

// isHealthyOutcome counts business rejections as breaker successes
func isHealthyOutcome(err error) bool {
	return err == nil ||
		errors.Is(err, domain.ErrCollaboratorRejected) ||
		errors.Is(err, domain.ErrNeedsReseal) ||
		errors.Is(err, domain.ErrConcurrentModification) ||
		errors.Is(err, domain.ErrHblNotFound) ||
		errors.Is(err, errNotFound)
}

func isRetryable(err error) bool {
	return errors.Is(err, domain.ErrCollaboratorUnavailable) &&
		!errors.Is(err, context.DeadlineExceeded) &&
		!errors.Is(err, context.Canceled)
}

// errNotFound marks a 404 from a read; callers translate it to a nil result
var errNotFound = errors.New("resource not found")

// defaultStatusMapper classifies responses the same way for every operation
func defaultStatusMapper(status int, _ upstreamError) error {
	switch {
	case status == http.StatusNotFound:
		return errNotFound
	case status == http.StatusConflict:
		return domain.ErrConcurrentModification
	case status == http.StatusTooManyRequests, status >= http.StatusInternalServerError:
		return domain.ErrCollaboratorUnavailable
	default:
		return domain.ErrCollaboratorRejected
	}
}

// get performs an idempotent read with retries
func (c *restClient) get(ctx context.Context, operation, path string, result any) error {
	_, err := resilience.RetryWithResult(ctx, c.retry, func() (struct{}, error) {
		return struct{}{}, c.do(ctx, operation, http.MethodGet, path, nil, result, defaultStatusMapper)
	})
	return err
}

// send performs a write exactly once
func (c *restClient) send(ctx context.Context, operation, method, path string, body, result any, mapper statusMapper) error {
	if mapper == nil {
		mapper = defaultStatusMapper
	}
	return c.do(ctx, operation, method, path, body, result, mapper)
}

func (c *restClient) do(ctx context.Context, operation, method, path string, body, result any, mapper statusMapper) error {
	start := time.Now()
	_, err := resilience.Execute(ctx, c.breaker, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, c.roundTrip(ctx, operation, method, path, body, result, mapper)
	})
	c.metrics.RecordCollaboratorCall(c.service, operation, isHealthyOutcome(err), time.Since(start))
	if errors.Is(err, resilience.ErrCircuitOpen) {
		return &domain.CollaboratorError{
			Service:   c.service,
			Operation: operation,
			Message:   "circuit open",
			Err:       fmt.Errorf("%w: %w", domain.ErrCollaboratorUnavailable, err),
		}
	}
	return err
}

func (c *restClient) roundTrip(ctx context.Context, operation, method, path string, body, result any, mapper statusMapper) error {
	var reqBody io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal %s request: %w", operation, err)
		}
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create %s request: %w", operation, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if correlationID := logging.CorrelationIDFromContext(ctx); correlationID != "" {
		req.Header.Set("X-Correlation-ID", correlationID)
	}
	tracing.InjectHeaders(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &domain.CollaboratorError{
			Service:   c.service,
			Operation: operation,
			Message:   "request failed",
			Err:       fmt.Errorf("%w: %w", domain.ErrCollaboratorUnavailable, err),
		}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &domain.CollaboratorError{
			Service:    c.service,
			Operation:  operation,
			StatusCode: resp.StatusCode,
			Message:    "failed to read response",
			Err:        fmt.Errorf("%w: %w", domain.ErrCollaboratorUnavailable, err),
		}
	}

	if resp.StatusCode >= http.StatusBadRequest {
		var upstream upstreamError
		_ = json.Unmarshal(respBody, &upstream)
		return &domain.CollaboratorError{
			Service:    c.service,
			Operation:  operation,
			StatusCode: resp.StatusCode,
			Code:       upstream.Code,
			Message:    upstream.Message,
			Err:        mapper(resp.StatusCode, upstream),
		}
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("failed to decode %s response: %w", operation, err)
		}
	}
	return nil
}
