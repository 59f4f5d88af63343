package idempotency

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/wms-platform/cfs-destuffing-service/pkg/errors"
	"github.com/wms-platform/cfs-destuffing-service/pkg/middleware"
)

// HeaderIdempotencyKey is the HTTP header name for the idempotency key
const HeaderIdempotencyKey = "Idempotency-Key"

// HeaderReplayed marks a response served from the idempotency store
const HeaderReplayed = "Idempotent-Replayed"

const (
	// DefaultMaxKeyLength is the maximum length for an idempotency key
	DefaultMaxKeyLength = 255

	// DefaultLockTimeout is the age after which an unfinished lock is stale
	DefaultLockTimeout = 2 * time.Minute

	// DefaultRetentionPeriod is how long keys are retained
	DefaultRetentionPeriod = 24 * time.Hour

	// DefaultMaxResponseSize is the largest response body that is stored
	DefaultMaxResponseSize = 1 << 20
)

// Config holds configuration for the idempotency middleware
type Config struct {
	ServiceName string
	Store       Store

	// RequireKey rejects mutating requests without a key
	RequireKey bool

	MaxKeyLength    int
	LockTimeout     time.Duration
	RetentionPeriod time.Duration
	MaxResponseSize int

	Logger  *slog.Logger
	Metrics *Metrics
}

// DefaultConfig returns a default configuration for the given service
func DefaultConfig(serviceName string, store Store, logger *slog.Logger) *Config {
	return &Config{
		ServiceName:     serviceName,
		Store:           store,
		MaxKeyLength:    DefaultMaxKeyLength,
		LockTimeout:     DefaultLockTimeout,
		RetentionPeriod: DefaultRetentionPeriod,
		MaxResponseSize: DefaultMaxResponseSize,
		Logger:          logger,
	}
}

type captureWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w *captureWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *captureWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// Middleware replays stored responses for repeated mutating requests
func Middleware(config *Config) gin.HandlerFunc {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return func(c *gin.Context) {
		if !isMutatingMethod(c.Request.Method) {
			c.Next()
			return
		}

		key := NormalizeKey(c.GetHeader(HeaderIdempotencyKey))
		if key == "" {
			if config.RequireKey {
				middleware.AbortWithAppError(c, errors.NewAppError("IDEMPOTENCY_KEY_REQUIRED", "Idempotency-Key header is required for this operation", http.StatusBadRequest))
				return
			}
			c.Next()
			return
		}
		if err := ValidateKey(key, config.MaxKeyLength); err != nil {
			middleware.AbortWithAppError(c, errors.NewAppError("IDEMPOTENCY_KEY_INVALID", err.Error(), http.StatusBadRequest))
			return
		}

		var body []byte
		if c.Request.Body != nil {
			body, _ = io.ReadAll(c.Request.Body)
			c.Request.Body = io.NopCloser(bytes.NewReader(body))
		}

		now := time.Now().UTC()
		rec := &Record{
			Key:           key,
			ServiceID:     config.ServiceName,
			RequestPath:   c.Request.URL.Path,
			RequestMethod: c.Request.Method,
			Fingerprint:   Fingerprint(c.Request.Method, c.Request.URL.Path, body),
			LockToken:     uuid.NewString(),
			LockedAt:      now,
			CreatedAt:     now,
			ExpiresAt:     now.Add(config.RetentionPeriod),
		}
		method := c.Request.Method
		ctx := c.Request.Context()
		log := logger.With("key", key, "path", rec.RequestPath)

		existing, acquired, err := config.Store.Acquire(ctx, rec, now.Add(-config.LockTimeout))
		if err != nil {
			log.Error("Failed to acquire idempotency lock", "error", err)
			config.Metrics.record(config.ServiceName, method, OutcomeStorageError)
			middleware.AbortWithAppError(c, errors.ErrServiceUnavailable("idempotency storage"))
			return
		}

		if existing.Fingerprint != rec.Fingerprint {
			log.Warn("Idempotency key reused with different request")
			config.Metrics.record(config.ServiceName, method, OutcomeMismatch)
			middleware.AbortWithAppError(c, errors.NewAppError("IDEMPOTENCY_PARAMETER_MISMATCH", "request differs from the original request with this idempotency key", http.StatusUnprocessableEntity))
			return
		}

		if !acquired {
			if existing.IsCompleted() {
				log.Info("Replaying stored response", "status", existing.ResponseCode)
				config.Metrics.record(config.ServiceName, method, OutcomeHit)
				for k, v := range existing.ResponseHeaders {
					c.Header(k, v)
				}
				c.Header(HeaderReplayed, "true")
				c.Data(existing.ResponseCode, "application/json; charset=utf-8", existing.ResponseBody)
				c.Abort()
				return
			}
			log.Warn("Concurrent request with same idempotency key")
			config.Metrics.record(config.ServiceName, method, OutcomeConcurrent)
			middleware.AbortWithAppError(c, errors.NewAppError("IDEMPOTENCY_CONCURRENT_REQUEST", "a request with this idempotency key is currently being processed", http.StatusConflict))
			return
		}

		config.Metrics.record(config.ServiceName, method, OutcomeMiss)
		writer := &captureWriter{ResponseWriter: c.Writer, body: &bytes.Buffer{}}
		c.Writer = writer

		c.Next()

		status := writer.Status()
		if status >= http.StatusInternalServerError {
			if err := config.Store.Release(ctx, existing); err != nil {
				log.Error("Failed to release idempotency lock", "error", err)
			}
			config.Metrics.record(config.ServiceName, method, OutcomeReleased)
			return
		}

		stored := writer.body.Bytes()
		if len(stored) > config.MaxResponseSize {
			log.Warn("Response too large to store", "size", len(stored))
			stored = nil
		}
		if err := config.Store.Complete(ctx, existing, status, stored, responseHeaders(writer.Header())); err != nil {
			log.Error("Failed to store idempotency response", "error", err)
			config.Metrics.record(config.ServiceName, method, OutcomeStorageError)
		}
	}
}

func isMutatingMethod(method string) bool {
	return method == http.MethodPost ||
		method == http.MethodPut ||
		method == http.MethodPatch ||
		method == http.MethodDelete
}

// per-request headers are never replayed
var skippedHeaders = map[string]bool{
	"Content-Length":                                        true,
	"Content-Type":                                          true,
	http.CanonicalHeaderKey(middleware.HeaderRequestID):     true,
	http.CanonicalHeaderKey(middleware.HeaderCorrelationID): true,
}

func responseHeaders(h http.Header) map[string]string {
	headers := make(map[string]string)
	for k, v := range h {
		if len(v) > 0 && !skippedHeaders[k] {
			headers[k] = v[0]
		}
	}
	return headers
}
