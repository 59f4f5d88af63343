package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/wms-platform/cfs-destuffing-service/pkg/errors"
	"github.com/wms-platform/cfs-destuffing-service/pkg/logging"
)

// gin context keys
const (
	ContextKeyRequestID     = "requestId"
	ContextKeyCorrelationID = "correlationId"
	ContextKeyTraceID       = "traceId"
)

const (
	HeaderRequestID     = "X-Request-ID"
	HeaderCorrelationID = "X-Correlation-ID"
	HeaderUserID        = "X-WMS-User-ID"
)

// propagateID reads header or mints a uuid, echoes it on the response and
// stores it under key. attach copies it onto the request context.
func propagateID(header, key string, attach func(c *gin.Context, id string) context.Context) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(header)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(key, id)
		c.Header(header, id)
		c.Request = c.Request.WithContext(attach(c, id))
		c.Next()
	}
}

// RequestID assigns each request an id, honoring an incoming X-Request-ID
func RequestID() gin.HandlerFunc {
	return propagateID(HeaderRequestID, ContextKeyRequestID, func(c *gin.Context, id string) context.Context {
		return logging.ContextWithRequestID(c.Request.Context(), id)
	})
}

// CorrelationID carries the caller's correlation id and acting user into
// the request context so log records pick them up.
func CorrelationID() gin.HandlerFunc {
	return propagateID(HeaderCorrelationID, ContextKeyCorrelationID, func(c *gin.Context, id string) context.Context {
		ctx := logging.ContextWithCorrelationID(c.Request.Context(), id)
		if user := c.GetHeader(HeaderUserID); user != "" {
			ctx = logging.ContextWithUserID(ctx, user)
		}
		return ctx
	})
}

// LoggerConfig controls the access log
type LoggerConfig struct {
	Logger       *slog.Logger
	ExcludePaths []string
}

// DefaultLoggerConfig skips the probe endpoints
func DefaultLoggerConfig(logger *slog.Logger) *LoggerConfig {
	return &LoggerConfig{Logger: logger, ExcludePaths: probePaths}
}

// Logger writes one access record per request
func Logger(logger *slog.Logger) gin.HandlerFunc {
	return LoggerWithConfig(DefaultLoggerConfig(logger))
}

// LoggerWithConfig logs at Info, Warn for 4xx and Error for 5xx
func LoggerWithConfig(config *LoggerConfig) gin.HandlerFunc {
	skip := make(map[string]struct{}, len(config.ExcludePaths))
	for _, p := range config.ExcludePaths {
		skip[p] = struct{}{}
	}

	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if _, ok := skip[path]; ok {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		attrs := []any{
			"status", status,
			"method", c.Request.Method,
			"path", path,
			"route", c.FullPath(),
			"latencyMs", time.Since(start).Milliseconds(),
			"clientIP", c.ClientIP(),
			"requestId", GetRequestID(c),
			"correlationId", GetCorrelationID(c),
		}
		if query := c.Request.URL.RawQuery; query != "" {
			attrs = append(attrs, "query", query)
		}

		level := slog.LevelInfo
		switch {
		case status >= http.StatusInternalServerError:
			level = slog.LevelError
		case status >= http.StatusBadRequest:
			level = slog.LevelWarn
		}
		config.Logger.Log(c.Request.Context(), level, "HTTP request", attrs...)
	}
}

// Recovery turns a handler panic into a 500 API error
func Recovery(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			recovered := recover()
			if recovered == nil {
				return
			}
			logger.Error("Panic recovered",
				"error", recovered,
				"method", c.Request.Method,
				"path", c.Request.URL.Path,
				"requestId", GetRequestID(c),
			)
			AbortWithAppError(c, errors.ErrInternal("An unexpected error occurred"))
		}()
		c.Next()
	}
}

func GetRequestID(c *gin.Context) string {
	return c.GetString(ContextKeyRequestID)
}

func GetCorrelationID(c *gin.Context) string {
	return c.GetString(ContextKeyCorrelationID)
}
