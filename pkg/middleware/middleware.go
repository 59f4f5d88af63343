package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// probePaths are left out of access logs and traces
var probePaths = []string{"/health", "/ready", "/metrics"}

// Config selects the middleware Setup installs
type Config struct {
	Logger         *slog.Logger
	ServiceName    string
	EnableCORS     bool
	TrustedProxies []string
}

// DefaultConfig enables CORS and trusts no proxy
func DefaultConfig(serviceName string, logger *slog.Logger) *Config {
	return &Config{Logger: logger, ServiceName: serviceName, EnableCORS: true}
}

// Setup installs the standard chain in order: recovery, request and
// correlation ids, access log, permissions, CORS, content type.
func Setup(router *gin.Engine, config *Config) {
	InitValidator()
	if len(config.TrustedProxies) > 0 {
		_ = router.SetTrustedProxies(config.TrustedProxies)
	}

	chain := []gin.HandlerFunc{
		Recovery(config.Logger),
		RequestID(),
		CorrelationID(),
		Logger(config.Logger),
		Permissions(),
	}
	if config.EnableCORS {
		chain = append(chain, CORS())
	}
	router.Use(append(chain, ContentType())...)
}

var (
	corsAllowHeaders = strings.Join([]string{
		"Origin", "Content-Type", "Accept", "Authorization", "Last-Event-ID",
		headerIdempotencyKey, HeaderRequestID, HeaderCorrelationID, HeaderPermissions,
	}, ", ")
	corsExposeHeaders = strings.Join([]string{HeaderRequestID, HeaderCorrelationID, headerIdempotentReplayed}, ", ")
)

// header names owned by pkg/idempotency, repeated here to avoid an import cycle
const (
	headerIdempotencyKey     = "Idempotency-Key"
	headerIdempotentReplayed = "Idempotent-Replayed"
)

// CORS answers preflight requests and allows browser clients of the API
func CORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		h.Set("Access-Control-Allow-Headers", corsAllowHeaders)
		h.Set("Access-Control-Expose-Headers", corsExposeHeaders)
		h.Set("Access-Control-Max-Age", "86400")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
