package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/wms-platform/cfs-destuffing-service/pkg/metrics"
)

type probeResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
	Error   string `json:"error,omitempty"`
}

// HealthCheck reports liveness only
func HealthCheck(serviceName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, probeResponse{Status: "healthy", Service: serviceName})
	}
}

// ReadinessCheck answers 503 while check fails, e.g. when Mongo is unreachable
func ReadinessCheck(serviceName string, check func() error) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := check(); err != nil {
			c.JSON(http.StatusServiceUnavailable, probeResponse{Status: "not ready", Service: serviceName, Error: err.Error()})
			return
		}
		c.JSON(http.StatusOK, probeResponse{Status: "ready", Service: serviceName})
	}
}

// MetricsEndpoint serves m's registry
func MetricsEndpoint(m *metrics.Metrics) gin.HandlerFunc {
	return gin.WrapH(m.Handler())
}

func NoRoute() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusNotFound, newAPIErrorResponse(c, "ROUTE_NOT_FOUND", "The requested resource was not found", nil))
	}
}

func NoMethod() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, newAPIErrorResponse(c, "METHOD_NOT_ALLOWED", "The request method is not supported for this resource", nil))
	}
}

func newAPIErrorResponse(c *gin.Context, code, message string, details map[string]string) APIErrorResponse {
	return APIErrorResponse{
		Code:      code,
		Message:   message,
		Details:   details,
		RequestID: GetRequestID(c),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Path:      c.Request.URL.Path,
	}
}
