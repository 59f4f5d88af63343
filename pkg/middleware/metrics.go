package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/wms-platform/cfs-destuffing-service/pkg/metrics"
)

// MetricsMiddleware records request count, latency and in-flight requests.
// Requests are labelled by route pattern; unmatched paths share one label.
func MetricsMiddleware(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.URL.Path == "/metrics" {
			c.Next()
			return
		}

		m.IncrementHTTPRequestsInFlight()
		start := time.Now()
		defer func() {
			m.DecrementHTTPRequestsInFlight()
			route := c.FullPath()
			if route == "" {
				route = "unmatched"
			}
			m.RecordHTTPRequest(c.Request.Method, route, c.Writer.Status(), time.Since(start))
		}()

		c.Next()
	}
}
