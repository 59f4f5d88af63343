package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/wms-platform/cfs-destuffing-service/internal/application"
)

const sseBuffer = 32

// StreamEvents pushes container notifications as server-sent events until
// the client disconnects. Notifications are dropped while the buffer is full.
func (h *DestuffingHandlers) StreamEvents(c *gin.Context) {
	ref := containerRef(c)
	ctx := c.Request.Context()

	events := make(chan application.Notification, sseBuffer)
	unsubscribe := h.service.Subscribe(ref, func(n application.Notification) {
		select {
		case events <- n:
		default:
		}
	})
	defer unsubscribe()

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	c.SSEvent("subscribed", ref)
	c.Writer.Flush()

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case n := <-events:
			c.SSEvent(string(n.Kind), n)
		case at := <-heartbeat.C:
			c.SSEvent("heartbeat", gin.H{"at": at.UTC()})
		}
		c.Writer.Flush()
	}
}
