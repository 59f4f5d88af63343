package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/wms-platform/cfs-destuffing-service/pkg/permission"
)

// HeaderPermissions carries the caller's granted capabilities, comma separated.
// It is set by the authenticating gateway in front of the service.
const HeaderPermissions = "X-WMS-Permissions"

// Permissions middleware attaches the caller's permission set to the request context
func Permissions() gin.HandlerFunc {
	return func(c *gin.Context) {
		set := permission.Parse(c.GetHeader(HeaderPermissions))
		c.Request = c.Request.WithContext(permission.WithSet(c.Request.Context(), set))
		c.Next()
	}
}
