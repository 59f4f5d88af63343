package openapi

import (
	"errors"
	"log/slog"

	"github.com/gin-gonic/gin"

	apperrors "github.com/wms-platform/cfs-destuffing-service/pkg/errors"
	"github.com/wms-platform/cfs-destuffing-service/pkg/middleware"
)

// RequestValidation rejects requests that violate the contract with a 400.
// Routes the document does not describe pass through.
func RequestValidation(v *Validator, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		err := v.ValidateRequest(c.Request.Context(), c.Request)
		switch {
		case err == nil, errors.Is(err, ErrRouteNotFound):
			c.Next()
		default:
			logger.Warn("Request violates API contract",
				"method", c.Request.Method,
				"path", c.Request.URL.Path,
				"error", err,
			)
			middleware.AbortWithAppError(c, apperrors.ErrValidation(err.Error()))
		}
	}
}
