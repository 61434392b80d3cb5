package middleware

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/advisorhub/backend/internal/infrastructure/telemetry"
)

// ProfileLabels tags the CPU samples taken while a request runs with its
// route and tenant so profiles can be sliced per endpoint. Run it after Identity.
func ProfileLabels() gin.HandlerFunc {
	return func(c *gin.Context) {
		route := routePattern(c)
		tenant := GetTenantID(c)
		if tenant == "" {
			tenant = "anonymous"
		}
		telemetry.WithProfileLabels(c.Request.Context(), func(ctx context.Context) {
			c.Request = c.Request.WithContext(ctx)
			c.Next()
		}, "route", route, "method", c.Request.Method, "tenant_id", tenant)
	}
}
