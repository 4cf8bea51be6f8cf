package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/ozpath/ozpath-api/internal/tenant"
	appErrors "github.com/ozpath/ozpath-api/pkg/errors"
	"github.com/ozpath/ozpath-api/pkg/response"
)

// TenantScope seeds the request context with the tenant asserted by the token.
// Every repository query reads the scope back out, so a request that reaches
// a handler without it fails closed.
func TenantScope() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := CurrentClaims(c)
		if !ok || claims.TenantID == "" {
			response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "missing tenant scope"))
			c.Abort()
			return
		}
		ctx := tenant.WithTenant(c.Request.Context(), claims.TenantID)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
