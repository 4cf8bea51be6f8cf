package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ozpath/ozpath-api/internal/middleware"
	"github.com/ozpath/ozpath-api/internal/models"
	"github.com/ozpath/ozpath-api/internal/service"
)

// Dependencies bundles everything the router needs.
type Dependencies struct {
	Auth         *service.AuthService
	Applications *ApplicationHandler
	Forms        *FormHandler
	Commissions  *CommissionHandler
	Analytics    *AnalyticsHandler
	Metrics      *service.MetricsService
}

// RegisterRoutes mounts the API under the given prefix. Every route behind the
// prefix requires a valid token and a tenant scope.
func RegisterRoutes(r *gin.Engine, prefix string, deps Dependencies) {
	r.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))

	api := r.Group(prefix)
	api.Use(middleware.Metrics(deps.Metrics))
	api.Use(middleware.JWT(deps.Auth))
	api.Use(middleware.TenantScope())

	staff := middleware.RequireRoles(models.RoleAdmin, models.RoleAgent)
	admin := middleware.RequireRoles(models.RoleAdmin)

	applications := api.Group("/applications")
	{
		applications.POST("", staff, deps.Applications.Create)
		applications.GET("", deps.Applications.List)
		applications.GET("/:id", deps.Applications.Get)
		applications.GET("/:id/timeline", deps.Applications.Timeline)
		applications.POST("/:id/transition", staff, deps.Applications.Transition)

		applications.POST("/:id/authorization-form", staff, deps.Forms.Create)
		applications.GET("/:id/authorization-form", deps.Forms.Get)
		applications.POST("/:id/authorization-form/sign", deps.Forms.Sign)
		applications.GET("/:id/authorization-form/pdf", deps.Forms.Download)
	}

	commissions := api.Group("/commissions")
	{
		commissions.POST("/settle", admin, deps.Commissions.Settle)
		commissions.GET("", admin, deps.Commissions.List)
		commissions.GET("/export", admin, deps.Commissions.Export)
		commissions.GET("/:id", deps.Commissions.Get)
		commissions.POST("/:id/payouts", admin, deps.Commissions.RecordPayout)
	}

	api.GET("/analytics/pipeline", staff, deps.Analytics.Pipeline)

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": gin.H{"code": "NOT_FOUND", "message": "route not found"}})
	})
}
