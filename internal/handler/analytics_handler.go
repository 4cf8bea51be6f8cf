package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ozpath/ozpath-api/internal/service"
	"github.com/ozpath/ozpath-api/pkg/response"
)

// AnalyticsHandler exposes the reporting read model.
type AnalyticsHandler struct {
	analytics *service.AnalyticsService
}

// NewAnalyticsHandler constructs AnalyticsHandler.
func NewAnalyticsHandler(analytics *service.AnalyticsService) *AnalyticsHandler {
	return &AnalyticsHandler{analytics: analytics}
}

// Pipeline godoc
// @Summary Pipeline summary for the tenant
// @Tags Analytics
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /analytics/pipeline [get]
func (h *AnalyticsHandler) Pipeline(c *gin.Context) {
	summary, err := h.analytics.PipelineSummary(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}
