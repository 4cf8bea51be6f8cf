package handler

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ozpath/ozpath-api/internal/middleware"
	"github.com/ozpath/ozpath-api/internal/models"
	"github.com/ozpath/ozpath-api/internal/service"
	appErrors "github.com/ozpath/ozpath-api/pkg/errors"
	"github.com/ozpath/ozpath-api/pkg/export"
	"github.com/ozpath/ozpath-api/pkg/response"
)

// CommissionHandler exposes commission settlement and payout endpoints.
type CommissionHandler struct {
	commissions *service.CommissionService
	csv         *export.CSVExporter
	metrics     *service.MetricsService
}

// NewCommissionHandler constructs CommissionHandler.
func NewCommissionHandler(commissions *service.CommissionService, csv *export.CSVExporter, metrics *service.MetricsService) *CommissionHandler {
	return &CommissionHandler{commissions: commissions, csv: csv, metrics: metrics}
}

// Settle godoc
// @Summary Settle a commission for an application milestone
// @Tags Commissions
// @Accept json
// @Produce json
// @Param payload body service.SettleRequest true "Settlement payload"
// @Success 201 {object} response.Envelope
// @Router /commissions/settle [post]
func (h *CommissionHandler) Settle(c *gin.Context) {
	actor, ok := middleware.CurrentActor(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req service.SettleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	result, err := h.commissions.Settle(c.Request.Context(), req, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	if result.Created {
		h.metrics.RecordSettlement()
		response.Created(c, result.Record)
		return
	}
	response.JSON(c, http.StatusOK, result.Record, nil)
}

// List godoc
// @Summary List commission records
// @Tags Commissions
// @Produce json
// @Param applicationId query string false "Filter by application"
// @Param payoutStatus query string false "Filter by payout status"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /commissions [get]
func (h *CommissionHandler) List(c *gin.Context) {
	actor, ok := middleware.CurrentActor(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	filter := h.filterFromQuery(c)
	records, pagination, err := h.commissions.List(c.Request.Context(), filter, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, records, pagination)
}

// Get godoc
// @Summary Get a commission record with its payout ledger
// @Tags Commissions
// @Produce json
// @Param id path string true "Commission record ID"
// @Success 200 {object} response.Envelope
// @Router /commissions/{id} [get]
func (h *CommissionHandler) Get(c *gin.Context) {
	actor, ok := middleware.CurrentActor(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	detail, err := h.commissions.Get(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail, nil)
}

// RecordPayout godoc
// @Summary Record a payout attempt outcome for one recipient
// @Tags Commissions
// @Accept json
// @Produce json
// @Param id path string true "Commission record ID"
// @Param payload body service.RecordPayoutRequest true "Payout payload"
// @Success 200 {object} response.Envelope
// @Router /commissions/{id}/payouts [post]
func (h *CommissionHandler) RecordPayout(c *gin.Context) {
	actor, ok := middleware.CurrentActor(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req service.RecordPayoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	attempt, err := h.commissions.RecordPayout(c.Request.Context(), c.Param("id"), req, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.metrics.RecordPayout(string(attempt.Status))
	response.JSON(c, http.StatusOK, attempt, nil)
}

// Export godoc
// @Summary Export commission records as CSV
// @Tags Commissions
// @Produce text/csv
// @Param applicationId query string false "Filter by application"
// @Param payoutStatus query string false "Filter by payout status"
// @Success 200 {file} binary
// @Router /commissions/export [get]
func (h *CommissionHandler) Export(c *gin.Context) {
	actor, ok := middleware.CurrentActor(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	records, err := h.commissions.ListAll(c.Request.Context(), h.filterFromQuery(c), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	payload, err := h.csv.Render(export.CommissionDataset(records))
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to export commissions"))
		return
	}
	filename := fmt.Sprintf("commissions-%s.csv", time.Now().UTC().Format("20060102"))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, "text/csv", payload)
}

func (h *CommissionHandler) filterFromQuery(c *gin.Context) models.CommissionFilter {
	var filter models.CommissionFilter
	filter.ApplicationID = c.Query("applicationId")
	filter.PayoutStatus = models.PayoutStatus(c.Query("payoutStatus"))
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}
	return filter
}
