package handler

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ozpath/ozpath-api/internal/middleware"
	"github.com/ozpath/ozpath-api/internal/service"
	appErrors "github.com/ozpath/ozpath-api/pkg/errors"
	"github.com/ozpath/ozpath-api/pkg/response"
)

// FormHandler exposes authorization form endpoints.
type FormHandler struct {
	forms *service.FormService
}

// NewFormHandler constructs FormHandler.
func NewFormHandler(forms *service.FormService) *FormHandler {
	return &FormHandler{forms: forms}
}

// Create godoc
// @Summary Create the authorization form for an application
// @Tags AuthorizationForms
// @Produce json
// @Param id path string true "Application ID"
// @Success 201 {object} response.Envelope
// @Router /applications/{id}/authorization-form [post]
func (h *FormHandler) Create(c *gin.Context) {
	actor, ok := middleware.CurrentActor(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	form, err := h.forms.Create(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, form)
}

// Get godoc
// @Summary Get the authorization form with derived status
// @Tags AuthorizationForms
// @Produce json
// @Param id path string true "Application ID"
// @Success 200 {object} response.Envelope
// @Router /applications/{id}/authorization-form [get]
func (h *FormHandler) Get(c *gin.Context) {
	actor, ok := middleware.CurrentActor(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	form, err := h.forms.Get(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, form, nil)
}

// Sign godoc
// @Summary Sign one slot of the authorization form
// @Tags AuthorizationForms
// @Accept json
// @Produce json
// @Param id path string true "Application ID"
// @Param payload body service.SignFormRequest true "Signature payload"
// @Success 200 {object} response.Envelope
// @Router /applications/{id}/authorization-form/sign [post]
func (h *FormHandler) Sign(c *gin.Context) {
	actor, ok := middleware.CurrentActor(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req service.SignFormRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	form, err := h.forms.Sign(c.Request.Context(), c.Param("id"), req, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, form, nil)
}

// Download godoc
// @Summary Download the completed form as PDF
// @Tags AuthorizationForms
// @Produce application/pdf
// @Param id path string true "Application ID"
// @Success 200 {file} binary
// @Router /applications/{id}/authorization-form/pdf [get]
func (h *FormHandler) Download(c *gin.Context) {
	actor, ok := middleware.CurrentActor(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	payload, err := h.forms.RenderPDF(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	filename := fmt.Sprintf("authorization-form-%s.pdf", c.Param("id"))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, "application/pdf", payload)
}
