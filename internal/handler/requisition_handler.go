package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/institute-backoffice-api/internal/dto"
	"github.com/noah-isme/institute-backoffice-api/internal/models"
	"github.com/noah-isme/institute-backoffice-api/internal/visibility"
	"github.com/noah-isme/institute-backoffice-api/pkg/response"
)

type requisitionService interface {
	List(ctx context.Context, scope visibility.Scope, query dto.RequisitionQuery) ([]models.Requisition, error)
	Get(ctx context.Context, scope visibility.Scope, id string) (*models.Requisition, error)
	Create(ctx context.Context, scope visibility.Scope, req dto.CreateRequisitionRequest) (*models.Requisition, error)
	Update(ctx context.Context, scope visibility.Scope, id string, req dto.UpdateRequisitionRequest) (*models.Requisition, error)
	Delete(ctx context.Context, scope visibility.Scope, id string) error
	Approve(ctx context.Context, scope visibility.Scope, id string, req dto.ApproveRequisitionRequest) (*models.Requisition, []string, error)
	Reject(ctx context.Context, scope visibility.Scope, id string, req dto.RejectRequisitionRequest) (*models.Requisition, []string, error)
	SetPending(ctx context.Context, scope visibility.Scope, id string) (*models.Requisition, error)
}

// RequisitionHandler exposes requisition endpoints and their review workflow.
type RequisitionHandler struct {
	requisitions requisitionService
}

// NewRequisitionHandler constructs RequisitionHandler.
func NewRequisitionHandler(requisitions requisitionService) *RequisitionHandler {
	return &RequisitionHandler{requisitions: requisitions}
}

// List godoc
// @Summary List requisitions
// @Description Members only see their own submissions
// @Tags Requisitions
// @Produce json
// @Param status query string false "Filter by status"
// @Param category query string false "Filter by category"
// @Success 200 {object} response.Envelope
// @Router /requisitions [get]
func (h *RequisitionHandler) List(c *gin.Context) {
	scope, ok := scopeFromContext(c)
	if !ok {
		return
	}
	var query dto.RequisitionQuery
	if !bindQuery(c, &query) {
		return
	}
	items, err := h.requisitions.List(c.Request.Context(), scope, query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// Get godoc
// @Summary Get requisition
// @Tags Requisitions
// @Produce json
// @Param id path string true "Requisition ID"
// @Success 200 {object} response.Envelope
// @Router /requisitions/{id} [get]
func (h *RequisitionHandler) Get(c *gin.Context) {
	scope, ok := scopeFromContext(c)
	if !ok {
		return
	}
	item, err := h.requisitions.Get(c.Request.Context(), scope, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}

// Create godoc
// @Summary Raise requisition
// @Tags Requisitions
// @Accept json
// @Produce json
// @Param payload body dto.CreateRequisitionRequest true "Requisition payload"
// @Success 201 {object} response.Envelope
// @Router /requisitions [post]
func (h *RequisitionHandler) Create(c *gin.Context) {
	scope, ok := scopeFromContext(c)
	if !ok {
		return
	}
	var req dto.CreateRequisitionRequest
	if !bindJSON(c, &req) {
		return
	}
	item, err := h.requisitions.Create(c.Request.Context(), scope, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, item)
}

// Update godoc
// @Summary Edit pending requisition
// @Tags Requisitions
// @Accept json
// @Produce json
// @Param id path string true "Requisition ID"
// @Param payload body dto.UpdateRequisitionRequest true "Requisition payload"
// @Success 200 {object} response.Envelope
// @Router /requisitions/{id} [put]
func (h *RequisitionHandler) Update(c *gin.Context) {
	scope, ok := scopeFromContext(c)
	if !ok {
		return
	}
	var req dto.UpdateRequisitionRequest
	if !bindJSON(c, &req) {
		return
	}
	item, err := h.requisitions.Update(c.Request.Context(), scope, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}

// Delete godoc
// @Summary Withdraw requisition
// @Tags Requisitions
// @Param id path string true "Requisition ID"
// @Success 204
// @Router /requisitions/{id} [delete]
func (h *RequisitionHandler) Delete(c *gin.Context) {
	scope, ok := scopeFromContext(c)
	if !ok {
		return
	}
	if err := h.requisitions.Delete(c.Request.Context(), scope, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Approve godoc
// @Summary Approve requisition
// @Tags Requisitions
// @Accept json
// @Produce json
// @Param id path string true "Requisition ID"
// @Param payload body dto.ApproveRequisitionRequest false "Reviewer notes"
// @Success 200 {object} response.Envelope
// @Router /requisitions/{id}/approve [post]
func (h *RequisitionHandler) Approve(c *gin.Context) {
	scope, ok := scopeFromContext(c)
	if !ok {
		return
	}
	var req dto.ApproveRequisitionRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	item, warnings, err := h.requisitions.Approve(c.Request.Context(), scope, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil, response.Warnings(warnings))
}

// Reject godoc
// @Summary Reject requisition
// @Tags Requisitions
// @Accept json
// @Produce json
// @Param id path string true "Requisition ID"
// @Param payload body dto.RejectRequisitionRequest true "Rejection reason"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /requisitions/{id}/reject [post]
func (h *RequisitionHandler) Reject(c *gin.Context) {
	scope, ok := scopeFromContext(c)
	if !ok {
		return
	}
	var req dto.RejectRequisitionRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	item, warnings, err := h.requisitions.Reject(c.Request.Context(), scope, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil, response.Warnings(warnings))
}

// SetPending godoc
// @Summary Return requisition to pending
// @Tags Requisitions
// @Produce json
// @Param id path string true "Requisition ID"
// @Success 200 {object} response.Envelope
// @Router /requisitions/{id}/pending [post]
func (h *RequisitionHandler) SetPending(c *gin.Context) {
	scope, ok := scopeFromContext(c)
	if !ok {
		return
	}
	item, err := h.requisitions.SetPending(c.Request.Context(), scope, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}
