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

type deletionRequestService interface {
	List(ctx context.Context, scope visibility.Scope, query dto.DeletionRequestQuery) ([]models.DeletionRequest, error)
	Get(ctx context.Context, scope visibility.Scope, id string) (*models.DeletionRequest, error)
	Create(ctx context.Context, scope visibility.Scope, req dto.CreateDeletionRequest) (*models.DeletionRequest, []string, error)
	Approve(ctx context.Context, scope visibility.Scope, id string, req dto.DecideDeletionRequest) (*models.DeletionRequest, []string, error)
	Reject(ctx context.Context, scope visibility.Scope, id string, req dto.DecideDeletionRequest) (*models.DeletionRequest, []string, error)
}

// DeletionRequestHandler exposes the student deletion approval workflow.
type DeletionRequestHandler struct {
	requests deletionRequestService
}

// NewDeletionRequestHandler constructs DeletionRequestHandler.
func NewDeletionRequestHandler(requests deletionRequestService) *DeletionRequestHandler {
	return &DeletionRequestHandler{requests: requests}
}

// List godoc
// @Summary List deletion requests
// @Tags Deletion Requests
// @Produce json
// @Param status query string false "Filter by status"
// @Success 200 {object} response.Envelope
// @Router /deletion-requests [get]
func (h *DeletionRequestHandler) List(c *gin.Context) {
	scope, ok := scopeFromContext(c)
	if !ok {
		return
	}
	var query dto.DeletionRequestQuery
	if !bindQuery(c, &query) {
		return
	}
	items, err := h.requests.List(c.Request.Context(), scope, query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// Get godoc
// @Summary Get deletion request
// @Tags Deletion Requests
// @Produce json
// @Param id path string true "Deletion request ID"
// @Success 200 {object} response.Envelope
// @Router /deletion-requests/{id} [get]
func (h *DeletionRequestHandler) Get(c *gin.Context) {
	scope, ok := scopeFromContext(c)
	if !ok {
		return
	}
	item, err := h.requests.Get(c.Request.Context(), scope, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}

// Create godoc
// @Summary Request student deletion
// @Tags Deletion Requests
// @Accept json
// @Produce json
// @Param payload body dto.CreateDeletionRequest true "Request payload"
// @Success 201 {object} response.Envelope
// @Router /deletion-requests [post]
func (h *DeletionRequestHandler) Create(c *gin.Context) {
	scope, ok := scopeFromContext(c)
	if !ok {
		return
	}
	var req dto.CreateDeletionRequest
	if !bindJSON(c, &req) {
		return
	}
	item, warnings, err := h.requests.Create(c.Request.Context(), scope, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, item, response.Warnings(warnings))
}

// Approve godoc
// @Summary Approve deletion request
// @Description Deletes the student and closes the request in one transaction
// @Tags Deletion Requests
// @Accept json
// @Produce json
// @Param id path string true "Deletion request ID"
// @Param payload body dto.DecideDeletionRequest false "Admin response"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /deletion-requests/{id}/approve [post]
func (h *DeletionRequestHandler) Approve(c *gin.Context) {
	h.decide(c, h.requests.Approve)
}

// Reject godoc
// @Summary Reject deletion request
// @Tags Deletion Requests
// @Accept json
// @Produce json
// @Param id path string true "Deletion request ID"
// @Param payload body dto.DecideDeletionRequest true "Admin response"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /deletion-requests/{id}/reject [post]
func (h *DeletionRequestHandler) Reject(c *gin.Context) {
	h.decide(c, h.requests.Reject)
}

type deletionDecision func(ctx context.Context, scope visibility.Scope, id string, req dto.DecideDeletionRequest) (*models.DeletionRequest, []string, error)

func (h *DeletionRequestHandler) decide(c *gin.Context, decide deletionDecision) {
	scope, ok := scopeFromContext(c)
	if !ok {
		return
	}
	var req dto.DecideDeletionRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	item, warnings, err := decide(c.Request.Context(), scope, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil, response.Warnings(warnings))
}
