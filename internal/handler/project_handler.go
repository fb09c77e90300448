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

type projectService interface {
	List(ctx context.Context, scope visibility.Scope, query dto.ProjectQuery) ([]models.Project, error)
	Get(ctx context.Context, scope visibility.Scope, id string) (*models.Project, error)
	Create(ctx context.Context, req dto.CreateProjectRequest) (*models.Project, error)
	Update(ctx context.Context, id string, req dto.UpdateProjectRequest) (*models.Project, error)
	Delete(ctx context.Context, id string) error
	AssignMember(ctx context.Context, projectID string, req dto.AssignMemberRequest) (*models.Project, error)
	UnassignMember(ctx context.Context, projectID, memberID string) (*models.Project, error)
}

// ProjectHandler exposes project endpoints.
type ProjectHandler struct {
	projects projectService
}

// NewProjectHandler constructs ProjectHandler.
func NewProjectHandler(projects projectService) *ProjectHandler {
	return &ProjectHandler{projects: projects}
}

// List godoc
// @Summary List projects
// @Tags Projects
// @Produce json
// @Param status query string false "Filter by status"
// @Param search query string false "Search by name"
// @Success 200 {object} response.Envelope
// @Router /projects [get]
func (h *ProjectHandler) List(c *gin.Context) {
	scope, ok := scopeFromContext(c)
	if !ok {
		return
	}
	var query dto.ProjectQuery
	if !bindQuery(c, &query) {
		return
	}
	projects, err := h.projects.List(c.Request.Context(), scope, query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, projects, nil)
}

// Get godoc
// @Summary Get project detail
// @Tags Projects
// @Produce json
// @Param id path string true "Project ID"
// @Success 200 {object} response.Envelope
// @Router /projects/{id} [get]
func (h *ProjectHandler) Get(c *gin.Context) {
	scope, ok := scopeFromContext(c)
	if !ok {
		return
	}
	project, err := h.projects.Get(c.Request.Context(), scope, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, project, nil)
}

// Create godoc
// @Summary Create project
// @Tags Projects
// @Accept json
// @Produce json
// @Param payload body dto.CreateProjectRequest true "Project payload"
// @Success 201 {object} response.Envelope
// @Router /projects [post]
func (h *ProjectHandler) Create(c *gin.Context) {
	var req dto.CreateProjectRequest
	if !bindJSON(c, &req) {
		return
	}
	project, err := h.projects.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, project)
}

// Update godoc
// @Summary Update project
// @Description An empty endDate clears it
// @Tags Projects
// @Accept json
// @Produce json
// @Param id path string true "Project ID"
// @Param payload body dto.UpdateProjectRequest true "Project payload"
// @Success 200 {object} response.Envelope
// @Router /projects/{id} [put]
func (h *ProjectHandler) Update(c *gin.Context) {
	var req dto.UpdateProjectRequest
	if !bindJSON(c, &req) {
		return
	}
	project, err := h.projects.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, project, nil)
}

// Delete godoc
// @Summary Delete project
// @Tags Projects
// @Param id path string true "Project ID"
// @Success 204
// @Router /projects/{id} [delete]
func (h *ProjectHandler) Delete(c *gin.Context) {
	if err := h.projects.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// AssignMember godoc
// @Summary Assign member to project
// @Tags Projects
// @Accept json
// @Produce json
// @Param id path string true "Project ID"
// @Param payload body dto.AssignMemberRequest true "Member"
// @Success 200 {object} response.Envelope
// @Router /projects/{id}/members [post]
func (h *ProjectHandler) AssignMember(c *gin.Context) {
	var req dto.AssignMemberRequest
	if !bindJSON(c, &req) {
		return
	}
	project, err := h.projects.AssignMember(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, project, nil)
}

// UnassignMember godoc
// @Summary Remove member from project
// @Tags Projects
// @Produce json
// @Param id path string true "Project ID"
// @Param memberId path string true "Member ID"
// @Success 200 {object} response.Envelope
// @Router /projects/{id}/members/{memberId} [delete]
func (h *ProjectHandler) UnassignMember(c *gin.Context) {
	project, err := h.projects.UnassignMember(c.Request.Context(), c.Param("id"), c.Param("memberId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, project, nil)
}
