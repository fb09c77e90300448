package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/institute-backoffice-api/internal/dto"
	"github.com/noah-isme/institute-backoffice-api/internal/models"
	"github.com/noah-isme/institute-backoffice-api/internal/visibility"
	"github.com/noah-isme/institute-backoffice-api/pkg/response"
)

type studentService interface {
	List(ctx context.Context, scope visibility.Scope, query dto.StudentQuery) ([]models.Student, *models.Pagination, error)
	Get(ctx context.Context, scope visibility.Scope, id string) (*models.Student, error)
	Create(ctx context.Context, scope visibility.Scope, req dto.CreateStudentRequest) (*models.Student, error)
	Update(ctx context.Context, scope visibility.Scope, id string, req dto.UpdateStudentRequest) (*models.Student, error)
	Delete(ctx context.Context, scope visibility.Scope, id string, req dto.DeleteStudentRequest) ([]string, error)
	AssignProject(ctx context.Context, scope visibility.Scope, studentID string, req dto.AssignProjectRequest) (*models.Student, error)
	UnassignProject(ctx context.Context, scope visibility.Scope, studentID, projectID string) (*models.Student, error)
}

// StudentHandler exposes student endpoints.
type StudentHandler struct {
	students studentService
}

// NewStudentHandler constructs StudentHandler.
func NewStudentHandler(students studentService) *StudentHandler {
	return &StudentHandler{students: students}
}

// List godoc
// @Summary List students
// @Description Members only see students linked to one of their projects
// @Tags Students
// @Produce json
// @Param search query string false "Search by name or email"
// @Param status query string false "Filter by status"
// @Param projectId query string false "Filter by project"
// @Param page query int false "Page"
// @Param pageSize query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /students [get]
func (h *StudentHandler) List(c *gin.Context) {
	scope, ok := scopeFromContext(c)
	if !ok {
		return
	}
	var query dto.StudentQuery
	if !bindQuery(c, &query) {
		return
	}
	query.Search = strings.TrimSpace(query.Search)

	students, pagination, err := h.students.List(c.Request.Context(), scope, query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, students, pagination)
}

// Get godoc
// @Summary Get student detail
// @Tags Students
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /students/{id} [get]
func (h *StudentHandler) Get(c *gin.Context) {
	scope, ok := scopeFromContext(c)
	if !ok {
		return
	}
	student, err := h.students.Get(c.Request.Context(), scope, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, student, nil)
}

// Create godoc
// @Summary Register student
// @Description Members must link the student to at least one of their own projects
// @Tags Students
// @Accept json
// @Produce json
// @Param payload body dto.CreateStudentRequest true "Student payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /students [post]
func (h *StudentHandler) Create(c *gin.Context) {
	scope, ok := scopeFromContext(c)
	if !ok {
		return
	}
	var req dto.CreateStudentRequest
	if !bindJSON(c, &req) {
		return
	}
	student, err := h.students.Create(c.Request.Context(), scope, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, student)
}

// Update godoc
// @Summary Update student
// @Tags Students
// @Accept json
// @Produce json
// @Param id path string true "Student ID"
// @Param payload body dto.UpdateStudentRequest true "Student payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /students/{id} [put]
func (h *StudentHandler) Update(c *gin.Context) {
	scope, ok := scopeFromContext(c)
	if !ok {
		return
	}
	var req dto.UpdateStudentRequest
	if !bindJSON(c, &req) {
		return
	}
	student, err := h.students.Update(c.Request.Context(), scope, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, student, nil)
}

// Delete godoc
// @Summary Delete student
// @Description Administrator only. Members file a deletion request instead.
// @Tags Students
// @Accept json
// @Produce json
// @Param id path string true "Student ID"
// @Param payload body dto.DeleteStudentRequest false "Reason"
// @Success 200 {object} response.Envelope
// @Router /students/{id} [delete]
func (h *StudentHandler) Delete(c *gin.Context) {
	scope, ok := scopeFromContext(c)
	if !ok {
		return
	}
	var req dto.DeleteStudentRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	id := c.Param("id")
	warnings, err := h.students.Delete(c.Request.Context(), scope, id, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"id": id, "deleted": true}, nil, response.Warnings(warnings))
}

// AssignProject godoc
// @Summary Link student to project
// @Tags Students
// @Accept json
// @Produce json
// @Param id path string true "Student ID"
// @Param payload body dto.AssignProjectRequest true "Project"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/projects [post]
func (h *StudentHandler) AssignProject(c *gin.Context) {
	scope, ok := scopeFromContext(c)
	if !ok {
		return
	}
	var req dto.AssignProjectRequest
	if !bindJSON(c, &req) {
		return
	}
	student, err := h.students.AssignProject(c.Request.Context(), scope, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, student, nil)
}

// UnassignProject godoc
// @Summary Unlink student from project
// @Tags Students
// @Produce json
// @Param id path string true "Student ID"
// @Param projectId path string true "Project ID"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/projects/{projectId} [delete]
func (h *StudentHandler) UnassignProject(c *gin.Context) {
	scope, ok := scopeFromContext(c)
	if !ok {
		return
	}
	student, err := h.students.UnassignProject(c.Request.Context(), scope, c.Param("id"), c.Param("projectId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, student, nil)
}
