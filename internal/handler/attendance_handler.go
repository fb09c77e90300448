package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/institute-backoffice-api/internal/dto"
	"github.com/noah-isme/institute-backoffice-api/internal/models"
	"github.com/noah-isme/institute-backoffice-api/internal/service"
	"github.com/noah-isme/institute-backoffice-api/internal/visibility"
	"github.com/noah-isme/institute-backoffice-api/pkg/response"
)

type attendanceService interface {
	List(ctx context.Context, scope visibility.Scope, query dto.AttendanceQuery) ([]models.AttendanceRecord, error)
	Submit(ctx context.Context, scope visibility.Scope, req dto.SubmitAttendanceRequest) ([]models.AttendanceRecord, error)
	Summary(ctx context.Context, scope visibility.Scope, query dto.AttendanceQuery) ([]models.AttendanceSummary, error)
	Export(ctx context.Context, scope visibility.Scope, query dto.AttendanceQuery) (*service.ExportFile, error)
}

// AttendanceHandler exposes attendance sessions, summaries and sheet exports.
type AttendanceHandler struct {
	attendance attendanceService
}

// NewAttendanceHandler constructs AttendanceHandler.
func NewAttendanceHandler(attendance attendanceService) *AttendanceHandler {
	return &AttendanceHandler{attendance: attendance}
}

// List godoc
// @Summary List attendance records
// @Tags Attendance
// @Produce json
// @Param projectId query string false "Project"
// @Param studentId query string false "Student"
// @Param from query string false "From date (YYYY-MM-DD)"
// @Param to query string false "To date (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Router /attendance [get]
func (h *AttendanceHandler) List(c *gin.Context) {
	scope, query, ok := h.scopedQuery(c)
	if !ok {
		return
	}
	records, err := h.attendance.List(c.Request.Context(), scope, query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, records, nil)
}

// Submit godoc
// @Summary Submit attendance session
// @Description Records every mark of one project session. A session can only be submitted once.
// @Tags Attendance
// @Accept json
// @Produce json
// @Param payload body dto.SubmitAttendanceRequest true "Session"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /attendance [post]
func (h *AttendanceHandler) Submit(c *gin.Context) {
	scope, ok := scopeFromContext(c)
	if !ok {
		return
	}
	var req dto.SubmitAttendanceRequest
	if !bindJSON(c, &req) {
		return
	}
	records, err := h.attendance.Submit(c.Request.Context(), scope, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, records)
}

// Summary godoc
// @Summary Attendance percentages per student
// @Tags Attendance
// @Produce json
// @Param projectId query string false "Project"
// @Param from query string false "From date (YYYY-MM-DD)"
// @Param to query string false "To date (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Router /attendance/summary [get]
func (h *AttendanceHandler) Summary(c *gin.Context) {
	scope, query, ok := h.scopedQuery(c)
	if !ok {
		return
	}
	summary, err := h.attendance.Summary(c.Request.Context(), scope, query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}

// Export godoc
// @Summary Export attendance sheet
// @Tags Attendance
// @Produce text/csv
// @Produce application/pdf
// @Param projectId query string false "Project"
// @Param from query string false "From date (YYYY-MM-DD)"
// @Param to query string false "To date (YYYY-MM-DD)"
// @Param format query string false "csv or pdf"
// @Success 200 {file} file
// @Router /attendance/export [get]
func (h *AttendanceHandler) Export(c *gin.Context) {
	scope, query, ok := h.scopedQuery(c)
	if !ok {
		return
	}
	file, err := h.attendance.Export(c.Request.Context(), scope, query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, file.Filename, file.ContentType, file.Data)
}

func (h *AttendanceHandler) scopedQuery(c *gin.Context) (visibility.Scope, dto.AttendanceQuery, bool) {
	var query dto.AttendanceQuery
	scope, ok := scopeFromContext(c)
	if !ok {
		return scope, query, false
	}
	if !bindQuery(c, &query) {
		return scope, query, false
	}
	return scope, query, true
}
