package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/institute-backoffice-api/internal/dto"
	"github.com/noah-isme/institute-backoffice-api/internal/models"
	"github.com/noah-isme/institute-backoffice-api/internal/realtime"
	"github.com/noah-isme/institute-backoffice-api/internal/repository"
	"github.com/noah-isme/institute-backoffice-api/internal/visibility"
	"github.com/noah-isme/institute-backoffice-api/pkg/database"
	appErrors "github.com/noah-isme/institute-backoffice-api/pkg/errors"
	"github.com/noah-isme/institute-backoffice-api/pkg/export"
	applog "github.com/noah-isme/institute-backoffice-api/pkg/logger"
)

type attendanceRepository interface {
	List(ctx context.Context, filter models.AttendanceFilter) ([]models.AttendanceRecord, error)
	SubmitBulk(ctx context.Context, projectID string, date time.Time, records []models.AttendanceRecord) error
}

type attendanceProjects interface {
	projectReader
	StudentIDs(ctx context.Context, projectIDs []string) ([]string, error)
}

// AttendanceService records project attendance and reports on it.
type AttendanceService struct {
	repo      attendanceRepository
	projects  attendanceProjects
	exporter  *ExportService
	validator *validator.Validate
	logger    *zap.Logger
	hooks
}

// NewAttendanceService constructs the service.
func NewAttendanceService(repo attendanceRepository, projects attendanceProjects, exporter *ExportService, validate *validator.Validate, logger *zap.Logger, opts ...Option) *AttendanceService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if exporter == nil {
		exporter = NewExportService(logger, nil, nil)
	}
	return &AttendanceService{
		repo:      repo,
		projects:  projects,
		exporter:  exporter,
		validator: registerEnumValidations(validate),
		logger:    logger,
		hooks:     newHooks(opts),
	}
}

// List returns attendance records visible to scope.
func (s *AttendanceService) List(ctx context.Context, scope visibility.Scope, query dto.AttendanceQuery) ([]models.AttendanceRecord, error) {
	filter, err := s.filter(scope, query)
	if err != nil {
		return nil, err
	}
	records, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, internalError(err, "failed to list attendance")
	}
	return scope.Attendance(records), nil
}

// Submit stores one session for a project the member is assigned to. Each
// project and date can be submitted once.
func (s *AttendanceService) Submit(ctx context.Context, scope visibility.Scope, req dto.SubmitAttendanceRequest) ([]models.AttendanceRecord, error) {
	if scope.Admin {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "attendance is recorded by members")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid attendance payload")
	}
	date, err := parseDate(req.Date, "date")
	if err != nil {
		return nil, err
	}
	project, err := s.projects.GetByID(ctx, req.ProjectID)
	if err != nil {
		return nil, lookupError(err, "project")
	}
	if !scope.CanSeeProject(*project) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "project is not assigned to you")
	}

	roster, err := s.projects.StudentIDs(ctx, []string{project.ID})
	if err != nil {
		return nil, internalError(err, "failed to load project roster")
	}
	enrolled := make(map[string]struct{}, len(roster))
	for _, id := range roster {
		enrolled[id] = struct{}{}
	}

	records := make([]models.AttendanceRecord, 0, len(req.Records))
	seen := make(map[string]struct{}, len(req.Records))
	for _, mark := range req.Records {
		if _, dup := seen[mark.StudentID]; dup {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("student %s is marked more than once", mark.StudentID))
		}
		if _, ok := enrolled[mark.StudentID]; !ok {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("student %s is not enrolled on this project", mark.StudentID))
		}
		seen[mark.StudentID] = struct{}{}
		records = append(records, models.AttendanceRecord{
			StudentID:   mark.StudentID,
			ProjectName: project.Name,
			Status:      models.AttendanceStatus(mark.Status),
			Comment:     mark.Comment,
			MarkedBy:    scope.Email,
		})
	}

	if err := s.repo.SubmitBulk(ctx, project.ID, date, records); err != nil {
		switch {
		case errors.Is(err, repository.ErrDuplicate):
			return nil, appErrors.Clone(appErrors.ErrConflict, "attendance was already submitted for this project and date")
		case database.IsForeignKeyViolation(err):
			return nil, appErrors.Clone(appErrors.ErrValidation, "attendance references an unknown student")
		default:
			return nil, internalError(err, "failed to submit attendance")
		}
	}
	applog.Ctx(ctx, s.logger).Info("attendance submitted",
		zap.String("project_id", project.ID),
		zap.String("date", req.Date),
		zap.Int("records", len(records)),
		zap.String("member", scope.Email))
	s.publish(models.TableAttendance, realtime.OpInsert, project.ID)
	return records, nil
}

// Summary aggregates visible records per student. Late counts as present.
func (s *AttendanceService) Summary(ctx context.Context, scope visibility.Scope, query dto.AttendanceQuery) ([]models.AttendanceSummary, error) {
	records, err := s.List(ctx, scope, query)
	if err != nil {
		return nil, err
	}
	return summarizeAttendance(records), nil
}

// Export renders the visible records as an attendance sheet with a
// per-student percentage footer.
func (s *AttendanceService) Export(ctx context.Context, scope visibility.Scope, query dto.AttendanceQuery) (*ExportFile, error) {
	format, err := export.ParseFormat(query.Format)
	if err != nil {
		return nil, validationError(err, "format must be csv or pdf")
	}
	records, err := s.List(ctx, scope, query)
	if err != nil {
		return nil, err
	}

	data := export.Dataset{Headers: []string{"Date", "Student", "Project", "Status", "Comment", "Marked By"}}
	for _, record := range records {
		comment := ""
		if record.Comment != nil {
			comment = *record.Comment
		}
		data.Rows = append(data.Rows, map[string]string{
			"Date":      record.Date.Format(dto.DateLayout),
			"Student":   record.StudentName,
			"Project":   record.ProjectName,
			"Status":    string(record.Status),
			"Comment":   comment,
			"Marked By": record.MarkedBy,
		})
	}
	for _, summary := range summarizeAttendance(records) {
		data.Footer = append(data.Footer, []string{
			"Summary",
			summary.StudentName,
			fmt.Sprintf("%d sessions", summary.Total),
			fmt.Sprintf("%.1f%%", summary.Percentage),
		})
	}

	name := "attendance"
	if query.ProjectID != "" {
		name = "attendance_" + query.ProjectID
	}
	file, err := s.exporter.Render(format, name, "Attendance Sheet", data)
	if err != nil {
		return nil, internalError(err, "failed to render attendance export")
	}
	return file, nil
}

func (s *AttendanceService) filter(scope visibility.Scope, query dto.AttendanceQuery) (models.AttendanceFilter, error) {
	if err := s.validator.Struct(query); err != nil {
		return models.AttendanceFilter{}, validationError(err, "invalid attendance filters")
	}
	filter := models.AttendanceFilter{ProjectID: query.ProjectID, StudentID: query.StudentID}
	if query.From != "" {
		from, err := parseDate(query.From, "from")
		if err != nil {
			return filter, err
		}
		filter.From = &from
	}
	if query.To != "" {
		to, err := parseDate(query.To, "to")
		if err != nil {
			return filter, err
		}
		filter.To = &to
	}
	if filter.From != nil && filter.To != nil && filter.To.Before(*filter.From) {
		return filter, appErrors.Clone(appErrors.ErrValidation, "to must not be before from")
	}
	return scope.AttendanceFilter(filter), nil
}

func summarizeAttendance(records []models.AttendanceRecord) []models.AttendanceSummary {
	byStudent := make(map[string]*models.AttendanceSummary)
	for _, record := range records {
		summary, ok := byStudent[record.StudentID]
		if !ok {
			summary = &models.AttendanceSummary{StudentID: record.StudentID, StudentName: record.StudentName}
			byStudent[record.StudentID] = summary
		}
		summary.Total++
		switch record.Status {
		case models.AttendancePresent:
			summary.Present++
		case models.AttendanceLate:
			summary.Late++
		case models.AttendanceAbsent:
			summary.Absent++
		case models.AttendanceAbsentWithReason:
			summary.AbsentWithReason++
		}
	}

	summaries := make([]models.AttendanceSummary, 0, len(byStudent))
	for _, summary := range byStudent {
		if summary.Total > 0 {
			attended := float64(summary.Present + summary.Late)
			summary.Percentage = math.Round(attended/float64(summary.Total)*1000) / 10
		}
		summaries = append(summaries, *summary)
	}
	sort.Slice(summaries, func(i, j int) bool {
		if summaries[i].StudentName != summaries[j].StudentName {
			return summaries[i].StudentName < summaries[j].StudentName
		}
		return summaries[i].StudentID < summaries[j].StudentID
	})
	return summaries
}
