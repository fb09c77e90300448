package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/institute-backoffice-api/internal/dto"
	"github.com/noah-isme/institute-backoffice-api/internal/models"
	"github.com/noah-isme/institute-backoffice-api/internal/realtime"
	"github.com/noah-isme/institute-backoffice-api/internal/visibility"
	"github.com/noah-isme/institute-backoffice-api/pkg/database"
	appErrors "github.com/noah-isme/institute-backoffice-api/pkg/errors"
	applog "github.com/noah-isme/institute-backoffice-api/pkg/logger"
)

type studentRepository interface {
	List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error)
	GetByID(ctx context.Context, id string) (*models.Student, error)
	Create(ctx context.Context, student *models.Student) error
	Update(ctx context.Context, student *models.Student) error
	Delete(ctx context.Context, id string) error
	AssignProject(ctx context.Context, studentID, projectID string, assignedAt time.Time) error
	UnassignProject(ctx context.Context, studentID, projectID string) error
}

type projectReader interface {
	GetByID(ctx context.Context, id string) (*models.Project, error)
}

// StudentService handles student use-cases.
type StudentService struct {
	repo      studentRepository
	projects  projectReader
	validator *validator.Validate
	logger    *zap.Logger
	hooks
}

// NewStudentService constructs the student service.
func NewStudentService(repo studentRepository, projects projectReader, validate *validator.Validate, logger *zap.Logger, opts ...Option) *StudentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StudentService{
		repo:      repo,
		projects:  projects,
		validator: registerEnumValidations(validate),
		logger:    logger,
		hooks:     newHooks(opts),
	}
}

// List returns students visible to scope and pagination metadata.
func (s *StudentService) List(ctx context.Context, scope visibility.Scope, query dto.StudentQuery) ([]models.Student, *models.Pagination, error) {
	if err := s.validator.Struct(query); err != nil {
		return nil, nil, validationError(err, "invalid student filters")
	}
	filter := scope.StudentFilter(models.StudentFilter{
		Search:    strings.TrimSpace(query.Search),
		Status:    models.StudentStatus(query.Status),
		ProjectID: query.ProjectID,
		Page:      query.Page,
		PageSize:  query.PageSize,
	})
	students, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, internalError(err, "failed to list students")
	}
	page := query.Page
	if page < 1 {
		page = 1
	}
	size := query.PageSize
	if size <= 0 || size > 200 {
		size = 50
	}
	return scope.Students(students), &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns one student visible to scope.
func (s *StudentService) Get(ctx context.Context, scope visibility.Scope, id string) (*models.Student, error) {
	student, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, lookupError(err, "student")
	}
	if !scope.CanSeeStudent(*student) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "student is not in your projects")
	}
	return student, nil
}

// Create registers a student with its initial projects. Members may only
// attach projects they are assigned to.
func (s *StudentService) Create(ctx context.Context, scope visibility.Scope, req dto.CreateStudentRequest) (*models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid student payload")
	}
	enrolled := time.Now().UTC().Truncate(24 * time.Hour)
	if req.EnrollmentDate != "" {
		parsed, err := parseDate(req.EnrollmentDate, "enrollmentDate")
		if err != nil {
			return nil, err
		}
		enrolled = parsed
	}
	status := models.StudentStatus(req.Status)
	if status == "" {
		status = models.StudentStatusActive
	}
	addedBy := models.AddedByMember
	if scope.Admin {
		addedBy = models.AddedByAdmin
	}

	student := &models.Student{
		FullName:       strings.TrimSpace(req.FullName),
		Email:          normalizeEmail(req.Email),
		Phone:          strings.TrimSpace(req.Phone),
		EnrollmentDate: enrolled,
		Status:         status,
		AddedBy:        addedBy,
		AddedByEmail:   scope.Email,
		Projects:       []models.StudentProject{},
	}
	seen := make(map[string]struct{}, len(req.ProjectIDs))
	for _, projectID := range req.ProjectIDs {
		if _, dup := seen[projectID]; dup {
			continue
		}
		seen[projectID] = struct{}{}
		project, err := s.assignableProject(ctx, scope, projectID)
		if err != nil {
			return nil, err
		}
		student.Projects = append(student.Projects, models.StudentProject{ProjectID: project.ID, ProjectName: project.Name})
	}

	if err := s.repo.Create(ctx, student); err != nil {
		if database.IsForeignKeyViolation(err) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "one of the projects no longer exists")
		}
		return nil, internalError(err, "failed to create student")
	}
	s.publish(models.TableStudents, realtime.OpInsert, student.ID)
	return student, nil
}

// Update changes the supplied fields of a visible student.
func (s *StudentService) Update(ctx context.Context, scope visibility.Scope, id string, req dto.UpdateStudentRequest) (*models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid student payload")
	}
	student, err := s.Get(ctx, scope, id)
	if err != nil {
		return nil, err
	}
	if req.FullName != nil {
		student.FullName = strings.TrimSpace(*req.FullName)
	}
	if req.Email != nil {
		student.Email = normalizeEmail(*req.Email)
	}
	if req.Phone != nil {
		student.Phone = strings.TrimSpace(*req.Phone)
	}
	if req.EnrollmentDate != nil {
		parsed, err := parseDate(*req.EnrollmentDate, "enrollmentDate")
		if err != nil {
			return nil, err
		}
		student.EnrollmentDate = parsed
	}
	if req.Status != nil {
		student.Status = models.StudentStatus(*req.Status)
	}
	if req.Version != nil {
		student.Version = *req.Version
	}

	if err := s.repo.Update(ctx, student); err != nil {
		return nil, versionedWriteError(ctx, err, "student", func(ctx context.Context) error {
			_, err := s.repo.GetByID(ctx, id)
			return err
		})
	}
	s.publish(models.TableStudents, realtime.OpUpdate, student.ID)
	return student, nil
}

// Delete removes a student directly. Only the administrator may, with a
// reason that is forwarded to the member who registered the student.
func (s *StudentService) Delete(ctx context.Context, scope visibility.Scope, id string, req dto.DeleteStudentRequest) ([]string, error) {
	if err := requireAdmin(scope, "members must file a deletion request"); err != nil {
		return nil, err
	}
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "a deletion reason is required")
	}
	student, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, lookupError(err, "student")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, internalError(err, "failed to delete student")
	}
	applog.Ctx(ctx, s.logger).Info("student deleted", zap.String("student_id", id), zap.String("admin", scope.Email))
	s.publish(models.TableStudents, realtime.OpDelete, id)

	if student.AddedBy != models.AddedByMember || student.AddedByEmail == "" {
		return nil, nil
	}
	target := student.AddedByEmail
	return s.notify(ctx, &models.Notification{
		Type:       models.NotificationStudent,
		Title:      "Student removed",
		Message:    fmt.Sprintf("%s was removed by the administrator: %s", student.FullName, reason),
		CreatedBy:  scope.Email,
		TargetUser: &target,
	}), nil
}

// AssignProject links a visible student to a project and returns the updated student.
func (s *StudentService) AssignProject(ctx context.Context, scope visibility.Scope, studentID string, req dto.AssignProjectRequest) (*models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid assignment payload")
	}
	if _, err := s.Get(ctx, scope, studentID); err != nil {
		return nil, err
	}
	if _, err := s.assignableProject(ctx, scope, req.ProjectID); err != nil {
		return nil, err
	}
	if err := s.repo.AssignProject(ctx, studentID, req.ProjectID, time.Now().UTC()); err != nil {
		return nil, internalError(err, "failed to assign project")
	}
	s.publish(models.TableProjectStudents, realtime.OpInsert, studentID)
	return s.reload(ctx, studentID)
}

// UnassignProject removes a project link from a visible student.
func (s *StudentService) UnassignProject(ctx context.Context, scope visibility.Scope, studentID, projectID string) (*models.Student, error) {
	if _, err := s.Get(ctx, scope, studentID); err != nil {
		return nil, err
	}
	if !scope.Admin && !containsString(scope.ProjectIDs, projectID) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "project is not assigned to you")
	}
	if err := s.repo.UnassignProject(ctx, studentID, projectID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student is not assigned to project")
		}
		return nil, internalError(err, "failed to unassign project")
	}
	s.publish(models.TableProjectStudents, realtime.OpDelete, studentID)
	return s.reload(ctx, studentID)
}

func (s *StudentService) assignableProject(ctx context.Context, scope visibility.Scope, projectID string) (*models.Project, error) {
	project, err := s.projects.GetByID(ctx, projectID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("project %s not found", projectID))
		}
		return nil, internalError(err, "failed to load project")
	}
	if !scope.CanSeeProject(*project) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "project is not assigned to you")
	}
	return project, nil
}

func (s *StudentService) reload(ctx context.Context, id string) (*models.Student, error) {
	student, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, lookupError(err, "student")
	}
	return student, nil
}

func containsString(list []string, value string) bool {
	for _, item := range list {
		if item == value {
			return true
		}
	}
	return false
}
