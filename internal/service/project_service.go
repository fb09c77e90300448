package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/noah-isme/institute-backoffice-api/internal/dto"
	"github.com/noah-isme/institute-backoffice-api/internal/models"
	"github.com/noah-isme/institute-backoffice-api/internal/realtime"
	"github.com/noah-isme/institute-backoffice-api/internal/visibility"
	appErrors "github.com/noah-isme/institute-backoffice-api/pkg/errors"
)

type projectRepository interface {
	List(ctx context.Context, filter models.ProjectFilter) ([]models.Project, error)
	GetByID(ctx context.Context, id string) (*models.Project, error)
	Create(ctx context.Context, project *models.Project) error
	Update(ctx context.Context, project *models.Project) error
	Delete(ctx context.Context, id string) error
	AssignMember(ctx context.Context, projectID, memberID string) error
	UnassignMember(ctx context.Context, projectID, memberID string) error
}

type memberReader interface {
	GetByID(ctx context.Context, id string) (*models.Member, error)
}

// ProjectService manages projects and their member assignments.
type ProjectService struct {
	repo      projectRepository
	members   memberReader
	validator *validator.Validate
	logger    *zap.Logger
	hooks
}

// NewProjectService constructs the service.
func NewProjectService(repo projectRepository, members memberReader, validate *validator.Validate, logger *zap.Logger, opts ...Option) *ProjectService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProjectService{
		repo:      repo,
		members:   members,
		validator: registerEnumValidations(validate),
		logger:    logger,
		hooks:     newHooks(opts),
	}
}

// List returns projects visible to scope.
func (s *ProjectService) List(ctx context.Context, scope visibility.Scope, query dto.ProjectQuery) ([]models.Project, error) {
	if err := s.validator.Struct(query); err != nil {
		return nil, validationError(err, "invalid project filters")
	}
	filter := scope.ProjectFilter(models.ProjectFilter{
		Status: models.ProjectStatus(query.Status),
		Search: strings.TrimSpace(query.Search),
	})
	projects, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, internalError(err, "failed to list projects")
	}
	return scope.Projects(projects), nil
}

// Get returns one project visible to scope.
func (s *ProjectService) Get(ctx context.Context, scope visibility.Scope, id string) (*models.Project, error) {
	project, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, lookupError(err, "project")
	}
	if !scope.CanSeeProject(*project) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "project is not assigned to you")
	}
	return project, nil
}

// Create registers a project. Initial members must exist and be Active.
func (s *ProjectService) Create(ctx context.Context, req dto.CreateProjectRequest) (*models.Project, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid project payload")
	}
	start, err := parseDate(req.StartDate, "startDate")
	if err != nil {
		return nil, err
	}
	project := &models.Project{
		Name:            strings.TrimSpace(req.Name),
		Status:          models.ProjectStatus(req.Status),
		Description:     req.Description,
		StartDate:       start,
		AssignedMembers: pq.StringArray{},
	}
	if project.Status == "" {
		project.Status = models.ProjectStatusActive
	}
	if req.EndDate != nil {
		end, err := parseDate(*req.EndDate, "endDate")
		if err != nil {
			return nil, err
		}
		project.EndDate = &end
	}
	if err := checkDateRange(project); err != nil {
		return nil, err
	}
	for _, memberID := range req.AssignedMembers {
		if containsString(project.AssignedMembers, memberID) {
			continue
		}
		if err := s.requireActiveMember(ctx, memberID); err != nil {
			return nil, err
		}
		project.AssignedMembers = append(project.AssignedMembers, memberID)
	}

	if err := s.repo.Create(ctx, project); err != nil {
		return nil, internalError(err, "failed to create project")
	}
	s.publish(models.TableProjects, realtime.OpInsert, project.ID)
	if len(project.AssignedMembers) > 0 {
		s.publish(models.TableMembers, realtime.OpUpdate, "")
	}
	return project, nil
}

// Update changes the supplied fields of a project.
func (s *ProjectService) Update(ctx context.Context, id string, req dto.UpdateProjectRequest) (*models.Project, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid project payload")
	}
	project, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, lookupError(err, "project")
	}
	if req.Name != nil {
		project.Name = strings.TrimSpace(*req.Name)
	}
	if req.Status != nil {
		project.Status = models.ProjectStatus(*req.Status)
	}
	if req.Description != nil {
		project.Description = *req.Description
	}
	if req.StartDate != nil {
		start, err := parseDate(*req.StartDate, "startDate")
		if err != nil {
			return nil, err
		}
		project.StartDate = start
	}
	if req.EndDate != nil {
		if strings.TrimSpace(*req.EndDate) == "" {
			project.EndDate = nil
		} else {
			end, err := parseDate(*req.EndDate, "endDate")
			if err != nil {
				return nil, err
			}
			project.EndDate = &end
		}
	}
	if err := checkDateRange(project); err != nil {
		return nil, err
	}
	if req.Version != nil {
		project.Version = *req.Version
	}

	if err := s.repo.Update(ctx, project); err != nil {
		return nil, versionedWriteError(ctx, err, "project", func(ctx context.Context) error {
			_, err := s.repo.GetByID(ctx, id)
			return err
		})
	}
	s.publish(models.TableProjects, realtime.OpUpdate, project.ID)
	return project, nil
}

// Delete removes a project, its student links and member assignments.
func (s *ProjectService) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "project not found")
		}
		return internalError(err, "failed to delete project")
	}
	s.publish(models.TableProjects, realtime.OpDelete, id)
	s.publish(models.TableProjectStudents, realtime.OpDelete, id)
	s.publish(models.TableMembers, realtime.OpUpdate, "")
	return nil
}

// AssignMember adds an Active member to a project. Assigning twice is a no-op.
func (s *ProjectService) AssignMember(ctx context.Context, projectID string, req dto.AssignMemberRequest) (*models.Project, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid assignment payload")
	}
	if _, err := s.repo.GetByID(ctx, projectID); err != nil {
		return nil, lookupError(err, "project")
	}
	if err := s.requireActiveMember(ctx, req.MemberID); err != nil {
		return nil, err
	}
	if err := s.repo.AssignMember(ctx, projectID, req.MemberID); err != nil {
		return nil, internalError(err, "failed to assign member")
	}
	s.publish(models.TableProjects, realtime.OpUpdate, projectID)
	s.publish(models.TableMembers, realtime.OpUpdate, req.MemberID)
	return s.reload(ctx, projectID)
}

// UnassignMember removes a member from a project. Inactive members can be removed too.
func (s *ProjectService) UnassignMember(ctx context.Context, projectID, memberID string) (*models.Project, error) {
	if err := s.repo.UnassignMember(ctx, projectID, memberID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "member is not assigned to project")
		}
		return nil, internalError(err, "failed to unassign member")
	}
	s.publish(models.TableProjects, realtime.OpUpdate, projectID)
	s.publish(models.TableMembers, realtime.OpUpdate, memberID)
	return s.reload(ctx, projectID)
}

func (s *ProjectService) requireActiveMember(ctx context.Context, memberID string) error {
	member, err := s.members.GetByID(ctx, memberID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("member %s not found", memberID))
		}
		return internalError(err, "failed to load member")
	}
	if !member.IsActive() {
		return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("member %s is inactive and cannot be assigned", member.Email))
	}
	return nil
}

func (s *ProjectService) reload(ctx context.Context, id string) (*models.Project, error) {
	project, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, lookupError(err, "project")
	}
	return project, nil
}

func checkDateRange(project *models.Project) error {
	if project.EndDate != nil && project.EndDate.Before(project.StartDate) {
		return appErrors.Clone(appErrors.ErrValidation, "endDate must not be before startDate")
	}
	return nil
}
