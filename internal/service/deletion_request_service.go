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
	"github.com/noah-isme/institute-backoffice-api/internal/repository"
	"github.com/noah-isme/institute-backoffice-api/internal/visibility"
	appErrors "github.com/noah-isme/institute-backoffice-api/pkg/errors"
	applog "github.com/noah-isme/institute-backoffice-api/pkg/logger"
)

const defaultDeletionReasonMinLength = 10

type deletionRequestRepository interface {
	List(ctx context.Context, filter models.DeletionRequestFilter) ([]models.DeletionRequest, error)
	GetByID(ctx context.Context, id string) (*models.DeletionRequest, error)
	Create(ctx context.Context, request *models.DeletionRequest) error
	Approve(ctx context.Context, studentID string, decision repository.DeletionDecision) error
	Reject(ctx context.Context, decision repository.DeletionDecision) error
}

type studentReader interface {
	GetByID(ctx context.Context, id string) (*models.Student, error)
}

// DeletionRequestConfig tunes the deletion workflow.
type DeletionRequestConfig struct {
	ReasonMinLength int
	NotifyOutcome   bool
}

// DeletionRequestService runs the member-initiated student deletion workflow.
type DeletionRequestService struct {
	repo      deletionRequestRepository
	students  studentReader
	validator *validator.Validate
	logger    *zap.Logger
	cfg       DeletionRequestConfig
	hooks
}

// NewDeletionRequestService constructs the service.
func NewDeletionRequestService(repo deletionRequestRepository, students studentReader, validate *validator.Validate, logger *zap.Logger, cfg DeletionRequestConfig, opts ...Option) *DeletionRequestService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ReasonMinLength <= 0 {
		cfg.ReasonMinLength = defaultDeletionReasonMinLength
	}
	return &DeletionRequestService{
		repo:      repo,
		students:  students,
		validator: registerEnumValidations(validate),
		logger:    logger,
		cfg:       cfg,
		hooks:     newHooks(opts),
	}
}

// List returns every request for the administrator and a member's own requests otherwise.
func (s *DeletionRequestService) List(ctx context.Context, scope visibility.Scope, query dto.DeletionRequestQuery) ([]models.DeletionRequest, error) {
	filter := scope.DeletionRequestFilter(models.DeletionRequestFilter{
		Status: models.DeletionRequestStatus(strings.TrimSpace(query.Status)),
	})
	requests, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, internalError(err, "failed to list deletion requests")
	}
	return scope.DeletionRequests(requests), nil
}

// Get returns one request visible to scope.
func (s *DeletionRequestService) Get(ctx context.Context, scope visibility.Scope, id string) (*models.DeletionRequest, error) {
	request, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, lookupError(err, "deletion request")
	}
	if !scope.CanSeeDeletionRequest(*request) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "deletion request belongs to another member")
	}
	return request, nil
}

// Create files a Pending request for a student the member can see and
// notifies the administrator.
func (s *DeletionRequestService) Create(ctx context.Context, scope visibility.Scope, req dto.CreateDeletionRequest) (*models.DeletionRequest, []string, error) {
	if scope.Admin {
		return nil, nil, appErrors.Clone(appErrors.ErrForbidden, "the administrator deletes students directly")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, nil, validationError(err, "invalid deletion request payload")
	}
	reason := strings.TrimSpace(req.Reason)
	if len([]rune(reason)) < s.cfg.ReasonMinLength {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("reason must be at least %d characters", s.cfg.ReasonMinLength))
	}

	student, err := s.students.GetByID(ctx, req.StudentID)
	if err != nil {
		return nil, nil, lookupError(err, "student")
	}
	if !scope.CanSeeStudent(*student) {
		return nil, nil, appErrors.Clone(appErrors.ErrForbidden, "student is not in your projects")
	}

	request := &models.DeletionRequest{
		StudentID:        student.ID,
		StudentName:      student.FullName,
		StudentEmail:     student.Email,
		RequestedBy:      models.RoleMember,
		RequestedByEmail: scope.Email,
		Reason:           reason,
	}
	if err := s.repo.Create(ctx, request); err != nil {
		return nil, nil, internalError(err, "failed to create deletion request")
	}
	s.publish(models.TableDeletionRequests, realtime.OpInsert, request.ID)

	target := models.AdminAudience
	warnings := s.notify(ctx, &models.Notification{
		Type:       models.NotificationDeletionRequest,
		Title:      "Student deletion requested",
		Message:    fmt.Sprintf("%s requested deletion of %s: %s", request.RequestedByEmail, request.StudentName, request.Reason),
		RelatedID:  &request.ID,
		CreatedBy:  request.RequestedByEmail,
		TargetUser: &target,
	})
	return request, warnings, nil
}

// Approve moves a Pending request to Approved and deletes the student in the
// same transaction. A request that is no longer Pending is a Conflict and a
// student that no longer exists is NotFound. Neither writes anything.
func (s *DeletionRequestService) Approve(ctx context.Context, scope visibility.Scope, id string, req dto.DecideDeletionRequest) (*models.DeletionRequest, []string, error) {
	if err := requireAdmin(scope, "only the administrator can approve deletion requests"); err != nil {
		return nil, nil, err
	}
	request, err := s.pending(ctx, id, models.DeletionApproved)
	if err != nil {
		return nil, nil, err
	}

	decision := repository.DeletionDecision{
		ID:           request.ID,
		AdminEmail:   scope.Email,
		Response:     optionalString(req.Response),
		ResponseDate: time.Now().UTC(),
	}
	if err := s.repo.Approve(ctx, request.StudentID, decision); err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return nil, nil, appErrors.Clone(appErrors.ErrConflict, "deletion request was already processed")
		case errors.Is(err, repository.ErrStudentMissing):
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		default:
			return nil, nil, internalError(err, "failed to approve deletion request")
		}
	}
	s.apply(request, models.DeletionApproved, decision)
	applog.Ctx(ctx, s.logger).Info("deletion request approved",
		zap.String("deletion_request_id", request.ID),
		zap.String("student_id", request.StudentID),
		zap.String("admin", scope.Email))

	s.publish(models.TableDeletionRequests, realtime.OpUpdate, request.ID)
	s.publish(models.TableStudents, realtime.OpDelete, request.StudentID)
	return request, s.notifyOutcome(ctx, request), nil
}

// Reject moves a Pending request to Rejected. The reason is mandatory and
// stored exactly as supplied.
func (s *DeletionRequestService) Reject(ctx context.Context, scope visibility.Scope, id string, req dto.DecideDeletionRequest) (*models.DeletionRequest, []string, error) {
	if err := requireAdmin(scope, "only the administrator can reject deletion requests"); err != nil {
		return nil, nil, err
	}
	if strings.TrimSpace(req.Response) == "" {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "a rejection reason is required")
	}
	request, err := s.pending(ctx, id, models.DeletionRejected)
	if err != nil {
		return nil, nil, err
	}

	response := req.Response
	decision := repository.DeletionDecision{
		ID:           request.ID,
		AdminEmail:   scope.Email,
		Response:     &response,
		ResponseDate: time.Now().UTC(),
	}
	if err := s.repo.Reject(ctx, decision); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, appErrors.Clone(appErrors.ErrConflict, "deletion request was already processed")
		}
		return nil, nil, internalError(err, "failed to reject deletion request")
	}
	s.apply(request, models.DeletionRejected, decision)

	s.publish(models.TableDeletionRequests, realtime.OpUpdate, request.ID)
	return request, s.notifyOutcome(ctx, request), nil
}

func (s *DeletionRequestService) pending(ctx context.Context, id string, next models.DeletionRequestStatus) (*models.DeletionRequest, error) {
	request, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, lookupError(err, "deletion request")
	}
	if !request.Status.CanTransition(next) {
		return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("deletion request is already %s", strings.ToLower(string(request.Status))))
	}
	return request, nil
}

func (s *DeletionRequestService) apply(request *models.DeletionRequest, status models.DeletionRequestStatus, decision repository.DeletionDecision) {
	adminEmail := decision.AdminEmail
	responseDate := decision.ResponseDate
	request.Status = status
	request.AdminResponse = decision.Response
	request.AdminEmail = &adminEmail
	request.ResponseDate = &responseDate
	request.UpdatedAt = responseDate
	s.transition("deletion_request", string(status))
}

func (s *DeletionRequestService) notifyOutcome(ctx context.Context, request *models.DeletionRequest) []string {
	if !s.cfg.NotifyOutcome || request.RequestedByEmail == "" {
		return nil
	}
	message := fmt.Sprintf("Your request to delete %s was %s.", request.StudentName, strings.ToLower(string(request.Status)))
	if request.AdminResponse != nil {
		message = fmt.Sprintf("%s %s", message, *request.AdminResponse)
	}
	target := request.RequestedByEmail
	return s.notify(ctx, &models.Notification{
		Type:       models.NotificationDeletionRequest,
		Title:      "Deletion request " + strings.ToLower(string(request.Status)),
		Message:    message,
		RelatedID:  &request.ID,
		CreatedBy:  models.AdminAudience,
		TargetUser: &target,
	})
}
