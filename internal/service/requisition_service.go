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
)

type requisitionRepository interface {
	List(ctx context.Context, filter models.RequisitionFilter) ([]models.Requisition, error)
	GetByID(ctx context.Context, id string) (*models.Requisition, error)
	Create(ctx context.Context, requisition *models.Requisition) error
	Update(ctx context.Context, requisition *models.Requisition) error
	Delete(ctx context.Context, id string) error
	UpdateStatus(ctx context.Context, params repository.RequisitionReviewParams) error
}

// RequisitionService manages requisitions and their review workflow.
type RequisitionService struct {
	repo      requisitionRepository
	validator *validator.Validate
	logger    *zap.Logger
	hooks
}

// NewRequisitionService constructs the service.
func NewRequisitionService(repo requisitionRepository, validate *validator.Validate, logger *zap.Logger, opts ...Option) *RequisitionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RequisitionService{
		repo:      repo,
		validator: registerEnumValidations(validate),
		logger:    logger,
		hooks:     newHooks(opts),
	}
}

// List returns requisitions visible to scope, newest first.
func (s *RequisitionService) List(ctx context.Context, scope visibility.Scope, query dto.RequisitionQuery) ([]models.Requisition, error) {
	if err := s.validator.Struct(query); err != nil {
		return nil, validationError(err, "invalid requisition filters")
	}
	filter := scope.RequisitionFilter(models.RequisitionFilter{
		Status:   models.RequisitionStatus(strings.TrimSpace(query.Status)),
		Category: models.RequisitionCategory(strings.TrimSpace(query.Category)),
	})
	requisitions, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, internalError(err, "failed to list requisitions")
	}
	return scope.Requisitions(requisitions), nil
}

// Get returns one requisition visible to scope.
func (s *RequisitionService) Get(ctx context.Context, scope visibility.Scope, id string) (*models.Requisition, error) {
	requisition, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, lookupError(err, "requisition")
	}
	if !scope.CanSeeRequisition(*requisition) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "requisition belongs to another member")
	}
	return requisition, nil
}

// Create raises a Pending requisition on behalf of the actor.
func (s *RequisitionService) Create(ctx context.Context, scope visibility.Scope, req dto.CreateRequisitionRequest) (*models.Requisition, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid requisition payload")
	}
	requisition := &models.Requisition{
		Title:         strings.TrimSpace(req.Title),
		Description:   req.Description,
		Category:      models.RequisitionCategory(req.Category),
		Quantity:      req.Quantity,
		EstimatedCost: req.EstimatedCost,
		Priority:      models.RequisitionPriority(req.Priority),
		SubmittedBy:   scope.Email,
	}
	if err := s.repo.Create(ctx, requisition); err != nil {
		return nil, internalError(err, "failed to create requisition")
	}
	s.publish(models.TableRequisitions, realtime.OpInsert, requisition.ID)
	return requisition, nil
}

// Update edits a requisition. Submitters may only edit while it is Pending.
func (s *RequisitionService) Update(ctx context.Context, scope visibility.Scope, id string, req dto.UpdateRequisitionRequest) (*models.Requisition, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid requisition payload")
	}
	requisition, err := s.Get(ctx, scope, id)
	if err != nil {
		return nil, err
	}
	if !scope.Admin && requisition.Status != models.RequisitionPending {
		return nil, appErrors.Clone(appErrors.ErrConflict, "only pending requisitions can be edited")
	}

	if req.Title != nil {
		requisition.Title = strings.TrimSpace(*req.Title)
	}
	if req.Description != nil {
		requisition.Description = *req.Description
	}
	if req.Category != nil {
		requisition.Category = models.RequisitionCategory(*req.Category)
	}
	if req.Quantity != nil {
		requisition.Quantity = *req.Quantity
	}
	if req.EstimatedCost != nil {
		requisition.EstimatedCost = *req.EstimatedCost
	}
	if req.Priority != nil {
		requisition.Priority = models.RequisitionPriority(*req.Priority)
	}
	if req.Version != nil {
		requisition.Version = *req.Version
	}

	if err := s.repo.Update(ctx, requisition); err != nil {
		return nil, versionedWriteError(ctx, err, "requisition", func(ctx context.Context) error {
			_, err := s.repo.GetByID(ctx, id)
			return err
		})
	}
	s.publish(models.TableRequisitions, realtime.OpUpdate, requisition.ID)
	return requisition, nil
}

// Delete removes a requisition. Only its submitter or the administrator may.
func (s *RequisitionService) Delete(ctx context.Context, scope visibility.Scope, id string) error {
	if _, err := s.Get(ctx, scope, id); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "requisition not found")
		}
		return internalError(err, "failed to delete requisition")
	}
	s.publish(models.TableRequisitions, realtime.OpDelete, id)
	return nil
}

// Approve moves a requisition to Approved from any other state and notifies
// the submitter.
func (s *RequisitionService) Approve(ctx context.Context, scope visibility.Scope, id string, req dto.ApproveRequisitionRequest) (*models.Requisition, []string, error) {
	if err := requireAdmin(scope, "only the administrator can approve requisitions"); err != nil {
		return nil, nil, err
	}
	requisition, err := s.review(ctx, scope, id, models.RequisitionApproved, optionalString(req.Notes))
	if err != nil {
		return nil, nil, err
	}
	message := fmt.Sprintf("Your requisition %q was approved.", requisition.Title)
	if requisition.ReviewNotes != nil {
		message = fmt.Sprintf("%s Notes: %s", message, *requisition.ReviewNotes)
	}
	return requisition, s.notifySubmitter(ctx, requisition, "Requisition approved", message), nil
}

// Reject moves a requisition to Rejected from any other state. The reason is
// mandatory, stored exactly as supplied, and sent to the submitter.
func (s *RequisitionService) Reject(ctx context.Context, scope visibility.Scope, id string, req dto.RejectRequisitionRequest) (*models.Requisition, []string, error) {
	if err := requireAdmin(scope, "only the administrator can reject requisitions"); err != nil {
		return nil, nil, err
	}
	if strings.TrimSpace(req.Reason) == "" {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "a rejection reason is required")
	}
	reason := req.Reason
	requisition, err := s.review(ctx, scope, id, models.RequisitionRejected, &reason)
	if err != nil {
		return nil, nil, err
	}
	message := fmt.Sprintf("Your requisition %q was rejected: %s", requisition.Title, reason)
	return requisition, s.notifySubmitter(ctx, requisition, "Requisition rejected", message), nil
}

// SetPending reopens a reviewed requisition and clears its review stamps.
func (s *RequisitionService) SetPending(ctx context.Context, scope visibility.Scope, id string) (*models.Requisition, error) {
	if err := requireAdmin(scope, "only the administrator can reopen requisitions"); err != nil {
		return nil, err
	}
	return s.review(ctx, scope, id, models.RequisitionPending, nil)
}

func (s *RequisitionService) review(ctx context.Context, scope visibility.Scope, id string, next models.RequisitionStatus, notes *string) (*models.Requisition, error) {
	requisition, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, lookupError(err, "requisition")
	}
	if requisition.Status == next {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, fmt.Sprintf("requisition is already %s", strings.ToLower(string(next))))
	}
	if !requisition.Status.CanTransition(next) {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, fmt.Sprintf("requisition is %s; set it back to pending first", strings.ToLower(string(requisition.Status))))
	}

	params := repository.RequisitionReviewParams{ID: requisition.ID, From: requisition.Status, To: next}
	if next != models.RequisitionPending {
		reviewer := scope.Email
		now := time.Now().UTC()
		params.ReviewedBy = &reviewer
		params.ReviewedDate = &now
		params.ReviewNotes = notes
	}
	if err := s.repo.UpdateStatus(ctx, params); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "requisition was reviewed concurrently")
		}
		return nil, internalError(err, "failed to update requisition status")
	}

	requisition.Status = next
	requisition.ReviewedBy = params.ReviewedBy
	requisition.ReviewedDate = params.ReviewedDate
	requisition.ReviewNotes = params.ReviewNotes
	requisition.Version++
	s.transition("requisition", string(next))
	s.publish(models.TableRequisitions, realtime.OpUpdate, requisition.ID)
	return requisition, nil
}

func (s *RequisitionService) notifySubmitter(ctx context.Context, requisition *models.Requisition, title, message string) []string {
	if requisition.SubmittedBy == "" {
		return nil
	}
	target := requisition.SubmittedBy
	createdBy := models.AdminAudience
	if requisition.ReviewedBy != nil {
		createdBy = *requisition.ReviewedBy
	}
	return s.notify(ctx, &models.Notification{
		Type:       models.NotificationRequisition,
		Title:      title,
		Message:    message,
		RelatedID:  &requisition.ID,
		CreatedBy:  createdBy,
		TargetUser: &target,
	})
}
