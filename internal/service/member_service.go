package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/institute-backoffice-api/internal/dto"
	"github.com/noah-isme/institute-backoffice-api/internal/models"
	"github.com/noah-isme/institute-backoffice-api/internal/realtime"
	"github.com/noah-isme/institute-backoffice-api/internal/repository"
	appErrors "github.com/noah-isme/institute-backoffice-api/pkg/errors"
)

type memberRepository interface {
	List(ctx context.Context, filter models.MemberFilter) ([]models.Member, error)
	GetByID(ctx context.Context, id string) (*models.Member, error)
	Create(ctx context.Context, member *models.Member) error
	Update(ctx context.Context, member *models.Member) error
	Delete(ctx context.Context, id string) error
}

// MemberService manages member accounts. Passwords are only ever stored as
// bcrypt hashes.
type MemberService struct {
	repo      memberRepository
	validator *validator.Validate
	logger    *zap.Logger
	hashCost  int
	hooks
}

// NewMemberService constructs the service.
func NewMemberService(repo memberRepository, validate *validator.Validate, logger *zap.Logger, opts ...Option) *MemberService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MemberService{
		repo:      repo,
		validator: registerEnumValidations(validate),
		logger:    logger,
		hashCost:  bcrypt.DefaultCost,
		hooks:     newHooks(opts),
	}
}

// List returns members matching the filters.
func (s *MemberService) List(ctx context.Context, query dto.MemberQuery) ([]models.Member, error) {
	if err := s.validator.Struct(query); err != nil {
		return nil, validationError(err, "invalid member filters")
	}
	members, err := s.repo.List(ctx, models.MemberFilter{
		Status: models.MemberStatus(query.Status),
		Search: strings.TrimSpace(query.Search),
	})
	if err != nil {
		return nil, internalError(err, "failed to list members")
	}
	return members, nil
}

// Get returns a member by id.
func (s *MemberService) Get(ctx context.Context, id string) (*models.Member, error) {
	member, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, lookupError(err, "member")
	}
	return member, nil
}

// Create registers a member. A reused email is a Conflict.
func (s *MemberService) Create(ctx context.Context, req dto.CreateMemberRequest) (*models.Member, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid member payload")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.hashCost)
	if err != nil {
		return nil, internalError(err, "failed to hash password")
	}
	member := &models.Member{
		Name:         strings.TrimSpace(req.Name),
		Email:        normalizeEmail(req.Email),
		PasswordHash: string(hash),
		Phone:        strings.TrimSpace(req.Phone),
		ImageURL:     req.ImageURL,
		Status:       models.MemberStatus(req.Status),
	}
	if member.Status == "" {
		member.Status = models.MemberStatusActive
	}
	if err := s.repo.Create(ctx, member); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "a member with this email already exists")
		}
		return nil, internalError(err, "failed to create member")
	}
	s.publish(models.TableMembers, realtime.OpInsert, member.ID)
	return member, nil
}

// Update changes the supplied fields. A password resets the stored hash.
func (s *MemberService) Update(ctx context.Context, id string, req dto.UpdateMemberRequest) (*models.Member, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid member payload")
	}
	member, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Name != nil {
		member.Name = strings.TrimSpace(*req.Name)
	}
	if req.Email != nil {
		member.Email = normalizeEmail(*req.Email)
	}
	if req.Phone != nil {
		member.Phone = strings.TrimSpace(*req.Phone)
	}
	if req.ImageURL != nil {
		member.ImageURL = optionalString(*req.ImageURL)
	}
	if req.Status != nil {
		member.Status = models.MemberStatus(*req.Status)
	}
	if req.Password != nil {
		hash, err := bcrypt.GenerateFromPassword([]byte(*req.Password), s.hashCost)
		if err != nil {
			return nil, internalError(err, "failed to hash password")
		}
		member.PasswordHash = string(hash)
	}
	if req.Version != nil {
		member.Version = *req.Version
	}

	if err := s.repo.Update(ctx, member); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "a member with this email already exists")
		}
		return nil, versionedWriteError(ctx, err, "member", func(ctx context.Context) error {
			_, err := s.repo.GetByID(ctx, id)
			return err
		})
	}
	s.publish(models.TableMembers, realtime.OpUpdate, member.ID)
	return member, nil
}

// Delete removes a member and its project assignments.
func (s *MemberService) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "member not found")
		}
		return internalError(err, "failed to delete member")
	}
	s.publish(models.TableMembers, realtime.OpDelete, id)
	s.publish(models.TableProjects, realtime.OpUpdate, "")
	return nil
}
