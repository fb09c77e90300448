package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/institute-backoffice-api/internal/dto"
	"github.com/noah-isme/institute-backoffice-api/internal/models"
	"github.com/noah-isme/institute-backoffice-api/internal/realtime"
	"github.com/noah-isme/institute-backoffice-api/internal/visibility"
	appErrors "github.com/noah-isme/institute-backoffice-api/pkg/errors"
	applog "github.com/noah-isme/institute-backoffice-api/pkg/logger"
)

type notificationWriter interface {
	Create(ctx context.Context, notification *models.Notification) error
}

type notificationRepository interface {
	notificationWriter
	GetByID(ctx context.Context, id string) (*models.Notification, error)
	List(ctx context.Context, filter models.NotificationFilter) ([]models.Notification, error)
	CountUnread(ctx context.Context, filter models.NotificationFilter) (int, error)
	MarkRead(ctx context.Context, id string) error
	MarkAllRead(ctx context.Context, filter models.NotificationFilter) (int64, error)
	Delete(ctx context.Context, id string) error
	DeleteAll(ctx context.Context, filter models.NotificationFilter) (int64, error)
}

// Notifier writes workflow notifications after the primary mutation has
// committed. A failed write never fails the caller: it is logged, counted
// and returned as a warning for the response envelope.
type Notifier struct {
	repo      notificationWriter
	publisher ChangePublisher
	metrics   *MetricsService
	logger    *zap.Logger
}

// NewNotifier constructs a Notifier.
func NewNotifier(repo notificationWriter, publisher ChangePublisher, metrics *MetricsService, logger *zap.Logger) *Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{repo: repo, publisher: publisher, metrics: metrics, logger: logger}
}

// Notify stores n and returns the warnings to surface to the client.
func (n *Notifier) Notify(ctx context.Context, notification *models.Notification) []string {
	if n == nil || n.repo == nil || notification == nil {
		return nil
	}
	if err := n.repo.Create(ctx, notification); err != nil {
		applog.Ctx(ctx, n.logger).Warn("notification fan-out failed",
			zap.String("type", string(notification.Type)),
			zap.Stringp("target", notification.TargetUser),
			zap.Error(err))
		n.metrics.RecordFanoutFailure(string(notification.Type))
		return []string{fmt.Sprintf("%s notification could not be delivered", notification.Type)}
	}
	if n.publisher != nil {
		n.publisher.Publish(realtime.Event{Table: models.TableNotifications, Op: realtime.OpInsert, ID: notification.ID})
	}
	return nil
}

// NotificationService exposes the notification inbox.
type NotificationService struct {
	repo      notificationRepository
	validator *validator.Validate
	logger    *zap.Logger
	hooks
}

// NewNotificationService constructs a NotificationService.
func NewNotificationService(repo notificationRepository, validate *validator.Validate, logger *zap.Logger, opts ...Option) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		repo:      repo,
		validator: registerEnumValidations(validate),
		logger:    logger,
		hooks:     newHooks(opts),
	}
}

// List returns the notifications visible to scope, newest first. The
// administrator sees every row.
func (s *NotificationService) List(ctx context.Context, scope visibility.Scope, query dto.NotificationQuery) ([]models.Notification, error) {
	filter := scope.NotificationFilter(models.NotificationFilter{
		Type:   models.NotificationType(strings.TrimSpace(query.Type)),
		Unread: query.Unread,
		Limit:  query.Limit,
	})
	notifications, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, internalError(err, "failed to list notifications")
	}
	return scope.Notifications(notifications), nil
}

// UnreadCount counts unread notifications addressed to the actor, broadcasts included.
func (s *NotificationService) UnreadCount(ctx context.Context, scope visibility.Scope) (int, error) {
	count, err := s.repo.CountUnread(ctx, inboxFilter(scope, true))
	if err != nil {
		return 0, internalError(err, "failed to count notifications")
	}
	return count, nil
}

// Create posts an administrator message. A nil target broadcasts it.
func (s *NotificationService) Create(ctx context.Context, scope visibility.Scope, req dto.CreateNotificationRequest) (*models.Notification, error) {
	if err := requireAdmin(scope, "only the administrator can post notifications"); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid notification payload")
	}
	notificationType := models.NotificationType(req.Type)
	if notificationType == "" {
		notificationType = models.NotificationGeneral
	}
	notification := &models.Notification{
		Type:       notificationType,
		Title:      req.Title,
		Message:    req.Message,
		RelatedID:  req.RelatedID,
		CreatedBy:  scope.Email,
		TargetUser: req.TargetUser,
	}
	if err := s.repo.Create(ctx, notification); err != nil {
		return nil, internalError(err, "failed to create notification")
	}
	s.publish(models.TableNotifications, realtime.OpInsert, notification.ID)
	return notification, nil
}

// MarkRead flags one visible notification as read. Broadcast read state is shared.
func (s *NotificationService) MarkRead(ctx context.Context, scope visibility.Scope, id string) error {
	if _, err := s.visible(ctx, scope, id); err != nil {
		return err
	}
	if err := s.repo.MarkRead(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "notification not found")
		}
		return internalError(err, "failed to mark notification as read")
	}
	s.publish(models.TableNotifications, realtime.OpUpdate, id)
	return nil
}

// MarkAllRead flags the actor's inbox as read. Members only touch rows
// addressed to them, the administrator also clears broadcasts.
func (s *NotificationService) MarkAllRead(ctx context.Context, scope visibility.Scope) (int64, error) {
	updated, err := s.repo.MarkAllRead(ctx, inboxFilter(scope, scope.Admin))
	if err != nil {
		return 0, internalError(err, "failed to mark notifications as read")
	}
	if updated > 0 {
		s.publish(models.TableNotifications, realtime.OpUpdate, "")
	}
	return updated, nil
}

// Delete removes one notification. Members may only delete rows addressed to them.
func (s *NotificationService) Delete(ctx context.Context, scope visibility.Scope, id string) error {
	notification, err := s.visible(ctx, scope, id)
	if err != nil {
		return err
	}
	if !scope.Admin && notification.IsBroadcast() {
		return appErrors.Clone(appErrors.ErrForbidden, "broadcast notifications can only be removed by the administrator")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "notification not found")
		}
		return internalError(err, "failed to delete notification")
	}
	s.publish(models.TableNotifications, realtime.OpDelete, id)
	return nil
}

// DeleteAll clears the actor's inbox using the same audience as MarkAllRead.
func (s *NotificationService) DeleteAll(ctx context.Context, scope visibility.Scope) (int64, error) {
	deleted, err := s.repo.DeleteAll(ctx, inboxFilter(scope, scope.Admin))
	if err != nil {
		return 0, internalError(err, "failed to delete notifications")
	}
	if deleted > 0 {
		s.publish(models.TableNotifications, realtime.OpDelete, "")
	}
	return deleted, nil
}

func (s *NotificationService) visible(ctx context.Context, scope visibility.Scope, id string) (*models.Notification, error) {
	notification, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, lookupError(err, "notification")
	}
	if !scope.CanSeeNotification(*notification) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "notification belongs to another user")
	}
	return notification, nil
}

// inboxFilter addresses the actor's own inbox: the literal admin audience
// for the administrator, the member email otherwise.
func inboxFilter(scope visibility.Scope, includeBroadcast bool) models.NotificationFilter {
	recipient := scope.Email
	if scope.Admin {
		recipient = models.AdminAudience
	}
	if recipient == "" {
		recipient = "-"
	}
	return models.NotificationFilter{Recipient: recipient, IncludeBroadcast: includeBroadcast}
}
