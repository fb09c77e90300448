package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/institute-backoffice-api/internal/models"
)

const notificationColumns = `id, type, title, message, related_id, is_read, created_by, target_user, created_at`

// NotificationRepository persists in-app notifications.
type NotificationRepository struct {
	db *sqlx.DB
}

// NewNotificationRepository constructs a NotificationRepository.
func NewNotificationRepository(db *sqlx.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// Create inserts a notification.
func (r *NotificationRepository) Create(ctx context.Context, notification *models.Notification) error {
	if notification.ID == "" {
		notification.ID = uuid.NewString()
	}
	if notification.CreatedAt.IsZero() {
		notification.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO notifications (id, type, title, message, related_id, is_read, created_by, target_user, created_at)
        VALUES (:id, :type, :title, :message, :related_id, :is_read, :created_by, :target_user, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, notification); err != nil {
		return fmt.Errorf("create notification: %w", err)
	}
	return nil
}

// GetByID fetches a notification by identifier.
func (r *NotificationRepository) GetByID(ctx context.Context, id string) (*models.Notification, error) {
	var notification models.Notification
	if err := r.db.GetContext(ctx, &notification, "SELECT "+notificationColumns+" FROM notifications WHERE id = $1", id); err != nil {
		return nil, err
	}
	return &notification, nil
}

// List returns notifications matching the filter, newest first.
func (r *NotificationRepository) List(ctx context.Context, filter models.NotificationFilter) ([]models.Notification, error) {
	where, args := notificationConditions(filter)
	limit := filter.Limit
	if limit <= 0 || limit > maxPageSize {
		limit = maxPageSize
	}
	query := fmt.Sprintf("SELECT %s FROM notifications WHERE %s ORDER BY created_at DESC LIMIT %d", notificationColumns, where, limit)

	var notifications []models.Notification
	if err := r.db.SelectContext(ctx, &notifications, query, args...); err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return notifications, nil
}

// CountUnread counts unread notifications matching the filter.
func (r *NotificationRepository) CountUnread(ctx context.Context, filter models.NotificationFilter) (int, error) {
	filter.Unread = true
	where, args := notificationConditions(filter)
	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM notifications WHERE "+where, args...); err != nil {
		return 0, fmt.Errorf("count unread notifications: %w", err)
	}
	return total, nil
}

// MarkRead flags one notification as read.
func (r *NotificationRepository) MarkRead(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `UPDATE notifications SET is_read = TRUE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	return expectAffected(result, "notification read")
}

// MarkAllRead flags every unread notification matching the filter and returns how many changed.
func (r *NotificationRepository) MarkAllRead(ctx context.Context, filter models.NotificationFilter) (int64, error) {
	filter.Unread = true
	where, args := notificationConditions(filter)
	result, err := r.db.ExecContext(ctx, "UPDATE notifications SET is_read = TRUE WHERE "+where, args...)
	if err != nil {
		return 0, fmt.Errorf("mark notifications read: %w", err)
	}
	return result.RowsAffected()
}

// Delete removes one notification.
func (r *NotificationRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM notifications WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete notification: %w", err)
	}
	return expectAffected(result, "notification delete")
}

// DeleteAll removes every notification matching the filter and returns how many were removed.
func (r *NotificationRepository) DeleteAll(ctx context.Context, filter models.NotificationFilter) (int64, error) {
	where, args := notificationConditions(filter)
	result, err := r.db.ExecContext(ctx, "DELETE FROM notifications WHERE "+where, args...)
	if err != nil {
		return 0, fmt.Errorf("delete notifications: %w", err)
	}
	return result.RowsAffected()
}

func notificationConditions(filter models.NotificationFilter) (string, []interface{}) {
	args := []interface{}{}
	conditions := []string{"1=1"}
	if filter.Recipient != "" {
		args = append(args, filter.Recipient)
		if filter.IncludeBroadcast {
			conditions = append(conditions, fmt.Sprintf("(target_user = $%d OR target_user IS NULL)", len(args)))
		} else {
			conditions = append(conditions, fmt.Sprintf("target_user = $%d", len(args)))
		}
	}
	if filter.Type != "" {
		args = append(args, filter.Type)
		conditions = append(conditions, fmt.Sprintf("type = $%d", len(args)))
	}
	if filter.Unread {
		conditions = append(conditions, "is_read = FALSE")
	}
	return strings.Join(conditions, " AND "), args
}
