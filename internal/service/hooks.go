package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/noah-isme/institute-backoffice-api/internal/models"
	"github.com/noah-isme/institute-backoffice-api/internal/realtime"
	"github.com/noah-isme/institute-backoffice-api/internal/visibility"
	appErrors "github.com/noah-isme/institute-backoffice-api/pkg/errors"
)

// ChangePublisher receives committed row changes.
type ChangePublisher interface {
	Publish(ev realtime.Event)
}

// Option wires optional side effects into the mutating services.
type Option func(*hooks)

// WithPublisher publishes committed changes to p.
func WithPublisher(p ChangePublisher) Option {
	return func(h *hooks) { h.publisher = p }
}

// WithNotifier fans notifications out through n.
func WithNotifier(n *Notifier) Option {
	return func(h *hooks) { h.notifier = n }
}

// WithMetrics records workflow transitions on m.
func WithMetrics(m *MetricsService) Option {
	return func(h *hooks) { h.metrics = m }
}

// hooks holds side effects that run after a mutation commits. Every field
// is optional.
type hooks struct {
	publisher ChangePublisher
	notifier  *Notifier
	metrics   *MetricsService
}

func newHooks(opts []Option) hooks {
	var h hooks
	for _, opt := range opts {
		if opt != nil {
			opt(&h)
		}
	}
	return h
}

func (h hooks) publish(table string, op realtime.Op, id string) {
	if h.publisher == nil {
		return
	}
	h.publisher.Publish(realtime.Event{Table: table, Op: op, ID: id})
}

func (h hooks) notify(ctx context.Context, n *models.Notification) []string {
	return h.notifier.Notify(ctx, n)
}

func (h hooks) transition(entity, to string) {
	h.metrics.RecordTransition(entity, to)
}

func requireAdmin(scope visibility.Scope, message string) error {
	if !scope.Admin {
		return appErrors.Clone(appErrors.ErrForbidden, message)
	}
	return nil
}

func lookupError(err error, entity string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrNotFound, entity+" not found")
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load "+entity)
}

func internalError(err error, message string) error {
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, message)
}

// versionedWriteError maps a failed versioned update. A zero row update is
// either a deleted row or a stale version, told apart by re-reading.
func versionedWriteError(ctx context.Context, err error, entity string, reload func(ctx context.Context) error) error {
	if !errors.Is(err, sql.ErrNoRows) {
		return internalError(err, "failed to update "+entity)
	}
	if reloadErr := reload(ctx); reloadErr != nil {
		return lookupError(reloadErr, entity)
	}
	return appErrors.Clone(appErrors.ErrStaleVersion, entity+" was modified by someone else")
}
