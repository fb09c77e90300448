package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/institute-backoffice-api/internal/models"
	"github.com/noah-isme/institute-backoffice-api/internal/realtime"
)

const (
	dashboardCacheNamespace = "dashboard"
	dashboardCacheKey       = "admin"
)

type studentCounter interface {
	CountByStatus(ctx context.Context) (map[models.StudentStatus]int, error)
}

type projectCounter interface {
	CountByStatus(ctx context.Context, status models.ProjectStatus) (int, error)
}

type memberCounter interface {
	CountByStatus(ctx context.Context, status models.MemberStatus) (int, error)
}

type requisitionCounter interface {
	CountByStatus(ctx context.Context, status models.RequisitionStatus) (int, error)
}

type deletionRequestCounter interface {
	CountByStatus(ctx context.Context, status models.DeletionRequestStatus) (int, error)
}

type unreadCounter interface {
	CountUnread(ctx context.Context, filter models.NotificationFilter) (int, error)
}

type queryObserver interface {
	ObserveDBQuery(label string, duration time.Duration)
}

// DashboardServiceConfig tunes dashboard behaviour.
type DashboardServiceConfig struct {
	CacheTTL time.Duration
}

// DashboardServiceParams groups constructor dependencies.
type DashboardServiceParams struct {
	Students         studentCounter
	Projects         projectCounter
	Members          memberCounter
	Requisitions     requisitionCounter
	DeletionRequests deletionRequestCounter
	Notifications    unreadCounter
	Cache            *CacheService
	Metrics          queryObserver
	Logger           *zap.Logger
	Config           DashboardServiceConfig
}

// DashboardService composes the administrator's landing page counters. The
// summary is cached and dropped whenever any table changes.
type DashboardService struct {
	students         studentCounter
	projects         projectCounter
	members          memberCounter
	requisitions     requisitionCounter
	deletionRequests deletionRequestCounter
	notifications    unreadCounter
	cache            *CacheService
	metrics          queryObserver
	logger           *zap.Logger
	now              func() time.Time
	cfg              DashboardServiceConfig
}

// NewDashboardService constructs a DashboardService with sane defaults.
func NewDashboardService(params DashboardServiceParams) *DashboardService {
	cfg := params.Config
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Minute
	}
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DashboardService{
		students:         params.Students,
		projects:         params.Projects,
		members:          params.Members,
		requisitions:     params.Requisitions,
		deletionRequests: params.DeletionRequests,
		notifications:    params.Notifications,
		cache:            params.Cache,
		metrics:          params.Metrics,
		logger:           logger,
		now:              time.Now,
		cfg:              cfg,
	}
}

// Admin returns the dashboard summary and whether it was served from cache.
func (s *DashboardService) Admin(ctx context.Context) (*models.DashboardSummary, bool, error) {
	var cached models.DashboardSummary
	hit, ticket := s.cache.Get(ctx, dashboardCacheNamespace, dashboardCacheKey, &cached)
	if hit {
		return &cached, true, nil
	}
	summary, err := s.compose(ctx)
	if err != nil {
		return nil, false, err
	}
	if err := s.cache.Put(ctx, ticket, summary, s.cfg.CacheTTL); err != nil {
		s.logger.Warn("dashboard cache write failed", zap.Error(err))
	}
	return summary, false, nil
}

// Invalidate drops cached summaries.
func (s *DashboardService) Invalidate(ctx context.Context) {
	_ = s.cache.Invalidate(ctx, dashboardCacheNamespace)
}

// HandleChanges is a realtime callback that invalidates the cache.
func (s *DashboardService) HandleChanges(ctx context.Context, events []realtime.Event) {
	if len(events) == 0 {
		return
	}
	s.logger.Debug("dashboard cache invalidated", zap.String("table", events[0].Table), zap.Int("events", len(events)))
	s.Invalidate(ctx)
}

func (s *DashboardService) compose(ctx context.Context) (*models.DashboardSummary, error) {
	byStatus, err := timedQuery(s, "count_students_by_status", func() (map[models.StudentStatus]int, error) {
		return s.students.CountByStatus(ctx)
	})
	if err != nil {
		return nil, internalError(err, "failed to count students")
	}
	summary := &models.DashboardSummary{StudentsByStatus: byStatus, GeneratedAt: s.now().UTC()}
	for _, count := range byStatus {
		summary.TotalStudents += count
	}
	if summary.ActiveProjects, err = timedQuery(s, "count_active_projects", func() (int, error) {
		return s.projects.CountByStatus(ctx, models.ProjectStatusActive)
	}); err != nil {
		return nil, internalError(err, "failed to count projects")
	}
	if summary.ActiveMembers, err = timedQuery(s, "count_active_members", func() (int, error) {
		return s.members.CountByStatus(ctx, models.MemberStatusActive)
	}); err != nil {
		return nil, internalError(err, "failed to count members")
	}
	if summary.PendingRequisitions, err = timedQuery(s, "count_pending_requisitions", func() (int, error) {
		return s.requisitions.CountByStatus(ctx, models.RequisitionPending)
	}); err != nil {
		return nil, internalError(err, "failed to count requisitions")
	}
	if summary.PendingDeletionRequests, err = timedQuery(s, "count_pending_deletion_requests", func() (int, error) {
		return s.deletionRequests.CountByStatus(ctx, models.DeletionPending)
	}); err != nil {
		return nil, internalError(err, "failed to count deletion requests")
	}
	unread := models.NotificationFilter{Recipient: models.AdminAudience, IncludeBroadcast: true}
	if summary.UnreadAdminNotifications, err = timedQuery(s, "count_unread_admin_notifications", func() (int, error) {
		return s.notifications.CountUnread(ctx, unread)
	}); err != nil {
		return nil, internalError(err, "failed to count notifications")
	}
	return summary, nil
}

// timedQuery runs query and reports its duration under label, failed or not.
func timedQuery[T any](s *DashboardService, label string, query func() (T, error)) (T, error) {
	started := time.Now()
	value, err := query()
	if s.metrics != nil {
		s.metrics.ObserveDBQuery(label, time.Since(started))
	}
	return value, err
}
