package main

import (
	"context"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/noah-isme/institute-backoffice-api/internal/dto"
	"github.com/noah-isme/institute-backoffice-api/internal/handler"
	"github.com/noah-isme/institute-backoffice-api/internal/middleware"
	"github.com/noah-isme/institute-backoffice-api/internal/models"
	"github.com/noah-isme/institute-backoffice-api/internal/visibility"
	"github.com/noah-isme/institute-backoffice-api/pkg/config"
	appErrors "github.com/noah-isme/institute-backoffice-api/pkg/errors"
	"github.com/noah-isme/institute-backoffice-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/institute-backoffice-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/institute-backoffice-api/pkg/middleware/requestid"
)

const realtimePath = "/realtime"

func newRouter(cfg *config.Config, a *app, logr *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr, "/health", "/ready", "/metrics"))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(a.metrics, "/metrics", cfg.APIPrefix+realtimePath))

	checks := map[string]handler.Pinger{"postgres": a.db}
	if a.cache != nil {
		checks["redis"] = handler.PingFunc(a.cache.Ping)
	}
	metricsHandler := handler.NewMetricsHandler(a.metrics, checks)
	r.GET("/metrics", metricsHandler.Prometheus)
	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	authHandler := handler.NewAuthHandler(a.auth)
	studentHandler := handler.NewStudentHandler(a.students)
	projectHandler := handler.NewProjectHandler(a.projects)
	memberHandler := handler.NewMemberHandler(a.members)
	attendanceHandler := handler.NewAttendanceHandler(a.attendance)
	requisitionHandler := handler.NewRequisitionHandler(a.requisitions)
	deletionHandler := handler.NewDeletionRequestHandler(a.deletionRequests)
	notificationHandler := handler.NewNotificationHandler(a.notifications)
	dashboardHandler := handler.NewDashboardHandler(a.dashboard)

	api := r.Group(cfg.APIPrefix)
	api.POST("/auth/login", authHandler.Login)

	secured := api.Group("")
	secured.Use(middleware.JWT(a.auth), middleware.Scope(a.resolver))
	admin := middleware.AdminOnly()
	audit := func(action, resource string) gin.HandlerFunc {
		return middleware.Audit(logr, action, resource)
	}

	secured.GET("/auth/me", authHandler.Me)
	secured.POST("/auth/change-password", middleware.RequireRoles(models.RoleMember), authHandler.ChangePassword)

	students := secured.Group("/students")
	students.GET("", studentHandler.List)
	students.GET("/:id", studentHandler.Get)
	students.POST("", audit("create", "student"), studentHandler.Create)
	students.PUT("/:id", audit("update", "student"), studentHandler.Update)
	students.DELETE("/:id", admin, audit("delete", "student"), studentHandler.Delete)
	students.POST("/:id/projects", audit("assign", "student"), studentHandler.AssignProject)
	students.DELETE("/:id/projects/:projectId", audit("unassign", "student"), studentHandler.UnassignProject)

	projects := secured.Group("/projects")
	projects.GET("", projectHandler.List)
	projects.GET("/:id", projectHandler.Get)
	projects.POST("", admin, audit("create", "project"), projectHandler.Create)
	projects.PUT("/:id", admin, audit("update", "project"), projectHandler.Update)
	projects.DELETE("/:id", admin, audit("delete", "project"), projectHandler.Delete)
	projects.POST("/:id/members", admin, audit("assign", "project"), projectHandler.AssignMember)
	projects.DELETE("/:id/members/:memberId", admin, audit("unassign", "project"), projectHandler.UnassignMember)

	members := secured.Group("/members", admin)
	members.GET("", memberHandler.List)
	members.GET("/:id", memberHandler.Get)
	members.POST("", audit("create", "member"), memberHandler.Create)
	members.PUT("/:id", audit("update", "member"), memberHandler.Update)
	members.DELETE("/:id", audit("delete", "member"), memberHandler.Delete)

	attendance := secured.Group("/attendance")
	attendance.GET("", attendanceHandler.List)
	attendance.GET("/summary", attendanceHandler.Summary)
	attendance.GET("/export", attendanceHandler.Export)
	attendance.POST("", audit("submit", "attendance"), attendanceHandler.Submit)

	requisitions := secured.Group("/requisitions")
	requisitions.GET("", requisitionHandler.List)
	requisitions.GET("/:id", requisitionHandler.Get)
	requisitions.POST("", audit("create", "requisition"), requisitionHandler.Create)
	requisitions.PUT("/:id", audit("update", "requisition"), requisitionHandler.Update)
	requisitions.DELETE("/:id", audit("delete", "requisition"), requisitionHandler.Delete)
	requisitions.POST("/:id/approve", admin, audit("approve", "requisition"), requisitionHandler.Approve)
	requisitions.POST("/:id/reject", admin, audit("reject", "requisition"), requisitionHandler.Reject)
	requisitions.POST("/:id/pending", admin, audit("reopen", "requisition"), requisitionHandler.SetPending)

	deletions := secured.Group("/deletion-requests")
	deletions.GET("", deletionHandler.List)
	deletions.GET("/:id", deletionHandler.Get)
	deletions.POST("", middleware.RequireRoles(models.RoleMember), audit("create", "deletion_request"), deletionHandler.Create)
	deletions.POST("/:id/approve", admin, audit("approve", "deletion_request"), deletionHandler.Approve)
	deletions.POST("/:id/reject", admin, audit("reject", "deletion_request"), deletionHandler.Reject)

	notifications := secured.Group("/notifications")
	notifications.GET("", notificationHandler.List)
	notifications.GET("/unread-count", notificationHandler.UnreadCount)
	notifications.POST("", admin, audit("create", "notification"), notificationHandler.Create)
	notifications.POST("/read-all", notificationHandler.MarkAllRead)
	notifications.POST("/:id/read", notificationHandler.MarkRead)
	notifications.DELETE("", notificationHandler.DeleteAll)
	notifications.DELETE("/:id", notificationHandler.Delete)

	if cfg.Dashboard.Enabled {
		secured.GET("/dashboard", admin, middleware.WithResponseMeta(), dashboardHandler.Admin)
	}
	secured.GET("/admin/metrics", admin, metricsHandler.Snapshot)

	if cfg.Realtime.Enabled {
		realtimeHandler := handler.NewRealtimeHandler(a.hub, a.resolver, realtimeListers(a), cfg.Realtime.AllowedOrigins, logr.Named("websocket"))
		secured.GET(realtimePath, realtimeHandler.Subscribe)
	}

	return r
}

// realtimeListers maps every subscribable table to the scoped read a client
// would otherwise poll.
func realtimeListers(a *app) map[string]handler.TableLister {
	students := func(ctx context.Context, scope visibility.Scope) (interface{}, error) {
		items, _, err := a.students.List(ctx, scope, dto.StudentQuery{})
		return items, err
	}
	return map[string]handler.TableLister{
		models.TableStudents:        students,
		models.TableProjectStudents: students,
		models.TableProjects: func(ctx context.Context, scope visibility.Scope) (interface{}, error) {
			return a.projects.List(ctx, scope, dto.ProjectQuery{})
		},
		models.TableMembers: func(ctx context.Context, scope visibility.Scope) (interface{}, error) {
			if !scope.Admin {
				return nil, appErrors.Clone(appErrors.ErrForbidden, "member directory is admin only")
			}
			return a.members.List(ctx, dto.MemberQuery{})
		},
		models.TableAttendance: func(ctx context.Context, scope visibility.Scope) (interface{}, error) {
			return a.attendance.List(ctx, scope, dto.AttendanceQuery{})
		},
		models.TableRequisitions: func(ctx context.Context, scope visibility.Scope) (interface{}, error) {
			return a.requisitions.List(ctx, scope, dto.RequisitionQuery{})
		},
		models.TableDeletionRequests: func(ctx context.Context, scope visibility.Scope) (interface{}, error) {
			return a.deletionRequests.List(ctx, scope, dto.DeletionRequestQuery{})
		},
		models.TableNotifications: func(ctx context.Context, scope visibility.Scope) (interface{}, error) {
			return a.notifications.List(ctx, scope, dto.NotificationQuery{})
		},
	}
}
