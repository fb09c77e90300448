package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	_ "github.com/noah-isme/institute-backoffice-api/api/swagger"
	"github.com/noah-isme/institute-backoffice-api/internal/realtime"
	"github.com/noah-isme/institute-backoffice-api/internal/repository"
	"github.com/noah-isme/institute-backoffice-api/internal/service"
	"github.com/noah-isme/institute-backoffice-api/internal/visibility"
	"github.com/noah-isme/institute-backoffice-api/pkg/cache"
	"github.com/noah-isme/institute-backoffice-api/pkg/config"
	"github.com/noah-isme/institute-backoffice-api/pkg/database"
	"github.com/noah-isme/institute-backoffice-api/pkg/logger"
)

// @title Institute Back-Office API
// @version 1.0.0
// @description Students, projects, attendance, requisitions and deletion approvals for the institute back office.
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer db.Close()

	var cacheRepo *repository.CacheRepository
	if redisClient, err := cache.NewRedis(ctx, cfg.Redis); err != nil {
		logr.Warn("redis unavailable, dashboard cache disabled", zap.Error(err))
	} else {
		cacheRepo = repository.NewCacheRepository(redisClient, logr)
		defer cacheRepo.Close()
	}

	metrics := service.NewMetricsService()

	hub := realtime.NewHub(realtime.HubConfig{
		Debounce: cfg.Realtime.Debounce,
		Workers:  cfg.Realtime.Workers,
		Logger:   logr.Named("realtime"),
		Metrics:  metrics,
	})
	hub.Start(ctx)
	defer hub.Stop()

	if cfg.Realtime.Enabled && cfg.Realtime.ListenPostgres {
		listener := realtime.NewListener(cfg.Database.DSN(), cfg.Realtime.PGChannel, hub, logr.Named("pg-listener"))
		go func() {
			if err := listener.Run(ctx); err != nil {
				logr.Error("postgres listener stopped", zap.Error(err))
			}
		}()
	}

	app := buildApp(cfg, db, cacheRepo, hub, metrics, logr)
	router := newRouter(cfg, app, logr)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("forced shutdown", zap.Error(err))
	}
}

// app groups the services the router exposes.
type app struct {
	auth             *service.AuthService
	students         *service.StudentService
	projects         *service.ProjectService
	members          *service.MemberService
	attendance       *service.AttendanceService
	requisitions     *service.RequisitionService
	deletionRequests *service.DeletionRequestService
	notifications    *service.NotificationService
	dashboard        *service.DashboardService
	metrics          *service.MetricsService
	resolver         *visibility.Resolver
	hub              *realtime.Hub
	db               *sqlx.DB
	cache            *repository.CacheRepository
}

func buildApp(cfg *config.Config, db *sqlx.DB, cacheRepo *repository.CacheRepository, hub *realtime.Hub, metrics *service.MetricsService, logr *zap.Logger) *app {
	studentRepo := repository.NewStudentRepository(db)
	projectRepo := repository.NewProjectRepository(db)
	memberRepo := repository.NewMemberRepository(db)
	attendanceRepo := repository.NewAttendanceRepository(db)
	requisitionRepo := repository.NewRequisitionRepository(db)
	deletionRepo := repository.NewDeletionRequestRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)

	validate := validator.New()
	notifier := service.NewNotifier(notificationRepo, hub, metrics, logr.Named("notifier"))
	opts := []service.Option{
		service.WithPublisher(hub),
		service.WithNotifier(notifier),
		service.WithMetrics(metrics),
	}

	var cacheService *service.CacheService
	if cacheRepo != nil {
		cacheService = service.NewCacheService(cacheRepo, metrics, cfg.Dashboard.CacheTTL, logr.Named("cache"), true)
	}
	dashboard := service.NewDashboardService(service.DashboardServiceParams{
		Students:         studentRepo,
		Projects:         projectRepo,
		Members:          memberRepo,
		Requisitions:     requisitionRepo,
		DeletionRequests: deletionRepo,
		Notifications:    notificationRepo,
		Cache:            cacheService,
		Metrics:          metrics,
		Logger:           logr.Named("dashboard"),
		Config:           service.DashboardServiceConfig{CacheTTL: cfg.Dashboard.CacheTTL},
	})
	hub.Subscribe(realtime.AllTables, dashboard.HandleChanges)

	exporter := service.NewExportService(logr.Named("export"), nil, nil)

	return &app{
		auth: service.NewAuthService(memberRepo, validate, logr.Named("auth"), service.AuthConfig{
			AccessTokenSecret: cfg.JWT.Secret,
			AccessTokenExpiry: cfg.JWT.Expiration,
			Issuer:            cfg.JWT.Issuer,
			AdminEmail:        cfg.Admin.Email,
			AdminPasswordHash: cfg.Admin.PasswordHash,
		}),
		students:     service.NewStudentService(studentRepo, projectRepo, validate, logr.Named("students"), opts...),
		projects:     service.NewProjectService(projectRepo, memberRepo, validate, logr.Named("projects"), opts...),
		members:      service.NewMemberService(memberRepo, validate, logr.Named("members"), opts...),
		attendance:   service.NewAttendanceService(attendanceRepo, projectRepo, exporter, validate, logr.Named("attendance"), opts...),
		requisitions: service.NewRequisitionService(requisitionRepo, validate, logr.Named("requisitions"), opts...),
		deletionRequests: service.NewDeletionRequestService(deletionRepo, studentRepo, validate, logr.Named("deletion-requests"), service.DeletionRequestConfig{
			ReasonMinLength: cfg.Workflow.DeletionReasonMinLength,
			NotifyOutcome:   cfg.Workflow.NotifyDeletionOutcome,
		}, opts...),
		notifications: service.NewNotificationService(notificationRepo, validate, logr.Named("notifications"), opts...),
		dashboard:     dashboard,
		metrics:       metrics,
		resolver:      visibility.NewResolver(projectRepo, visibility.WithMemberStatus(memberRepo)),
		hub:           hub,
		db:            db,
		cache:         cacheRepo,
	}
}
