package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/moffermann/school-attendance-sub001/api/swagger"
	"github.com/moffermann/school-attendance-sub001/internal/handler"
	"github.com/moffermann/school-attendance-sub001/internal/middleware"
	"github.com/moffermann/school-attendance-sub001/internal/models"
	"github.com/moffermann/school-attendance-sub001/internal/repository"
	"github.com/moffermann/school-attendance-sub001/internal/service"
	"github.com/moffermann/school-attendance-sub001/pkg/cache"
	"github.com/moffermann/school-attendance-sub001/pkg/config"
	"github.com/moffermann/school-attendance-sub001/pkg/database"
	"github.com/moffermann/school-attendance-sub001/pkg/export"
	"github.com/moffermann/school-attendance-sub001/pkg/jobs"
	"github.com/moffermann/school-attendance-sub001/pkg/logger"
	corsmiddleware "github.com/moffermann/school-attendance-sub001/pkg/middleware/cors"
	reqidmiddleware "github.com/moffermann/school-attendance-sub001/pkg/middleware/requestid"
	"github.com/moffermann/school-attendance-sub001/pkg/storage"
)

// @title School Attendance API
// @version 0.1.0
// @description Authorized student withdrawal and attendance service
// @BasePath /api/v1
// @schemes http

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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect database", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, schedule cache disabled", "error", err)
		redisClient = nil
	}
	if !cfg.Schedules.CacheEnabled {
		redisClient = nil
	}

	evidenceStore, err := storage.NewLocalStorage(cfg.Evidence.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to init evidence storage", "error", err)
	}
	signer := storage.NewSignedURLSigner(cfg.Evidence.SignedURLSecret, cfg.Evidence.SignedURLTTL)

	validate := validator.New()
	metricsSvc := service.NewMetricsService()

	// Repositories.
	userRepo := repository.NewUserRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	pickupRepo := repository.NewPickupRepository(db)
	attendanceRepo := repository.NewAttendanceRepository(db)
	scheduleRepo := repository.NewScheduleRepository(db)
	withdrawalRepo := repository.NewWithdrawalRepository(db)
	requestRepo := repository.NewWithdrawalRequestRepository(db)
	guardianRepo := repository.NewGuardianRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)

	// Services.
	authSvc := service.NewAuthService(userRepo, cfg.JWT.Secret, cfg.JWT.Expiration, validate, logr)
	studentSvc := service.NewStudentService(studentRepo, validate, logr)
	pickupSvc := service.NewPickupService(pickupRepo, validate, logr)
	scheduleSvc := service.NewScheduleService(scheduleRepo, redisClient, cfg.Schedules.CacheTTL, logr)
	eligibilitySvc := service.NewEligibilityService(studentRepo, attendanceRepo, withdrawalRepo, scheduleSvc, cfg.Tenant.Timezone, logr)
	attendanceSvc := service.NewAttendanceService(attendanceRepo, studentRepo, validate, logr)
	requestSvc := service.NewWithdrawalRequestService(requestRepo, cfg.Tenant.Timezone, validate, logr)
	evidenceSvc := service.NewEvidenceService(evidenceStore, signer, logr)

	notificationSvc := service.NewNotificationService(
		notificationRepo, guardianRepo, withdrawalRepo,
		service.NewLogSender(logr),
		cfg.Tenant.SchoolName, cfg.Tenant.Timezone, cfg.Notifications.Enabled, logr,
	).WithMetrics(metricsSvc).WithMaxAttempts(cfg.Notifications.MaxRetries)

	notificationQueue := jobs.NewQueue("notifications", notificationSvc.DeliverJob, jobs.QueueConfig{
		Workers:    cfg.Notifications.QueueWorkers,
		BufferSize: cfg.Notifications.QueueBuffer,
		MaxRetries: cfg.Notifications.MaxRetries,
		RetryDelay: cfg.Notifications.RetryDelay,
		Logger:     logr,
	})
	notificationQueue.Start(ctx)
	defer notificationQueue.Stop()
	notificationSvc.WithQueue(notificationQueue)

	withdrawalSvc := service.NewWithdrawalService(withdrawalRepo, eligibilitySvc, pickupSvc, validate, logr).
		WithCrossLinker(requestSvc).
		WithNotifier(notificationSvc).
		WithMetrics(metricsSvc).
		WithSlipExporter(export.NewSlipExporter())

	// Background sweep for overdue withdrawal requests.
	go func() {
		ticker := time.NewTicker(cfg.Withdrawals.RequestExpirySweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				swept, err := requestSvc.ExpireOverdue(ctx)
				if err != nil {
					logr.Sugar().Errorw("request expiry sweep failed", "error", err)
					continue
				}
				metricsSvc.AddRequestsExpired(swept)
			}
		}
	}()

	// Handlers.
	authHandler := handler.NewAuthHandler(authSvc)
	studentHandler := handler.NewStudentHandler(studentSvc, pickupSvc)
	pickupHandler := handler.NewPickupHandler(pickupSvc)
	attendanceHandler := handler.NewAttendanceHandler(attendanceSvc)
	withdrawalHandler := handler.NewWithdrawalHandler(withdrawalSvc, eligibilitySvc, notificationSvc, cfg.Tenant.SchoolName, cfg.Tenant.Timezone)
	requestHandler := handler.NewWithdrawalRequestHandler(requestSvc)
	evidenceHandler := handler.NewEvidenceHandler(evidenceSvc, withdrawalSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Health)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.POST("/auth/login", authHandler.Login)
	api.GET("/evidence", evidenceHandler.Download)

	authed := api.Group("")
	authed.Use(middleware.JWT(authSvc))
	authed.GET("/auth/me", authHandler.Me)

	staff := middleware.RequireRoles(models.RoleAdmin, models.RoleOperator)
	adminOnly := middleware.RequireRoles(models.RoleAdmin)
	kioskOrStaff := middleware.RequireRoles(models.RoleAdmin, models.RoleOperator, models.RoleKiosk)

	authed.GET("/students", staff, studentHandler.List)
	authed.POST("/students", adminOnly, studentHandler.Create)
	authed.GET("/students/:id", staff, studentHandler.Get)
	authed.PUT("/students/:id", adminOnly, studentHandler.Update)
	authed.DELETE("/students/:id", adminOnly, studentHandler.Delete)
	authed.GET("/students/:id/pickups", staff, studentHandler.ListPickups)
	authed.GET("/students/:id/withdrawal-eligibility", kioskOrStaff, withdrawalHandler.Eligibility)

	authed.GET("/pickups", staff, pickupHandler.List)
	authed.POST("/pickups", adminOnly, pickupHandler.Create)
	authed.GET("/pickups/:id", staff, pickupHandler.Get)
	authed.PUT("/pickups/:id", adminOnly, pickupHandler.Update)
	authed.DELETE("/pickups/:id", adminOnly, pickupHandler.Delete)
	authed.POST("/pickups/:id/students", adminOnly, pickupHandler.AttachStudent)
	authed.DELETE("/pickups/:id/students/:studentId", adminOnly, pickupHandler.DetachStudent)

	authed.POST("/attendance/scan", kioskOrStaff, attendanceHandler.Scan)

	authed.POST("/withdrawals", kioskOrStaff, withdrawalHandler.Initiate)
	authed.GET("/withdrawals", staff, withdrawalHandler.List)
	authed.GET("/withdrawals/:id", staff, withdrawalHandler.Get)
	authed.POST("/withdrawals/:id/verify", kioskOrStaff, withdrawalHandler.Verify)
	authed.POST("/withdrawals/:id/complete", kioskOrStaff, withdrawalHandler.Complete)
	authed.POST("/withdrawals/:id/cancel", staff, withdrawalHandler.Cancel)
	authed.POST("/withdrawals/override", adminOnly, withdrawalHandler.Override)
	authed.GET("/withdrawals/:id/slip", staff, withdrawalHandler.Slip)
	authed.GET("/withdrawals/:id/notifications", staff, withdrawalHandler.Notifications)
	authed.POST("/withdrawals/:id/evidence", kioskOrStaff, evidenceHandler.Upload)

	authed.POST("/withdrawal-requests", staff, requestHandler.Create)
	authed.GET("/withdrawal-requests", staff, requestHandler.List)
	authed.GET("/withdrawal-requests/:id", staff, requestHandler.Get)
	authed.POST("/withdrawal-requests/:id/review", adminOnly, requestHandler.Review)
	authed.POST("/withdrawal-requests/:id/cancel", staff, requestHandler.Cancel)

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}
