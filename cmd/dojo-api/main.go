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

	_ "github.com/kenseikai/dojo-api/api/swagger"
	"github.com/kenseikai/dojo-api/internal/handler"
	"github.com/kenseikai/dojo-api/internal/middleware"
	"github.com/kenseikai/dojo-api/internal/models"
	"github.com/kenseikai/dojo-api/internal/repository"
	"github.com/kenseikai/dojo-api/internal/service"
	"github.com/kenseikai/dojo-api/pkg/cache"
	"github.com/kenseikai/dojo-api/pkg/config"
	"github.com/kenseikai/dojo-api/pkg/database"
	"github.com/kenseikai/dojo-api/pkg/logger"
	corsmiddleware "github.com/kenseikai/dojo-api/pkg/middleware/cors"
	reqidmiddleware "github.com/kenseikai/dojo-api/pkg/middleware/requestid"
	"github.com/kenseikai/dojo-api/pkg/storage"
)

// @title Dojo API
// @version 1.0.0
// @description Karate school management backend
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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, caching disabled", "error", err)
		redisClient = nil
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		logr.Sugar().Warnw("unknown timezone, using UTC", "timezone", cfg.Timezone)
		loc = time.UTC
	}

	validate := validator.New()

	enrollmentRepo := repository.NewEnrollmentRepository(db)
	programRepo := repository.NewProgramRepository(db)
	classRepo := repository.NewClassRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	sessionRepo := repository.NewSessionRepository(db)
	discountRepo := repository.NewDiscountRepository(db)
	userRepo := repository.NewUserRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	metricsSvc := service.NewMetricsService()
	authSvc := service.NewAuthService(userRepo, validate, logr, cfg.JWT)
	programSvc := service.NewProgramService(programRepo, validate)
	classSvc := service.NewClassService(classRepo, programRepo, enrollmentRepo, cacheRepo, cfg.Cache, metricsSvc, validate, logr)
	eligibilitySvc := service.NewEligibilityService(classRepo, programRepo, studentRepo, enrollmentRepo, logr)
	discountSvc := service.NewDiscountService(discountRepo, enrollmentRepo, cfg.Discounts, metricsSvc, logr)
	enrollmentSvc := service.NewEnrollmentService(enrollmentRepo, classRepo, studentRepo, eligibilitySvc, discountSvc, metricsSvc, validate, logr)
	enrollmentSvc.SetRosterInvalidator(classSvc.InvalidateRoster)
	sessionSvc := service.NewSessionService(sessionRepo, classRepo, cfg.Attendance, loc, metricsSvc, validate, logr)
	studentSvc := service.NewStudentService(studentRepo, validate, logr)

	store, err := storage.NewLocalStorage(cfg.Exports.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to init export storage", "error", err)
	}
	signer := storage.NewSignedURLSigner(cfg.Exports.SignedURLSecret, cfg.Exports.SignedURLTTL)
	exportSvc := service.NewExportService(classSvc, sessionSvc, store, signer, service.ExportConfig{
		APIPrefix: cfg.APIPrefix,
		ResultTTL: cfg.Exports.SignedURLTTL,
	}, logr, nil, nil)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Discounts.Enabled {
		discountSvc.Start(ctx)
		defer discountSvc.Stop()
	}

	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if removed, err := exportSvc.Cleanup(0); err != nil {
					logr.Sugar().Warnw("export cleanup failed", "error", err)
				} else if len(removed) > 0 {
					logr.Sugar().Infow("removed expired exports", "count", len(removed))
				}
			}
		}
	}()

	authHandler := handler.NewAuthHandler(authSvc)
	programHandler := handler.NewProgramHandler(programSvc)
	classHandler := handler.NewClassHandler(classSvc)
	enrollmentHandler := handler.NewEnrollmentHandler(enrollmentSvc)
	sessionHandler := handler.NewSessionHandler(sessionSvc)
	studentHandler := handler.NewStudentHandler(studentSvc, discountSvc)
	exportHandler := handler.NewExportHandler(exportSvc)
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
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "db unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	{
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.Refresh)
		auth.POST("/logout", middleware.JWT(authSvc), authHandler.Logout)
	}

	protected := api.Group("")
	protected.Use(middleware.JWT(authSvc))

	staff := middleware.RequireRoles(models.RoleAdmin, models.RoleInstructor)
	adminOnly := middleware.RequireRoles(models.RoleAdmin)

	programs := protected.Group("/programs")
	{
		programs.GET("", staff, programHandler.List)
		programs.GET("/:id", staff, programHandler.Get)
		programs.POST("", adminOnly, programHandler.Create)
		programs.PUT("/:id", adminOnly, programHandler.Update)
		programs.DELETE("/:id", adminOnly, programHandler.Deactivate)
	}

	classes := protected.Group("/classes")
	{
		classes.GET("", staff, classHandler.List)
		classes.GET("/:id", staff, classHandler.Get)
		classes.POST("", adminOnly, classHandler.Create)
		classes.PUT("/:id", adminOnly, classHandler.Update)
		classes.GET("/:id/schedules", staff, classHandler.Schedules)
		classes.POST("/:id/schedules", adminOnly, classHandler.AddSchedule)
		classes.DELETE("/:id/schedules/:scheduleId", adminOnly, classHandler.RemoveSchedule)
		classes.GET("/:id/roster", staff, classHandler.Roster)
		classes.POST("/:id/waitlist/process", adminOnly, enrollmentHandler.ProcessWaitlist)
	}

	enrollments := protected.Group("/enrollments")
	{
		enrollments.GET("", staff, enrollmentHandler.List)
		enrollments.GET("/validate", staff, enrollmentHandler.Validate)
		enrollments.GET("/conflicts", staff, enrollmentHandler.Conflicts)
		enrollments.POST("", adminOnly, enrollmentHandler.Create)
		enrollments.POST("/bulk", adminOnly, enrollmentHandler.BulkEnroll)
		enrollments.POST("/:id/drop", adminOnly, enrollmentHandler.Drop)
		enrollments.POST("/:id/complete", adminOnly, enrollmentHandler.Complete)
	}

	sessions := protected.Group("/sessions")
	{
		sessions.GET("", staff, sessionHandler.List)
		sessions.GET("/:id", staff, sessionHandler.Get)
		sessions.POST("/generate", adminOnly, sessionHandler.Generate)
		sessions.PUT("/:id/status", staff, sessionHandler.SetStatus)
		sessions.GET("/:id/attendance", staff, sessionHandler.Attendance)
		sessions.POST("/:id/attendance", staff, sessionHandler.MarkAttendance)
		sessions.POST("/:id/attendance/bulk", staff, sessionHandler.MarkAttendanceBulk)
	}

	students := protected.Group("/students")
	{
		students.GET("", staff, studentHandler.List)
		students.GET("/:id", staff, studentHandler.Get)
		students.POST("", adminOnly, studentHandler.Create)
		students.PUT("/:id", adminOnly, studentHandler.Update)
		students.POST("/:id/belt", staff, studentHandler.PromoteBelt)
	}

	families := protected.Group("/families")
	{
		families.GET("/:id", staff, studentHandler.GetFamily)
		families.POST("", adminOnly, studentHandler.CreateFamily)
		families.PUT("/:id", adminOnly, studentHandler.UpdateFamily)
		families.GET("/:id/discounts", staff, studentHandler.FamilyDiscounts)
	}

	exports := protected.Group("/exports")
	{
		exports.POST("/classes/:classId/roster", staff, exportHandler.Roster)
		exports.POST("/sessions/:sessionId/attendance", staff, exportHandler.AttendanceSheet)
	}
	// Download links are pre-signed; the token is the credential.
	api.GET("/exports/download/:token", exportHandler.Download)

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
