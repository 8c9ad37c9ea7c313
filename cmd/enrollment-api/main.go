package main

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/course-enrollment-api/api/swagger"
	"github.com/noah-isme/course-enrollment-api/internal/handler"
	"github.com/noah-isme/course-enrollment-api/internal/middleware"
	"github.com/noah-isme/course-enrollment-api/internal/repository"
	"github.com/noah-isme/course-enrollment-api/internal/service"
	"github.com/noah-isme/course-enrollment-api/pkg/cache"
	"github.com/noah-isme/course-enrollment-api/pkg/canvas"
	"github.com/noah-isme/course-enrollment-api/pkg/config"
	"github.com/noah-isme/course-enrollment-api/pkg/database"
	"github.com/noah-isme/course-enrollment-api/pkg/logger"
	"github.com/noah-isme/course-enrollment-api/pkg/mailer"
	corsmiddleware "github.com/noah-isme/course-enrollment-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/course-enrollment-api/pkg/middleware/requestid"
	"github.com/noah-isme/course-enrollment-api/pkg/storage"
)

// @title Course Enrollment API
// @version 1.0.0
// @description Course catalogue, enrollment requests and the admin review workflow
// @BasePath /api
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

	ctx := context.Background()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect database", zap.Error(err))
	}
	defer db.Close() //nolint:errcheck

	if cfg.Database.AutoMigrate {
		if err := database.Migrate(ctx, db); err != nil {
			logr.Fatal("failed to migrate database", zap.Error(err))
		}
	}

	redisClient, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, dashboard cache disabled", zap.Error(err))
	}

	metricsSvc := service.NewMetricsService()
	var (
		cacheSvc  *service.CacheService
		cacheRepo *repository.CacheRepository
	)
	if redisClient != nil {
		defer redisClient.Close() //nolint:errcheck
		cacheRepo = repository.NewCacheRepository(redisClient)
		cacheSvc = service.NewCacheService(cacheRepo, metricsSvc, cfg.Dashboard.CacheTTL, logr, true)
	} else {
		cacheSvc = service.NewCacheService(nil, metricsSvc, cfg.Dashboard.CacheTTL, logr, false)
	}

	uploads, err := storage.NewLocalStorage(cfg.Uploads.Dir)
	if err != nil {
		logr.Fatal("failed to prepare upload dir", zap.Error(err))
	}
	exportFiles, err := storage.NewLocalStorage(cfg.Exports.Dir)
	if err != nil {
		logr.Fatal("failed to prepare export dir", zap.Error(err))
	}

	sender, err := mailer.New(cfg.Mail, logr)
	if err != nil {
		logr.Fatal("failed to init mailer", zap.Error(err))
	}

	validate := validator.New()

	courseRepo := repository.NewCourseRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	requestRepo := repository.NewEnrollmentRequestRepository(db)
	settingRepo := repository.NewSettingRepository(db)
	store := repository.NewEnrollmentStore(db)

	notifications := service.NewNotificationService(settingRepo, sender, service.NotificationOptions{
		DefaultEnabled: cfg.Notifications.DefaultEnabled,
		AdminRecipient: cfg.Mail.AdminRecipient,
		FrontendURL:    cfg.Mail.FrontendURL,
		Signature:      cfg.Mail.FromName,
	}, metricsSvc, logr)

	workflow := service.NewEnrollmentWorkflowService(
		store, requestRepo, courseRepo, studentRepo, notifications, cacheSvc, metricsSvc, validate, logr,
		service.WorkflowOptions{EnforceSeatLimit: cfg.Enrollment.EnforceSeatLimit},
	)
	courses := service.NewCourseService(courseRepo, uploads, canvas.NewClient(cfg.Canvas), cacheSvc, validate, logr, service.UploadOptions{
		PublicPath:   cfg.Uploads.PublicPath,
		MaxFileSize:  cfg.Uploads.MaxFileSizeBytes,
		AllowedMIMEs: cfg.Uploads.AllowedMIMEs,
	})
	auth := service.NewAuthService(validate, logr, service.AuthConfig{
		AccessTokenSecret: cfg.Auth.JWTSecret,
		AccessTokenExpiry: cfg.Auth.JWTExpiration,
		AdminEmail:        cfg.Auth.AdminEmail,
		AdminPasswordHash: cfg.Auth.AdminPasswordHash,
	})
	dashboard := service.NewDashboardService(service.DashboardServiceParams{
		Courses:  courseRepo,
		Students: studentRepo,
		Requests: requestRepo,
		Cache:    cacheSvc,
		Logger:   logr,
		Config:   service.DashboardServiceConfig{CacheTTL: cfg.Dashboard.CacheTTL},
	})
	exports := service.NewExportService(service.ExportSources{
		Students: studentRepo,
		Courses:  courseRepo,
		Requests: requestRepo,
	}, exportFiles, storage.NewSignedURLSigner(cfg.Exports.SignedURLSecret, cfg.Exports.SignedURLTTL),
		service.ExportConfig{APIPrefix: cfg.APIPrefix}, logr)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.MaxMultipartMemory = cfg.Uploads.MaxFileSizeBytes
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))
	r.Use(middleware.WithResponseMeta())

	checks := map[string]handler.Pinger{"postgres": db}
	if cacheRepo != nil {
		checks["redis"] = handler.PingFunc(cacheRepo.Ping)
	}
	ops := handler.NewMetricsHandler(metricsSvc.Handler(), checks)
	r.GET("/health", ops.Health)
	r.GET("/ready", ops.Ready)
	r.GET("/metrics", ops.Prometheus)

	r.Static(cfg.Uploads.PublicPath, uploads.Dir())

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	handler.Register(r.Group(cfg.APIPrefix), handler.Handlers{
		Auth:        handler.NewAuthHandler(auth),
		Courses:     handler.NewCourseHandler(courses),
		Enrollments: handler.NewEnrollmentHandler(workflow),
		Requests:    handler.NewRequestHandler(workflow),
		Students:    handler.NewStudentHandler(service.NewStudentService(studentRepo, logr)),
		Admin:       handler.NewAdminHandler(notifications),
		Dashboard:   handler.NewDashboardHandler(dashboard),
		Exports:     handler.NewExportHandler(exports),
	}, auth, logr)

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	srv := &http.Server{Addr: addr, Handler: r}
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
