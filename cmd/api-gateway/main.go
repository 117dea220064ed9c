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
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/student-records-api/api/swagger"
	"github.com/noah-isme/student-records-api/internal/handler"
	"github.com/noah-isme/student-records-api/internal/repository"
	"github.com/noah-isme/student-records-api/internal/service"
	"github.com/noah-isme/student-records-api/pkg/cache"
	"github.com/noah-isme/student-records-api/pkg/config"
	"github.com/noah-isme/student-records-api/pkg/database"
	"github.com/noah-isme/student-records-api/pkg/datastore"
	"github.com/noah-isme/student-records-api/pkg/identity"
	"github.com/noah-isme/student-records-api/pkg/jobs"
	"github.com/noah-isme/student-records-api/pkg/logger"
	"github.com/noah-isme/student-records-api/pkg/storage"
)

// @title Student Records API
// @version 1.0.0
// @description Student profiles, bulk ingestion and GPA trend reporting
// @BasePath /api
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

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

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect database", zap.Error(err))
	}
	defer db.Close()

	metrics := service.NewMetricsService()
	store := datastore.New(db).WithObserver(metrics.ObserveStatement)

	var redisClient redis.UniversalClient
	if cfg.Redis.Enabled {
		client, err := cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, trend cache disabled", zap.Error(err))
		} else {
			redisClient = client
			defer client.Close()
		}
	}
	cacheSvc := service.NewCacheService(repository.NewCacheRepository(redisClient), metrics, cfg.Reports.CacheTTL, logr)

	provider := identity.NewClient(identity.Config{
		BaseURL:        cfg.Identity.URL,
		AnonKey:        cfg.Identity.AnonKey,
		ServiceRoleKey: cfg.Identity.ServiceRoleKey,
		JWTSecret:      cfg.Identity.JWTSecret,
		Timeout:        cfg.Identity.Timeout,
	}, nil)

	validate := validator.New()

	studentRepo := repository.NewStudentRepository(db, store)
	profileRepo := repository.NewProfileRepository(store)
	trendRepo := repository.NewTrendRepository(store)
	roleRepo := repository.NewRoleRepository(store)
	jobRepo := repository.NewReportJobRepository(store)
	auditRepo := repository.NewAuditRepository(store)

	authSvc := service.NewAuthService(provider, roleRepo, validate, logr, "")
	userSvc := service.NewUserService(provider, roleRepo, validate, logr)
	studentSvc := service.NewStudentService(studentRepo, profileRepo, cacheSvc, validate, logr)
	ingestionSvc := service.NewIngestionService(studentRepo, profileRepo, cacheSvc, metrics, validate, logr)
	reportSvc := service.NewReportService(trendRepo, cacheSvc, cfg.Reports.CacheTTL, logr)

	files, err := storage.NewLocalStorage(cfg.Reports.StorageDir)
	if err != nil {
		logr.Fatal("failed to prepare export storage", zap.Error(err))
	}
	signer := storage.NewSigner(cfg.Reports.SignedURLSecret, cfg.Reports.SignedURLTTL)

	worker := service.NewExportWorker(jobRepo, reportSvc, files, signer, metrics, cfg.APIPrefix, logr)
	queue := jobs.NewQueue("exports", worker.Handle, jobs.Config{
		Workers:    cfg.Reports.WorkerConcurrency,
		MaxRetries: cfg.Reports.WorkerRetries,
		Backoff:    2 * time.Second,
		Logger:     logr,
		OnGiveUp:   worker.GiveUp,
	})
	queue.Start(ctx)
	exportSvc := service.NewExportService(jobRepo, queue, files, signer, validate, logr, service.ExportConfig{
		CleanupInterval: cfg.Reports.CleanupInterval,
	})
	exportSvc.RecoverPending(ctx)
	exportSvc.StartCleanup(ctx)

	r := handler.NewRouter(handler.RouterDeps{
		APIPrefix:      cfg.APIPrefix,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		MaxUploadBytes: cfg.Ingestion.MaxFileSizeBytes,
		AllowedMIMEs:   cfg.Ingestion.AllowedMIMEs,
		Logger:         logr,
		Auth:           authSvc,
		Users:          userSvc,
		Students:       studentSvc,
		Ingestion:      ingestionSvc,
		Reports:        reportSvc,
		Exports:        exportSvc,
		Metrics:        metrics,
		Audit:          auditRepo,
		DB:             db,
	})

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Errorw("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
	queue.Stop()
}
