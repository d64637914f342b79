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
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/aneeshlingala/grade-melon-nsd/api/swagger"
	"github.com/aneeshlingala/grade-melon-nsd/internal/handler"
	internalmiddleware "github.com/aneeshlingala/grade-melon-nsd/internal/middleware"
	"github.com/aneeshlingala/grade-melon-nsd/internal/repository"
	"github.com/aneeshlingala/grade-melon-nsd/internal/service"
	"github.com/aneeshlingala/grade-melon-nsd/pkg/cache"
	"github.com/aneeshlingala/grade-melon-nsd/pkg/config"
	"github.com/aneeshlingala/grade-melon-nsd/pkg/database"
	"github.com/aneeshlingala/grade-melon-nsd/pkg/jobs"
	"github.com/aneeshlingala/grade-melon-nsd/pkg/logger"
	corsmiddleware "github.com/aneeshlingala/grade-melon-nsd/pkg/middleware/cors"
	reqidmiddleware "github.com/aneeshlingala/grade-melon-nsd/pkg/middleware/requestid"
	"github.com/aneeshlingala/grade-melon-nsd/pkg/storage"
)

const (
	exportCleanupInterval = time.Hour
	shutdownTimeout       = 10 * time.Second
)

// @title Grade Melon API
// @version 1.0.0
// @description Gradebook ingestion, what-if projection and grade report exports
// @BasePath /
// @schemes http
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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		logr.Fatal("failed to open database", zap.Error(err))
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, gradebook cache disabled", zap.Error(err))
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	validate := validator.New()
	metrics := service.NewMetricsService()

	gradebookRepo := repository.NewGradebookRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient)
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Gradebook.CacheTTL, logr, redisClient != nil)

	recalc := service.NewRecalculator(nil)
	normalizer := service.NewNormalizer(recalc, logr, service.WithDecodePasses(cfg.Gradebook.NameDecodePasses))
	projector := service.NewProjector(service.ProjectorConfig{MaxNodes: cfg.WhatIf.MaxNodes, MaxResults: cfg.WhatIf.MaxResults}, logr)
	gradebookSvc := service.NewGradebookService(gradebookRepo, cacheSvc, normalizer, recalc, projector, metrics, validate, logr, service.GradebookConfig{
		CacheTTL:      cfg.Gradebook.CacheTTL,
		WhatIfTimeout: cfg.WhatIf.Timeout,
	})

	files, err := storage.NewLocalStorage(cfg.Exports.StorageDir)
	if err != nil {
		logr.Fatal("failed to prepare export storage", zap.Error(err))
	}
	signer := storage.NewSignedURLSigner(cfg.Exports.SignedURLSecret, cfg.Exports.SignedURLTTL)
	exportSvc := service.NewExportService(gradebookSvc, files, signer, metrics, logr, service.ExportConfig{APIPrefix: cfg.APIPrefix})
	exportQueue := jobs.New[string]("exports", exportSvc.Process, jobs.Config{
		Workers:    cfg.Exports.Workers,
		MaxRetries: cfg.Exports.Retries,
		RetryDelay: time.Second,
		Logger:     logr,
	})
	exportQueue.OnFailure(exportSvc.MarkFailed)
	exportSvc.AttachQueue(exportQueue)
	exportQueue.Start(ctx)
	defer exportQueue.Stop()
	go cleanupExports(ctx, exportSvc, logr)

	tokenSvc := service.NewTokenService(service.TokenConfig{Secret: cfg.JWT.Secret, Issuer: cfg.JWT.Issuer})

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(internalmiddleware.Metrics(metrics))
	r.Use(internalmiddleware.WithResponseMeta())

	checks := map[string]handler.Pinger{"database": gradebookRepo}
	if redisClient != nil {
		checks["redis"] = cacheRepo
	}
	handler.RegisterRoutes(r, cfg.APIPrefix, handler.Handlers{
		Gradebooks: handler.NewGradebookHandler(gradebookSvc, validate),
		Exports:    handler.NewExportHandler(exportSvc, validate),
		Metrics:    handler.NewMetricsHandler(metrics, checks),
	}, internalmiddleware.JWT(tokenSvc))

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
}

func cleanupExports(ctx context.Context, exports *service.ExportService, logr *zap.Logger) {
	ticker := time.NewTicker(exportCleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := exports.Cleanup(0)
			if err != nil {
				logr.Warn("export cleanup failed", zap.Error(err))
				continue
			}
			if removed > 0 {
				logr.Info("expired exports removed", zap.Int("count", removed))
			}
		}
	}
}
