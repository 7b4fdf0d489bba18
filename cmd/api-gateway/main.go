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
	"golang.org/x/crypto/bcrypt"

	_ "github.com/noah-isme/roster-import-api/api/swagger"
	"github.com/noah-isme/roster-import-api/internal/handler"
	"github.com/noah-isme/roster-import-api/internal/middleware"
	"github.com/noah-isme/roster-import-api/internal/models"
	"github.com/noah-isme/roster-import-api/internal/repository"
	"github.com/noah-isme/roster-import-api/internal/service"
	"github.com/noah-isme/roster-import-api/pkg/cache"
	"github.com/noah-isme/roster-import-api/pkg/config"
	"github.com/noah-isme/roster-import-api/pkg/database"
	"github.com/noah-isme/roster-import-api/pkg/extract"
	"github.com/noah-isme/roster-import-api/pkg/jobs"
	"github.com/noah-isme/roster-import-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/roster-import-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/roster-import-api/pkg/middleware/requestid"
	"github.com/noah-isme/roster-import-api/pkg/storage"
)

// @title Roster Import API
// @version 1.0.0
// @description Bulk student and faculty roster ingestion from uploaded documents
// @BasePath /api/v1
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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer db.Close()

	metrics := service.NewMetricsService()

	var cacheRepo *repository.CacheRepository
	if cfg.Preview.CacheEnabled {
		redisClient, err := cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			logr.Warn("preview cache disabled: redis unavailable", zap.Error(err))
		}
		cacheRepo = repository.NewCacheRepository(redisClient, logr)
		defer cacheRepo.Close() //nolint:errcheck
	}
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Preview.CacheTTL, logr, cfg.Preview.CacheEnabled && cacheRepo != nil)

	uploads, err := storage.NewLocalStorage(cfg.Import.UploadDir)
	if err != nil {
		logr.Fatal("failed to prepare upload directory", zap.Error(err))
	}
	sweeper := jobs.NewPeriodic("upload-sweeper", func(ctx context.Context) error {
		removed, err := uploads.CleanupOlderThan(cfg.Import.UploadTTL)
		if len(removed) > 0 {
			logr.Info("removed orphaned roster uploads", zap.Strings("files", removed))
		}
		return err
	}, jobs.PeriodicConfig{Interval: cfg.Import.UploadTTL / 2, RunImmediately: true, Logger: logr})
	sweeper.Start(ctx)
	defer sweeper.Stop()

	validate := validator.New()
	rosterSvc := service.NewRosterImportService(
		repository.NewScopeRepository(db),
		repository.NewRosterRepository(db),
		db,
		extract.New(extract.Config{Command: cfg.Import.ExtractCommand, Timeout: cfg.Import.ExtractTimeout}),
		uploads,
		cacheSvc,
		metrics,
		validate,
		logr,
		service.RosterImportConfig{
			EmailDomain:     cfg.Import.EmailDomain,
			DefaultPassword: cfg.Import.DefaultPassword,
			MaxErrors:       cfg.Import.MaxErrors,
			BcryptCost:      bcrypt.DefaultCost,
			PreviewTTL:      cfg.Preview.CacheTTL,
		},
	)
	tokenSvc := service.NewTokenService(cfg.JWT.Secret, logr)

	rosterHandler := handler.NewRosterImportHandler(rosterSvc, uploads, handler.UploadConfig{
		MaxFileSize:       cfg.Import.MaxFileSizeBytes,
		AllowedExtensions: cfg.Import.AllowedExtensions,
	}, logr)
	metricsHandler := handler.NewMetricsHandler(metrics, map[string]handler.Pinger{"postgres": db})

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))
	r.MaxMultipartMemory = cfg.Import.MaxFileSizeBytes

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	rosters := api.Group("/rosters",
		middleware.JWT(tokenSvc),
		middleware.RequireRoles(models.RoleSuperAdmin, models.RoleAdmin),
	)
	rosters.POST("/students/import", rosterHandler.ImportStudents)
	rosters.POST("/students/preview", rosterHandler.PreviewStudents)
	rosters.POST("/faculty/import", rosterHandler.ImportFaculty)
	rosters.POST("/faculty/preview", rosterHandler.PreviewFaculty)

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
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
}
