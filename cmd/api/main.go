package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/ozpath/ozpath-api/api/swagger"
	"github.com/ozpath/ozpath-api/internal/handler"
	"github.com/ozpath/ozpath-api/internal/repository"
	"github.com/ozpath/ozpath-api/internal/service"
	"github.com/ozpath/ozpath-api/pkg/cache"
	"github.com/ozpath/ozpath-api/pkg/config"
	"github.com/ozpath/ozpath-api/pkg/database"
	"github.com/ozpath/ozpath-api/pkg/export"
	"github.com/ozpath/ozpath-api/pkg/logger"
	corsmiddleware "github.com/ozpath/ozpath-api/pkg/middleware/cors"
	reqidmiddleware "github.com/ozpath/ozpath-api/pkg/middleware/requestid"
)

// @title OzPath API
// @version 0.1.0
// @description Application workflow and commission settlement engine
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

	var cacheRepo *repository.CacheRepository
	if cfg.Analytics.Enabled {
		redisClient, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Sugar().Warnw("redis unavailable, analytics cache disabled", "error", err)
		} else {
			defer redisClient.Close()
			cacheRepo = repository.NewCacheRepository(redisClient)
		}
	}

	validate := validator.New()

	applicationRepo := repository.NewApplicationRepository(db)
	formRepo := repository.NewFormRepository(db)
	commissionRepo := repository.NewCommissionRepository(db)
	analyticsRepo := repository.NewAnalyticsRepository(db)

	metricsSvc := service.NewMetricsService()
	notifier := service.NewNotifierService(cfg.Notifications, logr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	notifier.Start(ctx)
	defer notifier.Stop()

	authSvc := service.NewAuthService(cfg.JWT)
	commissionSvc := service.NewCommissionService(commissionRepo, applicationRepo, notifier, cfg.Commission, validate, logr)
	applicationSvc := service.NewApplicationService(applicationRepo, formRepo, commissionSvc, notifier, cfg.Commission, validate, logr)
	formSvc := service.NewFormService(formRepo, applicationRepo, export.NewPDFExporter(), notifier, validate, logr)
	analyticsSvc := service.NewAnalyticsService(analyticsRepo, cacheRepo, cfg.Analytics, logr)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	handler.RegisterRoutes(r, cfg.APIPrefix, handler.Dependencies{
		Auth:         authSvc,
		Applications: handler.NewApplicationHandler(applicationSvc, metricsSvc),
		Forms:        handler.NewFormHandler(formSvc),
		Commissions:  handler.NewCommissionHandler(commissionSvc, export.NewCSVExporter(), metricsSvc),
		Analytics:    handler.NewAnalyticsHandler(analyticsSvc),
		Metrics:      metricsSvc,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Errorw("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("shutdown failed", "error", err)
		os.Exit(1)
	}
}
