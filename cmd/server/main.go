package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SAP-F-2025/inventory-import-service/internal/cache"
	"github.com/SAP-F-2025/inventory-import-service/internal/config"
	"github.com/SAP-F-2025/inventory-import-service/internal/handlers"
	"github.com/SAP-F-2025/inventory-import-service/internal/processors"
	"github.com/SAP-F-2025/inventory-import-service/internal/queue"
	"github.com/SAP-F-2025/inventory-import-service/internal/repositories/postgres"
	"github.com/SAP-F-2025/inventory-import-service/internal/services"
	"github.com/SAP-F-2025/inventory-import-service/internal/spreadsheet"
	"github.com/SAP-F-2025/inventory-import-service/internal/utils"
	"github.com/SAP-F-2025/inventory-import-service/internal/validator"
	"github.com/SAP-F-2025/inventory-import-service/internal/worker"
	"github.com/SAP-F-2025/inventory-import-service/pkg"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := utils.NewLogger(cfg.LogLevel, cfg.Environment)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("Server stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("Server exited gracefully")
}

func run(cfg *config.Config, logger *slog.Logger) error {
	redisClient, err := pkg.NewRedisClient(context.Background(), cfg)
	if err != nil {
		return err
	}
	defer redisClient.Close()

	db, err := pkg.InitDatabase(cfg)
	if err != nil {
		return err
	}
	if err := pkg.Migrate(db); err != nil {
		return err
	}
	defer func() {
		if sqlDB, err := db.DB(); err == nil {
			if err := sqlDB.Close(); err != nil {
				logger.Error("Error closing database connection", "error", err)
			}
		}
	}()

	// Cache and queue
	cacheService := cache.NewRedisCache(redisClient, logger, cfg.Cache.KeyPrefix, cfg.Cache.OpTimeout)
	snapshots := cache.NewJobSnapshots(cacheService, queue.NewSerializer(logger), logger)
	jobQueue := queue.NewRedisQueue(redisClient, queue.Config{
		Prefix:            cfg.Queue.KeyPrefix,
		MaxAttempts:       cfg.Queue.Attempts,
		BackoffBase:       cfg.Queue.BackoffBase,
		VisibilityTimeout: cfg.Queue.VisibilityTimeout,
	}, snapshots, logger)

	// Processors
	repo := postgres.NewRepository(db)
	indexes := processors.NewProductIndexLoader(repo.Products(), cacheService, logger)
	validate := validator.New()
	registry := processors.NewRegistry(
		processors.NewProductProcessor(repo, indexes, logger),
		processors.NewSupplierProcessor(repo, validate, logger),
		processors.NewMovementProcessor(repo, indexes, logger),
	)
	reader := spreadsheet.NewLocalFileReader(cfg.Import.UploadDir)
	batch := processors.NewBatchProcessor(registry, reader, spreadsheet.NewExcelReportWriter(cfg.Import.ReportDir), logger)

	// Events
	publisher, err := cfg.Events.CreateEventPublisher(logger)
	if err != nil {
		return err
	}
	defer publisher.Close()
	eventService := services.NewImportEventService(publisher, logger)

	importConfig := services.DefaultImportServiceConfig()
	importConfig.AutoDetectMinConfidence = cfg.Import.AutoDetectMinConfidence
	importService := services.NewImportService(services.ImportServiceDeps{
		Queue:     jobQueue,
		Snapshots: snapshots,
		Cache:     cacheService,
		Registry:  registry,
		Reader:    reader,
		Events:    eventService,
		Validator: validate,
		Logger:    logger,
	}, importConfig)

	workerConfig := worker.DefaultConfig()
	workerConfig.Concurrency = cfg.Queue.Concurrency
	workerConfig.PollInterval = cfg.Queue.PollInterval
	workerConfig.PurgeInterval = cfg.Queue.PurgeInterval
	workerConfig.RetentionDays = cfg.Queue.RetentionDays
	pool := worker.NewPool(jobQueue, batch, eventService, workerConfig, logger)

	// HTTP
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	handlerLogger := utils.NewSlogLogger(logger)
	router := gin.New()
	router.Use(gin.Recovery(), utils.RequestID(), utils.AccessLog(handlerLogger), utils.ContextLogger(handlerLogger))
	router.Use(cors.New(cors.Config{
		AllowOrigins:  cfg.AllowedOrigins,
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "X-Request-ID"},
		ExposeHeaders: []string{"Content-Length", utils.RequestIDHeader},
		MaxAge:        12 * time.Hour,
	}))
	handlers.NewHandlerManager(importService, handlerLogger).SetupRoutes(router)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	poolDone := make(chan error, 1)
	go func() {
		poolDone <- pool.Run(ctx)
	}()

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("Server starting", "port", cfg.Port, "workers", workerConfig.Concurrency)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("Shutting down server...")
	case err := <-serverErr:
		logger.Error("HTTP server failed", "error", err)
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}

	// Workers release their in-flight jobs back to the queue on cancellation.
	select {
	case err := <-poolDone:
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
	case <-shutdownCtx.Done():
		logger.Warn("Worker pool did not stop before the shutdown deadline")
	}
	return nil
}
