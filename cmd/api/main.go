package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"placement-credit-sync/internal/api"
	"placement-credit-sync/internal/breaker"
	"placement-credit-sync/internal/config"
	"placement-credit-sync/internal/credit"
	"placement-credit-sync/internal/db"
	"placement-credit-sync/internal/logger"
	"placement-credit-sync/internal/queue"
	"placement-credit-sync/internal/storage"
	"placement-credit-sync/internal/sync"

	"github.com/gin-gonic/gin"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	// Initialize logger
	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	log := logger.Get()

	audit, err := logger.InitAudit(cfg.Logging.AuditPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open audit log")
	}
	defer audit.Close()

	log.Info().Str("version", cfg.App.Version).Msg("Starting API server")

	// Initialize database
	database, err := db.NewConnection(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer database.Close()

	if err := db.Migrate(context.Background(), database); err != nil {
		log.Fatal().Err(err).Msg("Failed to migrate database")
	}

	dialect := db.DialectFor(cfg.Database.Driver)
	scoreQueue := db.NewScoreQueue(database, dialect)
	reconciler := credit.NewReconciler(cfg, db.NewCreditStore(database, dialect))

	// Records system gateway
	br := breaker.New(cfg.Breaker.Cooldown, breaker.WithStateChangeCallback(breaker.AuditTransition))
	gateway := sync.NewGateway(cfg, sync.NewClient(cfg), br)
	syncService := sync.NewService(cfg, gateway, scoreQueue, br)

	// Background jobs are optional: without Redis, replays run inline and
	// imports are refused.
	var producer api.JobProducer
	if cfg.RedisEnabled() {
		redisClient, err := queue.NewRedisClient(cfg)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
		defer redisClient.Close()
		producer = queue.NewProducer(redisClient, cfg)
	}

	var store storage.Storage
	if cfg.Storage.S3.Bucket != "" {
		s3Storage, err := storage.NewS3Storage(cfg)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize S3 storage")
		}
		store = s3Storage
	}

	// Initialize API handler
	handler := api.NewHandler(cfg, reconciler, syncService, scoreQueue, br, producer, store)

	// Setup Gin router
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := api.NewRouter(handler)

	// Create HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server in goroutine
	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("Starting HTTP server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	// Create context for graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	// Shutdown server
	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}
