package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"placement-credit-sync/internal/config"
	"placement-credit-sync/internal/credit"
	"placement-credit-sync/internal/db"
	"placement-credit-sync/internal/logger"
	"placement-credit-sync/internal/queue"
	"placement-credit-sync/internal/storage"
	"placement-credit-sync/internal/worker"
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

	log.Info().Str("version", cfg.App.Version).Msg("Starting import worker")

	if !cfg.RedisEnabled() {
		log.Fatal().Msg("Import worker requires redis.host")
	}

	// Initialize database
	database, err := db.NewConnection(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer database.Close()

	if err := db.Migrate(context.Background(), database); err != nil {
		log.Fatal().Err(err).Msg("Failed to migrate database")
	}

	reconciler := credit.NewReconciler(cfg, db.NewCreditStore(database, db.DialectFor(cfg.Database.Driver)))

	// Initialize Redis client
	redisClient, err := queue.NewRedisClient(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer redisClient.Close()

	// Initialize S3 storage
	s3Storage, err := storage.NewS3Storage(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize S3 storage")
	}

	// Create import worker
	importWorker := worker.NewImportWorker(cfg, s3Storage, reconciler, queue.NewConsumer(redisClient, cfg))

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start worker
	go func() {
		if err := importWorker.Start(ctx); err != nil && ctx.Err() == nil {
			log.Fatal().Err(err).Msg("Import worker failed")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down import worker...")

	// Cancel context to stop worker
	cancel()
	importWorker.Stop()

	log.Info().Msg("Import worker exited")
}
