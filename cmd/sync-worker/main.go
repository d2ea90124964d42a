package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"placement-credit-sync/internal/breaker"
	"placement-credit-sync/internal/config"
	"placement-credit-sync/internal/db"
	"placement-credit-sync/internal/logger"
	"placement-credit-sync/internal/queue"
	"placement-credit-sync/internal/sync"
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

	audit, err := logger.InitAudit(cfg.Logging.AuditPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open audit log")
	}
	defer audit.Close()

	log.Info().Str("version", cfg.App.Version).Msg("Starting sync worker")

	// Initialize database
	database, err := db.NewConnection(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer database.Close()

	if err := db.Migrate(context.Background(), database); err != nil {
		log.Fatal().Err(err).Msg("Failed to migrate database")
	}

	scoreQueue := db.NewScoreQueue(database, db.DialectFor(cfg.Database.Driver))

	br := breaker.New(cfg.Breaker.Cooldown, breaker.WithStateChangeCallback(breaker.AuditTransition))
	gateway := sync.NewGateway(cfg, sync.NewClient(cfg), br)
	syncService := sync.NewService(cfg, gateway, scoreQueue, br)

	// Replay requests arrive over Redis when it is configured; the periodic
	// drain runs either way.
	var jobs worker.ReplayJobSource
	if cfg.RedisEnabled() {
		redisClient, err := queue.NewRedisClient(cfg)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
		defer redisClient.Close()
		jobs = queue.NewConsumer(redisClient, cfg)
	}

	// Create replay worker
	replayWorker := worker.NewReplayWorker(cfg, syncService, jobs)

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start worker
	go func() {
		if err := replayWorker.Start(ctx); err != nil && ctx.Err() == nil {
			log.Fatal().Err(err).Msg("Sync worker failed")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down sync worker...")

	// Cancel context to stop worker
	cancel()
	replayWorker.Stop()

	log.Info().Msg("Sync worker exited")
}
