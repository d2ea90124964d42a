package worker

import (
	"context"
	"encoding/json"
	"time"

	"placement-credit-sync/internal/config"
	"placement-credit-sync/internal/logger"
	"placement-credit-sync/internal/model"
	"placement-credit-sync/internal/queue"
	"placement-credit-sync/internal/sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Replayer drains the durable score queue.
type Replayer interface {
	ReplayPending(ctx context.Context, limit int) (sync.ReplayStats, error)
	ReplayStudent(ctx context.Context, studentKey int64) (sync.ReplayStats, error)
}

// ReplayJobSource delivers on-demand replay requests.
type ReplayJobSource interface {
	ConsumeReplayQueue(ctx context.Context, handler queue.MessageHandler) error
}

// ReplayWorker periodically resubmits queued scores and serves replay
// requests for single students.
type ReplayWorker struct {
	cfg        *config.Config
	replayer   Replayer
	jobs       ReplayJobSource
	workerPool *WorkerPool
	log        zerolog.Logger
}

// NewReplayWorker builds the worker. jobs may be nil when Redis is not
// configured; only the periodic drain runs then.
func NewReplayWorker(cfg *config.Config, replayer Replayer, jobs ReplayJobSource) *ReplayWorker {
	return &ReplayWorker{
		cfg:        cfg,
		replayer:   replayer,
		jobs:       jobs,
		workerPool: NewWorkerPool(cfg.Workers.Replay.Count),
		log:        logger.Get(),
	}
}

func (w *ReplayWorker) Start(ctx context.Context) error {
	w.log.Info().
		Dur("interval", w.cfg.Workers.Replay.Interval).
		Int("batch_size", w.cfg.Workers.Replay.BatchSize).
		Msg("Starting replay worker")

	w.workerPool.Start(ctx)

	if w.jobs != nil {
		if err := w.workerPool.Saturate(ctx, "replay_consumer", func(ctx context.Context) error {
			return w.jobs.ConsumeReplayQueue(ctx, w.handleMessage)
		}); err != nil {
			return err
		}
	}

	if w.cfg.Workers.Replay.RunOnStart {
		w.log.Info().Msg("Running initial replay on startup")
		w.drain(ctx)
	}

	timer := time.NewTimer(w.cfg.Workers.Replay.Interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Replay worker context cancelled")
			return ctx.Err()
		case <-timer.C:
			w.drain(ctx)
			timer.Reset(w.cfg.Workers.Replay.Interval)
		}
	}
}

func (w *ReplayWorker) Stop() {
	w.log.Info().Msg("Stopping replay worker")
	w.workerPool.Stop()
}

// drain replays batches until the queue is empty, nothing more can be
// delivered, or the breaker opens.
func (w *ReplayWorker) drain(ctx context.Context) {
	batch := w.cfg.Workers.Replay.BatchSize
	log := w.log.With().Str("run_id", uuid.NewString()).Logger()
	startTime := time.Now()
	var total sync.ReplayStats

	for ctx.Err() == nil {
		stats, err := w.replayer.ReplayPending(ctx, batch)
		total.Attempted += stats.Attempted
		total.Delivered += stats.Delivered
		total.Failed += stats.Failed
		total.Rejected += stats.Rejected
		total.Halted = stats.Halted
		if err != nil {
			log.Error().Err(err).Msg("Replay pass failed")
			break
		}
		if stats.Halted || stats.Attempted < batch || stats.Delivered == 0 {
			break
		}
	}

	log.Info().
		Dur("duration", time.Since(startTime)).
		Int("attempted", total.Attempted).
		Int("delivered", total.Delivered).
		Int("failed", total.Failed).
		Int("rejected", total.Rejected).
		Bool("halted", total.Halted).
		Msg("Score queue drain completed")
}

func (w *ReplayWorker) handleMessage(ctx context.Context, data []byte) error {
	var job model.ReplayJob
	if err := json.Unmarshal(data, &job); err != nil {
		w.log.Error().Err(err).Msg("Failed to unmarshal replay job")
		return err
	}

	log := w.log.With().Int64("student_key", job.StudentKey).Str("request_id", job.RequestID).Logger()
	log.Info().Msg("Processing replay job")

	stats, err := w.replayer.ReplayStudent(ctx, job.StudentKey)
	if err != nil {
		log.Error().Err(err).Msg("Replay job failed")
		return err
	}

	log.Info().
		Int("delivered", stats.Delivered).
		Int("failed", stats.Failed).
		Int("rejected", stats.Rejected).
		Bool("halted", stats.Halted).
		Msg("Replay job completed")
	return nil
}
