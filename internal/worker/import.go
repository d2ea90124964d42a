package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"placement-credit-sync/internal/config"
	"placement-credit-sync/internal/excel"
	"placement-credit-sync/internal/logger"
	"placement-credit-sync/internal/model"
	"placement-credit-sync/internal/queue"
	"placement-credit-sync/internal/storage"

	"github.com/rs/zerolog"
)

// ResultApplier merges one exam result into the credit ledger.
type ResultApplier interface {
	ApplyResult(ctx context.Context, rec model.CreditRecord) error
}

// ImportJobSource delivers bulk import requests.
type ImportJobSource interface {
	ConsumeImportQueue(ctx context.Context, handler queue.MessageHandler) error
}

// ImportWorker loads results spreadsheets from storage and applies every row
// to the ledger.
type ImportWorker struct {
	cfg        *config.Config
	storage    storage.Storage
	applier    ResultApplier
	jobs       ImportJobSource
	workerPool *WorkerPool
	log        zerolog.Logger
}

func NewImportWorker(
	cfg *config.Config,
	storage storage.Storage,
	applier ResultApplier,
	jobs ImportJobSource,
) *ImportWorker {
	return &ImportWorker{
		cfg:        cfg,
		storage:    storage,
		applier:    applier,
		jobs:       jobs,
		workerPool: NewWorkerPool(cfg.Workers.Import.Count),
		log:        logger.Get(),
	}
}

func (w *ImportWorker) Start(ctx context.Context) error {
	w.log.Info().Msg("Starting import worker")

	// Start worker pool
	w.workerPool.Start(ctx)

	// One consumer per pool worker; failed jobs land in the DLQ
	if err := w.workerPool.Saturate(ctx, "import_consumer", func(ctx context.Context) error {
		return w.jobs.ConsumeImportQueue(ctx, w.handleMessage)
	}); err != nil {
		return err
	}

	<-ctx.Done()
	return ctx.Err()
}

func (w *ImportWorker) Stop() {
	w.log.Info().Msg("Stopping import worker")
	w.workerPool.Stop()
}

func (w *ImportWorker) handleMessage(ctx context.Context, data []byte) error {
	var job model.ImportJob
	if err := json.Unmarshal(data, &job); err != nil {
		w.log.Error().Err(err).Msg("Failed to unmarshal import job")
		return err
	}

	w.log.Info().Str("s3_path", job.S3Path).Str("requested_by", job.RequestedBy).Msg("Processing import job")

	_, err := w.processFile(ctx, job)
	return err
}

// processFile returns how many rows were applied.
func (w *ImportWorker) processFile(ctx context.Context, job model.ImportJob) (int, error) {
	log := w.log.With().Str("s3_path", job.S3Path).Logger()

	strategy, err := excel.StrategyFor(job.S3Path)
	if err != nil {
		log.Error().Err(err).Msg("Unsupported results file")
		return 0, err
	}

	log.Debug().Msg("Downloading results file")
	reader, err := w.storage.Download(ctx, job.S3Path)
	if err != nil {
		log.Error().Err(err).Msg("Failed to download file")
		return 0, fmt.Errorf("failed to download %s: %w", job.S3Path, err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		log.Error().Err(err).Msg("Failed to read file data")
		return 0, err
	}

	records, err := excel.Load(ctx, strategy, data)
	if err != nil {
		log.Error().Err(err).Msg("Failed to load results file")
		return 0, err
	}

	for i, rec := range records {
		if err := w.applier.ApplyResult(ctx, rec); err != nil {
			log.Error().Err(err).Int("applied", i).Msg("Failed to apply result")
			return i, err
		}
	}

	log.Info().Int("record_count", len(records)).Msg("Results file imported successfully")
	return len(records), nil
}
