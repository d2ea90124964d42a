package cli

import (
	"context"
	"fmt"
	"io"

	"placement-credit-sync/internal/breaker"
	"placement-credit-sync/internal/config"
	"placement-credit-sync/internal/credit"
	"placement-credit-sync/internal/db"
	"placement-credit-sync/internal/logger"
	"placement-credit-sync/internal/model"
	"placement-credit-sync/internal/storage"
	"placement-credit-sync/internal/sync"
)

// CreditReader reads a student's ledger rows.
type CreditReader interface {
	CreditsForStudent(ctx context.Context, studentID string) ([]model.CreditRecord, error)
}

// Backend is everything a command may touch. Storage is nil when no S3
// bucket is configured.
type Backend struct {
	Config  *config.Config
	Queue   db.ScoreQueue
	Credits CreditReader
	Sync    *sync.Service
	Storage storage.Storage

	closers []io.Closer
}

func (b *Backend) Close() error {
	var first error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i].Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Opener builds a Backend from a config file path.
type Opener func(ctx context.Context, configPath string) (*Backend, error)

// OpenBackend loads the config and connects to the ledger database. The CLI
// runs with its own breaker: an outage seen by a replay stops that replay only.
func OpenBackend(ctx context.Context, configPath string) (*Backend, error) {
	cfg, err := config.LoadFile(configPath)
	if err != nil {
		return nil, err
	}

	logger.Init(cfg.Logging.Level, cfg.Logging.Format)

	backend := &Backend{Config: cfg}
	if cfg.Logging.AuditPath != "" {
		audit, err := logger.InitAudit(cfg.Logging.AuditPath)
		if err != nil {
			return nil, err
		}
		backend.closers = append(backend.closers, audit)
	}

	conn, err := db.NewConnection(cfg)
	if err != nil {
		backend.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	backend.closers = append(backend.closers, conn)

	if err := db.Migrate(ctx, conn); err != nil {
		backend.Close()
		return nil, err
	}

	dialect := db.DialectFor(cfg.Database.Driver)
	queue := db.NewScoreQueue(conn, dialect)
	br := breaker.New(cfg.Breaker.Cooldown, breaker.WithStateChangeCallback(breaker.AuditTransition))
	gateway := sync.NewGateway(cfg, sync.NewClient(cfg), br)

	backend.Queue = queue
	backend.Credits = credit.NewReconciler(cfg, db.NewCreditStore(conn, dialect))
	backend.Sync = sync.NewService(cfg, gateway, queue, br)

	if cfg.Storage.S3.Bucket != "" {
		s3, err := storage.NewS3Storage(cfg)
		if err != nil {
			backend.Close()
			return nil, fmt.Errorf("failed to initialize S3 storage: %w", err)
		}
		backend.Storage = s3
	}

	return backend, nil
}
