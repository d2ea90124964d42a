package db

import (
	"context"
	"database/sql"
	"fmt"

	"placement-credit-sync/internal/config"

	_ "github.com/go-sql-driver/mysql"
	// Pure Go SQLite driver (no CGO) for embedded deployments and tests.
	_ "modernc.org/sqlite"
)

// Dialect captures the few statements that differ between the supported
// backing stores.
type Dialect struct {
	Name      string
	ForUpdate string
	// KeepHigherScore resolves a score_queue key collision in favor of the
	// larger score, leaving enqueued_at as first written.
	KeepHigherScore string
}

var (
	MySQL = Dialect{
		Name:            "mysql",
		ForUpdate:       " FOR UPDATE",
		KeepHigherScore: " ON DUPLICATE KEY UPDATE test_score = GREATEST(test_score, VALUES(test_score))",
	}
	SQLite = Dialect{
		Name:      "sqlite",
		ForUpdate: "",
		KeepHigherScore: " ON CONFLICT (student_key, test_code, test_date)" +
			" DO UPDATE SET test_score = MAX(test_score, excluded.test_score)",
	}
)

func DialectFor(driver string) Dialect {
	if driver == "sqlite" {
		return SQLite
	}
	return MySQL
}

func NewConnection(cfg *config.Config) (*sql.DB, error) {
	if cfg.Database.Driver == "sqlite" {
		return openSQLite(cfg.Database.Path)
	}

	db, err := sql.Open("mysql", cfg.DatabaseDSN())
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(cfg.Database.MaxConnections)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConnections)
	db.SetConnMaxLifetime(cfg.Database.ConnectionLifetime)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

func openSQLite(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite has a single writer; one connection serializes transactions.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", p, err)
		}
	}

	return db, nil
}

// Migrate creates the ledger and queue tables if they do not exist. The DDL
// is valid for both MySQL and SQLite.
func Migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS placement_credit (
		stu_id        VARCHAR(16) NOT NULL,
		course        VARCHAR(16) NOT NULL,
		exam_placed   CHAR(1)     NOT NULL,
		exam_dt       DATE        NOT NULL,
		dt_cr_refused DATE        NULL,
		serial_nbr    BIGINT      NOT NULL,
		version       VARCHAR(16) NOT NULL,
		exam_source   VARCHAR(16) NOT NULL,
		PRIMARY KEY (stu_id, course)
	)`,
	`CREATE TABLE IF NOT EXISTS score_queue (
		student_key BIGINT   NOT NULL,
		test_code   CHAR(4)  NOT NULL,
		test_date   DATETIME NOT NULL,
		test_score  SMALLINT NOT NULL,
		enqueued_at DATETIME NOT NULL,
		PRIMARY KEY (student_key, test_code, test_date)
	)`,
}
