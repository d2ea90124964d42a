package db

import (
	"context"
	"database/sql"
	"time"

	"placement-credit-sync/internal/model"
	"placement-credit-sync/pkg/errors"
)

// ScoreQueue is the durable store of scores awaiting delivery to the records
// system. Entries are keyed by (student_key, test_code, test_date), so queuing
// the same score twice leaves a single row; a collision keeps the higher score.
type ScoreQueue interface {
	Enqueue(ctx context.Context, entry model.ScoreQueueEntry) error
	QueryAll(ctx context.Context) ([]model.ScoreQueueEntry, error)
	QueryByStudent(ctx context.Context, studentKey int64) ([]model.ScoreQueueEntry, error)
	// Pending returns up to limit entries, oldest first.
	Pending(ctx context.Context, limit int) ([]model.ScoreQueueEntry, error)
	Delete(ctx context.Context, entry model.ScoreQueueEntry) error
}

type scoreQueue struct {
	db      *sql.DB
	dialect Dialect
	now     func() time.Time
}

func NewScoreQueue(db *sql.DB, dialect Dialect) ScoreQueue {
	return &scoreQueue{db: db, dialect: dialect, now: time.Now}
}

const queueColumns = `student_key, test_code, test_date, test_score, enqueued_at`

func (q *scoreQueue) Enqueue(ctx context.Context, entry model.ScoreQueueEntry) error {
	enqueuedAt := entry.EnqueuedAt
	if enqueuedAt.IsZero() {
		enqueuedAt = q.now()
	}

	query := `INSERT INTO score_queue (` + queueColumns + `) VALUES (?, ?, ?, ?, ?)` + q.dialect.KeepHigherScore

	_, err := q.db.ExecContext(ctx, query, entry.StudentKey, string(entry.TestCode),
		model.NormalizeTestDate(entry.TestDate), int(entry.Score), model.NormalizeTestDate(enqueuedAt))
	return errors.NewStoreError("enqueue score", err)
}

func (q *scoreQueue) QueryAll(ctx context.Context) ([]model.ScoreQueueEntry, error) {
	query := `SELECT ` + queueColumns + ` FROM score_queue ORDER BY student_key, test_code, test_date`
	return q.query(ctx, "query queue", query)
}

func (q *scoreQueue) QueryByStudent(ctx context.Context, studentKey int64) ([]model.ScoreQueueEntry, error) {
	query := `SELECT ` + queueColumns + ` FROM score_queue WHERE student_key = ? ORDER BY test_code, test_date`
	return q.query(ctx, "query queue by student", query, studentKey)
}

func (q *scoreQueue) Pending(ctx context.Context, limit int) ([]model.ScoreQueueEntry, error) {
	query := `SELECT ` + queueColumns + ` FROM score_queue ORDER BY enqueued_at, student_key, test_code LIMIT ?`
	return q.query(ctx, "query pending scores", query, limit)
}

func (q *scoreQueue) Delete(ctx context.Context, entry model.ScoreQueueEntry) error {
	query := `DELETE FROM score_queue WHERE student_key = ? AND test_code = ? AND test_date = ?`

	_, err := q.db.ExecContext(ctx, query, entry.StudentKey, string(entry.TestCode), model.NormalizeTestDate(entry.TestDate))
	return errors.NewStoreError("delete queued score", err)
}

func (q *scoreQueue) query(ctx context.Context, op, query string, args ...interface{}) ([]model.ScoreQueueEntry, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.NewStoreError(op, err)
	}
	defer rows.Close()

	entries := []model.ScoreQueueEntry{}
	for rows.Next() {
		var (
			e        model.ScoreQueueEntry
			testCode string
			score    int
		)
		if err := rows.Scan(&e.StudentKey, &testCode, &e.TestDate, &score, &e.EnqueuedAt); err != nil {
			return nil, errors.NewStoreError(op, err)
		}
		e.TestCode = model.TestChannel(testCode)
		e.Score = model.ScoreValue(score)
		e.TestDate = e.TestDate.UTC()
		e.EnqueuedAt = e.EnqueuedAt.UTC()
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewStoreError(op, err)
	}

	return entries, nil
}
