package worker

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	gosync "sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/goleak"

	"placement-credit-sync/internal/config"
	"placement-credit-sync/internal/model"
	"placement-credit-sync/internal/queue"
	"placement-credit-sync/internal/storage"
	"placement-credit-sync/internal/sync"
	"placement-credit-sync/pkg/errors"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default(filepath.Join(t.TempDir(), "ledger.db"))
	cfg.Workers.Replay.Interval = 5 * time.Millisecond
	cfg.Workers.Replay.BatchSize = 10
	return cfg
}

type fakeReplayer struct {
	mu       gosync.Mutex
	passes   []sync.ReplayStats
	calls    int
	students []int64
}

func (f *fakeReplayer) ReplayPending(_ context.Context, limit int) (sync.ReplayStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if len(f.passes) == 0 {
		return sync.ReplayStats{}, nil
	}
	next := f.passes[0]
	f.passes = f.passes[1:]
	return next, nil
}

func (f *fakeReplayer) ReplayStudent(_ context.Context, key int64) (sync.ReplayStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.students = append(f.students, key)
	return sync.ReplayStats{Attempted: 1, Delivered: 1}, nil
}

func (f *fakeReplayer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestDrainStopsWhenNothingMoves(t *testing.T) {
	cfg := testConfig(t)
	replayer := &fakeReplayer{passes: []sync.ReplayStats{
		{Attempted: 10, Delivered: 10},
		{Attempted: 10, Delivered: 4, Failed: 6},
		{Attempted: 10, Failed: 10},
		{Attempted: 3, Delivered: 3},
	}}
	w := NewReplayWorker(cfg, replayer, nil)

	w.drain(context.Background())
	assert.Equal(t, 3, replayer.callCount())
}

func TestDrainStopsWhenBreakerOpens(t *testing.T) {
	replayer := &fakeReplayer{passes: []sync.ReplayStats{
		{Attempted: 10, Delivered: 10},
		{Attempted: 2, Delivered: 1, Failed: 1, Halted: true},
		{Attempted: 10, Delivered: 10},
	}}
	w := NewReplayWorker(testConfig(t), replayer, nil)

	w.drain(context.Background())
	assert.Equal(t, 2, replayer.callCount())
}

func TestReplayWorkerRunsOnInterval(t *testing.T) {
	cfg := testConfig(t)
	cfg.Workers.Replay.RunOnStart = true
	replayer := &fakeReplayer{}
	w := NewReplayWorker(cfg, replayer, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Start(ctx) }()

	require.Eventually(t, func() bool { return replayer.callCount() >= 3 }, 2*time.Second, time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
	w.Stop()
}

type fakeReplayJobs struct {
	messages [][]byte
	handled  chan error
}

func (f *fakeReplayJobs) ConsumeReplayQueue(ctx context.Context, handler queue.MessageHandler) error {
	for _, m := range f.messages {
		f.handled <- handler(ctx, m)
	}
	<-ctx.Done()
	return ctx.Err()
}

func TestReplayWorkerServesReplayJobs(t *testing.T) {
	cfg := testConfig(t)
	cfg.Workers.Replay.Interval = time.Hour
	replayer := &fakeReplayer{}
	jobs := &fakeReplayJobs{
		messages: [][]byte{[]byte(`{"student_key":812345678,"request_id":"r-1"}`), []byte(`not json`)},
		handled:  make(chan error, 2),
	}
	w := NewReplayWorker(cfg, replayer, jobs)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Start(ctx) }()

	assert.NoError(t, <-jobs.handled)
	assert.Error(t, <-jobs.handled, "malformed jobs fail so they reach the DLQ")

	cancel()
	<-done
	w.Stop()

	replayer.mu.Lock()
	defer replayer.mu.Unlock()
	assert.Equal(t, []int64{812345678}, replayer.students)
}

type recordingApplier struct {
	mu      gosync.Mutex
	applied []model.CreditRecord
	failAt  int
}

func (r *recordingApplier) ApplyResult(_ context.Context, rec model.CreditRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failAt > 0 && len(r.applied)+1 == r.failAt {
		return fmt.Errorf("database is locked")
	}
	r.applied = append(r.applied, rec)
	return nil
}

func resultsWorkbook(t *testing.T, store storage.Storage, key string) {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	rows := [][]interface{}{
		{"student_id", "course", "outcome", "exam_date", "serial_nbr", "version", "exam_source"},
		{"823456789", "M 117", "P", "2025-09-01", "1001", "V2", "PLCMT"},
		{"823456789", "M 118", "C", "2025-09-01", "1001", "V2", "PLCMT"},
		{"823456790", "M 100C", "C", "2025-09-02", "1002", "V2", "PLCMT"},
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow("Sheet1", cell, &row))
	}

	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))
	require.NoError(t, store.Upload(context.Background(), key, &buf))
}

func TestImportAppliesEveryRow(t *testing.T) {
	store := storage.NewLocalStorage(t.TempDir())
	resultsWorkbook(t, store, "results/fall.xlsx")

	applier := &recordingApplier{}
	w := NewImportWorker(testConfig(t), store, applier, nil)

	n, err := w.processFile(context.Background(), model.ImportJob{S3Path: "results/fall.xlsx"})
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	require.Len(t, applier.applied, 3)
	assert.Equal(t, model.CourseM100C, applier.applied[2].CourseID)
}

func TestImportStopsOnApplyFailure(t *testing.T) {
	store := storage.NewLocalStorage(t.TempDir())
	resultsWorkbook(t, store, "results/fall.xlsx")

	applier := &recordingApplier{failAt: 2}
	w := NewImportWorker(testConfig(t), store, applier, nil)

	err := w.handleMessage(context.Background(), []byte(`{"s3_path":"results/fall.xlsx"}`))
	require.Error(t, err)
	assert.Len(t, applier.applied, 1)
}

func TestImportMissingFile(t *testing.T) {
	w := NewImportWorker(testConfig(t), storage.NewLocalStorage(t.TempDir()), &recordingApplier{}, nil)

	err := w.handleMessage(context.Background(), []byte(`{"s3_path":"missing.xlsx"}`))
	assert.ErrorIs(t, err, errors.ErrObjectNotFound)
}

func TestWorkerPoolRunsJobs(t *testing.T) {
	pool := NewWorkerPool(3)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool.Start(ctx)

	var ran atomic.Int32
	for i := 0; i < 10; i++ {
		require.NoError(t, pool.Submit(ctx, "count", func(context.Context) error {
			ran.Add(1)
			return nil
		}))
	}

	require.Eventually(t, func() bool { return ran.Load() == 10 }, time.Second, time.Millisecond)
	pool.Stop()
}

func TestWorkerPoolSubmitRespectsCancellation(t *testing.T) {
	pool := NewWorkerPool(1)

	// Not started: two jobs fill the buffer.
	for i := 0; i < 2; i++ {
		require.NoError(t, pool.Submit(context.Background(), "noop", func(context.Context) error { return nil }))
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := pool.Submit(ctx, "noop", func(context.Context) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}
