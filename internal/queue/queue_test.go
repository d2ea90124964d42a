package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"placement-credit-sync/internal/config"
	"placement-credit-sync/internal/model"
	"placement-credit-sync/pkg/errors"
)

type fakeLists struct {
	mu      sync.Mutex
	lists   map[string][]string
	pushErr error
}

func newFakeLists() *fakeLists {
	return &fakeLists{lists: map[string][]string{}}
}

func (f *fakeLists) LPush(_ context.Context, key string, values ...interface{}) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pushErr != nil {
		return redis.NewIntResult(0, f.pushErr)
	}
	for _, v := range values {
		var s string
		switch val := v.(type) {
		case []byte:
			s = string(val)
		case string:
			s = val
		default:
			s = fmt.Sprint(val)
		}
		f.lists[key] = append([]string{s}, f.lists[key]...)
	}
	return redis.NewIntResult(int64(len(f.lists[key])), nil)
}

func (f *fakeLists) BRPop(ctx context.Context, _ time.Duration, keys ...string) *redis.StringSliceCmd {
	f.mu.Lock()
	for _, key := range keys {
		if n := len(f.lists[key]); n > 0 {
			v := f.lists[key][n-1]
			f.lists[key] = f.lists[key][:n-1]
			f.mu.Unlock()
			return redis.NewStringSliceResult([]string{key, v}, nil)
		}
	}
	f.mu.Unlock()

	select {
	case <-ctx.Done():
		return redis.NewStringSliceResult(nil, ctx.Err())
	case <-time.After(5 * time.Millisecond):
		return redis.NewStringSliceResult(nil, redis.Nil)
	}
}

func (f *fakeLists) items(key string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.lists[key]...)
}

func testConfig(t *testing.T) *config.Config {
	return config.Default(filepath.Join(t.TempDir(), "ledger.db"))
}

func TestProducerPushesJobs(t *testing.T) {
	cfg := testConfig(t)
	lists := newFakeLists()
	p := &Producer{client: lists, cfg: cfg}

	require.NoError(t, p.EnqueueImportJob(context.Background(), model.ImportJob{S3Path: "results/2025-09.xlsx"}))
	require.NoError(t, p.EnqueueReplayJob(context.Background(), model.ReplayJob{StudentKey: 812345678}))

	imports := lists.items("credit:import")
	require.Len(t, imports, 1)
	var job model.ImportJob
	require.NoError(t, json.Unmarshal([]byte(imports[0]), &job))
	assert.Equal(t, "results/2025-09.xlsx", job.S3Path)

	assert.Len(t, lists.items("credit:replay"), 1)
}

func TestProducerReportsUnavailableQueue(t *testing.T) {
	lists := newFakeLists()
	lists.pushErr = fmt.Errorf("dial tcp: connection refused")
	p := &Producer{client: lists, cfg: testConfig(t)}

	err := p.EnqueueReplayJob(context.Background(), model.ReplayJob{StudentKey: 1})
	assert.ErrorIs(t, err, errors.ErrQueueUnavailable)
}

func TestConsumerMovesFailedMessagesToDLQ(t *testing.T) {
	cfg := testConfig(t)
	lists := newFakeLists()
	lists.LPush(context.Background(), cfg.Redis.ReplayQueue, `{"student_key":1}`, `{"student_key":2}`)

	c := &Consumer{client: lists, cfg: cfg, timeout: time.Millisecond}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var seen []int64
	done := make(chan error, 1)
	go func() {
		done <- c.ConsumeReplayQueue(ctx, func(_ context.Context, data []byte) error {
			var job model.ReplayJob
			if err := json.Unmarshal(data, &job); err != nil {
				return err
			}
			mu.Lock()
			seen = append(seen, job.StudentKey)
			mu.Unlock()
			if job.StudentKey == 2 {
				cancel()
				return fmt.Errorf("replay failed")
			}
			return nil
		})
	}()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("consumer did not stop")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int64{1, 2}, seen)
	assert.Equal(t, []string{`{"student_key":2}`}, lists.items(cfg.Redis.ReplayQueue+cfg.Redis.DLQSuffix))
}

func TestConsumerBacksOffOnRedisErrors(t *testing.T) {
	cfg := testConfig(t)
	lists := newFakeLists()
	var calls atomic.Int32
	c := &Consumer{
		client:  &erroringPops{fakeLists: lists, calls: &calls},
		cfg:     cfg,
		timeout: time.Millisecond,
		backoff: 20 * time.Millisecond,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 70*time.Millisecond)
	defer cancel()

	err := c.ConsumeReplayQueue(ctx, func(context.Context, []byte) error { return nil })
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.LessOrEqual(t, calls.Load(), int32(5), "failed pops are spaced by the backoff")
}

type erroringPops struct {
	*fakeLists
	calls *atomic.Int32
}

func (e *erroringPops) BRPop(context.Context, time.Duration, ...string) *redis.StringSliceCmd {
	e.calls.Add(1)
	return redis.NewStringSliceResult(nil, fmt.Errorf("connection reset by peer"))
}
