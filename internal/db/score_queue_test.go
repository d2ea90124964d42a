package db

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"placement-credit-sync/internal/model"
)

func queued(key int64, ch model.TestChannel, score model.ScoreValue, at time.Time) model.ScoreQueueEntry {
	return model.ScoreQueueEntry{StudentKey: key, TestCode: ch, TestDate: at, Score: score}
}

func TestEnqueueIsIdempotentByContent(t *testing.T) {
	ctx := context.Background()
	q := NewScoreQueue(openTestDB(t), SQLite)

	at := time.Date(2025, 3, 4, 10, 30, 0, 250, time.UTC)
	entry := queued(1001, model.ChannelMC17, model.ScorePlaced, at)

	require.NoError(t, q.Enqueue(ctx, entry))
	require.NoError(t, q.Enqueue(ctx, entry))

	same := entry
	same.TestDate = at.In(time.FixedZone("MST", -7*3600))
	require.NoError(t, q.Enqueue(ctx, same))

	entries, err := q.QueryByStudent(ctx, 1001)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, model.ChannelMC17, entries[0].TestCode)
	assert.Equal(t, model.ScorePlaced, entries[0].Score)
	assert.True(t, model.NormalizeTestDate(at).Equal(entries[0].TestDate))
	assert.False(t, entries[0].EnqueuedAt.IsZero())
}

func TestEnqueueKeepsHigherScore(t *testing.T) {
	ctx := context.Background()
	q := NewScoreQueue(openTestDB(t), SQLite)

	at := time.Date(2025, 3, 4, 10, 30, 0, 0, time.UTC)
	first := queued(1001, model.ChannelMC00, model.ScorePlaced, at)
	first.EnqueuedAt = at.Add(time.Minute)

	require.NoError(t, q.Enqueue(ctx, first))
	require.NoError(t, q.Enqueue(ctx, queued(1001, model.ChannelMC00, model.ScoreUnitReview, at)))
	require.NoError(t, q.Enqueue(ctx, queued(1001, model.ChannelMC00, model.ScoreCredit, at)))

	entries, err := q.QueryByStudent(ctx, 1001)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, model.ScoreUnitReview, entries[0].Score)
	assert.True(t, first.EnqueuedAt.Equal(entries[0].EnqueuedAt), "enqueued_at keeps the first write")
}

func TestQueueDelete(t *testing.T) {
	ctx := context.Background()
	q := NewScoreQueue(openTestDB(t), SQLite)

	at := time.Date(2025, 3, 4, 10, 30, 0, 0, time.UTC)
	require.NoError(t, q.Enqueue(ctx, queued(1001, model.ChannelMC00, model.ScoreCredit, at)))
	require.NoError(t, q.Enqueue(ctx, queued(1001, model.ChannelMC17, model.ScorePlaced, at)))

	entries, err := q.QueryByStudent(ctx, 1001)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	require.NoError(t, q.Delete(ctx, entries[0]))
	// Deleting an already delivered entry is not an error.
	require.NoError(t, q.Delete(ctx, entries[0]))

	entries, err = q.QueryByStudent(ctx, 1001)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, model.ChannelMC17, entries[0].TestCode)
}

func TestQueuePendingOrderAndLimit(t *testing.T) {
	ctx := context.Background()
	q := NewScoreQueue(openTestDB(t), SQLite)

	base := time.Date(2025, 3, 4, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		e := queued(int64(2000-i), model.ChannelMC00, model.ScoreCredit, base)
		e.EnqueuedAt = base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, q.Enqueue(ctx, e))
	}

	pending, err := q.Pending(ctx, 3)
	require.NoError(t, err)
	require.Len(t, pending, 3)
	assert.Equal(t, []int64{2000, 1999, 1998}, []int64{pending[0].StudentKey, pending[1].StudentKey, pending[2].StudentKey})

	all, err := q.QueryAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 5)
	assert.Equal(t, int64(1996), all[0].StudentKey)
}
