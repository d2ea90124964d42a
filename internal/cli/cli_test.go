package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"placement-credit-sync/internal/breaker"
	"placement-credit-sync/internal/config"
	"placement-credit-sync/internal/credit"
	"placement-credit-sync/internal/db"
	"placement-credit-sync/internal/model"
	"placement-credit-sync/internal/sync"
	"placement-credit-sync/pkg/errors"
)

type stubRecords struct {
	inserted  []model.ExternalScore
	insertErr error
}

func (s *stubRecords) InsertScore(_ context.Context, score model.ExternalScore) error {
	if s.insertErr != nil {
		return s.insertErr
	}
	s.inserted = append(s.inserted, score)
	return nil
}

func (s *stubRecords) QueryScores(context.Context, int64) ([]model.ExternalScore, error) {
	return nil, nil
}

type fixture struct {
	backend    *Backend
	records    *stubRecords
	breaker    *breaker.TimedBreaker
	reconciler *credit.Reconciler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := config.Default(filepath.Join(t.TempDir(), "ledger.db"))

	conn, err := db.NewConnection(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, db.Migrate(context.Background(), conn))

	records := &stubRecords{}
	br := breaker.New(cfg.Breaker.Cooldown)
	queue := db.NewScoreQueue(conn, db.SQLite)
	reconciler := credit.NewReconciler(cfg, db.NewCreditStore(conn, db.SQLite))

	return &fixture{
		backend: &Backend{
			Config:  cfg,
			Queue:   queue,
			Credits: reconciler,
			Sync:    sync.NewService(cfg, sync.NewGateway(cfg, records, br), queue, br),
		},
		records:    records,
		breaker:    br,
		reconciler: reconciler,
	}
}

func (f *fixture) opener(context.Context, string) (*Backend, error) {
	return f.backend, nil
}

func (f *fixture) run(t *testing.T, args ...string) string {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewRootCommand(f.opener)
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	require.NoError(t, cmd.Execute())
	return buf.String()
}

func (f *fixture) seedQueue(t *testing.T) {
	t.Helper()
	at := time.Date(2025, 9, 1, 10, 30, 0, 0, time.UTC)
	later := time.Date(2025, 9, 2, 8, 0, 0, 0, time.UTC)
	for _, e := range []model.ScoreQueueEntry{
		{StudentKey: 812345678, TestCode: model.ChannelMC17, TestDate: at, Score: model.ScorePlaced, EnqueuedAt: at.Add(time.Minute)},
		{StudentKey: 812345678, TestCode: model.ChannelMC00, TestDate: at, Score: model.ScoreCredit, EnqueuedAt: at.Add(time.Minute)},
		{StudentKey: 823456789, TestCode: model.ChannelMC24, TestDate: later, Score: model.ScoreNone, EnqueuedAt: later.Add(time.Minute)},
	} {
		require.NoError(t, f.backend.Queue.Enqueue(context.Background(), e))
	}
}

func TestQueueListGolden(t *testing.T) {
	f := newFixture(t)
	f.seedQueue(t)

	out := f.run(t, "queue", "list")

	g := goldie.New(t, goldie.WithFixtureDir("testdata"), goldie.WithNameSuffix(".golden"))
	g.Assert(t, "queue_list", []byte(out))
}

func TestQueueListEmpty(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, "No queued entries.\n", f.run(t, "queue", "list"))
}

func TestQueueListForStudentJSON(t *testing.T) {
	f := newFixture(t)
	f.seedQueue(t)

	out := f.run(t, "queue", "list", "--student", "823456789", "--format", "json")

	var resp struct {
		Status string              `json:"status"`
		Data   model.QueueResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, int64(823456789), resp.Data.StudentKey)
	require.Equal(t, 1, resp.Data.Count)
	assert.Equal(t, model.ChannelMC24, resp.Data.Entries[0].TestCode)
}

func TestQueueReplay(t *testing.T) {
	f := newFixture(t)
	f.seedQueue(t)

	out := f.run(t, "queue", "replay", "--student", "812345678")
	assert.Equal(t, "Delivered 2 of 2 queued entries (0 failed)\n", out)
	assert.Len(t, f.records.inserted, 2)

	entries, err := f.backend.Queue.QueryAll(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, int64(823456789), entries[0].StudentKey)
}

func TestQueueReplayHaltsWhileBreakerOpen(t *testing.T) {
	f := newFixture(t)
	f.seedQueue(t)
	f.breaker.Open()

	out := f.run(t, "queue", "replay")
	assert.Contains(t, out, "Replay halted")
	assert.Empty(t, f.records.inserted)
}

func TestQueueReplayReportsRejectedEntries(t *testing.T) {
	f := newFixture(t)
	f.seedQueue(t)
	f.records.insertErr = fmt.Errorf("%w: HTTP 422 unknown student", errors.ErrScoreRejected)

	out := f.run(t, "queue", "replay", "--student", "823456789")
	assert.Equal(t, "Delivered 0 of 1 queued entry (1 failed)\n1 rejected by the records system and left queued\n", out)
	assert.False(t, f.breaker.IsOpen())
}

func TestCreditsShowGolden(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	examDate := time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, f.reconciler.ApplyResult(ctx, model.CreditRecord{
		StudentID: "823456789", CourseID: model.CourseM118, Outcome: model.OutcomeCredit,
		ExamDate: examDate, SerialNumber: 1001, ExamVersion: "V2", ExamSource: "PLCMT",
	}))
	require.NoError(t, f.reconciler.ApplyResult(ctx, model.CreditRecord{
		StudentID: "823456789", CourseID: model.CourseM117, Outcome: model.OutcomePlaced,
		ExamDate: examDate, SerialNumber: 1001, ExamVersion: "V2", ExamSource: "PLCMT",
	}))

	out := f.run(t, "credits", "show", "823456789")

	g := goldie.New(t, goldie.WithFixtureDir("testdata"), goldie.WithNameSuffix(".golden"))
	g.Assert(t, "credits_show", []byte(out))
}

func TestCreditsShowUnknownStudent(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, "No credits recorded for 823456789.\n", f.run(t, "credits", "show", "823456789"))
}

func TestReportToFile(t *testing.T) {
	f := newFixture(t)
	f.seedQueue(t)
	path := filepath.Join(t.TempDir(), "queue.xlsx")

	out := f.run(t, "report", "--out", path)
	assert.Contains(t, out, "3 queued entries")

	wb, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer wb.Close()

	rows, err := wb.GetRows("Queue")
	require.NoError(t, err)
	assert.Len(t, rows, 4)
}

func TestReportRequiresDestination(t *testing.T) {
	f := newFixture(t)
	cmd := NewRootCommand(f.opener)
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"report"})
	assert.Error(t, cmd.Execute())
}

func TestReportToS3WithoutBucket(t *testing.T) {
	f := newFixture(t)
	cmd := NewRootCommand(f.opener)
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"report", "--s3-key", "reports/queue.xlsx"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "storage.s3.bucket")
}

func TestInvalidFormat(t *testing.T) {
	f := newFixture(t)
	cmd := NewRootCommand(f.opener)
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"queue", "list", "--format", "yaml"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}
