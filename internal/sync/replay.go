package sync

import (
	"context"

	"placement-credit-sync/internal/logger"
	"placement-credit-sync/internal/model"
	"placement-credit-sync/pkg/errors"
)

// ReplayStats summarizes one drain pass over the score queue. Rejected is the
// part of Failed the records system refused outright; those entries stay
// queued for an operator.
type ReplayStats struct {
	Attempted int  `json:"attempted"`
	Delivered int  `json:"delivered"`
	Failed    int  `json:"failed"`
	Rejected  int  `json:"rejected"`
	Halted    bool `json:"halted"`
}

// ReplayPending drains up to limit of the oldest queued scores.
func (s *Service) ReplayPending(ctx context.Context, limit int) (ReplayStats, error) {
	entries, err := s.queue.Pending(ctx, limit)
	if err != nil {
		return ReplayStats{}, err
	}
	return s.ReplayQueued(ctx, entries)
}

// ReplayStudent drains every queued score for one student.
func (s *Service) ReplayStudent(ctx context.Context, studentKey int64) (ReplayStats, error) {
	entries, err := s.queue.QueryByStudent(ctx, studentKey)
	if err != nil {
		return ReplayStats{}, err
	}
	return s.ReplayQueued(ctx, entries)
}

// ReplayQueued resubmits entries and removes each one only after the records
// system confirms it. The pass halts as soon as the breaker opens.
func (s *Service) ReplayQueued(ctx context.Context, entries []model.ScoreQueueEntry) (ReplayStats, error) {
	var stats ReplayStats

	for _, entry := range entries {
		if ctx.Err() != nil {
			stats.Halted = true
			return stats, ctx.Err()
		}
		if s.breaker.IsOpen() {
			stats.Halted = true
			break
		}

		stats.Attempted++
		err := s.gateway.TrySubmit(ctx, entry.StudentKey, entry.TestCode, entry.TestDate, entry.Score)
		malformed := errors.Is(err, errors.ErrUnmappedCourse) || errors.Is(err, errors.ErrInvalidScoreValue)
		switch {
		case err == nil:
			stats.Delivered++
		case malformed:
			s.log.Error().Err(err).
				Int64("student_key", entry.StudentKey).
				Str("test_code", string(entry.TestCode)).
				Msg("Dropping undeliverable queued score")
		case errors.Is(err, errors.ErrScoreRejected):
			stats.Failed++
			stats.Rejected++
			s.log.Warn().Err(err).
				Int64("student_key", entry.StudentKey).
				Str("test_code", string(entry.TestCode)).
				Time("test_date", entry.TestDate).
				Int("score", int(entry.Score)).
				Time("enqueued_at", entry.EnqueuedAt).
				Msg("Records system rejected queued score, leaving it queued")
			audit := logger.Audit()
			audit.Log().
				Str("event", "replay_rejected").
				Int64("student_key", entry.StudentKey).
				Str("test_code", string(entry.TestCode)).
				Time("test_date", entry.TestDate).
				Int("score", int(entry.Score)).
				Str("reason", err.Error()).
				Send()
			continue
		default:
			stats.Failed++
			s.log.Debug().Err(err).
				Int64("student_key", entry.StudentKey).
				Str("test_code", string(entry.TestCode)).
				Msg("Queued score still undeliverable")
			continue
		}

		if err := s.queue.Delete(ctx, entry); err != nil {
			return stats, err
		}
	}

	s.log.Info().
		Int("attempted", stats.Attempted).
		Int("delivered", stats.Delivered).
		Int("failed", stats.Failed).
		Int("rejected", stats.Rejected).
		Bool("halted", stats.Halted).
		Msg("Score queue replay pass finished")

	return stats, nil
}
