// Package sync propagates placement and credit scores to the external records
// system. Every flow degrades to the durable score queue when the records
// system cannot take the write, so callers only ever see local store failures.
package sync

import (
	"context"
	"fmt"
	"time"

	"placement-credit-sync/internal/breaker"
	"placement-credit-sync/internal/config"
	"placement-credit-sync/internal/db"
	"placement-credit-sync/internal/logger"
	"placement-credit-sync/internal/model"
	"placement-credit-sync/pkg/errors"

	"github.com/rs/zerolog"
)

type Service struct {
	cfg     *config.Config
	gateway *Gateway
	queue   db.ScoreQueue
	breaker breaker.Breaker
	now     func() time.Time
	log     zerolog.Logger
}

func NewService(cfg *config.Config, gateway *Gateway, queue db.ScoreQueue, br breaker.Breaker) *Service {
	return &Service{
		cfg:     cfg,
		gateway: gateway,
		queue:   queue,
		breaker: br,
		now:     time.Now,
		log:     logger.Get(),
	}
}

func (s *Service) Gateway() *Gateway {
	return s.gateway
}

// SubmitChallengeCredit records a passed challenge exam for one of the
// precalculus courses.
func (s *Service) SubmitChallengeCredit(ctx context.Context, studentKey int64, courseID string, finishedAt time.Time) error {
	ch, err := precalcChannel(courseID)
	if err != nil {
		s.log.Warn().Int64("student_key", studentKey).Str("course", courseID).
			Msg("Unrecognized challenge exam course")
		return err
	}

	// Credit is the top score, so nothing on record can make this redundant.
	return s.submitOrQueue(ctx, studentKey, ch, finishedAt, model.ScoreCredit)
}

// SubmitPlacementResults records one placement tool run. Every channel is
// written, merged with what is already on record. When the records system
// cannot say what it holds, all six channels go straight to the queue.
func (s *Service) SubmitPlacementResults(ctx context.Context, studentKey int64, courses []string, finishedAt time.Time) error {
	log := s.log.With().Int64("student_key", studentKey).Logger()

	var vector ScoreVector
	for _, courseID := range courses {
		ch, ok := ChannelForCourse(courseID)
		if !ok {
			log.Error().Str("course", courseID).Msg("Placement course has no test code, skipping")
			continue
		}
		if ch == model.ChannelMC00 {
			vector.Set(ch, model.ScoreCredit)
		} else {
			vector.Set(ch, model.ScorePlaced)
		}
	}

	existing, known := s.gateway.QueryExisting(ctx, studentKey)
	if known {
		vector = vector.Merge(existing)
	} else {
		log.Warn().Msg("Existing scores unknown, queuing placement scores unmerged")
	}

	var firstErr error
	for i, ch := range model.Channels {
		var err error
		if known {
			err = s.submitOrQueue(ctx, studentKey, ch, finishedAt, vector[i])
		} else {
			err = s.queueScore(ctx, studentKey, ch, finishedAt, vector[i], errors.ErrExistingUnknown)
		}
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	return firstErr
}

// SubmitTutorialResult records completion of a single-course precalculus
// tutorial. It is skipped when the channel already has any score.
func (s *Service) SubmitTutorialResult(ctx context.Context, studentKey int64, courseID string, finishedAt time.Time) error {
	ch, err := precalcChannel(courseID)
	if err != nil {
		s.log.Warn().Int64("student_key", studentKey).Str("course", courseID).
			Msg("Unrecognized tutorial course")
		return err
	}

	return s.submitSingle(ctx, "precalc_tutorial", studentKey, ch, finishedAt, model.ScorePlaced, anyNonzeroDominates)
}

// SubmitELMResult records completion of the umbrella-course tutorial.
func (s *Service) SubmitELMResult(ctx context.Context, studentKey int64, finishedAt time.Time) error {
	return s.submitSingle(ctx, "elm_tutorial", studentKey, model.ChannelMC00, finishedAt, model.ScoreCredit, equalDominates)
}

// SubmitUnitReviewPass records a passed unit review exam.
func (s *Service) SubmitUnitReviewPass(ctx context.Context, studentKey int64, finishedAt time.Time) error {
	return s.submitSingle(ctx, "unit_review", studentKey, model.ChannelMC00, finishedAt, model.ScoreUnitReview, anyNonzeroDominates)
}

// ListQueuedForStudent returns the scores still waiting for delivery.
func (s *Service) ListQueuedForStudent(ctx context.Context, studentKey int64) ([]model.ScoreQueueEntry, error) {
	return s.queue.QueryByStudent(ctx, studentKey)
}

func (s *Service) submitSingle(ctx context.Context, flow string, studentKey int64, ch model.TestChannel,
	finishedAt time.Time, score model.ScoreValue, dominated dominance) error {

	existing, known := s.gateway.QueryExisting(ctx, studentKey)
	if !known {
		return s.queueScore(ctx, studentKey, ch, finishedAt, score, errors.ErrExistingUnknown)
	}
	if dominated(existing, ch, score) {
		s.log.Info().
			Str("flow", flow).
			Int64("student_key", studentKey).
			Str("test_code", string(ch)).
			Int("score", int(score)).
			Msg("Existing score already covers result, not resubmitting")
		return nil
	}

	return s.submitOrQueue(ctx, studentKey, ch, finishedAt, score)
}

// submitOrQueue attempts delivery and falls back to the durable queue. Only
// a failure of the queue itself is returned.
func (s *Service) submitOrQueue(ctx context.Context, studentKey int64, ch model.TestChannel, ts time.Time, score model.ScoreValue) error {
	err := s.gateway.TrySubmit(ctx, studentKey, ch, ts, score)
	if err == nil {
		return nil
	}
	if errors.Is(err, errors.ErrUnmappedCourse) || errors.Is(err, errors.ErrInvalidScoreValue) {
		return nil
	}
	return s.queueScore(ctx, studentKey, ch, ts, score, err)
}

// queueScore writes one score to the durable queue without attempting
// delivery. Excluded students are skipped here as they are by the gateway.
func (s *Service) queueScore(ctx context.Context, studentKey int64, ch model.TestChannel, ts time.Time,
	score model.ScoreValue, reason error) error {

	if s.gateway.IsExcluded(studentKey) {
		audit := logger.Audit()
		audit.Log().
			Str("event", "skipped_excluded").
			Int64("student_key", studentKey).
			Str("test_code", string(ch)).
			Time("test_date", model.NormalizeTestDate(ts)).
			Int("score", int(score)).
			Send()
		return nil
	}

	entry := model.ScoreQueueEntry{
		StudentKey: studentKey,
		TestCode:   ch,
		TestDate:   model.NormalizeTestDate(ts),
		Score:      score,
		EnqueuedAt: s.now(),
	}

	s.log.Warn().Err(reason).
		Int64("student_key", studentKey).
		Str("test_code", string(ch)).
		Time("test_date", entry.TestDate).
		Int("score", int(score)).
		Msg("Score not delivered, queuing for replay")

	if qerr := s.queue.Enqueue(ctx, entry); qerr != nil {
		s.log.Error().Err(qerr).
			Int64("student_key", studentKey).
			Str("test_code", string(ch)).
			Int("score", int(score)).
			Msg("Failed to queue score")
		return fmt.Errorf("failed to queue score: %w", qerr)
	}

	audit := logger.Audit()

	audit.Log().
		Str("event", "queued").
		Int64("student_key", studentKey).
		Str("test_code", string(ch)).
		Time("test_date", entry.TestDate).
		Int("score", int(score)).
		Str("reason", reason.Error()).
		Send()

	return nil
}

// precalcChannel resolves the five precalculus courses, the only ones with
// challenge exams and single-course tutorials.
func precalcChannel(courseID string) (model.TestChannel, error) {
	ch, ok := ChannelForCourse(courseID)
	if !ok || ch == model.ChannelMC00 {
		return "", fmt.Errorf("%w: %q", errors.ErrUnmappedCourse, courseID)
	}
	return ch, nil
}
