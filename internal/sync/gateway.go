package sync

import (
	"context"
	"fmt"
	"time"

	"placement-credit-sync/internal/breaker"
	"placement-credit-sync/internal/config"
	"placement-credit-sync/internal/logger"
	"placement-credit-sync/internal/model"
	"placement-credit-sync/pkg/errors"

	"github.com/rs/zerolog"
)

var courseChannels = map[string]model.TestChannel{
	model.CourseM100C: model.ChannelMC00,
	model.CourseM117:  model.ChannelMC17,
	model.CourseM118:  model.ChannelMC18,
	model.CourseM124:  model.ChannelMC24,
	model.CourseM125:  model.ChannelMC25,
	model.CourseM126:  model.ChannelMC26,
}

// ChannelForCourse maps a local course to its records-system test code.
func ChannelForCourse(courseID string) (model.TestChannel, bool) {
	ch, ok := courseChannels[courseID]
	return ch, ok
}

// Gateway writes and reads scores in the records system, short-circuiting
// while the breaker is open.
type Gateway struct {
	client    RecordsClient
	breaker   breaker.Breaker
	excluded  map[int64]struct{}
	sourceTag string
	timeout   time.Duration
	log       zerolog.Logger
}

func NewGateway(cfg *config.Config, client RecordsClient, br breaker.Breaker) *Gateway {
	excluded := make(map[int64]struct{}, len(cfg.ExternalAPI.Records.ExcludedStudentKeys))
	for _, key := range cfg.ExternalAPI.Records.ExcludedStudentKeys {
		excluded[key] = struct{}{}
	}

	return &Gateway{
		client:    client,
		breaker:   br,
		excluded:  excluded,
		sourceTag: cfg.ExternalAPI.Records.SourceTag,
		timeout:   cfg.ExternalAPI.Records.Timeout,
		log:       logger.Get(),
	}
}

// IsExcluded reports whether key is a known-bad account that must never be
// sent to the records system.
func (g *Gateway) IsExcluded(studentKey int64) bool {
	_, ok := g.excluded[studentKey]
	return ok
}

// TrySubmit writes one score. A nil error means the score is on record or
// deliberately skipped; any error means it was not delivered.
func (g *Gateway) TrySubmit(ctx context.Context, studentKey int64, channel model.TestChannel, ts time.Time, score model.ScoreValue) error {
	if _, ok := channel.Index(); !ok {
		g.log.Error().Int64("student_key", studentKey).Str("test_code", string(channel)).
			Msg("Refusing to submit score for unknown test code")
		return fmt.Errorf("%w: %s", errors.ErrUnmappedCourse, channel)
	}
	if !score.ValidFor(channel) {
		g.log.Error().Int64("student_key", studentKey).Str("test_code", string(channel)).Int("score", int(score)).
			Msg("Refusing to submit out-of-range score")
		return fmt.Errorf("%w: %d on %s", errors.ErrInvalidScoreValue, score, channel)
	}

	ts = model.NormalizeTestDate(ts)

	if g.IsExcluded(studentKey) {
		audit := logger.Audit()
		audit.Log().
			Str("event", "skipped_excluded").
			Int64("student_key", studentKey).
			Str("test_code", string(channel)).
			Time("test_date", ts).
			Int("score", int(score)).
			Send()
		return nil
	}

	if g.breaker.IsOpen() {
		return errors.ErrBreakerOpen
	}

	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	err := g.client.InsertScore(callCtx, model.ExternalScore{
		StudentKey: studentKey,
		TestCode:   string(channel),
		TestDate:   ts,
		Score:      score.String(),
		Source:     g.sourceTag,
	})
	if err != nil {
		g.recordFailure(err, studentKey, "insert score")
		if errors.IsRetryable(err) {
			return fmt.Errorf("%w: %w", errors.ErrExternalUnavailable, err)
		}
		return err
	}

	audit := logger.Audit()

	audit.Log().
		Str("event", "submitted").
		Int64("student_key", studentKey).
		Str("test_code", string(channel)).
		Time("test_date", ts).
		Int("score", int(score)).
		Send()

	return nil
}

// QueryExisting returns the scores already on record for the student. The
// second result is false when the answer is unknown because the records
// system could not be asked.
func (g *Gateway) QueryExisting(ctx context.Context, studentKey int64) ([]model.RemoteScore, bool) {
	if g.IsExcluded(studentKey) {
		return []model.RemoteScore{}, true
	}
	if g.breaker.IsOpen() {
		return nil, false
	}

	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	external, err := g.client.QueryScores(callCtx, studentKey)
	if err != nil {
		g.recordFailure(err, studentKey, "query scores")
		return nil, false
	}

	scores := make([]model.RemoteScore, 0, len(external))
	for _, e := range external {
		ch := model.TestChannel(e.TestCode)
		if _, ok := ch.Index(); !ok {
			continue
		}
		value, err := model.ParseScoreValue(e.Score)
		if err != nil || !value.ValidFor(ch) {
			g.log.Warn().Int64("student_key", studentKey).Str("test_code", e.TestCode).Str("score", e.Score).
				Msg("Ignoring unparseable remote score")
			continue
		}
		scores = append(scores, model.RemoteScore{TestCode: ch, Score: value, TestDate: e.TestDate})
	}

	return scores, true
}

// recordFailure trips the breaker for transient failures. Rejections of a
// single score say nothing about reachability.
func (g *Gateway) recordFailure(err error, studentKey int64, op string) {
	if errors.IsRetryable(err) {
		g.log.Warn().Err(err).Int64("student_key", studentKey).Str("op", op).
			Msg("Records system unreachable, opening breaker")
		g.breaker.Open()
		return
	}
	g.log.Warn().Err(err).Int64("student_key", studentKey).Str("op", op).
		Msg("Records system rejected request")
}
