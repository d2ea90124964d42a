package model

import (
	"fmt"
	"strconv"
	"time"

	"placement-credit-sync/pkg/errors"
)

// TestChannel is a test code in the external records system.
type TestChannel string

const (
	ChannelMC00 TestChannel = "MC00"
	ChannelMC17 TestChannel = "MC17"
	ChannelMC18 TestChannel = "MC18"
	ChannelMC24 TestChannel = "MC24"
	ChannelMC25 TestChannel = "MC25"
	ChannelMC26 TestChannel = "MC26"
)

const NumChannels = 6

// Channels lists every channel in submission order.
var Channels = [NumChannels]TestChannel{
	ChannelMC00, ChannelMC17, ChannelMC18, ChannelMC24, ChannelMC25, ChannelMC26,
}

// Index returns the position of c in Channels.
func (c TestChannel) Index() (int, bool) {
	for i, ch := range Channels {
		if ch == c {
			return i, true
		}
	}
	return -1, false
}

// MaxScore is the highest ordinal the channel accepts.
func (c TestChannel) MaxScore() ScoreValue {
	if c == ChannelMC00 {
		return ScoreUnitReview
	}
	return ScoreCredit
}

// ScoreValue is an ordinal score on a channel; higher strictly dominates lower.
type ScoreValue int

const (
	ScoreNone       ScoreValue = 0
	ScorePlaced     ScoreValue = 1
	ScoreCredit     ScoreValue = 2
	ScoreUnitReview ScoreValue = 4
)

func (v ScoreValue) String() string {
	return strconv.Itoa(int(v))
}

// ValidFor reports whether v is on channel c's scale.
func (v ScoreValue) ValidFor(c TestChannel) bool {
	return v >= ScoreNone && v <= c.MaxScore()
}

func ParseScoreValue(s string) (ScoreValue, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 || n > int(ScoreUnitReview) {
		return ScoreNone, fmt.Errorf("%w: %q", errors.ErrInvalidScoreValue, s)
	}
	return ScoreValue(n), nil
}

// MergeScores returns the dominant of two scores on the same channel. It is
// commutative and idempotent, so re-running a merge is safe.
func MergeScores(a, b ScoreValue) ScoreValue {
	if a >= b {
		return a
	}
	return b
}

// ScoreQueueEntry is one score awaiting delivery to the records system.
type ScoreQueueEntry struct {
	StudentKey int64       `json:"student_key" db:"student_key"`
	TestCode   TestChannel `json:"test_code" db:"test_code"`
	TestDate   time.Time   `json:"test_date" db:"test_date"`
	Score      ScoreValue  `json:"score" db:"test_score"`
	EnqueuedAt time.Time   `json:"enqueued_at" db:"enqueued_at"`
}

// DedupKey identifies the logical score independent of how often it was queued.
func (e ScoreQueueEntry) DedupKey() string {
	return fmt.Sprintf("%d/%s/%s", e.StudentKey, e.TestCode, e.TestDate.UTC().Format(time.RFC3339))
}

// NormalizeTestDate drops sub-second precision and pins the zone so the same
// logical score always produces the same queue key.
func NormalizeTestDate(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}

// RemoteScore is a score already on record in the external system.
type RemoteScore struct {
	TestCode TestChannel `json:"test_code"`
	Score    ScoreValue  `json:"score"`
	TestDate time.Time   `json:"test_date"`
}
