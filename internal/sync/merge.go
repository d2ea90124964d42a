package sync

import "placement-credit-sync/internal/model"

// ScoreVector holds one score per records-system channel.
type ScoreVector [model.NumChannels]model.ScoreValue

// Set raises the channel to v; it never lowers a score already present.
func (v *ScoreVector) Set(ch model.TestChannel, score model.ScoreValue) {
	if i, ok := ch.Index(); ok {
		v[i] = model.MergeScores(v[i], score)
	}
}

func (v ScoreVector) Get(ch model.TestChannel) model.ScoreValue {
	if i, ok := ch.Index(); ok {
		return v[i]
	}
	return model.ScoreNone
}

// Merge returns the per-channel maximum of v and the remote scores.
func (v ScoreVector) Merge(existing []model.RemoteScore) ScoreVector {
	out := v
	for _, s := range existing {
		out.Set(s.TestCode, s.Score)
	}
	return out
}

// bestExisting is the highest remote score on ch.
func bestExisting(existing []model.RemoteScore, ch model.TestChannel) model.ScoreValue {
	best := model.ScoreNone
	for _, s := range existing {
		if s.TestCode == ch {
			best = model.MergeScores(best, s.Score)
		}
	}
	return best
}

// dominance decides whether a score already on record makes a new
// submission of score on ch pointless.
type dominance func(existing []model.RemoteScore, ch model.TestChannel, score model.ScoreValue) bool

// anyNonzeroDominates blocks when the channel holds any score at all.
func anyNonzeroDominates(existing []model.RemoteScore, ch model.TestChannel, _ model.ScoreValue) bool {
	return bestExisting(existing, ch) != model.ScoreNone
}

// equalDominates blocks only when some record already carries exactly score.
func equalDominates(existing []model.RemoteScore, ch model.TestChannel, score model.ScoreValue) bool {
	for _, s := range existing {
		if s.TestCode == ch && s.Score == score {
			return true
		}
	}
	return false
}
