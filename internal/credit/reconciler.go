// Package credit keeps the local credit ledger consistent as exam and
// tutorial results arrive. Outcomes only ever move forward: a Credit is
// never replaced by a later Placed for the same course.
package credit

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"sync"

	"placement-credit-sync/internal/config"
	"placement-credit-sync/internal/db"
	"placement-credit-sync/internal/logger"
	"placement-credit-sync/internal/model"

	"github.com/rs/zerolog"
)

// Action is what a reconciliation did to the ledger.
type Action string

const (
	ActionIgnored   Action = "ignored"
	ActionDiscarded Action = "discarded"
	ActionInserted  Action = "inserted"
	ActionRefreshed Action = "refreshed"
	ActionUnchanged Action = "unchanged"
	ActionUpgraded  Action = "upgraded"
	ActionBlocked   Action = "blocked"
	ActionOverwrite Action = "overwritten"
)

const lockStripes = 64

type Reconciler struct {
	store          db.CreditStore
	reservedPrefix string
	locks          [lockStripes]sync.Mutex
	log            zerolog.Logger
}

func NewReconciler(cfg *config.Config, store db.CreditStore) *Reconciler {
	return &Reconciler{
		store:          store,
		reservedPrefix: cfg.Ledger.ReservedPrefix,
		log:            logger.Get(),
	}
}

// ApplyResult merges one exam result into the ledger.
func (r *Reconciler) ApplyResult(ctx context.Context, rec model.CreditRecord) error {
	_, err := r.Apply(ctx, rec)
	return err
}

// Apply is ApplyResult that also reports the decision taken.
func (r *Reconciler) Apply(ctx context.Context, rec model.CreditRecord) (Action, error) {
	if err := rec.Validate(); err != nil {
		return "", err
	}
	if r.reserved(rec.StudentID) {
		r.log.Debug().Str("student_id", rec.StudentID).Str("course", rec.CourseID).
			Msg("Ignoring result for reserved test identifier")
		return ActionIgnored, nil
	}

	rec.ExamDate = model.DateOnly(rec.ExamDate)

	mu := r.lockFor(rec.StudentID)
	mu.Lock()
	defer mu.Unlock()

	var action Action
	err := r.store.WithTx(ctx, func(tx db.CreditTx) error {
		var err error
		action, err = r.reconcile(tx, rec)
		return err
	})
	if err != nil {
		r.log.Error().Err(err).
			Str("student_id", rec.StudentID).
			Str("course", rec.CourseID).
			Msg("Failed to apply result to credit ledger")
		return "", fmt.Errorf("failed to apply result: %w", err)
	}

	r.log.Info().
		Str("student_id", rec.StudentID).
		Str("course", rec.CourseID).
		Str("outcome", string(rec.Outcome)).
		Int64("serial_nbr", rec.SerialNumber).
		Str("action", string(action)).
		Msg("Result applied to credit ledger")

	return action, nil
}

func (r *Reconciler) reconcile(tx db.CreditTx, rec model.CreditRecord) (Action, error) {
	family := FamilyOf(rec.CourseID)
	rule := familyRules[family]

	if len(rule.dominatedBy) > 0 {
		dominated, err := tx.AnyExists(rec.StudentID, rule.dominatedBy...)
		if err != nil {
			return "", err
		}
		if dominated {
			r.log.Info().
				Str("student_id", rec.StudentID).
				Str("course", rec.CourseID).
				Str("family", family.String()).
				Msg("Stronger sibling already recorded, discarding result")
			return ActionDiscarded, nil
		}
	}

	for _, sibling := range rule.supersedes {
		if err := tx.Delete(rec.StudentID, sibling); err != nil {
			return "", err
		}
	}

	if rule.clearFamily {
		removed, err := tx.DeleteByPrefix(rec.StudentID, familyPrefix, rec.CourseID)
		if err != nil {
			return "", err
		}
		if removed > 0 {
			r.log.Info().
				Str("student_id", rec.StudentID).
				Int64("removed", removed).
				Msg("Umbrella result subsumes remedial siblings")
		}
	}

	existing, err := tx.Find(rec.StudentID, rec.CourseID)
	if err != nil {
		return "", err
	}

	action := Decide(existing, rec)
	switch action {
	case ActionInserted:
		err = tx.Insert(rec)
	case ActionRefreshed:
		err = tx.UpdateProvenance(rec)
	case ActionUpgraded, ActionOverwrite:
		rec.RefusedDate = existing.RefusedDate
		err = tx.Update(rec)
	case ActionBlocked:
		r.log.Info().
			Bool("audit", true).
			Str("student_id", rec.StudentID).
			Str("course", rec.CourseID).
			Str("existing", string(existing.Outcome)).
			Str("incoming", string(rec.Outcome)).
			Msg("Refusing to regress recorded outcome")
		audit := logger.Audit()
		audit.Log().
			Str("event", "credit_regression_blocked").
			Str("student_id", rec.StudentID).
			Str("course", rec.CourseID).
			Str("existing", string(existing.Outcome)).
			Str("incoming", string(rec.Outcome)).
			Int64("serial_nbr", rec.SerialNumber).
			Send()
	}
	if err != nil {
		return "", err
	}

	return action, nil
}

// Decide applies the general monotonic rule for one (student, course).
func Decide(existing *model.CreditRecord, next model.CreditRecord) Action {
	if existing == nil {
		return ActionInserted
	}

	if existing.Outcome == next.Outcome {
		if existing.SameProvenance(next) {
			return ActionUnchanged
		}
		return ActionRefreshed
	}

	have, want := existing.Outcome.Rank(), next.Outcome.Rank()
	switch {
	case have > 0 && want > have:
		return ActionUpgraded
	case want > 0 && have > want:
		return ActionBlocked
	default:
		return ActionOverwrite
	}
}

// CreditsForStudent lists the ledger for one student. Reserved test
// identifiers have no ledger.
func (r *Reconciler) CreditsForStudent(ctx context.Context, studentID string) ([]model.CreditRecord, error) {
	if r.reserved(studentID) {
		return []model.CreditRecord{}, nil
	}
	return r.store.QueryByStudent(ctx, studentID)
}

func (r *Reconciler) reserved(studentID string) bool {
	return r.reservedPrefix != "" && strings.HasPrefix(studentID, r.reservedPrefix)
}

func (r *Reconciler) lockFor(studentID string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(studentID))
	return &r.locks[h.Sum32()%lockStripes]
}
