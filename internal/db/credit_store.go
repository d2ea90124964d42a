package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"placement-credit-sync/internal/model"
	"placement-credit-sync/pkg/errors"
)

// CreditStore is the persistent ledger of one credit record per
// (student, course).
type CreditStore interface {
	// WithTx runs fn inside one transaction. Returning an error rolls back
	// everything fn wrote.
	WithTx(ctx context.Context, fn func(tx CreditTx) error) error
	QueryAll(ctx context.Context) ([]model.CreditRecord, error)
	QueryByStudent(ctx context.Context, studentID string) ([]model.CreditRecord, error)
	QueryByExam(ctx context.Context, serialNumber int64) ([]model.CreditRecord, error)
	QueryByCourse(ctx context.Context, courseID string) ([]model.CreditRecord, error)
}

// CreditTx is the read-modify-write surface available inside WithTx.
type CreditTx interface {
	// Find returns the record for (student, course) locked for update, or nil
	// when there is none.
	Find(studentID, courseID string) (*model.CreditRecord, error)
	AnyExists(studentID string, courseIDs ...string) (bool, error)
	Insert(rec model.CreditRecord) error
	Update(rec model.CreditRecord) error
	UpdateProvenance(rec model.CreditRecord) error
	Delete(studentID, courseID string) error
	// DeleteByPrefix removes every course of the student starting with prefix
	// except keep, returning how many rows went away.
	DeleteByPrefix(studentID, prefix, keep string) (int64, error)
}

type creditStore struct {
	db      *sql.DB
	dialect Dialect
}

func NewCreditStore(db *sql.DB, dialect Dialect) CreditStore {
	return &creditStore{db: db, dialect: dialect}
}

const creditColumns = `stu_id, course, exam_placed, exam_dt, dt_cr_refused, serial_nbr, version, exam_source`

func (s *creditStore) WithTx(ctx context.Context, fn func(tx CreditTx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.NewStoreError("begin", err)
	}
	defer tx.Rollback()

	if err := fn(&creditTx{ctx: ctx, tx: tx, dialect: s.dialect}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return errors.NewStoreError("commit", err)
	}
	return nil
}

func (s *creditStore) QueryAll(ctx context.Context) ([]model.CreditRecord, error) {
	query := `SELECT ` + creditColumns + ` FROM placement_credit ORDER BY stu_id, course`
	return s.query(ctx, "query all credits", query)
}

func (s *creditStore) QueryByStudent(ctx context.Context, studentID string) ([]model.CreditRecord, error) {
	query := `SELECT ` + creditColumns + ` FROM placement_credit WHERE stu_id = ? ORDER BY course`
	return s.query(ctx, "query credits by student", query, studentID)
}

func (s *creditStore) QueryByExam(ctx context.Context, serialNumber int64) ([]model.CreditRecord, error) {
	query := `SELECT ` + creditColumns + ` FROM placement_credit WHERE serial_nbr = ? ORDER BY stu_id, course`
	return s.query(ctx, "query credits by exam", query, serialNumber)
}

func (s *creditStore) QueryByCourse(ctx context.Context, courseID string) ([]model.CreditRecord, error) {
	query := `SELECT ` + creditColumns + ` FROM placement_credit WHERE course = ? ORDER BY stu_id`
	return s.query(ctx, "query credits by course", query, courseID)
}

func (s *creditStore) query(ctx context.Context, op, query string, args ...interface{}) ([]model.CreditRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.NewStoreError(op, err)
	}
	defer rows.Close()

	records := []model.CreditRecord{}
	for rows.Next() {
		rec, err := scanCredit(rows)
		if err != nil {
			return nil, errors.NewStoreError(op, err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewStoreError(op, err)
	}

	return records, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanCredit(row rowScanner) (model.CreditRecord, error) {
	var (
		rec     model.CreditRecord
		outcome string
		refused sql.NullTime
	)
	err := row.Scan(&rec.StudentID, &rec.CourseID, &outcome, &rec.ExamDate, &refused,
		&rec.SerialNumber, &rec.ExamVersion, &rec.ExamSource)
	if err != nil {
		return model.CreditRecord{}, err
	}

	rec.Outcome = model.Outcome(outcome)
	rec.ExamDate = model.DateOnly(rec.ExamDate)
	if refused.Valid {
		t := model.DateOnly(refused.Time)
		rec.RefusedDate = &t
	}
	return rec, nil
}

type creditTx struct {
	ctx     context.Context
	tx      *sql.Tx
	dialect Dialect
}

func (t *creditTx) Find(studentID, courseID string) (*model.CreditRecord, error) {
	query := `SELECT ` + creditColumns + ` FROM placement_credit WHERE stu_id = ? AND course = ?` + t.dialect.ForUpdate

	rec, err := scanCredit(t.tx.QueryRowContext(t.ctx, query, studentID, courseID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.NewStoreError("find credit", err)
	}
	return &rec, nil
}

func (t *creditTx) AnyExists(studentID string, courseIDs ...string) (bool, error) {
	if len(courseIDs) == 0 {
		return false, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(courseIDs)), ", ")
	query := fmt.Sprintf(`SELECT COUNT(*) FROM placement_credit WHERE stu_id = ? AND course IN (%s)`, placeholders)

	args := make([]interface{}, 0, len(courseIDs)+1)
	args = append(args, studentID)
	for _, c := range courseIDs {
		args = append(args, c)
	}

	var count int
	if err := t.tx.QueryRowContext(t.ctx, query, args...).Scan(&count); err != nil {
		return false, errors.NewStoreError("check credits", err)
	}
	return count > 0, nil
}

func (t *creditTx) Insert(rec model.CreditRecord) error {
	query := `INSERT INTO placement_credit (` + creditColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := t.tx.ExecContext(t.ctx, query, rec.StudentID, rec.CourseID, string(rec.Outcome),
		model.DateOnly(rec.ExamDate), refusedArg(rec), rec.SerialNumber, rec.ExamVersion, rec.ExamSource)
	return errors.NewStoreError("insert credit", err)
}

func (t *creditTx) Update(rec model.CreditRecord) error {
	query := `UPDATE placement_credit
		SET exam_placed = ?, exam_dt = ?, dt_cr_refused = ?, serial_nbr = ?, version = ?, exam_source = ?
		WHERE stu_id = ? AND course = ?`

	_, err := t.tx.ExecContext(t.ctx, query, string(rec.Outcome), model.DateOnly(rec.ExamDate), refusedArg(rec),
		rec.SerialNumber, rec.ExamVersion, rec.ExamSource, rec.StudentID, rec.CourseID)
	return errors.NewStoreError("update credit", err)
}

func (t *creditTx) UpdateProvenance(rec model.CreditRecord) error {
	query := `UPDATE placement_credit
		SET exam_dt = ?, serial_nbr = ?, version = ?, exam_source = ?
		WHERE stu_id = ? AND course = ?`

	_, err := t.tx.ExecContext(t.ctx, query, model.DateOnly(rec.ExamDate), rec.SerialNumber,
		rec.ExamVersion, rec.ExamSource, rec.StudentID, rec.CourseID)
	return errors.NewStoreError("update credit provenance", err)
}

func (t *creditTx) Delete(studentID, courseID string) error {
	_, err := t.tx.ExecContext(t.ctx, `DELETE FROM placement_credit WHERE stu_id = ? AND course = ?`, studentID, courseID)
	return errors.NewStoreError("delete credit", err)
}

func (t *creditTx) DeleteByPrefix(studentID, prefix, keep string) (int64, error) {
	query := `DELETE FROM placement_credit WHERE stu_id = ? AND course LIKE ? AND course <> ?`

	res, err := t.tx.ExecContext(t.ctx, query, studentID, prefix+"%", keep)
	if err != nil {
		return 0, errors.NewStoreError("delete credits by prefix", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.NewStoreError("delete credits by prefix", err)
	}
	return n, nil
}

func refusedArg(rec model.CreditRecord) interface{} {
	if rec.RefusedDate == nil {
		return nil
	}
	return model.DateOnly(*rec.RefusedDate)
}
