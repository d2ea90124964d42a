package model

import (
	"time"

	"placement-credit-sync/pkg/errors"
)

type Outcome string

const (
	OutcomePlaced Outcome = "P"
	OutcomeCredit Outcome = "C"
)

// Course identifiers with special reconciliation or channel mapping.
const (
	CourseM100T = "M 100T"
	CourseM100M = "M 100M"
	CourseM100C = "M 100C"
	CourseM117  = "M 117"
	CourseM118  = "M 118"
	CourseM124  = "M 124"
	CourseM125  = "M 125"
	CourseM126  = "M 126"
)

// Rank orders outcomes for monotonic reconciliation. Outcomes outside the
// Placed/Credit pair rank zero.
func (o Outcome) Rank() int {
	switch o {
	case OutcomePlaced:
		return 1
	case OutcomeCredit:
		return 2
	default:
		return 0
	}
}

func (o Outcome) Valid() bool {
	return len(o) == 1 && o[0] >= 'A' && o[0] <= 'Z'
}

// CreditRecord is the best-known placement or credit outcome for one student
// in one course.
type CreditRecord struct {
	StudentID    string     `json:"student_id" db:"stu_id"`
	CourseID     string     `json:"course" db:"course"`
	Outcome      Outcome    `json:"outcome" db:"exam_placed"`
	ExamDate     time.Time  `json:"exam_date" db:"exam_dt"`
	RefusedDate  *time.Time `json:"refused_date,omitempty" db:"dt_cr_refused"`
	SerialNumber int64      `json:"serial_nbr" db:"serial_nbr"`
	ExamVersion  string     `json:"version" db:"version"`
	ExamSource   string     `json:"exam_source" db:"exam_source"`
}

// SameProvenance reports whether both records carry identical evidence.
func (r CreditRecord) SameProvenance(o CreditRecord) bool {
	return r.ExamDate.Equal(o.ExamDate) &&
		r.SerialNumber == o.SerialNumber &&
		r.ExamVersion == o.ExamVersion &&
		r.ExamSource == o.ExamSource
}

func (r CreditRecord) Validate() error {
	if r.StudentID == "" {
		return errors.ValidationError{Field: "student_id", Value: r.StudentID, Message: "is required"}
	}
	if r.CourseID == "" {
		return errors.ValidationError{Field: "course", Value: r.CourseID, Message: "is required"}
	}
	if !r.Outcome.Valid() {
		return errors.ValidationError{Field: "outcome", Value: r.Outcome, Message: "must be a single upper-case letter"}
	}
	if r.ExamDate.IsZero() {
		return errors.ValidationError{Field: "exam_date", Value: r.ExamDate, Message: "is required"}
	}
	return nil
}

// DateOnly truncates t to midnight UTC on its calendar date.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
