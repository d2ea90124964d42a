package excel

import (
	"context"
	"fmt"
	"regexp"

	"placement-credit-sync/internal/model"
	"placement-credit-sync/pkg/errors"
)

type Validator struct {
	studentIDRegex *regexp.Regexp
	courseRegex    *regexp.Regexp
}

func NewValidator() *Validator {
	return &Validator{
		studentIDRegex: regexp.MustCompile(`^[A-Z0-9]{6,16}$`),
		courseRegex:    regexp.MustCompile(`^M \d{3}[A-Z]?$`),
	}
}

func (v *Validator) Validate(ctx context.Context, records []model.CreditRecord) error {
	if len(records) == 0 {
		return errors.ErrSchemaValidation
	}

	for i, rec := range records {
		if err := v.validateRecord(rec); err != nil {
			return fmt.Errorf("record %d: %w", i+1, err)
		}
	}

	return nil
}

func (v *Validator) validateRecord(rec model.CreditRecord) error {
	if err := rec.Validate(); err != nil {
		return err
	}

	if !v.studentIDRegex.MatchString(rec.StudentID) {
		return errors.ValidationError{
			Field:   "student_id",
			Value:   rec.StudentID,
			Message: "must be 6-16 alphanumeric characters",
		}
	}

	if !v.courseRegex.MatchString(rec.CourseID) {
		return errors.ValidationError{
			Field:   "course",
			Value:   rec.CourseID,
			Message: "must look like 'M 117' or 'M 100C'",
		}
	}

	if len(rec.ExamVersion) > 16 {
		return errors.ValidationError{
			Field:   "version",
			Value:   rec.ExamVersion,
			Message: "must be at most 16 characters",
		}
	}

	if len(rec.ExamSource) > 16 {
		return errors.ValidationError{
			Field:   "exam_source",
			Value:   rec.ExamSource,
			Message: "must be at most 16 characters",
		}
	}

	return nil
}
