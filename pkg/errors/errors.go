package errors

import (
	"errors"
	"fmt"
)

var (
	ErrUnmappedCourse      = errors.New("course has no external test channel")
	ErrInvalidOutcome      = errors.New("invalid placement outcome")
	ErrInvalidScoreValue   = errors.New("invalid score value")
	ErrExternalUnavailable = errors.New("external records system unavailable")
	ErrScoreRejected       = errors.New("external records system rejected score")
	ErrBreakerOpen         = errors.New("records system breaker is open")
	ErrInvalidFileFormat   = errors.New("invalid file format")
	ErrSchemaValidation    = errors.New("schema validation failed")
	ErrQueueUnavailable    = errors.New("job queue unavailable")
	ErrObjectNotFound      = errors.New("object not found")
	ErrExistingUnknown     = errors.New("existing remote scores unknown")
)

type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation failed for field '%s' with value '%v': %s",
		e.Field, e.Value, e.Message)
}

type RetryableError struct {
	Err     error
	Message string
}

func (e RetryableError) Error() string {
	return fmt.Sprintf("retryable error: %s - %s", e.Message, e.Err.Error())
}

func (e RetryableError) Unwrap() error {
	return e.Err
}

func NewRetryableError(err error, message string) error {
	return RetryableError{
		Err:     err,
		Message: message,
	}
}

// IsRetryable reports whether err (or anything it wraps) is a RetryableError.
func IsRetryable(err error) bool {
	var re RetryableError
	return errors.As(err, &re)
}

// StoreError marks a failure of the local backing store. These are never
// absorbed: they surface to the caller as infrastructure failures.
type StoreError struct {
	Op  string
	Err error
}

func (e StoreError) Error() string {
	return fmt.Sprintf("store %s: %s", e.Op, e.Err.Error())
}

func (e StoreError) Unwrap() error {
	return e.Err
}

func NewStoreError(op string, err error) error {
	if err == nil {
		return nil
	}
	return StoreError{Op: op, Err: err}
}

// IsStoreError reports whether err originated in the local backing store.
func IsStoreError(err error) bool {
	var se StoreError
	return errors.As(err, &se)
}

// Is and As re-export the standard helpers so callers need a single import.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
