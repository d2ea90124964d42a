package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsRetryable(t *testing.T) {
	base := errors.New("connection reset")
	err := fmt.Errorf("insert score: %w", NewRetryableError(base, "HTTP request failed"))

	assert.True(t, IsRetryable(err))
	assert.ErrorIs(t, err, base)
	assert.False(t, IsRetryable(base))
	assert.False(t, IsRetryable(nil))
}

func TestStoreError(t *testing.T) {
	base := errors.New("database is locked")
	err := NewStoreError("enqueue", base)

	assert.True(t, IsStoreError(err))
	assert.ErrorIs(t, err, base)
	assert.Equal(t, "store enqueue: database is locked", err.Error())
	assert.NoError(t, NewStoreError("enqueue", nil))
	assert.False(t, IsStoreError(ErrScoreRejected))
}

func TestValidationErrorMessage(t *testing.T) {
	err := ValidationError{Field: "outcome", Value: "X", Message: "must be P or C"}
	assert.Equal(t, "validation failed for field 'outcome' with value 'X': must be P or C", err.Error())
}
