package apperrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRetryableAndFatalWrapping(t *testing.T) {
	base := fmt.Errorf("insert lead: %w", ErrDatabase)

	retry := NewRetryable(base, "ingest message %s", "wamid.1")
	assert.True(t, IsRetryable(retry))
	assert.False(t, IsFatal(retry))
	assert.True(t, IsDatabaseError(retry))
	assert.Contains(t, retry.Error(), "ingest message wamid.1")

	fatal := NewFatal(ErrValidation, "decode payload")
	assert.True(t, IsFatal(fatal))
	assert.False(t, IsRetryable(fatal))
	assert.True(t, IsValidationError(fatal))
}

func TestFieldErrors(t *testing.T) {
	err := NewFieldError("email", "must be a valid email address")
	assert.True(t, IsValidationError(err))
	assert.Equal(t, map[string]string{"email": "must be a valid email address"}, Fields(err))

	many := ValidationErrors{
		{Field: "name", Message: "is required"},
		{Field: "etapa", Message: "must be one of: A B"},
	}
	wrapped := fmt.Errorf("create lead: %w", many)
	assert.True(t, errors.Is(wrapped, ErrValidation))
	assert.Len(t, Fields(wrapped), 2)
	assert.Empty(t, Fields(ErrNotFound))
}
