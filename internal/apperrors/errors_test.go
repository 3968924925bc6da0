package apperrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRetryableAndFatalWrapping(t *testing.T) {
	base := fmt.Errorf("insert booking 7: %w", ErrDatabase)

	r := NewRetryable(base, "save booking %d", 7)
	assert.True(t, IsRetryable(r))
	assert.False(t, IsFatal(r))
	assert.True(t, IsDatabaseError(r))
	assert.Equal(t, "retryable: save booking 7: insert booking 7: database error", r.Error())

	f := NewFatal(ErrValidation, "bad payload")
	assert.True(t, IsFatal(f))
	assert.False(t, IsRetryable(f))
	assert.True(t, IsValidationError(f))

	outer := fmt.Errorf("handler: %w", f)
	assert.True(t, IsFatal(outer))
}

func TestKindCheckers(t *testing.T) {
	cases := map[error]func(error) bool{
		ErrConfiguration:     IsConfigurationError,
		ErrIntegration:       IsIntegrationError,
		ErrInvalidTransition: IsInvalidTransitionError,
		ErrNotFound:          IsNotFoundError,
		ErrDuplicate:         IsDuplicateError,
	}
	for sentinel, check := range cases {
		assert.True(t, check(fmt.Errorf("wrapped: %w", sentinel)), sentinel.Error())
		assert.False(t, check(errors.New("other")), sentinel.Error())
	}
}
