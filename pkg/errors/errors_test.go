package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromErrorKeepsTypedErrors(t *testing.T) {
	wrapped := fmt.Errorf("outer: %w", ErrInvalidTransition)
	appErr := FromError(wrapped)
	require.NotNil(t, appErr)
	assert.Equal(t, "INVALID_TRANSITION", appErr.Code)
	assert.Equal(t, http.StatusConflict, appErr.Status)
}

func TestFromErrorWrapsUnknown(t *testing.T) {
	cause := stdErrors.New("connection reset")
	appErr := FromError(cause)
	assert.Equal(t, ErrInternal.Code, appErr.Code)
	assert.ErrorIs(t, appErr, cause)
	assert.Nil(t, FromError(nil))
}

func TestCloneOverridesMessageOnly(t *testing.T) {
	clone := Clone(ErrWriteFailed, "status change reverted")
	assert.Equal(t, ErrWriteFailed.Code, clone.Code)
	assert.Equal(t, "status change reverted", clone.Message)
	assert.Equal(t, "change could not be saved and was reverted", ErrWriteFailed.Message)
}

func TestIsMatchesByCode(t *testing.T) {
	clone := Clone(ErrNotFound, "Jig request T9 not found")
	assert.ErrorIs(t, clone, ErrNotFound)
	assert.ErrorIs(t, fmt.Errorf("load: %w", WrapAs(ErrContention, stdErrors.New("tx aborted"), "")), ErrContention)
	assert.NotErrorIs(t, clone, ErrConflict)
}

func TestWrapAsKeepsKindAndCause(t *testing.T) {
	cause := stdErrors.New("disk full")
	err := WrapAs(ErrWriteFailed, cause, "")
	assert.Equal(t, ErrWriteFailed.Code, err.Code)
	assert.Equal(t, ErrWriteFailed.Message, err.Message)
	assert.ErrorIs(t, err, cause)

	err = WrapAs(ErrValidation, cause, "invalid receipt payload")
	assert.Equal(t, http.StatusBadRequest, err.Status)
	assert.Equal(t, "invalid receipt payload", err.Message)
}

func TestRetryable(t *testing.T) {
	assert.True(t, Retryable(ErrContention))
	assert.True(t, Retryable(fmt.Errorf("save: %w", ErrWriteFailed)))
	assert.False(t, Retryable(ErrInvalidTransition))
	assert.False(t, Retryable(stdErrors.New("plain")))
}
