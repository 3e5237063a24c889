package model

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewKindError(t *testing.T) {
	cause := errors.New("connection refused")

	t.Run("Kind and cause are both preserved", func(t *testing.T) {
		err := NewKindError(ErrStorage, "commit ingestion", cause)

		assert.True(t, errors.Is(err, ErrStorage))
		assert.True(t, errors.Is(err, cause))
		assert.False(t, errors.Is(err, ErrEmbedding))
		assert.Contains(t, err.Error(), "commit ingestion")
	})

	t.Run("Kind is not applied twice", func(t *testing.T) {
		inner := NewKindError(ErrEmbedding, "embed", cause)
		err := NewKindError(ErrEmbedding, "embed chunks", inner)

		assert.True(t, errors.Is(err, ErrEmbedding))
		assert.Equal(t, 1, strings.Count(err.Error(), ErrEmbedding.Error()))
	})

	t.Run("Existing kind is kept", func(t *testing.T) {
		inner := NewKindError(ErrNotFound, "select record", cause)
		err := NewKindError(ErrStorage, "get node", inner)

		assert.True(t, errors.Is(err, ErrNotFound))
		assert.False(t, errors.Is(err, ErrStorage))
	})

	t.Run("Nil cause yields the kind itself", func(t *testing.T) {
		err := NewKindError(ErrNotFound, "select", nil)
		assert.True(t, errors.Is(err, ErrNotFound))
	})
}

func TestIsRetryable(t *testing.T) {
	assert.False(t, IsRetryable(nil))
	assert.True(t, IsRetryable(NewKindError(ErrStorage, "commit", errors.New("aborted"))))
	assert.True(t, IsRetryable(NewKindError(ErrEmbedding, "embed", errors.New("503"))))
	assert.True(t, IsRetryable(NewKindError(ErrExtraction, "extract", context.DeadlineExceeded)))
	assert.False(t, IsRetryable(NewKindError(ErrExtraction, "extract", errors.New("invalid json"))))
	assert.False(t, IsRetryable(NewKindError(ErrValidation, "validate", nil)))
	assert.False(t, IsRetryable(fmt.Errorf("wrapped: %w", ErrNotFound)))
}
