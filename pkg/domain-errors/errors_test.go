package domainerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	err := New(CodeNotFound, "layer not found")
	require.Error(t, err)
	assert.Equal(t, CodeNotFound, CodeOf(err))
	assert.Contains(t, err.Error(), "layer not found")
}

func TestWrap(t *testing.T) {
	t.Run("preserves cause", func(t *testing.T) {
		cause := errors.New("connection refused")
		err := Wrap(cause, CodeInternal, "store unavailable")
		require.Error(t, err)
		assert.True(t, errors.Is(err, cause))
		assert.Equal(t, CodeInternal, CodeOf(err))
	})

	t.Run("nil in nil out", func(t *testing.T) {
		assert.NoError(t, Wrap(nil, CodeInternal, "ignored"))
	})
}

func TestHasCode(t *testing.T) {
	inner := New(CodeValidation, "coverage ratio out of bounds")
	wrapped := fmt.Errorf("validating layer: %w", inner)
	outer := Wrap(wrapped, CodeInternal, "validation run failed")

	assert.True(t, HasCode(outer, CodeInternal))
	assert.True(t, HasCode(outer, CodeValidation))
	assert.False(t, HasCode(outer, CodeNotFound))
	assert.False(t, HasCode(nil, CodeInternal))
}

func TestErrorsIsMatching(t *testing.T) {
	// errors.Is should match a freshly constructed expectation by code and
	// message, the idiom used throughout handler and service tests.
	err := New(CodeUnauthorized, "token has expired")
	require.ErrorIs(t, err, New(CodeUnauthorized, "token has expired"))
	require.NotErrorIs(t, err, New(CodeUnauthorized, "invalid token"))
}

func TestCodeOf(t *testing.T) {
	t.Run("outermost code wins", func(t *testing.T) {
		err := Wrap(New(CodeNotFound, "inner"), CodeConflict, "outer")
		assert.Equal(t, CodeConflict, CodeOf(err))
	})

	t.Run("uncoded defaults to internal", func(t *testing.T) {
		assert.Equal(t, CodeInternal, CodeOf(errors.New("plain")))
	})
}
