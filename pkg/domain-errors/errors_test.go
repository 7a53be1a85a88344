package domainerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodesSurviveWrapping(t *testing.T) {
	t.Run("code is found through fmt wrapping", func(t *testing.T) {
		err := fmt.Errorf("outer: %w", New(CodeNotFound, "missing"))
		assert.True(t, HasCode(err, CodeNotFound))
		assert.False(t, HasCode(err, CodeConflict))
		assert.Equal(t, CodeNotFound, CodeOf(err))
	})

	t.Run("inner code is found under a domain wrap", func(t *testing.T) {
		inner := New(CodeTimeout, "slow")
		err := Wrap(inner, CodeInternal, "failed")
		assert.True(t, HasCode(err, CodeInternal))
		assert.True(t, HasCode(err, CodeTimeout))
		assert.Equal(t, CodeInternal, CodeOf(err))
	})

	t.Run("wrap of nil is nil", func(t *testing.T) {
		assert.NoError(t, Wrap(nil, CodeInternal, "unused"))
	})

	t.Run("plain errors have no code", func(t *testing.T) {
		err := errors.New("boom")
		assert.False(t, HasCode(err, CodeInternal))
		assert.Equal(t, CodeInternal, CodeOf(err))
	})
}

func TestReasons(t *testing.T) {
	err := WithReason(CodeUnauthorized, "NOT_VERIFIED", "quorum not reached")
	require.Error(t, err)
	assert.Equal(t, "NOT_VERIFIED", ReasonOf(err))
	assert.True(t, HasReason(err, "NOT_VERIFIED"))
	assert.False(t, HasReason(err, ""))
	assert.Equal(t, "NOT_VERIFIED: quorum not reached", err.Error())

	wrapped := Wrap(err, CodeInternal, "register")
	assert.Equal(t, "NOT_VERIFIED", ReasonOf(wrapped))
	assert.Equal(t, "register", MessageOf(wrapped))
}
