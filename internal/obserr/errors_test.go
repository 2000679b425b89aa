package obserr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeverityTerminal(t *testing.T) {
	assert.True(t, Error.Terminal())
	assert.True(t, Fatal.Terminal())
	assert.False(t, Warning.Terminal())
	assert.False(t, Info.Terminal())
}

func TestKindOfUnwrapsThroughFmtErrorf(t *testing.T) {
	base := New(OutOfBandFrequency, "dx2 out of band")
	wrapped := fmt.Errorf("activity 42 failed: %w", base)

	kind, ok := KindOf(wrapped)
	require.True(t, ok)
	assert.Equal(t, OutOfBandFrequency, kind)
}

func TestKindOfFalseForPlainError(t *testing.T) {
	_, ok := KindOf(errors.New("plain"))
	assert.False(t, ok)
}

func TestWrapPreservesCauseForUnwrap(t *testing.T) {
	cause := errors.New("statfs failed")
	err := Wrap(FileIOError, "archive root", cause)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "statfs failed")
	assert.Contains(t, err.Error(), "archive root")
}

func TestNewHasNoCause(t *testing.T) {
	err := New(InvalidTarget, "target not visible")
	assert.Nil(t, err.Unwrap())
	assert.Equal(t, "invalid_target: target not visible", err.Error())
}
