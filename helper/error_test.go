package helper

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewError(t *testing.T) {
	t.Run("Wrap plain error", func(t *testing.T) {
		err := NewError("load file", errors.New("permission denied"))

		require.Error(t, err)
		assert.Equal(t, "load file: permission denied", err.Error())
	})

	t.Run("Wrap already wrapped error extends trace", func(t *testing.T) {
		inner := NewError("scan", errors.New("bad row"))
		outer := NewError("query", inner)

		assert.Equal(t, "query: scan: bad row", outer.Error())

		var e *Error
		require.True(t, errors.As(outer, &e))
		assert.Equal(t, []string{"query", "scan"}, e.Trace)
	})

	t.Run("Sentinel errors survive wrapping", func(t *testing.T) {
		sentinel := errors.New("sentinel")
		err := NewError("outer", fmt.Errorf("middle: %w", sentinel))

		assert.True(t, errors.Is(err, sentinel), "Expected errors.Is to find the sentinel")
	})

	t.Run("Nil original error", func(t *testing.T) {
		err := NewError("noop", nil)

		assert.Contains(t, err.Error(), "unknown error")
	})
}
