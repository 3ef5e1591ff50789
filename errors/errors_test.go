package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapKeepsCause(t *testing.T) {
	original := New("original")
	wrapped := Wrapf(original, "wrapped: %d", 42)

	assert.Contains(t, wrapped.Error(), "wrapped: 42")
	assert.Contains(t, wrapped.Error(), "original")
	assert.True(t, Is(wrapped, original))
	assert.NotNil(t, GetStack(wrapped))
}

type customError struct {
	msg string
}

func (e *customError) Error() string {
	return e.msg
}

func TestAs(t *testing.T) {
	original := &customError{msg: "custom"}
	wrapped := Wrap(original, "wrapped")

	var target *customError
	require.True(t, As(wrapped, &target))
	assert.Equal(t, "custom", target.msg)
}

func TestWithHint(t *testing.T) {
	withHint := WithHint(New("error"), "reactivate the timer manually")

	hints := GetAllHints(withHint)
	require.Len(t, hints, 1)
	assert.Equal(t, "reactivate the timer manually", hints[0])
}

func TestNotFound(t *testing.T) {
	err := NewNotFoundError("timer %s", "purge-notifications-timer")

	assert.True(t, IsNotFoundError(err))
	assert.True(t, IsNotFoundError(Wrap(err, "bootstrap")))
	assert.Contains(t, err.Error(), "purge-notifications-timer")
	assert.False(t, IsNotFoundError(nil))
	assert.False(t, IsNotFoundError(New("not found")), "string match alone is not enough")
}

func TestInvalidRequest(t *testing.T) {
	err := NewInvalidRequestError("priority %d out of range", 9)

	assert.True(t, IsInvalidRequestError(err))
	assert.False(t, IsNotFoundError(err))
}

func TestResolutionError(t *testing.T) {
	err := NewResolutionError("callbacks.missing", "no factory registered")

	assert.True(t, IsResolutionError(err))
	assert.Contains(t, err.Error(), "callbacks.missing")
	assert.Contains(t, err.Error(), "no factory registered")
	assert.Contains(t, GetAllDetails(err), "handler_ref=callbacks.missing")
}

func TestFromPanic(t *testing.T) {
	t.Run("string value", func(t *testing.T) {
		err := FromPanic("boom")
		assert.Equal(t, "panic: boom", err.Error())
		assert.NotNil(t, GetStack(err))
	})

	t.Run("error value keeps chain", func(t *testing.T) {
		cause := fmt.Errorf("nil map: %w", ErrInvalidRequest)
		err := FromPanic(cause)
		assert.True(t, IsInvalidRequestError(err))
		assert.Contains(t, err.Error(), "panic")
	})
}
