package timer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/notify/errors"
)

func TestRegistryResolve(t *testing.T) {
	r := NewRegistry()
	r.Register("callbacks.noop", succeed(nil))

	h, err := r.Resolve("callbacks.noop")
	require.NoError(t, err)
	assert.NotNil(t, h)

	_, err = r.Resolve("callbacks.missing")
	require.Error(t, err)
	assert.True(t, errors.IsResolutionError(err))
	assert.Contains(t, err.Error(), "callbacks.missing")
	assert.Contains(t, errors.GetAllDetails(err), "handler_ref=callbacks.missing")
}

func TestRegistryNilHandler(t *testing.T) {
	r := NewRegistry()
	r.Register("callbacks.broken", func() Handler { return nil })

	_, err := r.Resolve("callbacks.broken")
	assert.True(t, errors.IsResolutionError(err))
}

func TestRegistryFactoryPanic(t *testing.T) {
	r := NewRegistry()
	r.Register("callbacks.explodes", func() Handler { panic("constructor blew up") })

	var h Handler
	var err error
	require.NotPanics(t, func() { h, err = r.Resolve("callbacks.explodes") })
	assert.Nil(t, h)
	assert.True(t, errors.IsResolutionError(err))
	assert.Contains(t, err.Error(), "factory panicked: constructor blew up")
}

func TestRegistryRegisterPanics(t *testing.T) {
	r := NewRegistry()
	r.Register("a", succeed(nil))

	assert.Panics(t, func() { r.Register("a", succeed(nil)) }, "duplicate")
	assert.Panics(t, func() { r.Register("", succeed(nil)) }, "empty ref")
	assert.Panics(t, func() { r.Register("b", nil) }, "nil factory")
}

func TestRegistryRefs(t *testing.T) {
	r := NewRegistry()
	r.Register("z", succeed(nil))
	r.Register("a", succeed(nil))

	assert.Equal(t, []string{"a", "z"}, r.Refs())
	assert.True(t, r.Has("z"))
	assert.False(t, r.Has("q"))
}

func TestRegistryFreshHandlerPerResolve(t *testing.T) {
	r := NewRegistry()
	built := 0
	r.Register("counted", func() Handler {
		built++
		return HandlerFunc(nil)
	})

	_, _ = r.Resolve("counted")
	_, _ = r.Resolve("counted")
	assert.Equal(t, 2, built)
}
