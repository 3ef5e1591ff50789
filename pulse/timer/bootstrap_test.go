package timer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/teranos/notify/errors"
)

var purgeRegistration = Registration{
	Name:               "purge-notifications-timer",
	HandlerRef:         "callbacks.purge-notifications",
	PeriodicityMinutes: 1440,
}

func newTestRegistrar(t *testing.T, store Store, now time.Time) *Registrar {
	t.Helper()
	anchor, err := ParseAnchor("0 1 * * *")
	require.NoError(t, err)
	return NewRegistrar(store, anchor, fixedClock(now), zaptest.NewLogger(t).Sugar())
}

func TestRegistrarCreatesOnce(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	r := newTestRegistrar(t, store, scanNow)

	created, err := r.Ensure(ctx, purgeRegistration)
	require.NoError(t, err)
	assert.True(t, created)

	created, err = r.Ensure(ctx, purgeRegistration)
	require.NoError(t, err)
	assert.False(t, created)

	all, err := store.ListTimers(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)

	got := all[0]
	assert.Equal(t, "callbacks.purge-notifications", got.HandlerRef)
	assert.Equal(t, 1440, got.PeriodicityMinutes)
	assert.True(t, got.IsActive)
	assert.Nil(t, got.ExecutedAt)
	assert.Equal(t, time.Date(2026, 3, 2, 1, 0, 0, 0, time.UTC), got.CallbackAt, "next 01:00 UTC after noon")
}

func TestRegistrarFirstRunBeforeAnchorSameDay(t *testing.T) {
	r := newTestRegistrar(t, newMemStore(), time.Date(2026, 3, 1, 0, 30, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2026, 3, 1, 1, 0, 0, 0, time.UTC), r.FirstRun())
}

func TestRegistrarLeavesExistingTimerAlone(t *testing.T) {
	ctx := context.Background()
	executed := scanNow.Add(-time.Hour)
	existing := &Timer{
		Name:               purgeRegistration.Name,
		HandlerRef:         "callbacks.legacy",
		CallbackAt:         scanNow.Add(-24 * time.Hour),
		IsActive:           false,
		PeriodicityMinutes: 60,
		ExecutedAt:         &executed,
		ErrorMessage:       "fatal",
	}
	store := newMemStore(existing)

	created, err := newTestRegistrar(t, store, scanNow).Ensure(ctx, purgeRegistration)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Zero(t, store.saveCount(), "disabled timer is not resurrected")

	got := store.get(purgeRegistration.Name)
	assert.False(t, got.IsActive)
	assert.Equal(t, "callbacks.legacy", got.HandlerRef)
}

func TestRegistrarPropagatesStoreErrors(t *testing.T) {
	store := newMemStore()
	store.getErr = errors.New("database is locked")

	created, err := newTestRegistrar(t, store, scanNow).Ensure(context.Background(), purgeRegistration)
	require.Error(t, err)
	assert.False(t, created)
	assert.False(t, errors.IsNotFoundError(err))
	assert.Zero(t, store.saveCount())
}

// blindStore hides existing timers from GetTimer, as if another process
// created the timer between the lookup and the insert
type blindStore struct {
	*SQLStore
}

func (b blindStore) GetTimer(_ context.Context, name string) (*Timer, error) {
	return nil, errors.NewNotFoundError("timer %s", name)
}

func TestRegistrarLosesCreateRace(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	winner := dueTimer(purgeRegistration.Name, "someone-else", 30)
	require.NoError(t, store.SaveTimer(ctx, winner))

	r := newTestRegistrar(t, blindStore{store}, scanNow)
	created, err := r.Ensure(ctx, purgeRegistration)
	require.NoError(t, err)
	assert.False(t, created)

	got, err := store.GetTimer(ctx, purgeRegistration.Name)
	require.NoError(t, err)
	assert.Equal(t, "someone-else", got.HandlerRef)
}

func TestRegistrarEnsureAll(t *testing.T) {
	store := newMemStore()
	r := newTestRegistrar(t, store, scanNow)

	digest := Registration{Name: "daily-digest", HandlerRef: "callbacks.digest", PeriodicityMinutes: 1440}
	n, err := r.EnsureAll(context.Background(), purgeRegistration, digest)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = r.EnsureAll(context.Background(), purgeRegistration, digest)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestParseAnchorRejectsGarbage(t *testing.T) {
	_, err := ParseAnchor("tomorrow at one")
	assert.Error(t, err)
}
