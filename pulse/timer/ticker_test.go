package timer

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// countingResolver counts resolutions so tests can wait for passes
type countingResolver struct {
	inner *Registry
	n     atomic.Int64
}

func (c *countingResolver) Resolve(ref string) (Handler, error) {
	c.n.Add(1)
	return c.inner.Resolve(ref)
}

func TestTickerRunsInitialPass(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.SaveTimer(context.Background(), dueTimer("t", "ok", 60)))

	reg := NewRegistry()
	reg.Register("ok", succeed(nil))
	engine := newTestEngine(t, store, reg)

	ticker := NewTicker(context.Background(), engine, store, TickerConfig{Interval: 0}, zaptest.NewLogger(t).Sugar())
	ticker.Start()

	require.Eventually(t, func() bool { return ticker.Stats().NextTimer != "" }, 5*time.Second, 10*time.Millisecond)
	ticker.Stop()

	stats := ticker.Stats()
	assert.EqualValues(t, 1, stats.TimersRun)
	assert.Equal(t, 1, stats.LastReport.Count(OutcomeRescheduled))
	assert.Equal(t, "t", stats.NextTimer)
	assert.Equal(t, scanNow, stats.NextTimerDue, "one hour after the original callback")
}

func TestTickerTrigger(t *testing.T) {
	store := newMemStore()
	resolver := &countingResolver{inner: NewRegistry()}
	engine := NewEngine(store, resolver, EngineConfig{Clock: fixedClock(scanNow)}, zaptest.NewLogger(t).Sugar())

	ticker := NewTicker(context.Background(), engine, nil, TickerConfig{TriggerBurst: 1, TriggerPerMinute: 1}, zaptest.NewLogger(t).Sugar())
	ticker.Start()
	defer ticker.Stop()

	require.Eventually(t, func() bool { return ticker.Stats().Passes == 1 }, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, ticker.Trigger())
	require.Eventually(t, func() bool { return ticker.Stats().Passes == 2 }, 5*time.Second, 10*time.Millisecond)

	assert.ErrorIs(t, ticker.Trigger(), ErrTriggerThrottled, "burst of one per minute is spent")
	assert.EqualValues(t, 1, ticker.Stats().TriggersTaken)
}

func TestTickerInterval(t *testing.T) {
	engine := NewEngine(newMemStore(), NewRegistry(), EngineConfig{}, nil)
	ticker := NewTicker(context.Background(), engine, nil, TickerConfig{Interval: 10 * time.Millisecond}, nil)
	ticker.Start()

	require.Eventually(t, func() bool { return ticker.Stats().Passes >= 3 }, 5*time.Second, 5*time.Millisecond)
	ticker.Stop()

	passes := ticker.Stats().Passes
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, passes, ticker.Stats().Passes, "no passes after Stop")
}

func TestTickerStopsWithParentContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	engine := NewEngine(newMemStore(), NewRegistry(), EngineConfig{}, nil)
	ticker := NewTicker(ctx, engine, nil, TickerConfig{Interval: time.Hour}, nil)
	ticker.Start()

	cancel()
	done := make(chan struct{})
	go func() {
		ticker.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("ticker did not stop")
	}
}
