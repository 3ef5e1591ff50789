package timer

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/teranos/notify/db"
	"github.com/teranos/notify/errors"
	"github.com/teranos/notify/logger"
)

// ErrTriggerThrottled is returned by Trigger when manual scans arrive too fast
var ErrTriggerThrottled = errors.New("scan trigger throttled")

// NextTimerSource reports the next timer to fire, for the ticker's log line
type NextTimerSource interface {
	NextTimer(ctx context.Context) (*Timer, error)
}

// TickerConfig contains configuration for the scan ticker
type TickerConfig struct {
	Interval         time.Duration // 0 = scan only on Start and Trigger
	TriggerBurst     int           // manual triggers allowed back to back
	TriggerPerMinute int           // sustained manual trigger rate; 0 = unlimited
}

// DefaultTickerConfig returns sensible defaults
func DefaultTickerConfig() TickerConfig {
	return TickerConfig{
		Interval:         time.Minute,
		TriggerBurst:     1,
		TriggerPerMinute: 6,
	}
}

// TickerStats is a snapshot of ticker activity
type TickerStats struct {
	Passes        int64      `json:"passes" yaml:"passes"`
	Skipped       int64      `json:"skipped" yaml:"skipped"` // overlapping pass already running
	Failures      int64      `json:"failures" yaml:"failures"`
	TimersRun     int64      `json:"timers_run" yaml:"timers_run"`
	LastScanAt    time.Time  `json:"last_scan_at" yaml:"last_scan_at"`
	LastReport    ScanReport `json:"last_report" yaml:"last_report"`
	NextTimer     string     `json:"next_timer,omitempty" yaml:"next_timer,omitempty"`
	NextTimerDue  time.Time  `json:"next_timer_due,omitempty" yaml:"next_timer_due,omitempty"`
	TriggersTaken int64      `json:"triggers_taken" yaml:"triggers_taken"`
}

// Ticker drives Engine.Scan on an interval and on demand
type Ticker struct {
	engine   *Engine
	next     NextTimerSource
	interval time.Duration
	limiter  *rate.Limiter
	trigger  chan struct{}
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	log      *zap.SugaredLogger
	mu       sync.Mutex
	stats    TickerStats
	lastNext string
}

// NewTicker creates a ticker bound to ctx; cancelling ctx stops it like Stop
func NewTicker(ctx context.Context, engine *Engine, next NextTimerSource, cfg TickerConfig, log *zap.SugaredLogger) *Ticker {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	tickerCtx, cancel := context.WithCancel(ctx)

	limit := rate.Inf
	if cfg.TriggerPerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(cfg.TriggerPerMinute))
	}
	burst := cfg.TriggerBurst
	if burst <= 0 {
		burst = 1
	}

	return &Ticker{
		engine:   engine,
		next:     next,
		interval: cfg.Interval,
		limiter:  rate.NewLimiter(limit, burst),
		trigger:  make(chan struct{}, 1),
		ctx:      tickerCtx,
		cancel:   cancel,
		log:      logger.AddTimerSymbol(log),
	}
}

// Start begins the ticker loop. The first pass runs immediately so overdue
// timers are not held back a full interval after a restart.
func (t *Ticker) Start() {
	t.wg.Add(1)
	go t.run()
	t.log.Infow("Timer ticker started", "interval", t.interval)
}

// Stop cancels the loop and waits for an in-progress pass to finish
func (t *Ticker) Stop() {
	t.cancel()
	t.wg.Wait()
	t.log.Infow("Timer ticker stopped")
}

// Trigger requests an immediate pass. Requests that arrive while one is
// already pending are coalesced.
func (t *Ticker) Trigger() error {
	if !t.limiter.Allow() {
		return ErrTriggerThrottled
	}
	t.mu.Lock()
	t.stats.TriggersTaken++
	t.mu.Unlock()

	select {
	case t.trigger <- struct{}{}:
	default:
	}
	return nil
}

// Stats returns a snapshot of ticker activity
func (t *Ticker) Stats() TickerStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stats
}

func (t *Ticker) run() {
	defer t.wg.Done()

	var tick <-chan time.Time
	if t.interval > 0 {
		ticker := time.NewTicker(t.interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	t.scan()
	for {
		select {
		case <-t.ctx.Done():
			return
		case <-tick:
			t.scan()
		case <-t.trigger:
			t.scan()
		}
	}
}

func (t *Ticker) scan() {
	report, err := t.engine.Scan(t.ctx)

	t.mu.Lock()
	switch {
	case errors.Is(err, ErrScanInProgress):
		t.stats.Skipped++
	case err != nil:
		t.stats.Passes++
		t.stats.Failures++
	default:
		t.stats.Passes++
	}
	t.stats.TimersRun += int64(len(report.Timers))
	if !errors.Is(err, ErrScanInProgress) {
		t.stats.LastScanAt = report.StartedAt
		t.stats.LastReport = report
	}
	t.mu.Unlock()

	if err != nil && !errors.Is(err, context.Canceled) {
		if db.IsDatabaseClosed(err) {
			t.log.Debugw("Timer scan skipped, database closed")
			return
		}
		// Don't spam logs - log errors at warn level
		t.log.Warnw("Timer scan error", logger.FieldError, err)
	}

	t.logNextTimer()
}

// logNextTimer logs time until the next timer fires, only when it changes
func (t *Ticker) logNextTimer() {
	if t.next == nil || t.ctx.Err() != nil {
		return
	}
	next, err := t.next.NextTimer(t.ctx)
	if err != nil {
		if !db.IsDatabaseClosed(err) {
			t.log.Warnw("Failed to get next timer", logger.FieldError, err)
		}
		return
	}

	t.mu.Lock()
	key := ""
	if next != nil {
		key = next.Name + "@" + db.FormatTime(next.CallbackAt)
		t.stats.NextTimer = next.Name
		t.stats.NextTimerDue = next.CallbackAt
	} else {
		t.stats.NextTimer = ""
		t.stats.NextTimerDue = time.Time{}
	}
	changed := key != t.lastNext
	t.lastNext = key
	t.mu.Unlock()

	if !changed {
		return
	}
	if next == nil {
		t.log.Infow("No timers scheduled")
		return
	}

	until := time.Until(next.CallbackAt)
	if until < 0 {
		until = 0
	}
	t.log.Infow("Next timer scheduled",
		logger.FieldTimerName, next.Name,
		logger.FieldCallbackAt, next.CallbackAt,
		"in", until.Round(time.Second))
}
