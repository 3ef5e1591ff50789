package timer

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/notify/errors"
	"github.com/teranos/notify/logger"
)

// DefaultMinimumPeriodicity is the floor applied to every re-run interval
const DefaultMinimumPeriodicity = 60 * time.Minute

// ErrScanInProgress is returned by Scan when another pass is still running
var ErrScanInProgress = errors.New("timer scan already in progress")

// Outcome classifies what happened to one timer during a pass
type Outcome string

const (
	OutcomeRescheduled Outcome = "rescheduled"  // success, callback_at advanced
	OutcomeCompleted   Outcome = "completed"    // success, no interval: stays in flight
	OutcomeSoftFailure Outcome = "soft_failure" // handler reported errors
	OutcomeHardFailure Outcome = "hard_failure" // resolution failure, handler error or panic: disabled
	OutcomeStoreError  Outcome = "store_error"  // state could not be persisted
)

// TimerOutcome is the per-timer line of a ScanReport
type TimerOutcome struct {
	Name       string        `json:"name" yaml:"name"`
	Outcome    Outcome       `json:"outcome" yaml:"outcome"`
	CallbackAt time.Time     `json:"callback_at" yaml:"callback_at"`
	Error      string        `json:"error,omitempty" yaml:"error,omitempty"`
	Duration   time.Duration `json:"duration" yaml:"duration"`
}

// ScanReport summarises one pass
type ScanReport struct {
	StartedAt time.Time      `json:"started_at" yaml:"started_at"`
	Duration  time.Duration  `json:"duration" yaml:"duration"`
	Due       int            `json:"due" yaml:"due"`
	Timers    []TimerOutcome `json:"timers" yaml:"timers"`
}

// Count returns how many timers ended with outcome o
func (r ScanReport) Count(o Outcome) int {
	n := 0
	for _, t := range r.Timers {
		if t.Outcome == o {
			n++
		}
	}
	return n
}

// EngineConfig configures an Engine
type EngineConfig struct {
	MinimumPeriodicity time.Duration    // 0 = DefaultMinimumPeriodicity
	Clock              func() time.Time // nil = time.Now
}

// Engine runs scan passes over a Store, resolving handlers through a Resolver.
// One Engine allows one pass at a time; processes sharing a database are
// at-least-once, not exactly-once.
type Engine struct {
	store    Store
	resolver Resolver
	floor    atomic.Int64
	now      func() time.Time
	log      *zap.SugaredLogger
	running  atomic.Bool
}

// NewEngine creates an engine with injected store and resolver
func NewEngine(store Store, resolver Resolver, cfg EngineConfig, log *zap.SugaredLogger) *Engine {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	e := &Engine{
		store:    store,
		resolver: resolver,
		now:      cfg.Clock,
		log:      logger.AddTimerSymbol(log),
	}
	if e.now == nil {
		e.now = time.Now
	}
	e.SetMinimumPeriodicity(cfg.MinimumPeriodicity)
	return e
}

// SetMinimumPeriodicity changes the floor for subsequent reschedules.
// Non-positive values restore the default. Safe to call during a pass.
func (e *Engine) SetMinimumPeriodicity(d time.Duration) {
	if d <= 0 {
		d = DefaultMinimumPeriodicity
	}
	e.floor.Store(int64(d))
}

// MinimumPeriodicity returns the current floor
func (e *Engine) MinimumPeriodicity() time.Duration {
	return time.Duration(e.floor.Load())
}

// Scan runs one pass: every due timer is marked in flight, invoked and
// persisted in callback order. A failure on one timer never stops the pass;
// only a failure to list due timers or a cancelled context ends it early.
func (e *Engine) Scan(ctx context.Context) (report ScanReport, err error) {
	if !e.running.CompareAndSwap(false, true) {
		return ScanReport{}, ErrScanInProgress
	}
	defer e.running.Store(false)

	start := time.Now()
	now := e.now().UTC()
	report.StartedAt = now
	defer func() { report.Duration = time.Since(start) }()

	due, err := e.store.ListDueTimers(ctx, now)
	if err != nil {
		return report, errors.Wrap(err, "failed to list due timers")
	}
	report.Due = len(due)
	if len(due) == 0 {
		e.log.Debugw("No timers due", "at", now)
		return report, nil
	}

	e.log.Infow("Timer scan started", logger.FieldCount, len(due))

	for _, t := range due {
		if err := ctx.Err(); err != nil {
			e.log.Warnw("Timer scan cancelled",
				"remaining", len(due)-len(report.Timers),
				logger.FieldError, err)
			return report, err
		}
		report.Timers = append(report.Timers, e.process(ctx, t, now))
	}

	e.log.Infow("Timer scan finished",
		logger.FieldCount, len(due),
		string(OutcomeRescheduled), report.Count(OutcomeRescheduled),
		string(OutcomeCompleted), report.Count(OutcomeCompleted),
		string(OutcomeSoftFailure), report.Count(OutcomeSoftFailure),
		string(OutcomeHardFailure), report.Count(OutcomeHardFailure),
		string(OutcomeStoreError), report.Count(OutcomeStoreError),
	)
	return report, nil
}

// process executes a single due timer and persists the resulting state
func (e *Engine) process(ctx context.Context, t *Timer, now time.Time) TimerOutcome {
	start := time.Now()
	ctx = logger.WithTimerName(ctx, t.Name)
	log := logger.FromContext(ctx, e.log).With(logger.FieldHandlerRef, t.HandlerRef)

	out := TimerOutcome{Name: t.Name}
	finish := func(o Outcome, err error) TimerOutcome {
		out.Outcome = o
		out.CallbackAt = t.CallbackAt
		out.Duration = time.Since(start)
		if err != nil {
			out.Error = err.Error()
		}
		return out
	}

	// In-flight mark goes to the store before any handler code runs
	executedAt := now
	t.ExecutedAt = &executedAt
	if err := e.store.SaveTimer(ctx, t); err != nil {
		log.Errorw("Failed to mark timer in flight, skipping", logger.FieldError, err)
		return finish(OutcomeStoreError, err)
	}

	handler, err := e.resolver.Resolve(t.HandlerRef)
	if err != nil {
		return finish(e.disable(ctx, t, err, log), err)
	}

	result, err := e.invoke(ctx, handler, t.Clone())
	if err != nil {
		return finish(e.disable(ctx, t, err, log), err)
	}

	t.Results = result.Payload()

	if result.Failed() {
		t.ErrorMessage = result.ErrorMessage()
		if err := e.store.SaveTimer(ctx, t); err != nil {
			log.Errorw("Failed to persist soft failure", logger.FieldError, err)
			return finish(OutcomeStoreError, err)
		}
		log.Warnw("Timer handler reported errors",
			logger.FieldOutcome, OutcomeSoftFailure,
			"errors", result.Errors,
			logger.FieldDurationMS, time.Since(start).Milliseconds())
		return finish(OutcomeSoftFailure, nil)
	}

	t.ErrorMessage = ""
	outcome := OutcomeCompleted
	if interval := e.nextInterval(t, result, log); interval > 0 {
		t.CallbackAt = t.CallbackAt.Add(interval)
		t.ExecutedAt = nil
		outcome = OutcomeRescheduled
	}

	if err := e.store.SaveTimer(ctx, t); err != nil {
		log.Errorw("Failed to persist timer after success", logger.FieldError, err)
		return finish(OutcomeStoreError, err)
	}

	log.Infow("Timer executed",
		logger.FieldOutcome, outcome,
		logger.FieldCallbackAt, t.CallbackAt,
		logger.FieldDurationMS, time.Since(start).Milliseconds())
	return finish(outcome, nil)
}

// nextInterval picks the handler override, then the timer's periodicity,
// floored. Zero means no further run.
func (e *Engine) nextInterval(t *Timer, result Result, log *zap.SugaredLogger) time.Duration {
	minutes := result.RescheduleInMinutes
	if minutes <= 0 {
		minutes = t.PeriodicityMinutes
	}
	if minutes <= 0 {
		return 0
	}
	if minutes > MaxIntervalMinutes {
		log.Warnw("Reschedule interval too large, clamping",
			"requested_minutes", minutes,
			"clamped_minutes", MaxIntervalMinutes)
	}
	return FloorInterval(minutes, e.MinimumPeriodicity())
}

// invoke is the boundary between the engine and handler code: handler
// panics come back as errors.
func (e *Engine) invoke(ctx context.Context, h Handler, t *Timer) (result Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Wrap(errors.FromPanic(r), "handler panicked")
		}
	}()
	return h.NotificationTimerCallback(ctx, t)
}

// disable records a hard failure. executed_at is left as marked.
func (e *Engine) disable(ctx context.Context, t *Timer, cause error, log *zap.SugaredLogger) Outcome {
	t.ErrorMessage = cause.Error()
	t.IsActive = false

	log.Errorw("Timer disabled after handler failure",
		logger.FieldOutcome, OutcomeHardFailure,
		logger.FieldError, cause,
		"resolution", errors.IsResolutionError(cause))

	if err := e.store.SaveTimer(ctx, t); err != nil {
		log.Errorw("Failed to persist disabled timer", logger.FieldError, err)
		return OutcomeStoreError
	}
	return OutcomeHardFailure
}
