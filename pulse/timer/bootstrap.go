package timer

import (
	"context"
	"maps"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/teranos/notify/errors"
	"github.com/teranos/notify/logger"
)

// Registration describes a well-known timer the process expects to exist
type Registration struct {
	Name               string
	HandlerRef         string
	PeriodicityMinutes int
	Context            map[string]any
}

// ParseAnchor parses a five-field cron expression evaluated in UTC.
// The anchor's next firing after startup is a new timer's first callback.
func ParseAnchor(spec string) (cron.Schedule, error) {
	sched, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid bootstrap anchor %q", spec)
	}
	return sched, nil
}

// Registrar seeds well-known timers. Registering is safe on every start:
// a timer that already exists is never touched, whatever state it is in.
type Registrar struct {
	store  Store
	anchor cron.Schedule
	now    func() time.Time
	log    *zap.SugaredLogger
}

// NewRegistrar creates a registrar. clock may be nil for time.Now.
func NewRegistrar(store Store, anchor cron.Schedule, clock func() time.Time, log *zap.SugaredLogger) *Registrar {
	if clock == nil {
		clock = time.Now
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Registrar{store: store, anchor: anchor, now: clock, log: logger.AddTimerSymbol(log)}
}

// FirstRun returns when a timer registered now would first fire
func (r *Registrar) FirstRun() time.Time {
	return r.anchor.Next(r.now().UTC())
}

// Ensure creates the timer if no timer of that name exists.
// It reports whether a timer was created. Store errors other than not-found
// are returned unchanged in kind.
func (r *Registrar) Ensure(ctx context.Context, reg Registration) (bool, error) {
	existing, err := r.store.GetTimer(ctx, reg.Name)
	if err == nil {
		r.log.Debugw("Timer already registered",
			logger.FieldTimerName, existing.Name,
			"is_active", existing.IsActive,
			logger.FieldCallbackAt, existing.CallbackAt)
		return false, nil
	}
	if !errors.IsNotFoundError(err) {
		return false, errors.Wrapf(err, "failed to look up timer %s", reg.Name)
	}

	t := &Timer{
		Name:               reg.Name,
		CallbackAt:         r.FirstRun(),
		HandlerRef:         reg.HandlerRef,
		Context:            maps.Clone(reg.Context),
		IsActive:           true,
		PeriodicityMinutes: reg.PeriodicityMinutes,
	}
	if err := r.create(ctx, t); err != nil {
		if errors.Is(err, errors.ErrConflict) {
			r.log.Debugw("Timer registered concurrently, leaving it alone", logger.FieldTimerName, t.Name)
			return false, nil
		}
		return false, errors.Wrapf(err, "failed to register timer %s", reg.Name)
	}

	r.log.Infow("Timer registered",
		logger.FieldTimerName, t.Name,
		logger.FieldHandlerRef, t.HandlerRef,
		logger.FieldCallbackAt, t.CallbackAt,
		"periodicity_minutes", t.PeriodicityMinutes)
	return true, nil
}

func (r *Registrar) create(ctx context.Context, t *Timer) error {
	if c, ok := r.store.(Creator); ok {
		return c.CreateTimer(ctx, t)
	}
	return r.store.SaveTimer(ctx, t)
}

// EnsureAll registers each timer in order, stopping at the first error
func (r *Registrar) EnsureAll(ctx context.Context, regs ...Registration) (created int, err error) {
	for _, reg := range regs {
		ok, err := r.Ensure(ctx, reg)
		if err != nil {
			return created, err
		}
		if ok {
			created++
		}
	}
	return created, nil
}
