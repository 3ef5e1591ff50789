// Package timer is the durable callback-timer engine: named timers stored in
// SQLite are scanned for due callbacks, their handlers are resolved through a
// registry and invoked, and each outcome decides whether and when the timer
// runs again.
package timer

import (
	"context"
	"maps"
	"math"
	"strings"
	"time"

	"github.com/teranos/notify/errors"
)

// Timer is a named, persisted callback.
//
// A timer is due when it is active, not in flight (ExecutedAt nil) and its
// CallbackAt has passed. The engine never deletes timers and never
// re-activates one it has disabled.
type Timer struct {
	Name       string         `json:"name" yaml:"name"`
	CallbackAt time.Time      `json:"callback_at" yaml:"callback_at"`
	HandlerRef string         `json:"handler_ref" yaml:"handler_ref"`
	Context    map[string]any `json:"context,omitempty" yaml:"context,omitempty"`
	IsActive   bool           `json:"is_active" yaml:"is_active"`

	// Default re-run interval. 0 = one-shot unless the handler asks otherwise.
	PeriodicityMinutes int `json:"periodicity_minutes,omitempty" yaml:"periodicity_minutes,omitempty"`

	// Set when the engine picks the timer up, cleared when it is rescheduled
	ExecutedAt *time.Time `json:"executed_at,omitempty" yaml:"executed_at,omitempty"`

	ErrorMessage string         `json:"error_message,omitempty" yaml:"error_message,omitempty"`
	Results      map[string]any `json:"results,omitempty" yaml:"results,omitempty"`
	Created      time.Time      `json:"created" yaml:"created"`
	Modified     time.Time      `json:"modified" yaml:"modified"`
}

// Validate checks the fields a timer needs before it can be stored
func (t *Timer) Validate() error {
	if strings.TrimSpace(t.Name) == "" {
		return errors.NewInvalidRequestError("timer name is required")
	}
	if strings.TrimSpace(t.HandlerRef) == "" {
		return errors.NewInvalidRequestError("timer %s: handler_ref is required", t.Name)
	}
	if t.CallbackAt.IsZero() {
		return errors.NewInvalidRequestError("timer %s: callback_at is required", t.Name)
	}
	if t.PeriodicityMinutes < 0 {
		return errors.NewInvalidRequestError("timer %s: periodicity_minutes must be >= 0, got %d", t.Name, t.PeriodicityMinutes)
	}
	return nil
}

// IsDue reports whether the engine would pick the timer up at now
func (t *Timer) IsDue(now time.Time) bool {
	return t.IsActive && t.ExecutedAt == nil && !t.CallbackAt.After(now)
}

// InFlight reports whether the timer has been picked up and not rescheduled
func (t *Timer) InFlight() bool {
	return t.ExecutedAt != nil
}

// Clone returns a deep-enough copy for handing to a handler: maps and the
// ExecutedAt pointer are not shared with the original.
func (t *Timer) Clone() *Timer {
	c := *t
	c.Context = maps.Clone(t.Context)
	c.Results = maps.Clone(t.Results)
	if t.ExecutedAt != nil {
		at := *t.ExecutedAt
		c.ExecutedAt = &at
	}
	return &c
}

// Result is what a handler reports back.
//
// A non-empty Errors list is a soft failure: the timer stays active but is
// not advanced. RescheduleInMinutes overrides the timer's periodicity for
// the next run. Fields carries anything else the handler wants persisted.
type Result struct {
	Errors              []string
	RescheduleInMinutes int
	Fields              map[string]any
}

// Failed reports whether the handler reported errors
func (r Result) Failed() bool {
	return len(r.Errors) > 0
}

// ErrorMessage joins the reported errors for storage
func (r Result) ErrorMessage() string {
	return strings.Join(r.Errors, "; ")
}

// Payload flattens the result into the map persisted as the timer's results
func (r Result) Payload() map[string]any {
	out := make(map[string]any, len(r.Fields)+2)
	maps.Copy(out, r.Fields)
	if len(r.Errors) > 0 {
		out["errors"] = append([]string(nil), r.Errors...)
	}
	if r.RescheduleInMinutes > 0 {
		out["reschedule_in_minutes"] = r.RescheduleInMinutes
	}
	return out
}

// Handler is the callback a timer resolves to.
// Implementations receive a copy of the timer; changes to it are discarded.
type Handler interface {
	NotificationTimerCallback(ctx context.Context, t *Timer) (Result, error)
}

// HandlerFunc adapts a function to Handler
type HandlerFunc func(ctx context.Context, t *Timer) (Result, error)

// NotificationTimerCallback calls f
func (f HandlerFunc) NotificationTimerCallback(ctx context.Context, t *Timer) (Result, error) {
	return f(ctx, t)
}

// Factory builds a fresh handler for one invocation
type Factory func() Handler

// MaxIntervalMinutes is the largest interval a time.Duration can hold
const MaxIntervalMinutes = int(math.MaxInt64 / int64(time.Minute))

// FloorInterval converts minutes to a duration no shorter than floor.
// Minutes beyond MaxIntervalMinutes are clamped rather than overflowing.
func FloorInterval(minutes int, floor time.Duration) time.Duration {
	if minutes > MaxIntervalMinutes {
		minutes = MaxIntervalMinutes
	}
	d := time.Duration(minutes) * time.Minute
	if d < floor {
		return floor
	}
	return d
}
