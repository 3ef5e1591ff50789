// Package callbacks holds the timer handlers shipped with notify.
package callbacks

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/notify/logger"
	"github.com/teranos/notify/pulse/timer"
)

const (
	// PurgeNotificationsRef is the handler reference the purge timer resolves
	PurgeNotificationsRef = "callbacks.purge-notifications"
	// PurgeNotificationsTimerName is the well-known timer seeded at startup
	PurgeNotificationsTimerName = "purge-notifications-timer"

	MinutesInADay = 24 * 60
)

// Purger is the slice of the notification store the purge handler needs
type Purger interface {
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
	PurgeOlderThan(ctx context.Context, cutoff time.Time, read bool) (int64, error)
}

// PurgeConfig sets the retention windows. A zero window keeps those
// notifications forever.
type PurgeConfig struct {
	ReadOlderThanDays   int
	UnreadOlderThanDays int
	Clock               func() time.Time
}

// PurgeNotificationsHandler removes expired notifications and, when
// configured, old read and unread ones.
type PurgeNotificationsHandler struct {
	store Purger
	cfg   PurgeConfig
	log   *zap.SugaredLogger
}

// NewPurgeNotificationsHandler creates the handler
func NewPurgeNotificationsHandler(store Purger, cfg PurgeConfig, log *zap.SugaredLogger) *PurgeNotificationsHandler {
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &PurgeNotificationsHandler{store: store, cfg: cfg, log: logger.AddNotifySymbol(log)}
}

// NotificationTimerCallback runs each purge step. A failing step is
// reported in the result and the remaining steps still run, so the timer
// is kept active for an operator to look at rather than disabled.
func (h *PurgeNotificationsHandler) NotificationTimerCallback(ctx context.Context, t *timer.Timer) (timer.Result, error) {
	now := h.cfg.Clock().UTC()
	res := timer.Result{Fields: map[string]any{
		"expired_purged": int64(0),
		"read_purged":    int64(0),
		"unread_purged":  int64(0),
	}}

	step := func(field string, fn func() (int64, error)) {
		n, err := fn()
		if err != nil {
			h.log.Warnw("Purge step failed", "step", field, logger.FieldError, err)
			res.Errors = append(res.Errors, field+": "+err.Error())
			return
		}
		res.Fields[field] = n
	}

	step("expired_purged", func() (int64, error) {
		return h.store.PurgeExpired(ctx, now)
	})
	if days := h.cfg.ReadOlderThanDays; days > 0 {
		step("read_purged", func() (int64, error) {
			return h.store.PurgeOlderThan(ctx, now.AddDate(0, 0, -days), true)
		})
	}
	if days := h.cfg.UnreadOlderThanDays; days > 0 {
		step("unread_purged", func() (int64, error) {
			return h.store.PurgeOlderThan(ctx, now.AddDate(0, 0, -days), false)
		})
	}

	h.log.Infow("Notification purge finished",
		logger.FieldTimerName, t.Name,
		"expired_purged", res.Fields["expired_purged"],
		"read_purged", res.Fields["read_purged"],
		"unread_purged", res.Fields["unread_purged"],
		"errors", len(res.Errors))
	return res, nil
}

// Register adds every built-in handler to reg
func Register(reg *timer.Registry, store Purger, cfg PurgeConfig, log *zap.SugaredLogger) {
	reg.Register(PurgeNotificationsRef, func() timer.Handler {
		return NewPurgeNotificationsHandler(store, cfg, log)
	})
}

// PurgeNotificationsRegistration describes the daily purge timer
func PurgeNotificationsRegistration() timer.Registration {
	return timer.Registration{
		Name:               PurgeNotificationsTimerName,
		HandlerRef:         PurgeNotificationsRef,
		PeriodicityMinutes: MinutesInADay,
	}
}

// RegisterPurgeNotificationsTimer seeds the purge timer if it does not exist yet
func RegisterPurgeNotificationsTimer(ctx context.Context, r *timer.Registrar) (bool, error) {
	return r.Ensure(ctx, PurgeNotificationsRegistration())
}

// Registrations lists every well-known timer, for bootstrapping in one call
func Registrations() []timer.Registration {
	return []timer.Registration{PurgeNotificationsRegistration()}
}
