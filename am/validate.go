package am

import (
	"github.com/robfig/cron/v3"

	"github.com/teranos/notify/errors"
	"github.com/teranos/notify/logger"
)

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if c.Logging.Level != "" {
		if _, err := logger.ParseLevel(c.Logging.Level); err != nil {
			return errors.Wrapf(err, "logging.level %q is not a zap level", c.Logging.Level)
		}
	}

	// max_list_size: 0 = default, negative = invalid
	if c.Notifications.MaxListSize < 0 {
		return errors.Newf("notifications.max_list_size must be >= 0, got %d", c.Notifications.MaxListSize)
	}
	if c.Notifications.PurgeReadOlderThanDays < 0 {
		return errors.Newf("notifications.purge_read_older_than_days must be >= 0, got %d", c.Notifications.PurgeReadOlderThanDays)
	}
	if c.Notifications.PurgeUnreadOlderThanDays < 0 {
		return errors.Newf("notifications.purge_unread_older_than_days must be >= 0, got %d", c.Notifications.PurgeUnreadOlderThanDays)
	}

	// The floor may be raised or lowered, but never disabled
	if c.Timers.MinimumPeriodicityMinutes < 0 {
		return errors.Newf("timers.minimum_periodicity_minutes must be >= 0, got %d", c.Timers.MinimumPeriodicityMinutes)
	}

	// Ticker interval: 0 = manual scans only, negative = invalid
	if c.Timers.TickerIntervalSeconds < 0 {
		return errors.Newf("timers.ticker_interval_seconds must be >= 0, got %d", c.Timers.TickerIntervalSeconds)
	}

	if c.Timers.TriggerBurst < 0 {
		return errors.Newf("timers.trigger_burst must be >= 0, got %d", c.Timers.TriggerBurst)
	}
	if c.Timers.TriggerPerMinute < 0 {
		return errors.Newf("timers.trigger_per_minute must be >= 0, got %d", c.Timers.TriggerPerMinute)
	}

	if _, err := cron.ParseStandard(c.GetBootstrapAnchor()); err != nil {
		return errors.WithHint(
			errors.Wrapf(err, "timers.bootstrap_anchor %q is not a valid cron expression", c.Timers.BootstrapAnchor),
			"use five fields, e.g. \"0 1 * * *\" for 01:00 UTC",
		)
	}

	return nil
}
