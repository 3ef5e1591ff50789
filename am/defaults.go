package am

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	v.SetDefault("database.path", DefaultDatabasePath)

	v.SetDefault("logging.json", false)
	v.SetDefault("logging.level", DefaultLogLevel)

	v.SetDefault("notifications.max_list_size", DefaultMaxListSize)
	v.SetDefault("notifications.purge_read_older_than_days", 0)
	v.SetDefault("notifications.purge_unread_older_than_days", 0)
	v.SetDefault("notifications.archive_enabled", false)

	v.SetDefault("timers.minimum_periodicity_minutes", DefaultMinimumPeriodicityMinutes)
	v.SetDefault("timers.ticker_interval_seconds", DefaultTickerIntervalSeconds)
	v.SetDefault("timers.bootstrap_anchor", DefaultBootstrapAnchor)
	v.SetDefault("timers.trigger_burst", DefaultTriggerBurst)
	v.SetDefault("timers.trigger_per_minute", DefaultTriggerPerMinute)
}

// BindEnvVars explicitly binds the settings most often overridden in deployments
func BindEnvVars(v *viper.Viper) {
	v.BindEnv("database.path", EnvPrefix+"_DATABASE_PATH")
	v.BindEnv("logging.level", EnvPrefix+"_LOG_LEVEL")
	v.BindEnv("timers.minimum_periodicity_minutes", EnvPrefix+"_MINIMUM_PERIODICITY_MINS")
}

// GetDatabasePath returns the configured database path
func (c *Config) GetDatabasePath() string {
	if c.Database.Path == "" {
		return DefaultDatabasePath
	}
	return c.Database.Path
}

// MinimumPeriodicity returns the re-run floor, defaulting to one hour when unset
func (c *Config) MinimumPeriodicity() time.Duration {
	if c.Timers.MinimumPeriodicityMinutes <= 0 {
		return DefaultMinimumPeriodicityMinutes * time.Minute
	}
	return time.Duration(c.Timers.MinimumPeriodicityMinutes) * time.Minute
}

// TickerInterval returns the scan interval; zero disables periodic scanning
func (c *Config) TickerInterval() time.Duration {
	return time.Duration(c.Timers.TickerIntervalSeconds) * time.Second
}

// GetBootstrapAnchor returns the cron expression for first runs
func (c *Config) GetBootstrapAnchor() string {
	if c.Timers.BootstrapAnchor == "" {
		return DefaultBootstrapAnchor
	}
	return c.Timers.BootstrapAnchor
}

// GetMaxListSize returns the cap for list queries
func (c *Config) GetMaxListSize() int {
	if c.Notifications.MaxListSize <= 0 {
		return DefaultMaxListSize
	}
	return c.Notifications.MaxListSize
}

// String returns a string representation of the config
func (c *Config) String() string {
	return fmt.Sprintf("Config{Database: %s, Timers: {Floor: %dm, Ticker: %ds, Anchor: %q}}",
		c.GetDatabasePath(), c.Timers.MinimumPeriodicityMinutes, c.Timers.TickerIntervalSeconds, c.GetBootstrapAnchor())
}
