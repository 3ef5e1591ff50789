package am

// Config represents the notify configuration
type Config struct {
	Database      DatabaseConfig      `mapstructure:"database" toml:"database" json:"database" yaml:"database"`
	Logging       LoggingConfig       `mapstructure:"logging" toml:"logging" json:"logging" yaml:"logging"`
	Notifications NotificationsConfig `mapstructure:"notifications" toml:"notifications" json:"notifications" yaml:"notifications"`
	Timers        TimersConfig        `mapstructure:"timers" toml:"timers" json:"timers" yaml:"timers"`
}

// DatabaseConfig configures the SQLite database
type DatabaseConfig struct {
	Path string `mapstructure:"path" toml:"path" json:"path" yaml:"path"`
}

// LoggingConfig configures the zap logger
type LoggingConfig struct {
	JSON  bool   `mapstructure:"json" toml:"json" json:"json" yaml:"json"`
	Level string `mapstructure:"level" toml:"level" json:"level" yaml:"level"` // debug, info, warn, error
}

// NotificationsConfig configures notification storage and retention
type NotificationsConfig struct {
	MaxListSize int `mapstructure:"max_list_size" toml:"max_list_size" json:"max_list_size" yaml:"max_list_size"`

	// Retention windows in days. 0 = keep forever.
	PurgeReadOlderThanDays   int `mapstructure:"purge_read_older_than_days" toml:"purge_read_older_than_days" json:"purge_read_older_than_days" yaml:"purge_read_older_than_days"`
	PurgeUnreadOlderThanDays int `mapstructure:"purge_unread_older_than_days" toml:"purge_unread_older_than_days" json:"purge_unread_older_than_days" yaml:"purge_unread_older_than_days"`

	ArchiveEnabled bool `mapstructure:"archive_enabled" toml:"archive_enabled" json:"archive_enabled" yaml:"archive_enabled"`
}

// TimersConfig configures the callback timer engine
type TimersConfig struct {
	// Floor applied to every re-run interval
	MinimumPeriodicityMinutes int `mapstructure:"minimum_periodicity_minutes" toml:"minimum_periodicity_minutes" json:"minimum_periodicity_minutes" yaml:"minimum_periodicity_minutes"`

	// How often the ticker scans for due timers. 0 = manual scans only.
	TickerIntervalSeconds int `mapstructure:"ticker_interval_seconds" toml:"ticker_interval_seconds" json:"ticker_interval_seconds" yaml:"ticker_interval_seconds"`

	// Cron expression (UTC) giving the first run of bootstrapped timers
	BootstrapAnchor string `mapstructure:"bootstrap_anchor" toml:"bootstrap_anchor" json:"bootstrap_anchor" yaml:"bootstrap_anchor"`

	// Throttle for manually triggered scans
	TriggerBurst     int `mapstructure:"trigger_burst" toml:"trigger_burst" json:"trigger_burst" yaml:"trigger_burst"`
	TriggerPerMinute int `mapstructure:"trigger_per_minute" toml:"trigger_per_minute" json:"trigger_per_minute" yaml:"trigger_per_minute"`
}

// Defaults shared between SetDefaults and the zero-value getters
const (
	DefaultDatabasePath              = "notify.db"
	DefaultLogLevel                  = "info"
	DefaultMaxListSize               = 100
	DefaultMinimumPeriodicityMinutes = 60
	DefaultTickerIntervalSeconds     = 60
	DefaultBootstrapAnchor           = "0 1 * * *" // 01:00 UTC
	DefaultTriggerBurst              = 1
	DefaultTriggerPerMinute          = 6
)

// File system constants
const (
	DefaultDirPermissions  = 0755 // Standard directory permissions (rwxr-xr-x)
	DefaultFilePermissions = 0644 // Standard file permissions (rw-r--r--)
)

// EnvPrefix prefixes every environment override (NOTIFY_TIMERS_MINIMUM_PERIODICITY_MINUTES, ...)
const EnvPrefix = "NOTIFY"
