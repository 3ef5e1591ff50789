package commands

import (
	"database/sql"

	"go.uber.org/zap"

	"github.com/teranos/notify/am"
	"github.com/teranos/notify/callbacks"
	"github.com/teranos/notify/notification"
	"github.com/teranos/notify/pulse/timer"
)

// timerRuntime is everything a timer command needs, built from one config
type timerRuntime struct {
	timers    *timer.SQLStore
	notes     *notification.Store
	registry  *timer.Registry
	engine    *timer.Engine
	registrar *timer.Registrar
}

func newTimerRuntime(database *sql.DB, cfg *am.Config, log *zap.SugaredLogger) (*timerRuntime, error) {
	anchor, err := timer.ParseAnchor(cfg.GetBootstrapAnchor())
	if err != nil {
		return nil, err
	}

	notes := notification.NewStore(database, notificationStoreConfig(cfg), log)
	timers := timer.NewSQLStore(database)

	registry := timer.NewRegistry()
	callbacks.Register(registry, notes, callbacks.PurgeConfig{
		ReadOlderThanDays:   cfg.Notifications.PurgeReadOlderThanDays,
		UnreadOlderThanDays: cfg.Notifications.PurgeUnreadOlderThanDays,
	}, log)

	return &timerRuntime{
		timers:   timers,
		notes:    notes,
		registry: registry,
		engine: timer.NewEngine(timers, registry, timer.EngineConfig{
			MinimumPeriodicity: cfg.MinimumPeriodicity(),
		}, log),
		registrar: timer.NewRegistrar(timers, anchor, nil, log),
	}, nil
}

func notificationStoreConfig(cfg *am.Config) notification.StoreConfig {
	return notification.StoreConfig{
		MaxListSize:    cfg.GetMaxListSize(),
		ArchiveEnabled: cfg.Notifications.ArchiveEnabled,
	}
}

func tickerConfig(cfg *am.Config) timer.TickerConfig {
	return timer.TickerConfig{
		Interval:         cfg.TickerInterval(),
		TriggerBurst:     cfg.Timers.TriggerBurst,
		TriggerPerMinute: cfg.Timers.TriggerPerMinute,
	}
}
