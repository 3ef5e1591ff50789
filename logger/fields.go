package logger

import (
	"context"

	"go.uber.org/zap"
)

// Standard field names for consistent structured logging.
const (
	FieldSymbol     = "symbol"
	FieldComponent  = "component"
	FieldError      = "error"
	FieldDurationMS = "duration_ms"
	FieldCount      = "count"

	// Timers
	FieldTimerName  = "timer_name"
	FieldHandlerRef = "handler_ref"
	FieldCallbackAt = "callback_at"
	FieldOutcome    = "outcome"

	// Notifications
	FieldUserID    = "user_id"
	FieldMessageID = "msg_id"
	FieldNamespace = "namespace"
)

type contextKey string

const timerNameKey contextKey = "logger_timer_name"

// WithTimerName adds a timer name to the context for logging
func WithTimerName(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, timerNameKey, name)
}

// FromContext returns base enriched with the fields carried by ctx.
func FromContext(ctx context.Context, base *zap.SugaredLogger) *zap.SugaredLogger {
	if name, ok := ctx.Value(timerNameKey).(string); ok && name != "" {
		return base.With(FieldTimerName, name)
	}
	return base
}

// ComponentLogger returns a named child of the global logger.
func ComponentLogger(name string) *zap.SugaredLogger {
	return Logger.Named(name)
}
