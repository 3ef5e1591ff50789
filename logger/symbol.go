package logger

import (
	"github.com/teranos/notify/sym"
	"go.uber.org/zap"
)

// Symbol-tagged child loggers. The symbol goes in a structured field, not the
// message, so logs stay queryable by subsystem.

// AddTimerSymbol wraps a logger with the Timer symbol (꩜)
func AddTimerSymbol(l *zap.SugaredLogger) *zap.SugaredLogger {
	return l.With(FieldSymbol, sym.Timer)
}

// AddOpenSymbol wraps a logger with the Open symbol (✿)
func AddOpenSymbol(l *zap.SugaredLogger) *zap.SugaredLogger {
	return l.With(FieldSymbol, sym.Open)
}

// AddCloseSymbol wraps a logger with the Close symbol (❀)
func AddCloseSymbol(l *zap.SugaredLogger) *zap.SugaredLogger {
	return l.With(FieldSymbol, sym.Close)
}

// AddDBSymbol wraps a logger with the DB symbol (⊔)
func AddDBSymbol(l *zap.SugaredLogger) *zap.SugaredLogger {
	return l.With(FieldSymbol, sym.DB)
}

// AddNotifySymbol wraps a logger with the Notify symbol (✉)
func AddNotifySymbol(l *zap.SugaredLogger) *zap.SugaredLogger {
	return l.With(FieldSymbol, sym.Notify)
}

// AddAMSymbol wraps a logger with the AM symbol (≡)
func AddAMSymbol(l *zap.SugaredLogger) *zap.SugaredLogger {
	return l.With(FieldSymbol, sym.AM)
}
