package logger

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// Global logger instance
	Logger *zap.SugaredLogger
	// Flag to track if JSON output is enabled
	JSONOutput bool
)

func init() {
	// Safe no-op logger until Initialize is called
	Logger = zap.NewNop().Sugar()
}

// Initialize sets up the global logger.
// jsonOutput selects production JSON output; otherwise the compact console encoder is used.
// level is one of debug, info, warn, error (empty means info).
func Initialize(jsonOutput bool, level string) error {
	lvl, err := ParseLevel(level)
	if err != nil {
		return err
	}

	l, err := New(jsonOutput, lvl)
	if err != nil {
		return err
	}

	JSONOutput = jsonOutput
	Logger = l
	return nil
}

// New builds a logger without touching the global instance.
func New(jsonOutput bool, level zapcore.Level) (*zap.SugaredLogger, error) {
	if jsonOutput {
		config := zap.NewProductionConfig()
		config.Level = zap.NewAtomicLevelAt(level)
		config.OutputPaths = []string{"stdout"}
		config.ErrorOutputPaths = []string{"stderr"}
		zapLogger, err := config.Build()
		if err != nil {
			return nil, err
		}
		return zapLogger.Sugar(), nil
	}

	core := zapcore.NewCore(
		newConsoleEncoder(os.Getenv("NO_COLOR") == ""),
		zapcore.AddSync(os.Stdout),
		level,
	)
	return zap.New(core).Sugar(), nil
}

// ParseLevel maps a config string to a zap level.
func ParseLevel(level string) (zapcore.Level, error) {
	if strings.TrimSpace(level) == "" {
		return zapcore.InfoLevel, nil
	}
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(strings.ToLower(strings.TrimSpace(level)))); err != nil {
		return zapcore.InfoLevel, err
	}
	return lvl, nil
}

// Cleanup flushes any buffered log entries
func Cleanup() {
	if Logger != nil {
		_ = Logger.Sync()
	}
}

// Infow logs an info message with structured fields
func Infow(msg string, keysAndValues ...interface{}) {
	if Logger != nil {
		Logger.Infow(msg, keysAndValues...)
	}
}

// Warnw logs a warning message with structured fields
func Warnw(msg string, keysAndValues ...interface{}) {
	if Logger != nil {
		Logger.Warnw(msg, keysAndValues...)
	}
}

// Errorw logs an error message with structured fields
func Errorw(msg string, keysAndValues ...interface{}) {
	if Logger != nil {
		Logger.Errorw(msg, keysAndValues...)
	}
}

// Debugw logs a debug message with structured fields
func Debugw(msg string, keysAndValues ...interface{}) {
	if Logger != nil {
		Logger.Debugw(msg, keysAndValues...)
	}
}
