package logger

import "go.uber.org/zap/zapcore"

// Verbosity level constants for the CLI -v flag count.
const (
	VerbosityUser  = 0 // No flags: results and errors only
	VerbosityInfo  = 1 // -v: + scan outcomes, startup
	VerbosityDebug = 2 // -vv: + per-timer detail, SQL timing
)

// VerbosityToLevel maps verbosity flags (-v, -vv) to zap log levels.
// A zero verbosity keeps the configured level.
func VerbosityToLevel(verbosity int, configured zapcore.Level) zapcore.Level {
	switch {
	case verbosity <= VerbosityUser:
		return configured
	case verbosity == VerbosityInfo:
		return zapcore.InfoLevel
	default:
		return zapcore.DebugLevel
	}
}
