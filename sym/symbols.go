// Package sym defines the symbols notify tags its log lines and CLI output with.
// These symbols are stable across the CLI, logs and documentation.
package sym

// System symbols.
const (
	Timer  = "꩜" // callback timers and the scan engine
	Open   = "✿" // startup: bootstrap registration
	Close  = "❀" // graceful shutdown
	DB     = "⊔" // database/storage layer
	Notify = "✉" // notification messages and user state
	AM     = "≡" // configuration
)

// Labels maps each symbol to the subsystem it marks.
var Labels = map[string]string{
	Timer:  "timer",
	Open:   "startup",
	Close:  "shutdown",
	DB:     "db",
	Notify: "notify",
	AM:     "am",
}

// Label returns the subsystem name for a symbol, or "" when unknown.
func Label(symbol string) string {
	return Labels[symbol]
}
