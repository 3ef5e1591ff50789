package commands

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap/zapcore"

	"github.com/teranos/notify/am"
	"github.com/teranos/notify/logger"
)

// daemonCommands log at the configured level; every other command keeps
// stdout for its own output unless -v is given.
var daemonCommands = map[string]bool{
	"start": true,
}

// InitLogger builds the global logger from am config and the -v count
func InitLogger(cmd *cobra.Command, verbosity int) error {
	cfg, err := am.Load()
	if err != nil {
		return err
	}

	configured, err := logger.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return err
	}
	if !daemonCommands[cmd.Name()] && configured < zapcore.WarnLevel {
		configured = zapcore.WarnLevel
	}

	l, err := logger.New(cfg.Logging.JSON, logger.VerbosityToLevel(verbosity, configured))
	if err != nil {
		return err
	}
	logger.Logger = l
	logger.JSONOutput = cfg.Logging.JSON
	return nil
}
