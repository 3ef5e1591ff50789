package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/teranos/notify/cmd/notify/commands"
	"github.com/teranos/notify/logger"
)

var rootCmd = &cobra.Command{
	Use:   "notify",
	Short: "notify - user notifications and durable callback timers",
	Long: `notify - user notifications and durable callback timers.

notify stores messages addressed to users, tracks who has read them, and
runs named callback timers that survive restarts.

Available commands:
  am      - Manage notify configuration ("I am")
  db      - Manage the notify database
  timer   - Inspect, scan and run callback timers
  msg     - Send, list and mark notifications
  version - Show build information

Examples:
  notify am show              # Show current configuration
  notify timer start          # Run the timer daemon
  notify timer ls             # List timers and their state
  notify msg ls --user 42     # List a user's notifications`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		verbosity, _ := cmd.Flags().GetCount("verbose")
		if err := commands.InitLogger(cmd, verbosity); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Cleanup()
	},
}

func init() {
	rootCmd.PersistentFlags().CountP("verbose", "v", "Increase output verbosity (repeat for more detail: -v, -vv)")

	rootCmd.AddCommand(commands.AmCmd)
	rootCmd.AddCommand(commands.DbCmd)
	rootCmd.AddCommand(commands.TimerCmd)
	rootCmd.AddCommand(commands.MsgCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
