package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/teranos/notify/am"
	"github.com/teranos/notify/errors"
	"github.com/teranos/notify/sym"
)

// DbCmd represents the db (database) command
var DbCmd = &cobra.Command{
	Use:   "db",
	Short: sym.DB + " Manage the notify database",
	Long: sym.DB + ` db - Manage the notify database

Examples:
  notify db migrate    # Apply pending schema migrations
  notify db stats      # Show row counts for timers and notifications`,
}

var dbMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending schema migrations",
	RunE:  runDbMigrate,
}

var dbStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show database statistics",
	RunE:  runDbStats,
}

func init() {
	DbCmd.AddCommand(dbMigrateCmd)
	DbCmd.AddCommand(dbStatsCmd)
}

func runDbMigrate(cmd *cobra.Command, args []string) error {
	database, err := openDatabase("")
	if err != nil {
		return err
	}
	defer database.Close()

	var version string
	if err := database.QueryRow("SELECT MAX(version) FROM schema_migrations").Scan(&version); err != nil {
		return errors.Wrap(err, "failed to read schema version")
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s Schema at version %s\n", sym.DB, version)
	return nil
}

func runDbStats(cmd *cobra.Command, args []string) error {
	cfg, err := am.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	database, err := openDatabase("")
	if err != nil {
		return errors.Wrap(err, "failed to open database")
	}
	defer database.Close()

	counts := []struct {
		label string
		query string
	}{
		{"Timers", "SELECT COUNT(*) FROM notification_callback_timers"},
		{"  active", "SELECT COUNT(*) FROM notification_callback_timers WHERE is_active = 1"},
		{"  in flight", "SELECT COUNT(*) FROM notification_callback_timers WHERE is_active = 1 AND executed_at IS NOT NULL"},
		{"  disabled", "SELECT COUNT(*) FROM notification_callback_timers WHERE is_active = 0"},
		{"Message types", "SELECT COUNT(*) FROM notification_types"},
		{"Messages", "SELECT COUNT(*) FROM notification_messages"},
		{"User notifications", "SELECT COUNT(*) FROM user_notifications"},
		{"  unread", "SELECT COUNT(*) FROM user_notifications WHERE read_at IS NULL"},
		{"Archived", "SELECT COUNT(*) FROM user_notifications_archive"},
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s Database Statistics\n", sym.DB)
	fmt.Fprintf(out, "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")
	fmt.Fprintf(out, "%-20s %s\n", "Database Path:", cfg.GetDatabasePath())
	for _, c := range counts {
		var n int
		if err := database.QueryRow(c.query).Scan(&n); err != nil {
			return errors.Wrapf(err, "failed to count %s", c.label)
		}
		fmt.Fprintf(out, "%-20s %d\n", c.label+":", n)
	}
	return nil
}
