package commands

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/teranos/notify/am"
	"github.com/teranos/notify/logger"
	"github.com/teranos/notify/sym"
)

// AmCmd represents the am (configuration) command
var AmCmd = &cobra.Command{
	Use:   "am",
	Short: sym.AM + " Manage notify configuration",
	Long: sym.AM + ` am - Manage notify configuration ("I am")

Configuration sources (in order of precedence):
1. Environment variables (NOTIFY_* prefix)
2. Project config (./am.toml, searched up from the working directory)
3. User config (~/.notify/am.toml)
4. System config (/etc/notify/am.toml)
5. Default values

Examples:
  notify am show                           # Show current configuration
  notify am show --format json             # Show configuration in JSON format
  notify am get timers.bootstrap_anchor    # Get specific config value
  notify am set timers.ticker_interval_seconds 30
  notify am validate                       # Validate current configuration
  notify am where                          # Show where each setting comes from`,
}

var amShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE:  runAmShow,
}

var amGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Get a specific configuration value",
	Long:  "Get a specific configuration value using dot notation (e.g., database.path, timers.minimum_periodicity_minutes)",
	Args:  cobra.ExactArgs(1),
	RunE:  runAmGet,
}

var amSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Write a configuration value",
	Long: `Write a configuration value to a config file, keeping three rotating
backups (.back1 .. .back3). Defaults to the user config file.`,
	Args: cobra.ExactArgs(2),
	RunE: runAmSet,
}

var amValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate current configuration",
	Long:  "Validate the effective configuration and report keys in config files that notify does not know",
	RunE:  runAmValidate,
}

var amWhereCmd = &cobra.Command{
	Use:   "where",
	Short: "Show where configuration is loaded from",
	RunE:  runAmWhere,
}

var (
	configFormat string
	amSetFile    string
)

func init() {
	amShowCmd.Flags().StringVar(&configFormat, "format", "toml", "Output format: toml, json, yaml")
	amSetCmd.Flags().StringVar(&amSetFile, "file", "", "Config file to write (default ~/.notify/am.toml)")

	AmCmd.AddCommand(amShowCmd)
	AmCmd.AddCommand(amGetCmd)
	AmCmd.AddCommand(amSetCmd)
	AmCmd.AddCommand(amValidateCmd)
	AmCmd.AddCommand(amWhereCmd)
}

func runAmShow(cmd *cobra.Command, args []string) error {
	cfg, err := am.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if configFormat != "json" {
		fmt.Fprintln(cmd.OutOrStdout(), "# notify configuration")
	}
	return writeFormatted(cmd.OutOrStdout(), configFormat, cfg)
}

func runAmGet(cmd *cobra.Command, args []string) error {
	key := args[0]

	if !am.GetViper().IsSet(key) {
		return fmt.Errorf("configuration key %q not found", key)
	}
	fmt.Fprintln(cmd.OutOrStdout(), am.Get(key))
	return nil
}

func runAmSet(cmd *cobra.Command, args []string) error {
	path := amSetFile
	if path == "" {
		path = am.UserConfigPath()
	}
	if path == "" {
		return fmt.Errorf("no user config directory; pass --file")
	}

	if err := am.SetValue(path, args[0], parseScalar(args[1]), logger.Logger); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✓ %s written to %s\n", args[0], path)
	return nil
}

// parseScalar turns CLI text into the TOML type it most likely means
func parseScalar(s string) interface{} {
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}

func runAmValidate(cmd *cobra.Command, args []string) error {
	cfg, err := am.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	for _, path := range am.ActiveConfigFiles() {
		unknown, err := am.CheckUnknownKeys(path)
		if err != nil {
			return err
		}
		for _, key := range unknown {
			fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s: unknown key %q\n", path, key)
		}
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), "✓ Configuration is valid")
	return nil
}

func runAmWhere(cmd *cobra.Command, args []string) error {
	settings, err := am.GetConfigIntrospection()
	if err != nil {
		return fmt.Errorf("failed to get config introspection: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Configuration cascade (later overrides earlier):")
	fmt.Fprintln(out, "  1. [DEFAULT]     Built-in defaults")
	fmt.Fprintln(out, "  2. [SYSTEM]      /etc/notify/am.toml")
	fmt.Fprintln(out, "  3. [USER]        ~/.notify/am.toml")
	fmt.Fprintln(out, "  4. [PROJECT]     ./am.toml (searches up directories)")
	fmt.Fprintln(out, "  5. [ENVIRONMENT] NOTIFY_* environment variables")
	fmt.Fprintln(out)

	groups := map[string][]am.SettingInfo{}
	for _, s := range settings {
		label := string(s.Source)
		if s.SourcePath != "" && s.Source != am.SourceDefault {
			label += ": " + s.SourcePath
		}
		groups[label] = append(groups[label], s)
	}

	labels := make([]string, 0, len(groups))
	for label := range groups {
		labels = append(labels, label)
	}
	sort.Slice(labels, func(i, j int) bool {
		ri, rj := sourceRank(groups[labels[i]][0].Source), sourceRank(groups[labels[j]][0].Source)
		if ri != rj {
			return ri < rj
		}
		return labels[i] < labels[j]
	})

	fmt.Fprintln(out, "Active configuration:")
	for _, label := range labels {
		fmt.Fprintf(out, "\n%s (%d settings)\n", label, len(groups[label]))
		for _, s := range groups[label] {
			value := fmt.Sprintf("%v", s.Value)
			if len(value) > 50 {
				value = value[:47] + "..."
			}
			fmt.Fprintf(out, "  %s = %s\n", s.Key, strings.TrimSpace(value))
		}
	}
	return nil
}

func sourceRank(s am.ConfigSource) int {
	switch s {
	case am.SourceDefault:
		return 0
	case am.SourceSystem:
		return 1
	case am.SourceUser:
		return 2
	case am.SourceProject:
		return 3
	default:
		return 4
	}
}
