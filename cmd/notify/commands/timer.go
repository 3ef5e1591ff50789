package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/teranos/notify/am"
	"github.com/teranos/notify/callbacks"
	"github.com/teranos/notify/db"
	"github.com/teranos/notify/errors"
	"github.com/teranos/notify/logger"
	"github.com/teranos/notify/pulse/timer"
	"github.com/teranos/notify/sym"
)

// TimerCmd represents the timer command
var TimerCmd = &cobra.Command{
	Use:   "timer",
	Short: sym.Timer + " Inspect, scan and run callback timers",
	Long: sym.Timer + ` timer - durable callback timers

Timers are named callbacks stored in the database. A scan picks up every
active timer whose callback time has passed, runs its handler and decides
from the result whether and when it runs again.

Examples:
  notify timer start                  # Run the ticker daemon in the foreground
  notify timer scan                   # Run one scan pass and exit
  notify timer ls                     # List timers
  notify timer show purge-notifications-timer --format json
  notify timer register               # Seed well-known timers
  notify timer reset purge-notifications-timer`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var timerLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List timers",
	RunE:  runTimerLs,
}

var timerShowCmd = &cobra.Command{
	Use:   "show <name>",
	Short: "Show one timer",
	Args:  cobra.ExactArgs(1),
	RunE:  runTimerShow,
}

var timerScanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Run one scan pass",
	RunE:  runTimerScan,
}

var timerRegisterCmd = &cobra.Command{
	Use:   "register",
	Short: "Create well-known timers that do not exist yet",
	RunE:  runTimerRegister,
}

var timerResetCmd = &cobra.Command{
	Use:   "reset <name>",
	Short: "Re-activate a timer and clear its in-flight state",
	Long: `Re-activate a timer and clear its in-flight state.

The engine never re-activates a timer it disabled; this is the operator's
way back once the handler is fixed.`,
	Args: cobra.ExactArgs(1),
	RunE: runTimerReset,
}

var timerStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Run the timer daemon",
	Long: `Run the timer daemon in the foreground.

The daemon will:
- Seed well-known timers
- Scan immediately, then every timers.ticker_interval_seconds
- Scan on SIGHUP (throttled)
- Pick up a new timers.minimum_periodicity_minutes when a config file changes
- Run until interrupted (Ctrl+C)`,
	RunE: runTimerStart,
}

var (
	timerShowFormat string
	timerScanFormat string
	timerResetAt    string
)

func init() {
	timerShowCmd.Flags().StringVar(&timerShowFormat, "format", "yaml", "Output format: yaml, json")
	timerScanCmd.Flags().StringVar(&timerScanFormat, "format", "", "Print the scan report as yaml or json")
	timerResetCmd.Flags().StringVar(&timerResetAt, "at", "", "Next callback time (RFC3339, default now)")

	TimerCmd.AddCommand(timerLsCmd)
	TimerCmd.AddCommand(timerShowCmd)
	TimerCmd.AddCommand(timerScanCmd)
	TimerCmd.AddCommand(timerRegisterCmd)
	TimerCmd.AddCommand(timerResetCmd)
	TimerCmd.AddCommand(timerStartCmd)
}

func runTimerLs(cmd *cobra.Command, args []string) error {
	database, err := openDatabase("")
	if err != nil {
		return err
	}
	defer database.Close()

	timers, err := timer.NewSQLStore(database).ListTimers(cmd.Context())
	if err != nil {
		return err
	}
	if len(timers) == 0 {
		pterm.Info.Println("No timers registered")
		return nil
	}

	data := pterm.TableData{{"Name", "Handler", "Callback At", "State", "Every", "Error"}}
	for _, t := range timers {
		every := "-"
		if t.PeriodicityMinutes > 0 {
			every = (time.Duration(t.PeriodicityMinutes) * time.Minute).String()
		}
		data = append(data, []string{
			t.Name,
			t.HandlerRef,
			t.CallbackAt.UTC().Format(time.RFC3339),
			timerState(t),
			every,
			truncate(t.ErrorMessage, 40),
		})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}

func timerState(t *timer.Timer) string {
	switch {
	case !t.IsActive:
		return pterm.Red("disabled")
	case t.InFlight():
		return pterm.Yellow("in flight")
	default:
		return pterm.Green("waiting")
	}
}

func runTimerShow(cmd *cobra.Command, args []string) error {
	database, err := openDatabase("")
	if err != nil {
		return err
	}
	defer database.Close()

	t, err := timer.NewSQLStore(database).GetTimer(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	return writeFormatted(cmd.OutOrStdout(), timerShowFormat, t)
}

func runTimerScan(cmd *cobra.Command, args []string) error {
	cfg, err := am.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	database, err := openDatabase("")
	if err != nil {
		return err
	}
	defer database.Close()

	rt, err := newTimerRuntime(database, cfg, logger.Logger)
	if err != nil {
		return err
	}

	report, err := rt.engine.Scan(cmd.Context())
	if err != nil {
		return err
	}
	if timerScanFormat != "" {
		return writeFormatted(cmd.OutOrStdout(), timerScanFormat, report)
	}

	if report.Due == 0 {
		pterm.Info.Println("No timers due")
		return nil
	}
	data := pterm.TableData{{"Name", "Outcome", "Next Callback", "Error"}}
	for _, o := range report.Timers {
		data = append(data, []string{
			o.Name,
			string(o.Outcome),
			o.CallbackAt.UTC().Format(time.RFC3339),
			truncate(o.Error, 60),
		})
	}
	if err := pterm.DefaultTable.WithHasHeader().WithData(data).Render(); err != nil {
		return err
	}
	pterm.Success.Printfln("%d due, %d rescheduled, %d disabled in %s",
		report.Due, report.Count(timer.OutcomeRescheduled), report.Count(timer.OutcomeHardFailure), report.Duration)
	return nil
}

func runTimerRegister(cmd *cobra.Command, args []string) error {
	cfg, err := am.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	database, err := openDatabase("")
	if err != nil {
		return err
	}
	defer database.Close()

	rt, err := newTimerRuntime(database, cfg, logger.Logger)
	if err != nil {
		return err
	}

	created, err := rt.registrar.EnsureAll(cmd.Context(), callbacks.Registrations()...)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %d timer(s) created, first run %s\n",
		sym.Open, created, rt.registrar.FirstRun().Format(time.RFC3339))
	return nil
}

func runTimerReset(cmd *cobra.Command, args []string) error {
	at := time.Now().UTC()
	if timerResetAt != "" {
		parsed, err := db.ParseTime(timerResetAt)
		if err != nil {
			return errors.Wrapf(err, "invalid --at %q", timerResetAt)
		}
		at = parsed
	}

	database, err := openDatabase("")
	if err != nil {
		return err
	}
	defer database.Close()

	store := timer.NewSQLStore(database)
	t, err := store.GetTimer(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	t.IsActive = true
	t.ExecutedAt = nil
	t.ErrorMessage = ""
	t.CallbackAt = at
	if err := store.SaveTimer(cmd.Context(), t); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s active, next callback %s\n", sym.Timer, t.Name, at.Format(time.RFC3339))
	return nil
}

func runTimerStart(cmd *cobra.Command, args []string) error {
	cfg, err := am.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	database, err := openDatabase("")
	if err != nil {
		return err
	}
	defer database.Close()

	log := logger.Logger
	rt, err := newTimerRuntime(database, cfg, log)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	if _, err := rt.registrar.EnsureAll(ctx, callbacks.Registrations()...); err != nil {
		return err
	}

	watchers := startConfigWatchers(rt.engine, log)
	defer func() {
		for _, w := range watchers {
			_ = w.Stop()
		}
		am.SetGlobalWatcher(nil)
	}()

	tickCfg := tickerConfig(cfg)
	ticker := timer.NewTicker(ctx, rt.engine, rt.timers, tickCfg, log)
	ticker.Start()

	fmt.Printf("%s Timer daemon started\n", sym.Timer)
	fmt.Printf("  Database: %s\n", cfg.GetDatabasePath())
	fmt.Printf("  Handlers: %v\n", rt.registry.Refs())
	fmt.Printf("  Minimum periodicity: %v\n", rt.engine.MinimumPeriodicity())
	if tickCfg.Interval > 0 {
		fmt.Printf("  Scan interval: %v\n", tickCfg.Interval)
	} else {
		fmt.Printf("  Scan interval: manual (SIGHUP)\n")
	}
	fmt.Printf("\n%s Press Ctrl+C to stop, send SIGHUP to scan now\n\n", sym.Timer)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigChan)

	for sig := range sigChan {
		if sig == syscall.SIGHUP {
			if err := ticker.Trigger(); err != nil {
				log.Warnw("Manual scan refused", logger.FieldError, err)
			}
			continue
		}
		break
	}

	fmt.Printf("\n%s Shutting down...\n", sym.Close)
	ticker.Stop()

	stats := ticker.Stats()
	fmt.Printf("%s Timer daemon stopped after %d passes, %d timers run\n",
		sym.Close, stats.Passes, stats.TimersRun)
	return nil
}

// startConfigWatchers watches every active config file and applies a new
// minimum periodicity to the running engine. Other settings need a restart.
func startConfigWatchers(engine *timer.Engine, log *zap.SugaredLogger) []*am.ConfigWatcher {
	var watchers []*am.ConfigWatcher
	for _, path := range am.ActiveConfigFiles() {
		w, err := am.NewConfigWatcher(path, logger.AddAMSymbol(log))
		if err != nil {
			log.Warnw("Config file will not be watched", "path", path, logger.FieldError, err)
			continue
		}
		w.OnReload(func(cfg *am.Config) error {
			floor := cfg.MinimumPeriodicity()
			if floor != engine.MinimumPeriodicity() {
				engine.SetMinimumPeriodicity(floor)
				log.Infow("Minimum periodicity updated", "minimum_periodicity", floor)
			}
			return nil
		})
		w.Start()
		if path == am.UserConfigPath() {
			am.SetGlobalWatcher(w)
		}
		watchers = append(watchers, w)
	}
	return watchers
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-3]) + "..."
}
