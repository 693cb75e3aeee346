// -----------------------------------------------------------------------
// ticketero - Transcribes pending support rows into the helpdesk portal
// -----------------------------------------------------------------------

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/ticketero/internal/app"
	"github.com/ternarybob/ticketero/internal/common"
	"github.com/ternarybob/ticketero/internal/interfaces"
	"github.com/ternarybob/ticketero/internal/services/orchestrator"
)

// configPaths is a custom flag type that allows multiple -config flags
type configPaths []string

func (c *configPaths) String() string {
	return fmt.Sprintf("%v", *c)
}

func (c *configPaths) Set(value string) error {
	*c = append(*c, value)
	return nil
}

var (
	// Command-line flags
	configFiles  configPaths // Multiple -config flags supported
	sheetPath    = flag.String("sheet", "", "Path to the support spreadsheet (.xlsx)")
	watchMode    = flag.Bool("watch", false, "Keep running and process the sheet on the configured schedule")
	portalURL    = flag.String("url", "", "Portal URL (overrides config)")
	stateDir     = flag.String("state-dir", "", "Resume state directory (overrides config)")
	schedule     = flag.String("schedule", "", "Cron schedule for watch mode (overrides config)")
	historyLimit = flag.Int("history", 0, "Print the last N runs and exit")
	showVersion  = flag.Bool("version", false, "Print version information")
	showVersionV = flag.Bool("v", false, "Print version information (shorthand)")

	// Global state
	config *common.Config
	logger arbor.ILogger
)

func init() {
	// Register custom flag for multiple config files
	flag.Var(&configFiles, "config", "Configuration file path (can be specified multiple times, later files override earlier ones)")
	flag.Var(&configFiles, "c", "Configuration file path (shorthand)")
}

func main() {
	common.InstallCrashHandler("")
	defer common.RecoverWithCrashFile()

	flag.Parse()

	if *showVersion || *showVersionV {
		fmt.Printf("Ticketero version %s\n", common.GetVersion())
		os.Exit(0)
	}

	// Startup sequence (REQUIRED ORDER):
	// 1. Load config (defaults -> file1 -> file2 -> ... -> env)
	// 2. Apply CLI overrides (highest priority)
	// 3. Initialize logger
	// 4. Print banner

	// Auto-discover config file if not specified
	if len(configFiles) == 0 {
		if _, err := os.Stat("ticketero.toml"); err == nil {
			configFiles = append(configFiles, "ticketero.toml")
		} else if _, err := os.Stat("deployments/local/ticketero.toml"); err == nil {
			configFiles = append(configFiles, "deployments/local/ticketero.toml")
		}
	}

	var err error
	config, err = common.LoadFromFiles(configFiles...)
	if err != nil {
		tempLogger := arbor.NewLogger()
		tempLogger.Fatal().Strs("paths", configFiles).Err(err).Msg("Failed to load configuration")
		os.Exit(1)
	}

	common.ApplyFlagOverrides(config, *portalURL, *stateDir, *schedule)

	logger = common.InitLogger(config)
	common.PrintBanner(common.GetFullVersion())

	logger.Info().
		Strs("config_files", configFiles).
		Str("portal_url", config.Portal.URL).
		Str("state_dir", config.Storage.StateDir).
		Msg("Application configuration loaded")

	application, err := app.NewApp(config, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize application")
		os.Exit(1)
	}
	defer application.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Ctrl+C cancels the run; a second interrupt kills the process hard.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info().Msg("Interrupt signal received, stopping")
		cancel()
		<-sigChan
		os.Exit(1)
	}()

	if *historyLimit > 0 {
		if err := printHistory(ctx, application, *historyLimit); err != nil {
			logger.Fatal().Err(err).Msg("Failed to read run history")
			os.Exit(1)
		}
		return
	}

	if *sheetPath == "" {
		fmt.Fprintln(os.Stderr, "ticketero: -sheet is required (see -h)")
		os.Exit(2)
	}

	application.WithNotifier(interfaces.StatusFunc(func(message string) {
		fmt.Println(message)
	}))

	if *watchMode {
		if err := application.Watch(ctx, *sheetPath); err != nil {
			logger.Fatal().Err(err).Msg("Watch mode failed")
			os.Exit(1)
		}
		return
	}

	summary, err := application.RunOnce(ctx, *sheetPath)
	if err != nil {
		if errors.Is(err, orchestrator.ErrEmptyQueue) {
			fmt.Println("Nothing to do: no pending rows in the sheet")
			return
		}
		logger.Fatal().Err(err).Msg("Run failed")
		os.Exit(1)
	}

	fmt.Printf("Done: %d created, %d failed, %d skipped\n",
		summary.Created, summary.Failed, summary.Skipped)
	if summary.Failed > 0 {
		os.Exit(1)
	}
}

func printHistory(ctx context.Context, application *app.App, limit int) error {
	runs, err := application.RecentRuns(ctx, limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("No runs recorded yet")
		return nil
	}

	for _, run := range runs {
		fmt.Printf("%s  %s  created=%d failed=%d skipped=%d  %s\n",
			run.StartedAt.Format("2006-01-02 15:04:05"),
			run.SheetPath,
			run.Created, run.Failed, run.Skipped,
			run.FinishedAt.Sub(run.StartedAt).Round(time.Second),
		)
	}
	return nil
}
