package commands

import (
	"github.com/roasbeef/cmdqueue/internal/build"
	"github.com/roasbeef/cmdqueue/internal/command"
	"github.com/roasbeef/cmdqueue/internal/config"
	"github.com/roasbeef/cmdqueue/internal/journal"
	"github.com/roasbeef/cmdqueue/internal/mailbox"
	"github.com/roasbeef/cmdqueue/internal/ringbuf"
	"github.com/roasbeef/cmdqueue/internal/task"
	"github.com/spf13/cobra"
)

var (
	// envFile is the optional .env file read before the environment.
	envFile string

	// dataDir overrides CMDQUEUE_DATA_DIR.
	dataDir string

	// journalPath overrides CMDQUEUE_JOURNAL_PATH.
	journalPath string

	// logDir overrides CMDQUEUE_LOG_DIR.
	logDir string

	// logLevel overrides CMDQUEUE_LOG_LEVEL.
	logLevel string

	// cfg is the resolved configuration, set before any subcommand runs.
	cfg *config.Config

	// logMgr owns the subsystem loggers while a subcommand runs.
	logMgr *build.LogManager
)

// rootCmd is the base command for the CLI.
var rootCmd = &cobra.Command{
	Use:   "cmdqueue",
	Short: "Queued command dispatch between tasks",
	Long: `cmdqueue drives tasks that expose commands to other goroutines
through per-caller mailboxes, and journals every executed call.

Settings are read from CMDQUEUE_* environment variables, an optional .env
file, and the flags below, in increasing order of precedence.`,
	SilenceUsage:       true,
	PersistentPreRunE:  setup,
	PersistentPostRunE: teardown,
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&envFile, "env-file", ".env",
		"Optional .env file with CMDQUEUE_* settings",
	)
	rootCmd.PersistentFlags().StringVar(
		&dataDir, "data-dir", "",
		"Data directory (default: ~/.cmdqueue)",
	)
	rootCmd.PersistentFlags().StringVar(
		&journalPath, "journal", "",
		"Path to the SQLite journal (default: <data-dir>/journal.db)",
	)
	rootCmd.PersistentFlags().StringVar(
		&logDir, "log-dir", "",
		"Directory for the rotating log file (default: <data-dir>/logs)",
	)
	rootCmd.PersistentFlags().StringVar(
		&logLevel, "log-level", "",
		"Log level: trace, debug, info, warn, error, critical, off",
	)

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(journalCmd)
	rootCmd.AddCommand(versionCmd)
}

// subsystems maps every logging package to its UseLogger.
func subsystems() map[string]build.UseLoggerFunc {
	return map[string]build.UseLoggerFunc{
		ringbuf.Subsystem: ringbuf.UseLogger,
		command.Subsystem: command.UseLogger,
		mailbox.Subsystem: mailbox.UseLogger,
		task.Subsystem:    task.UseLogger,
		journal.Subsystem: journal.UseLogger,
		Subsystem:         UseLogger,
	}
}

// setup loads the configuration and installs the loggers.
func setup(cmd *cobra.Command, _ []string) error {
	if cmd == versionCmd {
		return nil
	}

	loaded, err := config.Load(envFile)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("data-dir") {
		loaded.DataDir = dataDir
	}
	if flags.Changed("journal") {
		loaded.JournalPath = journalPath
	}
	if flags.Changed("log-dir") {
		loaded.LogDir = logDir
	}
	if flags.Changed("log-level") {
		loaded.LogLevel = logLevel
	}
	applyRunFlags(cmd, loaded)

	if err := loaded.Resolve(); err != nil {
		return err
	}
	if err := loaded.Validate(); err != nil {
		return err
	}
	cfg = loaded

	logMgr, err = build.SetupLoggers(build.LogConfig{
		Level:   cfg.LogLevel,
		Console: cmd.ErrOrStderr(),
		Rotator: build.LogRotatorConfig{
			LogDir:         cfg.LogDir,
			MaxLogFiles:    cfg.MaxLogFiles,
			MaxLogFileSize: cfg.MaxLogFileSize,
		},
	}, subsystems())

	return err
}

// teardown flushes the log file.
func teardown(*cobra.Command, []string) error {
	if logMgr == nil {
		return nil
	}

	mgr := logMgr
	logMgr = nil

	return mgr.Close()
}
