// Package config loads the cmdqueue configuration from the environment and
// optional .env files. Every variable carries the CMDQUEUE_ prefix, so the
// mailbox size is read from CMDQUEUE_MAILBOX_SIZE. Command line flags are
// applied on top by the caller.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/btcsuite/btclog"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "CMDQUEUE_"

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Config holds the settings of a cmdqueue run.
type Config struct {
	// MailboxSize is the capacity of each connection's mailbox and
	// per-command queues.
	MailboxSize int `env:"MAILBOX_SIZE" envDefault:"64"`

	// Period is the task run loop interval.
	Period time.Duration `env:"PERIOD" envDefault:"10ms"`

	// Producers is the number of client goroutines, each with its own
	// connection.
	Producers int `env:"PRODUCERS" envDefault:"4"`

	// Calls is the number of calls each producer makes.
	Calls int `env:"CALLS" envDefault:"1000"`

	// BlockingRatio is the share of calls made as blocking calls, from 0
	// to 1.
	BlockingRatio float64 `env:"BLOCKING_RATIO" envDefault:"0.25"`

	// DataDir holds the journal and the log directory unless they are set
	// explicitly.
	DataDir string `env:"DATA_DIR"`

	// JournalPath is the SQLite journal. Empty means
	// DataDir/journal.db.
	JournalPath string `env:"JOURNAL_PATH"`

	// NoJournal disables the journal.
	NoJournal bool `env:"NO_JOURNAL"`

	// LogDir is where the rotating log file is written. Empty means
	// DataDir/logs.
	LogDir string `env:"LOG_DIR"`

	// LogLevel is the level of every subsystem logger.
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// MaxLogFiles is the number of rotated log files kept.
	MaxLogFiles int `env:"MAX_LOG_FILES" envDefault:"3"`

	// MaxLogFileSize is the rotation threshold in megabytes.
	MaxLogFileSize int `env:"MAX_LOG_FILE_SIZE" envDefault:"20"`
}

// DefaultDataDir returns ~/.cmdqueue.
func DefaultDataDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}

	return filepath.Join(home, ".cmdqueue"), nil
}

// Load reads the given .env files, skipping those that do not exist, and
// then parses the environment. Variables already set in the environment win
// over .env values.
func Load(envFiles ...string) (*Config, error) {
	for _, file := range envFiles {
		if _, err := os.Stat(file); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(file); err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", file, err)
		}
	}

	cfg := &Config{}
	err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix})
	if err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	return cfg, nil
}

// Resolve fills the derived paths.
func (c *Config) Resolve() error {
	if c.DataDir == "" {
		dir, err := DefaultDataDir()
		if err != nil {
			return err
		}
		c.DataDir = dir
	}
	if c.JournalPath == "" {
		c.JournalPath = filepath.Join(c.DataDir, "journal.db")
	}
	if c.LogDir == "" {
		c.LogDir = filepath.Join(c.DataDir, "logs")
	}

	return nil
}

// Validate checks the settings.
func (c *Config) Validate() error {
	switch {
	case c.MailboxSize < 1:
		return fmt.Errorf("%w: mailbox size %d must be at least 1",
			ErrInvalid, c.MailboxSize)

	case c.Period <= 0:
		return fmt.Errorf("%w: period %v must be positive", ErrInvalid,
			c.Period)

	case c.Producers < 1:
		return fmt.Errorf("%w: producers %d must be at least 1",
			ErrInvalid, c.Producers)

	case c.Calls < 0:
		return fmt.Errorf("%w: calls %d must not be negative",
			ErrInvalid, c.Calls)

	case c.BlockingRatio < 0 || c.BlockingRatio > 1:
		return fmt.Errorf("%w: blocking ratio %v must be within [0, 1]",
			ErrInvalid, c.BlockingRatio)

	case c.MaxLogFiles < 0 || c.MaxLogFileSize < 0:
		return fmt.Errorf("%w: log rotation limits must not be negative",
			ErrInvalid)
	}

	if _, ok := btclog.LevelFromString(c.LogLevel); !ok {
		return fmt.Errorf("%w: unknown log level %q", ErrInvalid,
			c.LogLevel)
	}

	return nil
}
