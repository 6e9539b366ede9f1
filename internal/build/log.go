package build

import (
	"fmt"
	"io"
	"sort"

	"github.com/btcsuite/btclog"
	btclogv2 "github.com/btcsuite/btclog/v2"
)

// UseLoggerFunc installs a logger in a package, the UseLogger function every
// logging package exports.
type UseLoggerFunc func(btclogv2.Logger)

// LogConfig configures SetupLoggers.
type LogConfig struct {
	// Level is the initial level of every subsystem, such as "info".
	Level string

	// Console receives human readable output. Nil disables it.
	Console io.Writer

	// Rotator configures the log file. An empty LogDir disables it.
	Rotator LogRotatorConfig
}

// LogManager owns the handlers behind the subsystem loggers.
type LogManager struct {
	handlers *HandlerSet
	loggers  map[string]btclogv2.Logger
	file     *RotatingLogWriter
}

// SetupLoggers builds one logger per subsystem over a console and rotating
// file handler set and hands each to its package's UseLogger.
func SetupLoggers(cfg LogConfig,
	subsystems map[string]UseLoggerFunc) (*LogManager, error) {

	level, ok := btclog.LevelFromString(cfg.Level)
	if !ok {
		return nil, fmt.Errorf("unknown log level %q", cfg.Level)
	}

	var (
		handlers []btclogv2.Handler
		file     *RotatingLogWriter
	)
	if cfg.Console != nil {
		handlers = append(handlers, btclogv2.NewDefaultHandler(
			cfg.Console,
		))
	}
	if cfg.Rotator.LogDir != "" {
		var err error
		file, err = NewRotatingLogWriter(cfg.Rotator)
		if err != nil {
			return nil, err
		}
		handlers = append(handlers, btclogv2.NewDefaultHandler(file))
	}

	m := &LogManager{
		handlers: NewHandlerSet(handlers...),
		loggers:  make(map[string]btclogv2.Logger, len(subsystems)),
		file:     file,
	}
	for tag, use := range subsystems {
		logger := btclogv2.NewSLogger(m.handlers.SubSystem(tag))
		logger.SetLevel(level)
		use(logger)

		m.loggers[tag] = logger
	}
	m.handlers.SetLevel(level)

	return m, nil
}

// Subsystems returns the registered subsystem tags in order.
func (m *LogManager) Subsystems() []string {
	tags := make([]string, 0, len(m.loggers))
	for tag := range m.loggers {
		tags = append(tags, tag)
	}
	sort.Strings(tags)

	return tags
}

// SetLevel changes the level of one subsystem, or of all if tag is empty.
func (m *LogManager) SetLevel(tag, level string) error {
	lvl, ok := btclog.LevelFromString(level)
	if !ok {
		return fmt.Errorf("unknown log level %q", level)
	}

	if tag == "" {
		for _, logger := range m.loggers {
			logger.SetLevel(lvl)
		}
		return nil
	}

	logger, ok := m.loggers[tag]
	if !ok {
		return fmt.Errorf("unknown subsystem %q", tag)
	}
	logger.SetLevel(lvl)

	return nil
}

// Close flushes and closes the log file, if any.
func (m *LogManager) Close() error {
	if m.file == nil {
		return nil
	}

	return m.file.Close()
}
