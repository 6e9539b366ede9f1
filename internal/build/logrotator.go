package build

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/jrick/logrotate/rotator"
)

const (
	// DefaultMaxLogFiles is the number of rotated log files kept.
	DefaultMaxLogFiles = 3

	// DefaultMaxLogFileSize is the rotation threshold in megabytes.
	DefaultMaxLogFileSize = 20

	// DefaultLogFilename is the log file name inside the log directory.
	DefaultLogFilename = "cmdqueue.log"
)

// LogRotatorConfig configures the rotating log file.
type LogRotatorConfig struct {
	// LogDir is the directory holding the log files.
	LogDir string

	// Filename overrides DefaultLogFilename.
	Filename string

	// MaxLogFiles is the number of rotated files kept. Zero keeps a
	// single file that grows without bound.
	MaxLogFiles int

	// MaxLogFileSize is the rotation threshold in megabytes.
	MaxLogFileSize int
}

// RotatingLogWriter is an io.Writer feeding a jrick/logrotate rotator
// through a pipe. Rotated files are gzip compressed.
type RotatingLogWriter struct {
	pipe    *io.PipeWriter
	rotator *rotator.Rotator
	done    chan struct{}
}

// NewRotatingLogWriter creates the log directory and starts the rotator.
func NewRotatingLogWriter(cfg LogRotatorConfig) (*RotatingLogWriter, error) {
	if cfg.Filename == "" {
		cfg.Filename = DefaultLogFilename
	}
	if cfg.MaxLogFileSize <= 0 {
		cfg.MaxLogFileSize = DefaultMaxLogFileSize
	}

	logFile := filepath.Join(cfg.LogDir, cfg.Filename)
	if err := os.MkdirAll(filepath.Dir(logFile), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	// The rotator takes its threshold in kilobytes.
	r, err := rotator.New(
		logFile, int64(cfg.MaxLogFileSize*1024), false,
		cfg.MaxLogFiles,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create file rotator: %w", err)
	}
	r.SetCompressor(gzip.NewWriter(nil), ".gz")

	pr, pw := io.Pipe()
	w := &RotatingLogWriter{
		pipe:    pw,
		rotator: r,
		done:    make(chan struct{}),
	}

	// The rotator is the log destination, so its own failure can only be
	// reported on stderr.
	go func() {
		defer close(w.done)

		if err := r.Run(pr); err != nil {
			_, _ = fmt.Fprintf(os.Stderr,
				"failed to run file rotator: %v\n", err)
		}
	}()

	return w, nil
}

// Write implements io.Writer.
func (w *RotatingLogWriter) Write(b []byte) (int, error) {
	return w.pipe.Write(b)
}

// Close flushes the pipe and waits for the rotator to finish writing.
func (w *RotatingLogWriter) Close() error {
	err := w.pipe.Close()
	<-w.done

	if closeErr := w.rotator.Close(); err == nil {
		err = closeErr
	}

	return err
}
