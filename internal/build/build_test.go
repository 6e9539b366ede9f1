package build

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	btclogv2 "github.com/btcsuite/btclog/v2"
	"github.com/stretchr/testify/require"
)

// TestVersion tests the version string and tag parsing.
func TestVersion(t *testing.T) {
	require.True(t, strings.HasPrefix(Version(), "0.1.0"))

	saved := RawTags
	t.Cleanup(func() { RawTags = saved })

	RawTags = ""
	require.Nil(t, Tags())

	RawTags = "dev,sqlite"
	require.Equal(t, []string{"dev", "sqlite"}, Tags())
}

// TestSetupLoggers tests that subsystem loggers write to both the console
// and the log file.
func TestSetupLoggers(t *testing.T) {
	t.Parallel()

	var (
		console bytes.Buffer
		ringLog btclogv2.Logger
		taskLog btclogv2.Logger
	)
	dir := t.TempDir()

	mgr, err := SetupLoggers(LogConfig{
		Level:   "info",
		Console: &console,
		Rotator: LogRotatorConfig{LogDir: dir, MaxLogFiles: 1},
	}, map[string]UseLoggerFunc{
		"RING": func(l btclogv2.Logger) { ringLog = l },
		"TASK": func(l btclogv2.Logger) { taskLog = l },
	})
	require.NoError(t, err)
	require.Equal(t, []string{"RING", "TASK"}, mgr.Subsystems())

	ringLog.Infof("ring ready")
	taskLog.Debugf("hidden at info")

	require.NoError(t, mgr.SetLevel("TASK", "debug"))
	taskLog.Debugf("shown at debug")

	require.Error(t, mgr.SetLevel("NOPE", "debug"))
	require.Error(t, mgr.SetLevel("", "loud"))
	require.NoError(t, mgr.SetLevel("", "warn"))

	require.NoError(t, mgr.Close())

	out := console.String()
	require.Contains(t, out, "RING")
	require.Contains(t, out, "ring ready")
	require.Contains(t, out, "shown at debug")
	require.NotContains(t, out, "hidden at info")

	data, err := os.ReadFile(filepath.Join(dir, DefaultLogFilename))
	require.NoError(t, err)
	require.Contains(t, string(data), "ring ready")
}

// TestSetupLoggersRejectsLevel tests that an unknown level fails.
func TestSetupLoggersRejectsLevel(t *testing.T) {
	t.Parallel()

	_, err := SetupLoggers(LogConfig{Level: "loud"}, nil)
	require.Error(t, err)
}
