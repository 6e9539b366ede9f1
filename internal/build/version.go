// Package build holds the version information stamped into the binary and
// the logging setup shared by the commands.
package build

import (
	"fmt"
	"runtime/debug"
	"strings"
)

const (
	// AppMajor is the major version.
	AppMajor uint = 0

	// AppMinor is the minor version.
	AppMinor uint = 1

	// AppPatch is the patch version.
	AppPatch uint = 0

	// AppPreRelease is appended to the version when non-empty.
	AppPreRelease = "beta"
)

var (
	// Commit is the tag or commit the binary was built from, set with
	// -ldflags "-X".
	Commit string

	// CommitHash is the full commit hash, set with -ldflags "-X" or read
	// from the module build info.
	CommitHash string

	// GoVersion is the Go version used to build the binary.
	GoVersion string

	// RawTags is the comma separated list of build tags.
	RawTags string
)

func init() {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}

	if GoVersion == "" {
		GoVersion = info.GoVersion
	}
	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			if CommitHash == "" {
				CommitHash = setting.Value
			}

		case "-tags":
			if RawTags == "" {
				RawTags = setting.Value
			}
		}
	}
}

// Version returns the semantic version.
func Version() string {
	version := fmt.Sprintf("%d.%d.%d", AppMajor, AppMinor, AppPatch)
	if AppPreRelease != "" {
		version += "-" + AppPreRelease
	}

	return version
}

// Tags returns the build tags the binary was built with.
func Tags() []string {
	if RawTags == "" {
		return nil
	}

	return strings.Split(RawTags, ",")
}
