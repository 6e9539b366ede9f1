package commands

import (
	"fmt"

	"github.com/roasbeef/cmdqueue/internal/build"
	"github.com/spf13/cobra"
)

// versionCmd prints the build information.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the cmdqueue version",
	Args:  cobra.NoArgs,
	Run:   runVersion,
}

// runVersion prints the version and build information.
func runVersion(cmd *cobra.Command, _ []string) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "cmdqueue version %s", build.Version())

	if build.Commit != "" {
		fmt.Fprintf(out, " commit=%s", build.Commit)
	} else if build.CommitHash != "" {
		fmt.Fprintf(out, " commit=%s", build.CommitHash)
	}

	if build.GoVersion != "" {
		fmt.Fprintf(out, " go=%s", build.GoVersion)
	}

	if tags := build.Tags(); len(tags) > 0 {
		fmt.Fprintf(out, " tags=%s", build.RawTags)
	}

	fmt.Fprintln(out)
}
