package commands

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/roasbeef/cmdqueue/internal/journal"
	"github.com/spf13/cobra"
)

// journalCmd groups the read-only journal queries.
var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Inspect recorded call outcomes",
}

var journalRunsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List the runs stored in the journal",
	Args:  cobra.NoArgs,
	RunE:  runJournalRuns,
}

var journalSummaryCmd = &cobra.Command{
	Use:   "summary [run-id]",
	Short: "Summarize a run per command (default: the latest run)",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runJournalSummary,
}

func init() {
	journalCmd.AddCommand(journalRunsCmd)
	journalCmd.AddCommand(journalSummaryCmd)
}

// openJournal opens the configured journal for queries.
func openJournal() (*journal.Journal, error) {
	return journal.Open(journal.Config{Path: cfg.JournalPath})
}

func runJournalRuns(cmd *cobra.Command, _ []string) error {
	jrnl, err := openJournal()
	if err != nil {
		return err
	}
	defer jrnl.Close()

	runs, err := jrnl.Runs(cmd.Context())
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded.")
		return nil
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tCALLS\tSTARTED\tDURATION")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%v\n", r.RunID, r.Calls,
			r.Started.Format(time.DateTime),
			r.Finished.Sub(r.Started).Round(time.Millisecond))
	}

	return tw.Flush()
}

func runJournalSummary(cmd *cobra.Command, args []string) error {
	jrnl, err := openJournal()
	if err != nil {
		return err
	}
	defer jrnl.Close()

	ctx := cmd.Context()

	var id string
	if len(args) == 1 {
		id = args[0]
	} else {
		runs, err := jrnl.Runs(ctx)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded.")
			return nil
		}
		id = runs[len(runs)-1].RunID
	}

	summary, err := jrnl.Summary(ctx, id)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "run %s\n\n", id)
	printSummary(cmd.OutOrStdout(), summary)

	return nil
}
