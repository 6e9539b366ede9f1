package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"runtime"
	"sync/atomic"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/roasbeef/cmdqueue/internal/command"
	"github.com/roasbeef/cmdqueue/internal/config"
	"github.com/roasbeef/cmdqueue/internal/journal"
	"github.com/roasbeef/cmdqueue/internal/mailbox"
	"github.com/roasbeef/cmdqueue/internal/object"
	"github.com/roasbeef/cmdqueue/internal/task"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// maxAdmissionRetries bounds how often a producer retries a call refused
// because its queues were full.
const maxAdmissionRetries = 100

var (
	producers     int
	calls         int
	mailboxSize   int
	period        time.Duration
	blockingRatio float64
	runID         string
	noJournal     bool
)

// runCmd drives a workload of producers against one axis task.
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a workload of queued calls against a simulated axis",
	Long: `Run starts a task serving a simulated motion axis that exposes one
command of every shape, then lets each producer goroutine issue calls over
its own connection. Fire-and-forget and blocking calls are mixed according
to the blocking ratio. Per-mailbox statistics and the journal summary are
printed at the end.`,
	Args: cobra.NoArgs,
	RunE: runWorkload,
}

func init() {
	runCmd.Flags().IntVar(&producers, "producers", 0,
		"Number of producer goroutines (default 4)")
	runCmd.Flags().IntVar(&calls, "calls", 0,
		"Calls per producer (default 1000)")
	runCmd.Flags().IntVar(&mailboxSize, "mailbox-size", 0,
		"Mailbox and per-command queue capacity (default 64)")
	runCmd.Flags().DurationVar(&period, "period", 0,
		"Task run loop period (default 10ms)")
	runCmd.Flags().Float64Var(&blockingRatio, "blocking-ratio", 0,
		"Share of blocking calls, from 0 to 1 (default 0.25)")
	runCmd.Flags().StringVar(&runID, "run-id", "",
		"Journal run identifier (default: random)")
	runCmd.Flags().BoolVar(&noJournal, "no-journal", false,
		"Do not record outcomes")
}

// applyRunFlags copies the run flags that were set into c.
func applyRunFlags(cmd *cobra.Command, c *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("producers") {
		c.Producers = producers
	}
	if flags.Changed("calls") {
		c.Calls = calls
	}
	if flags.Changed("mailbox-size") {
		c.MailboxSize = mailboxSize
	}
	if flags.Changed("period") {
		c.Period = period
	}
	if flags.Changed("blocking-ratio") {
		c.BlockingRatio = blockingRatio
	}
	if flags.Changed("no-journal") {
		c.NoJournal = noJournal
	}
}

// tally counts the calls of all producers.
type tally struct {
	accepted atomic.Uint64
	refused  atomic.Uint64
	failed   atomic.Uint64
}

// runWorkload implements the run command.
func runWorkload(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	id := runID
	if id == "" {
		id = uuid.NewString()
	}

	var (
		jrnl     *journal.Journal
		observer fn.Option[func(mailbox.Outcome)]
	)
	if !cfg.NoJournal {
		var err error
		jrnl, err = journal.Open(journal.Config{
			Path:  cfg.JournalPath,
			RunID: id,
		})
		if err != nil {
			return err
		}
		defer jrnl.Close()

		observer = fn.Some(jrnl.Record)
	}

	ax := &axis{}
	tk := task.New(task.Config{
		Name:        "axis",
		MailboxSize: cfg.MailboxSize,
		Period:      cfg.Period,
		Step:        fn.Some(ax.step),
		Observer:    observer,
	})
	for _, c := range ax.commands() {
		if err := tk.AddCommand(c); err != nil {
			return err
		}
	}

	conns := make([]*task.Connection, cfg.Producers)
	for i := range conns {
		conn, err := tk.Connect(fmt.Sprintf("producer-%d", i))
		if err != nil {
			return err
		}
		conns[i] = conn
	}

	log.InfoS(ctx, "Starting workload", "run_id", id,
		"producers", cfg.Producers, "calls", cfg.Calls,
		"blocking_ratio", cfg.BlockingRatio)

	tk.Start()
	start := time.Now()

	var counts tally
	eg, egCtx := errgroup.WithContext(ctx)
	for i, conn := range conns {
		eg.Go(func() error {
			rng := rand.New(
				rand.NewPCG(uint64(i), uint64(start.UnixNano())),
			)

			return produce(egCtx, conn, rng, cfg, &counts)
		})
	}
	if err := eg.Wait(); err != nil {
		log.WarnS(ctx, "Workload interrupted", err)
	}

	// Park the axis from every connection before shutting down.
	if err := task.WriteAll(conns, cmdSetpoint, 0.0); err != nil {
		log.WarnS(ctx, "Unable to park axis", err)
	}

	tk.Stop()
	elapsed := time.Since(start)

	fmt.Fprintf(out, "run %s: %d producers, %d calls accepted, %d "+
		"refused, %d failed in %v\n\n", id, cfg.Producers,
		counts.accepted.Load(), counts.refused.Load(),
		counts.failed.Load(), elapsed.Round(time.Millisecond))

	printMailboxStats(out, tk.Stats())

	if jrnl == nil {
		return nil
	}
	if err := jrnl.Sync(ctx); err != nil {
		return err
	}
	summary, err := jrnl.Summary(ctx, "")
	if err != nil {
		return err
	}

	fmt.Fprintln(out)
	printSummary(out, summary)

	js := jrnl.Stats()
	fmt.Fprintf(out, "\njournal %s: %d outcomes written, %d dropped\n",
		cfg.JournalPath, js.Written, js.Dropped)

	return nil
}

// produce issues cfg.Calls calls on conn, stopping early if ctx is done.
func produce(ctx context.Context, conn *task.Connection, rng *rand.Rand,
	cfg *config.Config, counts *tally) error {

	for i := 0; i < cfg.Calls; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		blocking := rng.Float64() < cfg.BlockingRatio

		var call func() error
		switch {
		case !blocking && rng.IntN(8) == 0:
			call = func() error {
				return conn.Void(cmdHome)
			}

		case !blocking:
			call = func() error {
				return conn.Write(cmdSetpoint,
					object.NewValue(rng.Float64()*200-100))
			}

		default:
			call = blockingCall(ctx, conn, rng)
		}

		err := admit(call)
		var execErr *command.ExecutionError
		switch {
		case err == nil:
			counts.accepted.Add(1)

		case errors.As(err, &execErr) &&
			execErr.Result == command.ResultArgumentQueueFull:

			counts.refused.Add(1)

		default:
			counts.accepted.Add(1)
			counts.failed.Add(1)
		}
	}

	return nil
}

// blockingCall picks one blocking call of a random shape.
func blockingCall(ctx context.Context, conn *task.Connection,
	rng *rand.Rand) func() error {

	switch rng.IntN(6) {
	case 0:
		return func() error {
			return conn.VoidBlocking(ctx, cmdHome)
		}

	case 1:
		return func() error {
			return conn.WriteBlocking(ctx, cmdSetpoint,
				object.NewValue(rng.Float64()*100))
		}

	case 2:
		return func() error {
			_, err := task.ReadAwait[float64](ctx, conn, cmdPosition)
			return err
		}

	case 3:
		// One channel past the end exercises the failure path.
		return func() error {
			_, err := task.QualifiedReadAwait[int, float64](
				ctx, conn, cmdChannel, rng.IntN(axisChannels+1),
			)
			return err
		}

	case 4:
		return func() error {
			_, err := task.CallAwait[int](ctx, conn, cmdMoves)
			return err
		}

	default:
		return func() error {
			_, err := task.ApplyAwait[float64, float64](
				ctx, conn, cmdJog, rng.Float64()-0.5,
			)
			return err
		}
	}
}

// admit retries call while its queues are full.
func admit(call func() error) error {
	var err error
	for attempt := 0; attempt < maxAdmissionRetries; attempt++ {
		err = call()

		var execErr *command.ExecutionError
		if !errors.As(err, &execErr) ||
			execErr.Result != command.ResultArgumentQueueFull {

			return err
		}
		runtime.Gosched()
	}

	return err
}

// printMailboxStats writes one line per mailbox.
func printMailboxStats(w io.Writer, stats []mailbox.Stats) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "MAILBOX\tSIZE\tEXECUTED\tFAILED\tREJECTED\tQUEUED")
	for _, s := range stats {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%d\n", s.Name, s.Size,
			s.Executed, s.Failed, s.RejectedFull, s.Queued)
	}
	_ = tw.Flush()
}

// printSummary writes one line per command.
func printSummary(w io.Writer, summary []journal.CommandSummary) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "COMMAND\tSHAPE\tCALLS\tSUCCEEDED\tBLOCKING\tAVG")
	for _, s := range summary {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%v\n", s.Command, s.Shape,
			s.Calls, s.Succeeded, s.Blocking, s.AvgDuration)
	}
	_ = tw.Flush()
}
