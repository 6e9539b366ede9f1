// Package journal persists the outcome of every executed call to SQLite so
// that a run can be summarized afterwards. Outcomes are handed over from the
// executing goroutines through a bounded queue and written in batches by a
// single writer goroutine; an outcome arriving while the queue is full is
// counted and dropped rather than stalling the caller.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/roasbeef/cmdqueue/internal/command"
	"github.com/roasbeef/cmdqueue/internal/mailbox"
	"github.com/roasbeef/cmdqueue/internal/ringbuf"
)

const (
	// DefaultQueueSize is the number of outcomes buffered ahead of the
	// writer when Config leaves it unset.
	DefaultQueueSize = 4096

	// DefaultBatchSize is the number of outcomes written per transaction
	// when Config leaves it unset.
	DefaultBatchSize = 256
)

// ErrClosed is returned by operations on a closed journal.
var ErrClosed = errors.New("journal closed")

// Config holds the configuration of a Journal.
type Config struct {
	// Path is the SQLite database file.
	Path string

	// RunID tags every outcome of this run. A random one is chosen if
	// empty.
	RunID string

	// QueueSize bounds the outcomes waiting for the writer.
	QueueSize int

	// BatchSize bounds the outcomes written per transaction.
	BatchSize int
}

// CommandSummary aggregates the outcomes of one command in one run.
type CommandSummary struct {
	// Command is the command name.
	Command string

	// Shape is the command's shape.
	Shape string

	// Calls is the number of executed calls.
	Calls int64

	// Succeeded is the number of calls that succeeded.
	Succeeded int64

	// Blocking is the number of calls queued as blocking.
	Blocking int64

	// AvgDuration is the mean execution time.
	AvgDuration time.Duration
}

// Stats is a snapshot of the journal counters.
type Stats struct {
	// Written is the number of outcomes stored.
	Written uint64

	// Dropped is the number of outcomes discarded because the queue was
	// full.
	Dropped uint64
}

// Journal records call outcomes.
type Journal struct {
	cfg Config
	db  *sql.DB

	// mu guards queue, which has several producers.
	mu    sync.Mutex
	queue *ringbuf.RingBuffer[mailbox.Outcome]

	wake chan struct{}
	quit chan struct{}
	wg   sync.WaitGroup

	closeOnce sync.Once
	closed    atomic.Bool

	// pending counts outcomes queued but not yet written or dropped.
	pending atomic.Int64

	written atomic.Uint64
	dropped atomic.Uint64
}

// Open opens or creates the journal at cfg.Path, migrates it, and starts the
// writer.
func Open(cfg Config) (*Journal, error) {
	if cfg.RunID == "" {
		cfg.RunID = uuid.NewString()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}

	db, err := openSQLite(cfg.Path)
	if err != nil {
		return nil, err
	}
	if err := migrateUp(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate journal: %w", err)
	}

	j := &Journal{
		cfg:   cfg,
		db:    db,
		queue: ringbuf.New(cfg.QueueSize, mailbox.Outcome{}),
		wake:  make(chan struct{}, 1),
		quit:  make(chan struct{}),
	}

	j.wg.Add(1)
	go j.writer()

	log.Infof("Journal opened at %s (run %s)", cfg.Path, cfg.RunID)

	return j, nil
}

// RunID returns the identifier tagging this run's outcomes.
func (j *Journal) RunID() string {
	return j.cfg.RunID
}

// Record queues o for writing. It never blocks; if the queue is full the
// outcome is dropped and counted. It is safe for concurrent use and has the
// signature of a mailbox observer.
func (j *Journal) Record(o mailbox.Outcome) {
	if j.closed.Load() {
		j.dropped.Add(1)
		return
	}

	j.mu.Lock()
	ok := j.queue.Put(o)
	if ok {
		j.pending.Add(1)
	}
	j.mu.Unlock()

	if !ok {
		if j.dropped.Add(1) == 1 {
			log.Warnf("Journal queue full, dropping outcomes")
		}
		return
	}

	select {
	case j.wake <- struct{}{}:
	default:
	}
}

// writer stores queued outcomes until Close, then flushes what is left.
func (j *Journal) writer() {
	defer j.wg.Done()

	for {
		select {
		case <-j.wake:
			j.flush()

		case <-j.quit:
			j.flush()
			return
		}
	}
}

// flush writes every queued outcome, one batch per transaction.
func (j *Journal) flush() {
	for {
		batch := j.take()
		if len(batch) == 0 {
			return
		}

		if err := j.insert(batch); err != nil {
			log.Errorf("Unable to write %d outcomes: %v", len(batch),
				err)

			j.dropped.Add(uint64(len(batch)))
		} else {
			j.written.Add(uint64(len(batch)))
		}
		j.pending.Add(-int64(len(batch)))
	}
}

// take dequeues up to one batch of outcomes.
func (j *Journal) take() []mailbox.Outcome {
	j.mu.Lock()
	defer j.mu.Unlock()

	var batch []mailbox.Outcome
	for len(batch) < j.cfg.BatchSize {
		o := j.queue.Get()
		if o == nil {
			break
		}
		batch = append(batch, *o)
	}

	return batch
}

const insertOutcome = `
INSERT INTO outcomes (
    run_id, mailbox, command, shape, result, succeeded, blocking,
    executed_at, duration_ns
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

// insert writes batch in one transaction.
func (j *Journal) insert(batch []mailbox.Outcome) error {
	tx, err := j.db.Begin()
	if err != nil {
		return err
	}

	stmt, err := tx.Prepare(insertOutcome)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, o := range batch {
		_, err := stmt.Exec(
			j.cfg.RunID, o.Mailbox, o.Command, o.Shape.String(),
			o.Result.String(), o.Result == command.ResultSucceeded,
			o.Blocking == command.Blocking, o.ExecutedAt.UnixNano(),
			o.Duration.Nanoseconds(),
		)
		if err != nil {
			_ = tx.Rollback()
			return err
		}
	}

	return tx.Commit()
}

const summaryQuery = `
SELECT command, shape, COUNT(*), SUM(succeeded), SUM(blocking),
    CAST(AVG(duration_ns) AS INTEGER)
FROM outcomes
WHERE run_id = ?
GROUP BY command, shape
ORDER BY command`

// Summary aggregates the outcomes stored so far for runID, or for this run
// if runID is empty.
func (j *Journal) Summary(ctx context.Context,
	runID string) ([]CommandSummary, error) {

	if j.closed.Load() {
		return nil, ErrClosed
	}
	if runID == "" {
		runID = j.cfg.RunID
	}

	rows, err := j.db.QueryContext(ctx, summaryQuery, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query summary: %w", err)
	}
	defer rows.Close()

	var summaries []CommandSummary
	for rows.Next() {
		var (
			s   CommandSummary
			avg int64
		)
		err := rows.Scan(
			&s.Command, &s.Shape, &s.Calls, &s.Succeeded,
			&s.Blocking, &avg,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan summary: %w", err)
		}
		s.AvgDuration = time.Duration(avg)

		summaries = append(summaries, s)
	}

	return summaries, rows.Err()
}

// RunInfo describes one run stored in the journal.
type RunInfo struct {
	// RunID is the run identifier.
	RunID string

	// Calls is the number of outcomes stored for the run.
	Calls int64

	// Started is when the run's first call executed.
	Started time.Time

	// Finished is when the run's last call executed.
	Finished time.Time
}

const runsQuery = `
SELECT run_id, COUNT(*), MIN(executed_at), MAX(executed_at)
FROM outcomes
GROUP BY run_id
ORDER BY MIN(executed_at)`

// Runs lists every run stored in the journal, oldest first.
func (j *Journal) Runs(ctx context.Context) ([]RunInfo, error) {
	if j.closed.Load() {
		return nil, ErrClosed
	}

	rows, err := j.db.QueryContext(ctx, runsQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []RunInfo
	for rows.Next() {
		var (
			r                 RunInfo
			started, finished int64
		)
		err := rows.Scan(&r.RunID, &r.Calls, &started, &finished)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		r.Started = time.Unix(0, started)
		r.Finished = time.Unix(0, finished)

		runs = append(runs, r)
	}

	return runs, rows.Err()
}

// Sync waits until every outcome recorded before the call has been written
// or dropped.
func (j *Journal) Sync(ctx context.Context) error {
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()

	for j.pending.Load() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-j.quit:
			return ErrClosed
		case <-ticker.C:
		}
	}

	return nil
}

// Stats returns a snapshot of the journal counters.
func (j *Journal) Stats() Stats {
	return Stats{
		Written: j.written.Load(),
		Dropped: j.dropped.Load(),
	}
}

// Close flushes queued outcomes, stops the writer and closes the database.
func (j *Journal) Close() error {
	var err error
	j.closeOnce.Do(func() {
		j.closed.Store(true)
		close(j.quit)
		j.wg.Wait()

		// Outcomes recorded while the writer was exiting.
		j.mu.Lock()
		j.dropped.Add(uint64(j.queue.Available()))
		j.mu.Unlock()

		log.Infof("Journal closed: %d outcomes written, %d dropped",
			j.written.Load(), j.dropped.Load())

		err = j.db.Close()
	})

	return err
}
