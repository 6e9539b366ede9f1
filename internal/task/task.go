// Package task runs a component on its own goroutine and exposes its
// commands to other goroutines through queued commands and mailboxes.
//
// A Task owns the set of commands it provides. Every caller obtains a
// Connection, which carries its own mailbox and its own queued copy of each
// command, so every mailbox has exactly one producer. The task goroutine is
// the single consumer of all of its connections' mailboxes.
package task

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/roasbeef/cmdqueue/internal/command"
	"github.com/roasbeef/cmdqueue/internal/mailbox"
)

const (
	// DefaultMailboxSize is the mailbox capacity used when Config leaves it
	// unset.
	DefaultMailboxSize = 64

	// DefaultPeriod is the run loop period used when Config leaves it
	// unset.
	DefaultPeriod = 10 * time.Millisecond
)

// Config holds the configuration of a Task.
type Config struct {
	// Name identifies the task in logs and mailbox names.
	Name string

	// MailboxSize is the capacity of each connection's mailbox and of
	// the per-command queues cloned for it.
	MailboxSize int

	// Period is the interval of the run loop. The loop also wakes as soon
	// as a call is queued.
	Period time.Duration

	// Step is optional periodic work run on the task goroutine after the
	// queued commands of every iteration.
	Step fn.Option[func(context.Context)]

	// Observer is told about every executed call.
	Observer fn.Option[func(mailbox.Outcome)]

	// Wg is an optional WaitGroup tracking the run loop. If non-nil, Add(1)
	// is called on Start and Done when the loop exits.
	Wg *sync.WaitGroup
}

// Task is a component running on its own goroutine whose provided commands
// can be called from other goroutines.
type Task struct {
	cfg Config

	ctx    context.Context
	cancel context.CancelFunc

	// mu guards provided and conns.
	mu       sync.RWMutex
	provided map[string]mailbox.QueuedCommand
	conns    map[string]*Connection

	wake chan struct{}
	done chan struct{}

	startOnce sync.Once
	stopOnce  sync.Once
}

// New creates a task. Start must be called before its connections' calls
// are executed.
func New(cfg Config) *Task {
	if cfg.MailboxSize <= 0 {
		cfg.MailboxSize = DefaultMailboxSize
	}
	if cfg.Period <= 0 {
		cfg.Period = DefaultPeriod
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Task{
		cfg:      cfg,
		ctx:      ctx,
		cancel:   cancel,
		provided: make(map[string]mailbox.QueuedCommand),
		conns:    make(map[string]*Connection),
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
}

// Name returns the task name.
func (t *Task) Name() string {
	return t.cfg.Name
}

// AddCommand registers cmd as provided by the task. Connections made
// earlier do not see it.
func (t *Task) AddCommand(cmd command.Command) error {
	queued, err := mailbox.NewQueued(nil, cmd, 0)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.provided[cmd.Name()]; ok {
		return fmt.Errorf("%w: %q on task %q", ErrDuplicateCommand,
			cmd.Name(), t.cfg.Name)
	}
	t.provided[cmd.Name()] = queued

	log.DebugS(t.ctx, "Command registered", "task", t.cfg.Name,
		"command", cmd.Name(), "shape", cmd.Shape().String())

	return nil
}

// Connect creates a connection for caller with its own mailbox and queued
// copies of every provided command.
func (t *Task) Connect(caller string) (*Connection, error) {
	if t.ctx.Err() != nil {
		return nil, ErrTaskStopped
	}

	id := uuid.NewString()
	mb := mailbox.New(
		fmt.Sprintf("%s<-%s", t.cfg.Name, caller), t.cfg.MailboxSize,
		mailbox.WithPostEnqueue(t.signal),
		mailbox.WithObserver(t.observe),
	)

	t.mu.Lock()
	defer t.mu.Unlock()

	conn := &Connection{
		id:       id,
		caller:   caller,
		task:     t,
		mailbox:  mb,
		commands: make(map[string]mailbox.QueuedCommand, len(t.provided)),
	}
	for name, proto := range t.provided {
		conn.commands[name] = proto.Clone(mb, t.cfg.MailboxSize)
	}
	t.conns[id] = conn

	log.DebugS(t.ctx, "Caller connected", "task", t.cfg.Name,
		"caller", caller, "conn_id", id, "commands", len(conn.commands))

	return conn, nil
}

// Start launches the run loop. Repeated calls have no effect.
func (t *Task) Start() {
	t.startOnce.Do(func() {
		log.DebugS(t.ctx, "Starting task", "task", t.cfg.Name)

		if t.cfg.Wg != nil {
			t.cfg.Wg.Add(1)
		}
		go t.process()
	})
}

// Stop cancels the run loop and waits for it to drain every mailbox. It is
// safe to call more than once and before Start.
func (t *Task) Stop() {
	t.stopOnce.Do(func() {
		t.cancel()

		// Run the loop inline if it never started, so queued calls are
		// still drained and waiters released.
		started := true
		t.startOnce.Do(func() {
			started = false
		})
		if !started {
			t.drain()
			close(t.done)
		}
	})

	<-t.done
}

// Done returns a channel closed once the run loop has exited.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// signal wakes the run loop. It is the post-enqueue hook of every mailbox
// and runs on the producer's goroutine.
func (t *Task) signal() {
	select {
	case t.wake <- struct{}{}:
	default:
	}
}

// observe is the mailbox observer of every connection.
func (t *Task) observe(o mailbox.Outcome) {
	log.TraceS(t.ctx, "Call executed", "task", t.cfg.Name,
		"mailbox", o.Mailbox, "command", o.Command,
		"result", o.Result.String(), "blocking", o.Blocking.String(),
		"duration", o.Duration)

	t.cfg.Observer.WhenSome(func(observer func(mailbox.Outcome)) {
		observer(o)
	})
}

// process is the run loop. Every iteration executes queued calls and then
// the optional step.
func (t *Task) process() {
	if t.cfg.Wg != nil {
		defer t.cfg.Wg.Done()
	}
	defer close(t.done)

	ticker := time.NewTicker(t.cfg.Period)
	defer ticker.Stop()

	for {
		select {
		case <-t.ctx.Done():
			drained := t.drain()

			log.DebugS(context.Background(), "Task terminated",
				"task", t.cfg.Name, "drained_calls", drained)

			return

		case <-t.wake:
		case <-ticker.C:
		}

		t.ProcessQueuedCommands()

		t.cfg.Step.WhenSome(func(step func(context.Context)) {
			step(t.ctx)
		})
	}
}

// ProcessQueuedCommands executes the calls queued on every connection and
// returns how many ran. Each mailbox is visited at most once per round for
// up to its capacity, so one busy caller cannot starve the others; the loop
// is woken again if work remains. It must not run concurrently with the
// run loop started by Start.
func (t *Task) ProcessQueuedCommands() int {
	executed := 0
	pending := false
	for _, conn := range t.connections() {
		mb := conn.mailbox
		for i := 0; i < mb.Size() && mb.ExecuteNext(); i++ {
			executed++
		}

		switch {
		case !mb.IsEmpty():
			pending = true

		case conn.isClosed():
			t.remove(conn)
		}
	}

	if pending {
		t.signal()
	}

	return executed
}

// drain executes every call still queued, releasing blocked callers.
func (t *Task) drain() int {
	drained := 0
	for _, conn := range t.connections() {
		for conn.mailbox.ExecuteNext() {
			drained++
		}
	}

	return drained
}

// connections returns a snapshot of the live connections.
func (t *Task) connections() []*Connection {
	t.mu.RLock()
	defer t.mu.RUnlock()

	conns := make([]*Connection, 0, len(t.conns))
	for _, conn := range t.conns {
		conns = append(conns, conn)
	}

	return conns
}

// remove forgets a closed and drained connection.
func (t *Task) remove(conn *Connection) {
	t.mu.Lock()
	delete(t.conns, conn.id)
	t.mu.Unlock()

	log.DebugS(t.ctx, "Caller disconnected", "task", t.cfg.Name,
		"caller", conn.caller, "conn_id", conn.id)
}

// Stats returns a snapshot of every live connection's mailbox counters.
func (t *Task) Stats() []mailbox.Stats {
	conns := t.connections()

	stats := make([]mailbox.Stats, 0, len(conns))
	for _, conn := range conns {
		stats = append(stats, conn.mailbox.Stats())
	}
	slices.SortFunc(stats, func(a, b mailbox.Stats) int {
		return strings.Compare(a.Name, b.Name)
	})

	return stats
}
