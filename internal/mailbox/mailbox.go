// Package mailbox implements the queued command family and the per
// destination MailBox that serializes cross-goroutine command invocations.
//
// A producer calls Execute on a queued command: the call's arguments,
// blocking flag and finished event are copied into the command's private
// queues and the command itself is written into the destination MailBox.
// The destination goroutine later calls MailBox.ExecuteNext, which runs the
// real command, fires the post-dequeue hooks and finished event, and pops
// every queue involved.
//
// Each MailBox supports exactly one producer and one consumer at a time.
// Callers on several goroutines must each use their own MailBox (see the
// task package) or serialize themselves.
package mailbox

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/roasbeef/cmdqueue/internal/command"
	"github.com/roasbeef/cmdqueue/internal/object"
	"github.com/roasbeef/cmdqueue/internal/ringbuf"
)

// Outcome describes one executed call. It is reported to the observer
// configured with WithObserver.
type Outcome struct {
	// Mailbox is the name of the mailbox the call came through.
	Mailbox string

	// Command is the name of the executed command.
	Command string

	// Shape is the command's shape.
	Shape command.Shape

	// Result is the outcome of the real command.
	Result command.ExecutionResult

	// Blocking is the blocking flag the call was queued with.
	Blocking command.BlockingType

	// ExecutedAt is when the call finished running.
	ExecutedAt time.Time

	// Duration is how long the real command ran.
	Duration time.Duration
}

// Stats is a snapshot of a mailbox's counters.
type Stats struct {
	// Name is the mailbox name.
	Name string

	// Size is the mailbox capacity.
	Size int

	// Queued is the number of calls waiting to run.
	Queued int

	// Executed is the number of calls run so far.
	Executed uint64

	// Failed is the number of executed calls whose result was not OK.
	Failed uint64

	// RejectedFull is the number of calls refused because a queue or
	// the mailbox was full.
	RejectedFull uint64
}

// Option configures a MailBox.
type Option func(*MailBox)

// WithPostEnqueue sets a hook run on the producer's goroutine after every
// successful Write, typically to wake the consumer.
func WithPostEnqueue(hook func()) Option {
	return func(m *MailBox) {
		m.postEnqueue = fn.Some(hook)
	}
}

// WithPostVoidDequeued sets a hook run after a blocking Void or Write call
// has executed.
func WithPostVoidDequeued(hook func()) Option {
	return func(m *MailBox) {
		m.postVoidDequeued = fn.Some(hook)
	}
}

// WithPostReturnDequeued sets a hook run after a blocking call of a
// result-producing shape has executed.
func WithPostReturnDequeued(hook func()) Option {
	return func(m *MailBox) {
		m.postReturnDequeued = fn.Some(hook)
	}
}

// WithObserver sets a function told about every executed call. It runs on
// the consumer goroutine.
func WithObserver(observer func(Outcome)) Option {
	return func(m *MailBox) {
		m.observer = fn.Some(observer)
	}
}

// MailBox is the FIFO of pending calls directed at one destination. It does
// not own the queued commands it references.
type MailBox struct {
	name string

	commands *ringbuf.RingBuffer[QueuedCommand]

	postEnqueue        fn.Option[func()]
	postVoidDequeued   fn.Option[func()]
	postReturnDequeued fn.Option[func()]
	observer           fn.Option[func(Outcome)]

	// proxy is the finished-event payload for calls without a result
	// object. Only the consumer touches it.
	proxy command.ResultProxy

	executed atomic.Uint64
	failed   atomic.Uint64
	rejected atomic.Uint64
}

// New creates a mailbox holding up to size calls. A size below 1 is raised
// to 1.
func New(name string, size int, opts ...Option) *MailBox {
	m := &MailBox{
		name:     name,
		commands: ringbuf.New[QueuedCommand](size, nil),
	}
	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Name returns the mailbox name.
func (m *MailBox) Name() string {
	return m.name
}

// Write queues cmd. It returns false if the mailbox is full; the queued
// command turns that into ResultArgumentQueueFull.
func (m *MailBox) Write(cmd QueuedCommand) bool {
	if !m.commands.Put(cmd) {
		m.rejected.Add(1)
		return false
	}

	m.postEnqueue.WhenSome(func(hook func()) {
		hook()
	})

	return true
}

// ExecuteNext runs the oldest queued call. It returns false, doing nothing,
// if the mailbox is empty, and true once a call has been processed whatever
// its outcome. It must only be called from the mailbox's consumer
// goroutine.
//
// Panics raised by the real command or by a finished event are recovered
// and reported as ResultMethodFailed; ExecuteNext never propagates them.
func (m *MailBox) ExecuteNext() bool {
	slot := m.commands.Peek()
	if slot == nil {
		return false
	}

	// The call stays at the head of the mailbox until every per-command
	// queue has been popped, so it is popped last.
	cmd := *slot
	base := cmd.base()
	blocking := base.peekBlocking()

	var (
		result command.ExecutionResult
		out    object.GenericObject
	)

	start := time.Now()
	switch c := cmd.(type) {
	case *QueuedVoid:
		result = m.run(c.name, func() command.ExecutionResult {
			return c.actual.Execute(blocking)
		})

	case *QueuedWrite:
		arg := c.args.Peek()
		result = m.run(c.name, func() command.ExecutionResult {
			return c.actual.Execute(arg, blocking)
		})

	// Read executes like VoidReturn, its argument slot being the result.
	case *QueuedRead:
		res := c.results.Peek()
		result = m.run(c.name, func() command.ExecutionResult {
			return c.actual.Execute(res)
		})
		out = c.capture(res, result)

	// QualifiedRead executes like WriteReturn with the out-parameter as
	// result.
	case *QueuedQualifiedRead:
		qualifier, res := c.qualifiers.Peek(), c.results.Peek()
		result = m.run(c.name, func() command.ExecutionResult {
			return c.actual.Execute(qualifier, res)
		})
		out = c.capture(res, result)

	case *QueuedVoidReturn:
		res := c.results.Peek()
		result = m.run(c.name, func() command.ExecutionResult {
			return c.actual.Execute(res)
		})
		out = c.capture(res, result)

	case *QueuedWriteReturn:
		arg, res := c.args.Peek(), c.results.Peek()
		result = m.run(c.name, func() command.ExecutionResult {
			return c.actual.Execute(arg, res)
		})
		out = c.capture(res, result)

	default:
		// Unreachable: QueuedCommand is sealed to the shapes above.
		panic(fmt.Sprintf("mailbox %q: unknown queued command %T",
			m.name, cmd))
	}
	elapsed := time.Since(start)

	m.executed.Add(1)
	if !result.IsOK() {
		m.failed.Add(1)

		log.Warnf("Mailbox %q: command %q (%v) returned %v", m.name,
			base.name, base.shape, result)
	}

	// Wake a caller waiting on this call.
	if blocking == command.Blocking {
		hook := m.postVoidDequeued
		if base.shape.ProducesResult() {
			hook = m.postReturnDequeued
		}
		hook.WhenSome(func(h func()) {
			h()
		})
	}

	cmd.dropPayloads()
	finished := base.popCall()

	if out != nil || blocking == command.Blocking {
		finished.WhenSome(func(event command.FinishedEvent) {
			payload := out
			if payload == nil {
				m.proxy.Result = result
				payload = &m.proxy
			}

			m.notify(base.name, event, payload, result)
		})
	}

	m.commands.Get()

	m.observer.WhenSome(func(observe func(Outcome)) {
		observe(Outcome{
			Mailbox:    m.name,
			Command:    base.name,
			Shape:      base.shape,
			Result:     result,
			Blocking:   blocking,
			ExecutedAt: start.Add(elapsed),
			Duration:   elapsed,
		})
	})

	return true
}

// run executes call, converting a panic into ResultMethodFailed.
func (m *MailBox) run(name string,
	call func() command.ExecutionResult) (result command.ExecutionResult) {

	defer func() {
		if r := recover(); r != nil {
			log.Errorf("Mailbox %q: command %q panicked: %v", m.name,
				name, r)

			result = command.ResultMethodFailed
		}
	}()

	return call()
}

// notify delivers payload to a finished event, containing any panic. A
// command.ResultEvent is also handed result.
func (m *MailBox) notify(name string, event command.FinishedEvent,
	payload object.GenericObject, result command.ExecutionResult) {

	defer func() {
		if r := recover(); r != nil {
			log.Errorf("Mailbox %q: finished event of %q panicked: %v",
				m.name, name, r)
		}
	}()

	if re, ok := event.(command.ResultEvent); ok {
		re.ExecuteResult(payload, result)
		return
	}

	event.Execute(payload, command.NotBlocking)
}

// SetSize changes the mailbox capacity. Resizing discards the storage, so
// it is refused with ErrQueueBusy while calls are queued.
func (m *MailBox) SetSize(size int) error {
	if err := m.commands.SetSize(size, nil); err != nil {
		return fmt.Errorf("%w: mailbox %q has %d queued calls",
			ErrQueueBusy, m.name, m.commands.Available())
	}

	return nil
}

// IsEmpty reports whether no call is queued.
func (m *MailBox) IsEmpty() bool {
	return m.commands.IsEmpty()
}

// IsFull reports whether a Write would fail.
func (m *MailBox) IsFull() bool {
	return m.commands.IsFull()
}

// Available returns the number of queued calls.
func (m *MailBox) Available() int {
	return m.commands.Available()
}

// Size returns the mailbox capacity.
func (m *MailBox) Size() int {
	return m.commands.Size()
}

// Stats returns a snapshot of the mailbox counters.
func (m *MailBox) Stats() Stats {
	return Stats{
		Name:         m.name,
		Size:         m.commands.Size(),
		Queued:       m.commands.Available(),
		Executed:     m.executed.Load(),
		Failed:       m.failed.Load(),
		RejectedFull: m.rejected.Load(),
	}
}
