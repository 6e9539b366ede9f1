package task

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/roasbeef/cmdqueue/internal/command"
	"github.com/roasbeef/cmdqueue/internal/mailbox"
	"github.com/roasbeef/cmdqueue/internal/object"
)

// Connection is one caller's handle on a task's provided commands. It may
// be shared by several goroutines: calls are serialized on the connection so
// that its mailbox keeps a single producer.
type Connection struct {
	id     string
	caller string
	task   *Task

	mailbox  *mailbox.MailBox
	commands map[string]mailbox.QueuedCommand

	// mu serializes producers on the mailbox.
	mu sync.Mutex

	closed atomic.Bool
}

// ID returns the connection's unique identifier.
func (c *Connection) ID() string {
	return c.id
}

// Caller returns the name the connection was opened with.
func (c *Connection) Caller() string {
	return c.caller
}

// Stats returns a snapshot of the connection's mailbox counters.
func (c *Connection) Stats() mailbox.Stats {
	return c.mailbox.Stats()
}

// Close refuses further calls. Calls already queued still run, after which
// the task forgets the connection.
func (c *Connection) Close() {
	// Holding mu orders Close after any call being queued, so the task
	// only sees the connection closed once that call is in the mailbox.
	c.mu.Lock()
	if c.closed.Load() {
		c.mu.Unlock()
		return
	}
	for _, q := range c.commands {
		q.Disable()
	}
	c.closed.Store(true)
	c.mu.Unlock()

	c.task.signal()
}

func (c *Connection) isClosed() bool {
	return c.closed.Load()
}

// Void queues a call to a Void command without waiting for it to run.
func (c *Connection) Void(name string) error {
	return c.enqueue(name, command.ShapeVoid, command.NotBlocking,
		fn.None[command.FinishedEvent](),
		func(q mailbox.QueuedCommand, b command.BlockingType,
			f fn.Option[command.FinishedEvent]) command.ExecutionResult {

			return q.(*mailbox.QueuedVoid).Execute(b, f)
		},
	)
}

// VoidBlocking calls a Void command and waits until it has run.
func (c *Connection) VoidBlocking(ctx context.Context, name string) error {
	return c.call(ctx, name, command.ShapeVoid, nil,
		func(q mailbox.QueuedCommand, b command.BlockingType,
			f fn.Option[command.FinishedEvent]) command.ExecutionResult {

			return q.(*mailbox.QueuedVoid).Execute(b, f)
		},
	)
}

// Write queues a call to a Write command with a copy of arg without waiting
// for it to run.
func (c *Connection) Write(name string, arg object.GenericObject) error {
	return c.enqueue(name, command.ShapeWrite, command.NotBlocking,
		fn.None[command.FinishedEvent](),
		func(q mailbox.QueuedCommand, b command.BlockingType,
			f fn.Option[command.FinishedEvent]) command.ExecutionResult {

			return q.(*mailbox.QueuedWrite).Execute(arg, b, f)
		},
	)
}

// WriteBlocking calls a Write command with a copy of arg and waits until it
// has run.
func (c *Connection) WriteBlocking(ctx context.Context, name string,
	arg object.GenericObject) error {

	return c.call(ctx, name, command.ShapeWrite, nil,
		func(q mailbox.QueuedCommand, b command.BlockingType,
			f fn.Option[command.FinishedEvent]) command.ExecutionResult {

			return q.(*mailbox.QueuedWrite).Execute(arg, b, f)
		},
	)
}

// Read calls a Read command and copies its out-parameter into dst.
func (c *Connection) Read(ctx context.Context, name string,
	dst object.GenericObject) error {

	return c.call(ctx, name, command.ShapeRead, dst,
		func(q mailbox.QueuedCommand, b command.BlockingType,
			f fn.Option[command.FinishedEvent]) command.ExecutionResult {

			read := q.(*mailbox.QueuedRead)
			if !object.SameType(dst, read.ArgumentPrototype()) {
				return command.ResultInvalidInputType
			}

			return read.Execute(b, f)
		},
	)
}

// QualifiedRead calls a QualifiedRead command with a copy of qualifier and
// copies its out-parameter into dst.
func (c *Connection) QualifiedRead(ctx context.Context, name string,
	qualifier, dst object.GenericObject) error {

	return c.call(ctx, name, command.ShapeQualifiedRead, dst,
		func(q mailbox.QueuedCommand, b command.BlockingType,
			f fn.Option[command.FinishedEvent]) command.ExecutionResult {

			read := q.(*mailbox.QueuedQualifiedRead)
			if !object.SameType(dst, read.Argument2Prototype()) {
				return command.ResultInvalidInputType
			}

			return read.Execute(qualifier, b, f)
		},
	)
}

// VoidReturn calls a VoidReturn command and copies its result into dst.
func (c *Connection) VoidReturn(ctx context.Context, name string,
	dst object.GenericObject) error {

	return c.call(ctx, name, command.ShapeVoidReturn, dst,
		func(q mailbox.QueuedCommand, b command.BlockingType,
			f fn.Option[command.FinishedEvent]) command.ExecutionResult {

			ret := q.(*mailbox.QueuedVoidReturn)
			if !object.SameType(dst, ret.ResultPrototype()) {
				return command.ResultInvalidInputType
			}

			return ret.Execute(b, f)
		},
	)
}

// WriteReturn calls a WriteReturn command with a copy of arg and copies its
// result into dst.
func (c *Connection) WriteReturn(ctx context.Context, name string,
	arg, dst object.GenericObject) error {

	return c.call(ctx, name, command.ShapeWriteReturn, dst,
		func(q mailbox.QueuedCommand, b command.BlockingType,
			f fn.Option[command.FinishedEvent]) command.ExecutionResult {

			ret := q.(*mailbox.QueuedWriteReturn)
			if !object.SameType(dst, ret.ResultPrototype()) {
				return command.ResultInvalidInputType
			}

			return ret.Execute(arg, b, f)
		},
	)
}

// executeFunc queues one call on a queued command of a known shape.
type executeFunc func(q mailbox.QueuedCommand, blocking command.BlockingType,
	finished fn.Option[command.FinishedEvent]) command.ExecutionResult

// lookup returns the connection's queued copy of the named command.
func (c *Connection) lookup(name string,
	shape command.Shape) (mailbox.QueuedCommand, error) {

	q, ok := c.commands[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q on task %q", ErrCommandNotFound,
			name, c.task.Name())
	}
	if q.Shape() != shape {
		return nil, fmt.Errorf("%w: %q is %v, not %v", ErrWrongShape,
			name, q.Shape(), shape)
	}

	return q, nil
}

// enqueue queues one call and reports admission failures.
func (c *Connection) enqueue(name string, shape command.Shape,
	blocking command.BlockingType, finished fn.Option[command.FinishedEvent],
	exec executeFunc) error {

	if c.closed.Load() {
		return ErrConnectionClosed
	}
	if c.task.ctx.Err() != nil {
		return ErrTaskStopped
	}

	q, err := c.lookup(name, shape)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if !q.IsAllocated() {
		// The prototype may have become known since Connect.
		if err := q.Allocate(c.task.cfg.MailboxSize); err != nil {
			log.DebugS(c.task.ctx, "Command still unallocated",
				"task", c.task.Name(), "command", name, "err", err)
		}
	}
	result := exec(q, blocking, finished)
	c.mu.Unlock()

	if result != command.ResultQueued {
		log.DebugS(c.task.ctx, "Call refused", "task", c.task.Name(),
			"caller", c.caller, "command", name,
			"result", result.String())

		return &command.ExecutionError{Command: name, Result: result}
	}

	return nil
}

// call queues a blocking call and waits for it to run, copying any result
// into dst.
func (c *Connection) call(ctx context.Context, name string,
	shape command.Shape, dst object.GenericObject, exec executeFunc) error {

	w := newWaiter(dst)
	err := c.enqueue(name, shape, command.Blocking,
		fn.Some[command.FinishedEvent](w), exec)
	if err != nil {
		return err
	}

	result, err := c.await(ctx, w).Unpack()
	if err != nil {
		return err
	}

	if !result.IsOK() {
		return &command.ExecutionError{Command: name, Result: result}
	}

	return nil
}

// await waits for w to be delivered. A caller giving up before delivery
// leaves the call queued; it still runs but its result is dropped.
func (c *Connection) await(ctx context.Context,
	w *waiter) fn.Result[command.ExecutionResult] {

	select {
	case <-w.done:

	case <-ctx.Done():
		if w.abandon() {
			return fn.Err[command.ExecutionResult](ctx.Err())
		}
		<-w.done

	case <-c.task.done:
		if w.abandon() {
			return fn.Err[command.ExecutionResult](ErrTaskStopped)
		}
		<-w.done
	}

	return fn.Ok(w.result)
}
