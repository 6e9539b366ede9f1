package mailbox

import (
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/roasbeef/cmdqueue/internal/command"
	"github.com/roasbeef/cmdqueue/internal/object"
	"github.com/roasbeef/cmdqueue/internal/ringbuf"
)

// QueuedCommand is a command whose Execute defers the real call to the
// thread draining its MailBox. The set of implementations is closed: only
// the six shapes in this package satisfy it, which lets MailBox dispatch
// with an exhaustive type switch.
type QueuedCommand interface {
	// Name returns the wrapped command's name.
	Name() string

	// Shape returns the wrapped command's shape.
	Shape() command.Shape

	// NumberOfArguments returns Shape().NumberOfArguments().
	NumberOfArguments() int

	// Returns returns Shape().Returns().
	Returns() bool

	// Allocate sizes the per-call queues from the command's prototypes.
	Allocate(size int) error

	// IsAllocated reports whether the per-call queues exist. Execute
	// returns ResultUndefined until they do.
	IsAllocated() bool

	// Size returns the capacity of the per-call queues.
	Size() int

	// Pending returns the number of calls queued but not yet executed.
	Pending() int

	// Mailbox returns the mailbox the command is bound to, or nil.
	Mailbox() *MailBox

	// Clone returns a new queued wrapper of the same command bound to mb
	// with queues of the given size.
	Clone(mb *MailBox, size int) QueuedCommand

	// Enable allows new calls to be queued.
	Enable()

	// Disable makes Execute return ResultDisabled.
	Disable()

	// IsEnabled reports whether new calls may be queued.
	IsEnabled() bool

	// base gives the dispatcher access to the shared queues and seals the
	// interface.
	base() *queuedBase

	// dropPayloads pops the shape-specific per-call queues.
	dropPayloads()
}

// queuedBase holds the state every shape shares: the mailbox binding and the
// blocking-flag and finished-event queues, which move in lockstep with the
// shape's payload queues.
type queuedBase struct {
	name  string
	shape command.Shape

	mailbox *MailBox

	size      int
	allocated bool
	disabled  atomic.Bool

	blockingFlags *ringbuf.RingBuffer[command.BlockingType]
	finished      *ringbuf.RingBuffer[fn.Option[command.FinishedEvent]]
}

// newQueuedBase returns the shared state for a command bound to mb.
func newQueuedBase(mb *MailBox, actual command.Command,
	size int) queuedBase {

	return queuedBase{
		name:    actual.Name(),
		shape:   actual.Shape(),
		mailbox: mb,
		size:    size,
	}
}

// Name returns the wrapped command's name.
func (q *queuedBase) Name() string {
	return q.name
}

// Shape returns the wrapped command's shape.
func (q *queuedBase) Shape() command.Shape {
	return q.shape
}

// NumberOfArguments returns the shape's argument count.
func (q *queuedBase) NumberOfArguments() int {
	return q.shape.NumberOfArguments()
}

// Returns reports whether the shape has a return value.
func (q *queuedBase) Returns() bool {
	return q.shape.Returns()
}

// Size returns the capacity of the per-call queues.
func (q *queuedBase) Size() int {
	return q.size
}

// Pending returns the number of queued calls.
func (q *queuedBase) Pending() int {
	if !q.allocated {
		return 0
	}

	return q.blockingFlags.Available()
}

// Mailbox returns the bound mailbox, or nil.
func (q *queuedBase) Mailbox() *MailBox {
	return q.mailbox
}

// Enable allows new calls to be queued.
func (q *queuedBase) Enable() {
	q.disabled.Store(false)
}

// Disable makes Execute return ResultDisabled.
func (q *queuedBase) Disable() {
	q.disabled.Store(true)
}

// IsEnabled reports whether new calls may be queued.
func (q *queuedBase) IsEnabled() bool {
	return !q.disabled.Load()
}

// IsAllocated reports whether the per-call queues have been built.
func (q *queuedBase) IsAllocated() bool {
	return q.allocated
}

// base returns the state shared by every shape. The dispatcher reaches the
// blocking flag and finished event queues through it.
func (q *queuedBase) base() *queuedBase {
	return q
}

// prepare validates a (re)allocation and builds the shared queues. The
// caller builds its payload queues and then calls markAllocated.
func (q *queuedBase) prepare(size int) error {
	if size < 1 {
		size = 1
	}

	if q.allocated {
		if q.blockingFlags.Available() > 0 {
			return fmt.Errorf("%w: %q has %d pending calls",
				ErrQueueBusy, q.name, q.blockingFlags.Available())
		}

		if size != q.size {
			log.Warnf("Queued command %q reallocated from %d to %d "+
				"slots", q.name, q.size, size)
		}
	}

	q.size = size
	q.blockingFlags = ringbuf.New(size, command.NotBlocking)
	q.finished = ringbuf.New(size, fn.None[command.FinishedEvent]())

	return nil
}

// markAllocated records that every queue has been built.
func (q *queuedBase) markAllocated() {
	q.allocated = true
}

// payload is one per-call argument queue of a shape together with the
// value to put into it for the current call.
type payload struct {
	// label names the queue in diagnostics.
	label string

	// queue is the per-call queue.
	queue *ringbuf.Generic

	// value is copied into queue. It is ignored when reserve is set.
	value object.GenericObject

	// reserve claims an out-parameter slot instead of copying value.
	reserve bool
}

// enqueue runs the admission and enqueue protocol shared by all shapes:
// disabled, unbound, argument type, and capacity checks first, then the
// payload queues, blocking flag, finished event and mailbox in that order,
// rolling back on any failure so that the queues stay in lockstep.
func (q *queuedBase) enqueue(self QueuedCommand, blocking command.BlockingType,
	finished fn.Option[command.FinishedEvent],
	payloads ...payload) command.ExecutionResult {

	if q.disabled.Load() {
		return command.ResultDisabled
	}

	if q.mailbox == nil {
		return command.ResultNoMailbox
	}

	if !q.allocated {
		log.Errorf("Queued command %q executed before its queues "+
			"were allocated", q.name)

		return command.ResultUndefined
	}

	for _, p := range payloads {
		if p.reserve || p.queue.Matches(p.value) {
			continue
		}

		log.Warnf("Queued command %q: %s has type %s, expected %s",
			q.name, p.label, object.TypeName(p.value),
			object.TypeName(p.queue.Prototype()))

		return command.ResultInvalidInputType
	}

	if full := q.fullQueues(payloads); len(full) > 0 {
		log.Warnf("Queued command %q rejected, full queue(s): %s "+
			"(mailbox %q)", q.name, strings.Join(full, ", "),
			q.mailbox.Name())

		q.mailbox.rejected.Add(1)

		return command.ResultArgumentQueueFull
	}

	for i, p := range payloads {
		var err error
		if p.reserve {
			_, err = p.queue.Reserve()
		} else {
			err = p.queue.Put(p.value)
		}

		if err != nil {
			unputPayloads(payloads[:i])

			log.Errorf("Queued command %q: unable to queue %s: %v",
				q.name, p.label, err)

			return command.ResultUndefined
		}
	}

	if !q.blockingFlags.Put(blocking) {
		unputPayloads(payloads)

		log.Errorf("Queued command %q: blocking flag queue full",
			q.name)

		return command.ResultUndefined
	}

	if !q.finished.Put(finished) {
		q.blockingFlags.Unput()
		unputPayloads(payloads)

		log.Errorf("Queued command %q: finished event queue full",
			q.name)

		return command.ResultUndefined
	}

	// Everything local is queued, publish the call to the consumer.
	if !q.mailbox.Write(self) {
		q.finished.Unput()
		q.blockingFlags.Unput()
		unputPayloads(payloads)

		log.Errorf("Queued command %q: mailbox %q refused the call",
			q.name, q.mailbox.Name())

		return command.ResultUndefined
	}

	return command.ResultQueued
}

// fullQueues returns the names of the queues that cannot take another call.
func (q *queuedBase) fullQueues(payloads []payload) []string {
	var full []string
	for _, p := range payloads {
		if p.queue.IsFull() {
			full = append(full, p.label)
		}
	}
	if q.blockingFlags.IsFull() {
		full = append(full, "blocking flags")
	}
	if q.finished.IsFull() {
		full = append(full, "finished events")
	}
	if q.mailbox.IsFull() {
		full = append(full, "mailbox")
	}

	return full
}

// unputPayloads rolls back the given payload queues, newest first.
func unputPayloads(payloads []payload) {
	for i := len(payloads) - 1; i >= 0; i-- {
		payloads[i].queue.Unput()
	}
}

// peekBlocking returns the blocking flag of the oldest queued call.
func (q *queuedBase) peekBlocking() command.BlockingType {
	flag := q.blockingFlags.Peek()
	if flag == nil {
		return command.NotBlocking
	}

	return *flag
}

// popCall pops the oldest call's blocking flag and finished event.
func (q *queuedBase) popCall() fn.Option[command.FinishedEvent] {
	q.blockingFlags.Get()

	finished := q.finished.Get()
	if finished == nil {
		return fn.None[command.FinishedEvent]()
	}

	return *finished
}

// NewQueued wraps actual in the queued shape matching actual.Shape(), bound
// to mb (which may be nil) with queues of the given size.
func NewQueued(mb *MailBox, actual command.Command,
	size int) (QueuedCommand, error) {

	mismatch := func() (QueuedCommand, error) {
		return nil, fmt.Errorf("%w: %q declares %v but is %T",
			ErrShapeMismatch, actual.Name(), actual.Shape(), actual)
	}

	switch actual.Shape() {
	case command.ShapeVoid:
		c, ok := actual.(command.Void)
		if !ok {
			return mismatch()
		}
		return NewQueuedVoid(mb, c, size), nil

	case command.ShapeWrite:
		c, ok := actual.(command.Write)
		if !ok {
			return mismatch()
		}
		return NewQueuedWrite(mb, c, size), nil

	case command.ShapeRead:
		c, ok := actual.(command.Read)
		if !ok {
			return mismatch()
		}
		return NewQueuedRead(mb, c, size), nil

	case command.ShapeQualifiedRead:
		c, ok := actual.(command.QualifiedRead)
		if !ok {
			return mismatch()
		}
		return NewQueuedQualifiedRead(mb, c, size), nil

	case command.ShapeVoidReturn:
		c, ok := actual.(command.VoidReturn)
		if !ok {
			return mismatch()
		}
		return NewQueuedVoidReturn(mb, c, size), nil

	case command.ShapeWriteReturn:
		c, ok := actual.(command.WriteReturn)
		if !ok {
			return mismatch()
		}
		return NewQueuedWriteReturn(mb, c, size), nil

	default:
		return mismatch()
	}
}

// allocateOrDefer allocates q now if its prototypes are known. A missing
// prototype is not an error at construction time: Allocate is called again
// once the command is complete.
func allocateOrDefer(q QueuedCommand, size int) {
	if err := q.Allocate(size); err != nil {
		log.Debugf("Deferring allocation of queued command %q: %v",
			q.Name(), err)
	}
}
