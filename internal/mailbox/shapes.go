package mailbox

import (
	"fmt"

	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/roasbeef/cmdqueue/internal/command"
	"github.com/roasbeef/cmdqueue/internal/object"
	"github.com/roasbeef/cmdqueue/internal/ringbuf"
)

// newPayloadQueue builds a payload queue from proto, or fails with
// ErrNoPrototype.
func newPayloadQueue(name, label string, size int,
	proto object.GenericObject) (*ringbuf.Generic, error) {

	if object.IsNil(proto) {
		return nil, fmt.Errorf("%w: %s of %q", ErrNoPrototype, label,
			name)
	}

	return ringbuf.NewGeneric(size, proto), nil
}

// resultSlot holds the out-parameter queue of a result-producing shape and
// the consumer-owned copy handed to finished events. The copy is needed
// because the queue slot may be recycled by the producer as soon as it has
// been popped.
type resultSlot struct {
	results *ringbuf.Generic
	scratch object.GenericObject
}

// allocate builds the result queue and scratch copy from proto.
func (r *resultSlot) allocate(name string, size int,
	proto object.GenericObject) error {

	results, err := newPayloadQueue(name, "result", size, proto)
	if err != nil {
		return err
	}

	r.results = results
	r.scratch = proto.Clone()

	return nil
}

// payload returns the reservation for the current call's result.
func (r *resultSlot) payload() payload {
	return payload{label: "result", queue: r.results, reserve: true}
}

// capture copies the executed call's result into scratch, valid only when
// the command succeeded.
func (r *resultSlot) capture(slot object.GenericObject,
	result command.ExecutionResult) object.GenericObject {

	r.scratch.AssignFrom(slot)
	r.scratch.SetValid(result == command.ResultSucceeded)

	return r.scratch
}

// QueuedVoid queues calls to a Void command.
type QueuedVoid struct {
	queuedBase
	actual command.Void
}

// NewQueuedVoid wraps actual, bound to mb, with queues of the given size.
func NewQueuedVoid(mb *MailBox, actual command.Void, size int) *QueuedVoid {
	q := &QueuedVoid{
		queuedBase: newQueuedBase(mb, actual, size),
		actual:     actual,
	}
	allocateOrDefer(q, size)

	return q
}

// Allocate sizes the blocking-flag and finished-event queues.
func (q *QueuedVoid) Allocate(size int) error {
	if err := q.prepare(size); err != nil {
		return err
	}
	q.markAllocated()

	return nil
}

// Execute queues a call.
func (q *QueuedVoid) Execute(blocking command.BlockingType,
	finished fn.Option[command.FinishedEvent]) command.ExecutionResult {

	return q.enqueue(q, blocking, finished)
}

// Clone returns a new wrapper of the same command bound to mb.
func (q *QueuedVoid) Clone(mb *MailBox, size int) QueuedCommand {
	return NewQueuedVoid(mb, q.actual, size)
}

// Actual returns the wrapped command.
func (q *QueuedVoid) Actual() command.Void {
	return q.actual
}

// dropPayloads is a no-op: a Void call carries no payload.
func (q *QueuedVoid) dropPayloads() {}

// QueuedWrite queues calls to a Write command.
type QueuedWrite struct {
	queuedBase
	actual command.Write
	args   *ringbuf.Generic
}

// NewQueuedWrite wraps actual, bound to mb, with queues of the given size.
// Allocation is deferred if the argument prototype is not known yet.
func NewQueuedWrite(mb *MailBox, actual command.Write, size int) *QueuedWrite {
	q := &QueuedWrite{
		queuedBase: newQueuedBase(mb, actual, size),
		actual:     actual,
	}
	allocateOrDefer(q, size)

	return q
}

// Allocate sizes the argument queue from the argument prototype together
// with the shared queues.
func (q *QueuedWrite) Allocate(size int) error {
	proto := q.actual.ArgumentPrototype()
	if object.IsNil(proto) {
		return fmt.Errorf("%w: argument of %q", ErrNoPrototype, q.name)
	}
	if err := q.prepare(size); err != nil {
		return err
	}

	args, err := newPayloadQueue(q.name, "argument", q.size, proto)
	if err != nil {
		return err
	}
	q.args = args
	q.markAllocated()

	return nil
}

// Execute queues a call with a copy of arg.
func (q *QueuedWrite) Execute(arg object.GenericObject,
	blocking command.BlockingType,
	finished fn.Option[command.FinishedEvent]) command.ExecutionResult {

	return q.enqueue(q, blocking, finished, payload{
		label: "argument", queue: q.args, value: arg,
	})
}

// ArgumentPrototype returns the wrapped command's argument prototype.
func (q *QueuedWrite) ArgumentPrototype() object.GenericObject {
	return q.actual.ArgumentPrototype()
}

// ArgumentPeek returns the oldest queued argument without consuming it.
func (q *QueuedWrite) ArgumentPeek() object.GenericObject {
	if q.args == nil {
		return nil
	}

	return q.args.Peek()
}

// ArgumentGet consumes and returns the oldest queued argument. It is meant
// for the consumer side only; MailBox.ExecuteNext calls it implicitly.
func (q *QueuedWrite) ArgumentGet() object.GenericObject {
	if q.args == nil {
		return nil
	}

	return q.args.Get()
}

// Clone returns a new wrapper of the same command bound to mb.
func (q *QueuedWrite) Clone(mb *MailBox, size int) QueuedCommand {
	return NewQueuedWrite(mb, q.actual, size)
}

// Actual returns the wrapped command.
func (q *QueuedWrite) Actual() command.Write {
	return q.actual
}

// dropPayloads pops the executed call's argument.
func (q *QueuedWrite) dropPayloads() {
	q.args.Get()
}

// QueuedRead queues calls to a Read command. Each call reserves an
// out-parameter slot that is filled when the call runs and delivered
// through the finished event.
type QueuedRead struct {
	queuedBase
	resultSlot
	actual command.Read
}

// NewQueuedRead wraps actual, bound to mb, with queues of the given size.
func NewQueuedRead(mb *MailBox, actual command.Read, size int) *QueuedRead {
	q := &QueuedRead{
		queuedBase: newQueuedBase(mb, actual, size),
		actual:     actual,
	}
	allocateOrDefer(q, size)

	return q
}

// Allocate sizes the out-parameter queue together with the shared queues.
func (q *QueuedRead) Allocate(size int) error {
	proto := q.actual.ArgumentPrototype()
	if object.IsNil(proto) {
		return fmt.Errorf("%w: argument of %q", ErrNoPrototype, q.name)
	}
	if err := q.prepare(size); err != nil {
		return err
	}
	if err := q.allocate(q.name, q.size, proto); err != nil {
		return err
	}
	q.markAllocated()

	return nil
}

// Execute queues a call.
func (q *QueuedRead) Execute(blocking command.BlockingType,
	finished fn.Option[command.FinishedEvent]) command.ExecutionResult {

	return q.enqueue(q, blocking, finished, q.payload())
}

// ArgumentPrototype returns the out-parameter prototype.
func (q *QueuedRead) ArgumentPrototype() object.GenericObject {
	return q.actual.ArgumentPrototype()
}

// ArgumentPeek returns the oldest queued out-parameter slot.
func (q *QueuedRead) ArgumentPeek() object.GenericObject {
	if q.results == nil {
		return nil
	}

	return q.results.Peek()
}

// Clone returns a new wrapper of the same command bound to mb.
func (q *QueuedRead) Clone(mb *MailBox, size int) QueuedCommand {
	return NewQueuedRead(mb, q.actual, size)
}

// Actual returns the wrapped command.
func (q *QueuedRead) Actual() command.Read {
	return q.actual
}

// dropPayloads pops the executed call's out-parameter slot.
func (q *QueuedRead) dropPayloads() {
	q.results.Get()
}

// QueuedQualifiedRead queues calls to a QualifiedRead command.
type QueuedQualifiedRead struct {
	queuedBase
	resultSlot
	actual     command.QualifiedRead
	qualifiers *ringbuf.Generic
}

// NewQueuedQualifiedRead wraps actual, bound to mb, with queues of the
// given size.
func NewQueuedQualifiedRead(mb *MailBox, actual command.QualifiedRead,
	size int) *QueuedQualifiedRead {

	q := &QueuedQualifiedRead{
		queuedBase: newQueuedBase(mb, actual, size),
		actual:     actual,
	}
	allocateOrDefer(q, size)

	return q
}

// Allocate sizes the qualifier and out-parameter queues together with the
// shared queues.
func (q *QueuedQualifiedRead) Allocate(size int) error {
	qualifier := q.actual.Argument1Prototype()
	out := q.actual.Argument2Prototype()
	if object.IsNil(qualifier) || object.IsNil(out) {
		return fmt.Errorf("%w: arguments of %q", ErrNoPrototype,
			q.name)
	}
	if err := q.prepare(size); err != nil {
		return err
	}

	qualifiers, err := newPayloadQueue(q.name, "qualifier", q.size,
		qualifier)
	if err != nil {
		return err
	}
	if err := q.allocate(q.name, q.size, out); err != nil {
		return err
	}
	q.qualifiers = qualifiers
	q.markAllocated()

	return nil
}

// Execute queues a call with a copy of qualifier.
func (q *QueuedQualifiedRead) Execute(qualifier object.GenericObject,
	blocking command.BlockingType,
	finished fn.Option[command.FinishedEvent]) command.ExecutionResult {

	return q.enqueue(q, blocking, finished,
		payload{label: "qualifier", queue: q.qualifiers, value: qualifier},
		q.payload(),
	)
}

// Argument1Prototype returns the qualifier prototype.
func (q *QueuedQualifiedRead) Argument1Prototype() object.GenericObject {
	return q.actual.Argument1Prototype()
}

// Argument2Prototype returns the out-parameter prototype.
func (q *QueuedQualifiedRead) Argument2Prototype() object.GenericObject {
	return q.actual.Argument2Prototype()
}

// ArgumentPeek returns the oldest queued qualifier.
func (q *QueuedQualifiedRead) ArgumentPeek() object.GenericObject {
	if q.qualifiers == nil {
		return nil
	}

	return q.qualifiers.Peek()
}

// Clone returns a new wrapper of the same command bound to mb.
func (q *QueuedQualifiedRead) Clone(mb *MailBox, size int) QueuedCommand {
	return NewQueuedQualifiedRead(mb, q.actual, size)
}

// Actual returns the wrapped command.
func (q *QueuedQualifiedRead) Actual() command.QualifiedRead {
	return q.actual
}

// dropPayloads pops the executed call's qualifier and out-parameter slot.
func (q *QueuedQualifiedRead) dropPayloads() {
	q.qualifiers.Get()
	q.results.Get()
}

// QueuedVoidReturn queues calls to a VoidReturn command.
type QueuedVoidReturn struct {
	queuedBase
	resultSlot
	actual command.VoidReturn
}

// NewQueuedVoidReturn wraps actual, bound to mb, with queues of the given
// size.
func NewQueuedVoidReturn(mb *MailBox, actual command.VoidReturn,
	size int) *QueuedVoidReturn {

	q := &QueuedVoidReturn{
		queuedBase: newQueuedBase(mb, actual, size),
		actual:     actual,
	}
	allocateOrDefer(q, size)

	return q
}

// Allocate sizes the result queue together with the shared queues.
func (q *QueuedVoidReturn) Allocate(size int) error {
	proto := q.actual.ResultPrototype()
	if object.IsNil(proto) {
		return fmt.Errorf("%w: result of %q", ErrNoPrototype, q.name)
	}
	if err := q.prepare(size); err != nil {
		return err
	}
	if err := q.allocate(q.name, q.size, proto); err != nil {
		return err
	}
	q.markAllocated()

	return nil
}

// Execute queues a call.
func (q *QueuedVoidReturn) Execute(blocking command.BlockingType,
	finished fn.Option[command.FinishedEvent]) command.ExecutionResult {

	return q.enqueue(q, blocking, finished, q.payload())
}

// ResultPrototype returns the result prototype.
func (q *QueuedVoidReturn) ResultPrototype() object.GenericObject {
	return q.actual.ResultPrototype()
}

// Clone returns a new wrapper of the same command bound to mb.
func (q *QueuedVoidReturn) Clone(mb *MailBox, size int) QueuedCommand {
	return NewQueuedVoidReturn(mb, q.actual, size)
}

// Actual returns the wrapped command.
func (q *QueuedVoidReturn) Actual() command.VoidReturn {
	return q.actual
}

// dropPayloads pops the executed call's result slot.
func (q *QueuedVoidReturn) dropPayloads() {
	q.results.Get()
}

// QueuedWriteReturn queues calls to a WriteReturn command.
type QueuedWriteReturn struct {
	queuedBase
	resultSlot
	actual command.WriteReturn
	args   *ringbuf.Generic
}

// NewQueuedWriteReturn wraps actual, bound to mb, with queues of the given
// size.
func NewQueuedWriteReturn(mb *MailBox, actual command.WriteReturn,
	size int) *QueuedWriteReturn {

	q := &QueuedWriteReturn{
		queuedBase: newQueuedBase(mb, actual, size),
		actual:     actual,
	}
	allocateOrDefer(q, size)

	return q
}

// Allocate sizes the argument and result queues together with the shared
// queues.
func (q *QueuedWriteReturn) Allocate(size int) error {
	argProto := q.actual.ArgumentPrototype()
	resultProto := q.actual.ResultPrototype()
	if object.IsNil(argProto) || object.IsNil(resultProto) {
		return fmt.Errorf("%w: argument or result of %q",
			ErrNoPrototype, q.name)
	}
	if err := q.prepare(size); err != nil {
		return err
	}

	args, err := newPayloadQueue(q.name, "argument", q.size, argProto)
	if err != nil {
		return err
	}
	if err := q.allocate(q.name, q.size, resultProto); err != nil {
		return err
	}
	q.args = args
	q.markAllocated()

	return nil
}

// Execute queues a call with a copy of arg.
func (q *QueuedWriteReturn) Execute(arg object.GenericObject,
	blocking command.BlockingType,
	finished fn.Option[command.FinishedEvent]) command.ExecutionResult {

	return q.enqueue(q, blocking, finished,
		payload{label: "argument", queue: q.args, value: arg},
		q.payload(),
	)
}

// ArgumentPrototype returns the argument prototype.
func (q *QueuedWriteReturn) ArgumentPrototype() object.GenericObject {
	return q.actual.ArgumentPrototype()
}

// ResultPrototype returns the result prototype.
func (q *QueuedWriteReturn) ResultPrototype() object.GenericObject {
	return q.actual.ResultPrototype()
}

// ArgumentPeek returns the oldest queued argument.
func (q *QueuedWriteReturn) ArgumentPeek() object.GenericObject {
	if q.args == nil {
		return nil
	}

	return q.args.Peek()
}

// Clone returns a new wrapper of the same command bound to mb.
func (q *QueuedWriteReturn) Clone(mb *MailBox, size int) QueuedCommand {
	return NewQueuedWriteReturn(mb, q.actual, size)
}

// Actual returns the wrapped command.
func (q *QueuedWriteReturn) Actual() command.WriteReturn {
	return q.actual
}

// dropPayloads pops the executed call's argument and result slot.
func (q *QueuedWriteReturn) dropPayloads() {
	q.args.Get()
	q.results.Get()
}

// Compile-time checks that every shape is a QueuedCommand.
var (
	_ QueuedCommand = (*QueuedVoid)(nil)
	_ QueuedCommand = (*QueuedWrite)(nil)
	_ QueuedCommand = (*QueuedRead)(nil)
	_ QueuedCommand = (*QueuedQualifiedRead)(nil)
	_ QueuedCommand = (*QueuedVoidReturn)(nil)
	_ QueuedCommand = (*QueuedWriteReturn)(nil)
)
