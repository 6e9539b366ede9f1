package mailbox

import (
	"errors"
	"testing"

	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/roasbeef/cmdqueue/internal/command"
	"github.com/roasbeef/cmdqueue/internal/object"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// noFinished is the absent finished event.
var noFinished = fn.None[command.FinishedEvent]()

// finishedWith wraps f as a present finished event.
func finishedWith(f func(object.GenericObject)) fn.Option[command.FinishedEvent] {
	return fn.Some[command.FinishedEvent](command.FinishedFunc(f))
}

// newRecordingWrite returns an integer write command that appends every
// argument it runs with to the returned slice.
func newRecordingWrite() (*command.WriteFunc[*object.Value[int]], *[]int) {
	var seen []int
	cmd := command.NewWrite("record", object.NewValue(0),
		func(v *object.Value[int]) error {
			seen = append(seen, v.Data)
			return nil
		},
	)

	return cmd, &seen
}

// lateWrite is a write command whose argument prototype is only known after
// construction.
type lateWrite struct {
	shape command.Shape
	proto object.GenericObject
}

func (l *lateWrite) Name() string           { return "late" }
func (l *lateWrite) Shape() command.Shape   { return l.shape }
func (l *lateWrite) NumberOfArguments() int { return l.shape.NumberOfArguments() }
func (l *lateWrite) Returns() bool          { return l.shape.Returns() }
func (l *lateWrite) Enable()                {}
func (l *lateWrite) Disable()               {}
func (l *lateWrite) IsEnabled() bool        { return true }

func (l *lateWrite) Execute(object.GenericObject,
	command.BlockingType) command.ExecutionResult {

	return command.ResultSucceeded
}

func (l *lateWrite) ArgumentPrototype() object.GenericObject {
	return l.proto
}

// TestWriteCapacityScenario tests the canonical capacity-two write sequence:
// a third call is refused until one call has been executed, and calls run
// in the order they were queued.
func TestWriteCapacityScenario(t *testing.T) {
	t.Parallel()

	mb := New("dest", 2)
	cmd, seen := newRecordingWrite()
	q := NewQueuedWrite(mb, cmd, 2)

	exec := func(v int) command.ExecutionResult {
		return q.Execute(object.NewValue(v), command.NotBlocking,
			noFinished)
	}

	require.Equal(t, command.ResultQueued, exec(5))
	require.Equal(t, command.ResultQueued, exec(7))
	require.Equal(t, command.ResultArgumentQueueFull, exec(9))
	require.Equal(t, 2, q.Pending())
	require.True(t, mb.IsFull())

	require.True(t, mb.ExecuteNext())
	require.Equal(t, []int{5}, *seen)

	require.Equal(t, command.ResultQueued, exec(9))

	require.True(t, mb.ExecuteNext())
	require.True(t, mb.ExecuteNext())
	require.Equal(t, []int{5, 7, 9}, *seen)

	require.False(t, mb.ExecuteNext())
	require.True(t, mb.IsEmpty())

	stats := mb.Stats()
	require.Equal(t, uint64(3), stats.Executed)
	require.Equal(t, uint64(1), stats.RejectedFull)
	require.Zero(t, stats.Failed)
}

// TestReadFinishedEvent tests that a read call delivers its out-parameter to
// the finished event exactly once, flagged valid only on success.
func TestReadFinishedEvent(t *testing.T) {
	t.Parallel()

	fail := false
	read := command.NewRead("position", object.NewValue(0),
		func(out *object.Value[int]) error {
			if fail {
				return errors.New("sensor offline")
			}
			out.Data = 42

			return nil
		},
	)

	mb := New("dest", 4)
	q := NewQueuedRead(mb, read, 4)

	var (
		calls int
		valid bool
		got   int
	)
	finished := finishedWith(func(p object.GenericObject) {
		calls++
		valid = p.Valid()
		got = p.(*object.Value[int]).Data
	})

	require.Equal(t, command.ResultQueued,
		q.Execute(command.NotBlocking, finished))
	require.True(t, mb.ExecuteNext())
	require.Equal(t, 1, calls)
	require.True(t, valid)
	require.Equal(t, 42, got)

	fail = true
	require.Equal(t, command.ResultQueued,
		q.Execute(command.NotBlocking, finished))
	require.True(t, mb.ExecuteNext())
	require.Equal(t, 2, calls)
	require.False(t, valid)

	require.False(t, mb.ExecuteNext())
	require.Equal(t, 2, calls)
}

// TestReturnShapesDeliverResults tests the qualified read and both return
// shapes end to end.
func TestReturnShapesDeliverResults(t *testing.T) {
	t.Parallel()

	mb := New("dest", 8)

	scale := NewQueuedQualifiedRead(mb, command.NewQualifiedRead("scale",
		object.NewValue(0), object.NewValue(0),
		func(q, out *object.Value[int]) error {
			out.Data = q.Data * 10
			return nil
		},
	), 2)
	count := NewQueuedVoidReturn(mb, command.NewVoidReturn("count",
		object.NewValue(""),
		func(r *object.Value[string]) error {
			r.Data = "three"
			return nil
		},
	), 2)
	incr := NewQueuedWriteReturn(mb, command.NewWriteReturn("incr",
		object.NewValue(0), object.NewValue(0),
		func(a, r *object.Value[int]) error {
			r.Data = a.Data + 1
			return nil
		},
	), 2)

	var results []any
	collect := finishedWith(func(p object.GenericObject) {
		switch v := p.(type) {
		case *object.Value[int]:
			results = append(results, v.Data)
		case *object.Value[string]:
			results = append(results, v.Data)
		}
	})

	require.Equal(t, command.ResultQueued, scale.Execute(
		object.NewValue(4), command.NotBlocking, collect,
	))
	require.Equal(t, 4, scale.ArgumentPeek().(*object.Value[int]).Data)
	require.Equal(t, command.ResultQueued,
		count.Execute(command.Blocking, collect))
	require.Equal(t, command.ResultQueued, incr.Execute(
		object.NewValue(1), command.NotBlocking, collect,
	))

	for mb.ExecuteNext() {
	}
	require.Equal(t, []any{40, "three", 2}, results)
	require.Zero(t, scale.Pending())
	require.Zero(t, count.Pending())
	require.Zero(t, incr.Pending())
}

// TestVoidFinishedEventProxy tests that a void call only reaches its
// finished event when it was blocking, and then through the result proxy.
func TestVoidFinishedEventProxy(t *testing.T) {
	t.Parallel()

	var voidWakes, returnWakes int
	mb := New("dest", 4,
		WithPostVoidDequeued(func() { voidWakes++ }),
		WithPostReturnDequeued(func() { returnWakes++ }),
	)

	fail := false
	q := NewQueuedVoid(mb, command.NewVoid("tick", func() error {
		if fail {
			return errors.New("boom")
		}
		return nil
	}), 4)

	var payloads []command.ExecutionResult
	finished := finishedWith(func(p object.GenericObject) {
		_, ok := p.(*command.ResultProxy)
		require.True(t, ok)
		payloads = append(payloads, command.ResultOf(p))
	})

	require.Equal(t, command.ResultQueued,
		q.Execute(command.NotBlocking, finished))
	require.True(t, mb.ExecuteNext())
	require.Empty(t, payloads)
	require.Zero(t, voidWakes)

	require.Equal(t, command.ResultQueued,
		q.Execute(command.Blocking, finished))
	require.Equal(t, command.ResultQueued,
		q.Execute(command.Blocking, finished))

	// Only the second queued call fails.
	require.True(t, mb.ExecuteNext())
	fail = true
	require.True(t, mb.ExecuteNext())
	require.Equal(t, []command.ExecutionResult{
		command.ResultSucceeded, command.ResultMethodFailed,
	}, payloads)
	require.Equal(t, 2, voidWakes)
	require.Zero(t, returnWakes)
}

// TestPostHooks tests the enqueue hook and the return-shaped dequeue hook.
func TestPostHooks(t *testing.T) {
	t.Parallel()

	var enqueued, returnWakes int
	mb := New("dest", 4,
		WithPostEnqueue(func() { enqueued++ }),
		WithPostReturnDequeued(func() { returnWakes++ }),
	)
	q := NewQueuedVoidReturn(mb, command.NewVoidReturn("now",
		object.NewValue(0),
		func(*object.Value[int]) error { return nil },
	), 4)

	require.Equal(t, command.ResultQueued,
		q.Execute(command.Blocking, noFinished))
	require.Equal(t, command.ResultQueued,
		q.Execute(command.NotBlocking, noFinished))
	require.Equal(t, 2, enqueued)

	for mb.ExecuteNext() {
	}
	require.Equal(t, 1, returnWakes)
}

// TestAdmissionFailures tests that rejected calls leave every queue
// untouched.
func TestAdmissionFailures(t *testing.T) {
	t.Parallel()

	cmd, seen := newRecordingWrite()

	unbound, err := NewQueued(nil, cmd, 2)
	require.NoError(t, err)
	require.Nil(t, unbound.Mailbox())
	require.Equal(t, command.ResultNoMailbox, unbound.(*QueuedWrite).Execute(
		object.NewValue(1), command.NotBlocking, noFinished,
	))

	mb := New("dest", 2)
	q := NewQueuedWrite(mb, cmd, 2)

	require.Equal(t, command.ResultInvalidInputType, q.Execute(
		object.NewValue("one"), command.NotBlocking, noFinished,
	))
	require.Zero(t, q.Pending())
	require.True(t, mb.IsEmpty())

	// A typed nil has the right runtime type but no value to copy.
	require.NotPanics(t, func() {
		require.Equal(t, command.ResultInvalidInputType, q.Execute(
			(*object.Value[int])(nil), command.NotBlocking,
			noFinished,
		))
	})
	require.Zero(t, q.Pending())
	require.True(t, mb.IsEmpty())

	q.Disable()
	require.False(t, q.IsEnabled())
	require.Equal(t, command.ResultDisabled, q.Execute(
		object.NewValue(1), command.NotBlocking, noFinished,
	))
	require.True(t, mb.IsEmpty())

	q.Enable()
	require.Equal(t, command.ResultQueued, q.Execute(
		object.NewValue(1), command.NotBlocking, noFinished,
	))
	require.True(t, mb.ExecuteNext())
	require.Equal(t, []int{1}, *seen)
}

// picky is a payload whose slots refuse negative values, so that putting an
// argument can fail after its type has been accepted.
type picky struct {
	object.Base
	n int
}

func (p *picky) Clone() object.GenericObject {
	c := *p
	return &c
}

func (p *picky) AssignFrom(src object.GenericObject) bool {
	s, ok := src.(*picky)
	if !ok || s == nil || s.n < 0 {
		return false
	}
	p.n = s.n
	p.SetValid(s.Valid())

	return true
}

// TestEnqueueRollback tests that a call whose argument cannot be copied
// into its slot is undone completely and that the command stays usable.
func TestEnqueueRollback(t *testing.T) {
	t.Parallel()

	var seen []int
	mb := New("dest", 2)
	q := NewQueuedWrite(mb, command.NewWrite("picky", &picky{},
		func(p *picky) error {
			seen = append(seen, p.n)
			return nil
		},
	), 2)

	var fired bool
	finished := finishedWith(func(object.GenericObject) { fired = true })

	require.Equal(t, command.ResultUndefined, q.Execute(
		&picky{n: -1}, command.Blocking, finished,
	))
	require.Zero(t, q.Pending())
	require.True(t, q.args.IsEmpty())
	require.True(t, q.blockingFlags.IsEmpty())
	require.True(t, q.finished.IsEmpty())
	require.True(t, mb.IsEmpty())
	require.False(t, mb.ExecuteNext())

	require.Equal(t, command.ResultQueued, q.Execute(
		&picky{n: 4}, command.Blocking, finished,
	))
	requireLockstep(t, q)
	require.True(t, mb.ExecuteNext())
	require.Equal(t, []int{4}, seen)
	require.True(t, fired)
	require.Zero(t, q.Pending())
}

// resultRecorder is a finished event that also takes the call's result.
type resultRecorder struct {
	results []command.ExecutionResult
	valid   []bool
}

func (r *resultRecorder) Execute(p object.GenericObject,
	_ command.BlockingType) command.ExecutionResult {

	r.ExecuteResult(p, command.ResultOf(p))

	return command.ResultSucceeded
}

func (r *resultRecorder) ExecuteResult(p object.GenericObject,
	result command.ExecutionResult) {

	r.results = append(r.results, result)
	r.valid = append(r.valid, p.Valid())
}

// TestResultEventGetsResult tests that a result-producing call hands its
// own ExecutionResult to an event asking for it, not just the validity of
// the result object.
func TestResultEventGetsResult(t *testing.T) {
	t.Parallel()

	mb := New("dest", 4)
	actual := command.NewWriteReturn("double",
		object.NewValue(0), object.NewValue(0),
		func(a, r *object.Value[int]) error {
			r.Data = a.Data * 2
			return nil
		},
	)
	q := NewQueuedWriteReturn(mb, actual, 4)

	rec := &resultRecorder{}
	event := fn.Some[command.FinishedEvent](rec)

	require.Equal(t, command.ResultQueued, q.Execute(
		object.NewValue(2), command.Blocking, event,
	))
	require.True(t, mb.ExecuteNext())

	actual.Disable()
	require.Equal(t, command.ResultQueued, q.Execute(
		object.NewValue(3), command.Blocking, event,
	))
	require.True(t, mb.ExecuteNext())

	require.Equal(t, []command.ExecutionResult{
		command.ResultSucceeded, command.ResultDisabled,
	}, rec.results)
	require.Equal(t, []bool{true, false}, rec.valid)
}

// TestMailboxFullRejectsCall tests that a full mailbox refuses a call even
// when the command's own queues have room.
func TestMailboxFullRejectsCall(t *testing.T) {
	t.Parallel()

	mb := New("dest", 1)
	first, _ := newRecordingWrite()
	second, _ := newRecordingWrite()
	a := NewQueuedWrite(mb, first, 4)
	b := NewQueuedWrite(mb, second, 4)

	require.Equal(t, command.ResultQueued, a.Execute(
		object.NewValue(1), command.NotBlocking, noFinished,
	))
	require.Equal(t, command.ResultArgumentQueueFull, b.Execute(
		object.NewValue(2), command.NotBlocking, noFinished,
	))
	require.Zero(t, b.Pending())
	require.Equal(t, 1, mb.Available())
}

// TestPanicContained tests that a panicking command or finished event is
// reported as a failure without escaping ExecuteNext.
func TestPanicContained(t *testing.T) {
	t.Parallel()

	var outcomes []Outcome
	mb := New("dest", 4, WithObserver(func(o Outcome) {
		outcomes = append(outcomes, o)
	}))

	q := NewQueuedWrite(mb, command.NewWrite("explode", object.NewValue(0),
		func(v *object.Value[int]) error {
			if v.Data == 0 {
				panic("division by zero")
			}
			return nil
		},
	), 4)

	var delivered command.ExecutionResult
	finished := finishedWith(func(p object.GenericObject) {
		delivered = command.ResultOf(p)
		panic("handler bug")
	})

	require.Equal(t, command.ResultQueued, q.Execute(
		object.NewValue(0), command.Blocking, finished,
	))
	require.Equal(t, command.ResultQueued, q.Execute(
		object.NewValue(1), command.NotBlocking, noFinished,
	))

	require.NotPanics(t, func() {
		require.True(t, mb.ExecuteNext())
	})
	require.Equal(t, command.ResultMethodFailed, delivered)

	require.True(t, mb.ExecuteNext())
	require.Zero(t, q.Pending())

	require.Len(t, outcomes, 2)
	require.Equal(t, command.ResultMethodFailed, outcomes[0].Result)
	require.Equal(t, command.Blocking, outcomes[0].Blocking)
	require.Equal(t, "explode", outcomes[0].Command)
	require.Equal(t, command.ShapeWrite, outcomes[0].Shape)
	require.Equal(t, command.ResultSucceeded, outcomes[1].Result)
	require.Equal(t, uint64(1), mb.Stats().Failed)
}

// TestAllocateRefusedWhileBusy tests that a queued command cannot be
// resized with calls in flight, and can once they have drained.
func TestAllocateRefusedWhileBusy(t *testing.T) {
	t.Parallel()

	mb := New("dest", 8)
	cmd, _ := newRecordingWrite()
	q := NewQueuedWrite(mb, cmd, 2)

	require.Equal(t, command.ResultQueued, q.Execute(
		object.NewValue(1), command.NotBlocking, noFinished,
	))
	require.ErrorIs(t, q.Allocate(4), ErrQueueBusy)
	require.Equal(t, 2, q.Size())

	require.True(t, mb.ExecuteNext())
	require.NoError(t, q.Allocate(4))
	require.Equal(t, 4, q.Size())

	for i := 0; i < 4; i++ {
		require.Equal(t, command.ResultQueued, q.Execute(
			object.NewValue(i), command.NotBlocking, noFinished,
		))
	}
	require.Equal(t, command.ResultArgumentQueueFull, q.Execute(
		object.NewValue(5), command.NotBlocking, noFinished,
	))
}

// TestDeferredAllocation tests that a command whose prototype is unknown at
// construction can be allocated later.
func TestDeferredAllocation(t *testing.T) {
	t.Parallel()

	mb := New("dest", 2)
	late := &lateWrite{shape: command.ShapeWrite}

	queued, err := NewQueued(mb, late, 2)
	require.NoError(t, err)
	q := queued.(*QueuedWrite)

	require.Equal(t, command.ResultUndefined, q.Execute(
		object.NewValue(1), command.NotBlocking, noFinished,
	))
	require.ErrorIs(t, q.Allocate(2), ErrNoPrototype)

	late.proto = object.NewValue(0)
	require.NoError(t, q.Allocate(2))
	require.Equal(t, command.ResultQueued, q.Execute(
		object.NewValue(1), command.NotBlocking, noFinished,
	))
	require.Equal(t, 1, q.ArgumentPeek().(*object.Value[int]).Data)
	require.True(t, mb.ExecuteNext())
}

// TestNewQueuedShapeMismatch tests that a command declaring a shape it does
// not implement is refused.
func TestNewQueuedShapeMismatch(t *testing.T) {
	t.Parallel()

	late := &lateWrite{
		shape: command.ShapeRead,
		proto: object.NewValue(0),
	}
	_, err := NewQueued(New("dest", 1), late, 1)
	require.ErrorIs(t, err, ErrShapeMismatch)
}

// TestCloneBindsNewMailbox tests that a clone shares the command but not
// the queues or mailbox.
func TestCloneBindsNewMailbox(t *testing.T) {
	t.Parallel()

	cmd, seen := newRecordingWrite()
	first := New("first", 4)
	second := New("second", 4)

	q := NewQueuedWrite(first, cmd, 4)
	clone := q.Clone(second, 2).(*QueuedWrite)
	require.Same(t, second, clone.Mailbox())
	require.Equal(t, 2, clone.Size())
	require.Equal(t, "record", clone.Name())

	require.Equal(t, command.ResultQueued, q.Execute(
		object.NewValue(1), command.NotBlocking, noFinished,
	))
	require.Equal(t, command.ResultQueued, clone.Execute(
		object.NewValue(2), command.NotBlocking, noFinished,
	))
	require.Equal(t, 1, q.Pending())
	require.Equal(t, 1, clone.Pending())

	require.True(t, second.ExecuteNext())
	require.True(t, first.ExecuteNext())
	require.Equal(t, []int{2, 1}, *seen)
}

// TestArgumentGetDrainsArgument tests the consumer-side argument accessors.
func TestArgumentGetDrainsArgument(t *testing.T) {
	t.Parallel()

	cmd, _ := newRecordingWrite()
	q := NewQueuedWrite(New("dest", 2), cmd, 2)
	require.Nil(t, q.ArgumentPeek())

	require.Equal(t, command.ResultQueued, q.Execute(
		object.NewValue(3), command.NotBlocking, noFinished,
	))
	require.Equal(t, 3, q.ArgumentPeek().(*object.Value[int]).Data)
	require.Equal(t, 3, q.ArgumentGet().(*object.Value[int]).Data)
	require.Nil(t, q.ArgumentPeek())
}

// TestMailboxSetSize tests that the mailbox can only be resized when idle.
func TestMailboxSetSize(t *testing.T) {
	t.Parallel()

	mb := New("dest", 1)
	cmd, _ := newRecordingWrite()
	q := NewQueuedWrite(mb, cmd, 4)

	require.Equal(t, command.ResultQueued, q.Execute(
		object.NewValue(1), command.NotBlocking, noFinished,
	))
	require.ErrorIs(t, mb.SetSize(4), ErrQueueBusy)
	require.Equal(t, 1, mb.Size())

	require.True(t, mb.ExecuteNext())
	require.NoError(t, mb.SetSize(4))
	require.Equal(t, 4, mb.Size())
	require.Equal(t, 4, mb.Stats().Size)
}

// TestEmptyExecuteNextIsInert tests that draining an empty mailbox does
// nothing.
func TestEmptyExecuteNextIsInert(t *testing.T) {
	t.Parallel()

	observed := 0
	mb := New("dest", 2, WithObserver(func(Outcome) { observed++ }))
	for i := 0; i < 3; i++ {
		require.False(t, mb.ExecuteNext())
	}
	require.Zero(t, observed)
	require.Equal(t, Stats{Name: "dest", Size: 2}, mb.Stats())
}

// requireLockstep asserts that every per-call queue of q holds the same
// number of entries.
func requireLockstep(t require.TestingT, q *QueuedWrite) {
	n := q.blockingFlags.Available()
	require.Equal(t, n, q.finished.Available())
	require.Equal(t, n, q.args.Available())
}

// TestMailboxProperties checks the queueing properties against a simple
// model under random interleavings of calls and executions.
func TestMailboxProperties(t *testing.T) {
	t.Parallel()

	rapid.Check(t, func(t *rapid.T) {
		size := rapid.IntRange(1, 6).Draw(t, "size")
		ops := rapid.SliceOfN(rapid.IntRange(0, 2), 1, 64).Draw(t, "ops")

		mb := New("dest", size)
		cmd, seen := newRecordingWrite()
		q := NewQueuedWrite(mb, cmd, size)

		var (
			pending []int
			ran     []int
		)
		for i, op := range ops {
			switch op {
			// Queue the next integer.
			case 0:
				res := q.Execute(object.NewValue(i),
					command.NotBlocking, noFinished)

				// PROPERTY: a call is refused exactly when the
				// queues are at capacity.
				if len(pending) == size {
					require.Equal(t,
						command.ResultArgumentQueueFull, res)
				} else {
					require.Equal(t, command.ResultQueued, res)
					pending = append(pending, i)
				}

			// Queue a value of the wrong type.
			case 1:
				res := q.Execute(object.NewValue("x"),
					command.NotBlocking, noFinished)

				// PROPERTY: type rejection leaves the queues as
				// they were.
				require.Equal(t, command.ResultInvalidInputType,
					res)

			// Execute the next call.
			case 2:
				// PROPERTY: ExecuteNext reports work exactly when
				// a call is pending.
				require.Equal(t, len(pending) > 0, mb.ExecuteNext())
				if len(pending) > 0 {
					ran = append(ran, pending[0])
					pending = pending[1:]
				}
			}

			// PROPERTY: the per-call queues stay in lockstep with
			// each other and with the mailbox.
			requireLockstep(t, q)
			require.Equal(t, len(pending), q.Pending())
			require.Equal(t, len(pending), mb.Available())
		}

		// PROPERTY: calls run in the order they were queued.
		for mb.ExecuteNext() {
			ran = append(ran, pending[0])
			pending = pending[1:]
		}
		require.Empty(t, pending)
		if len(ran) == 0 {
			require.Empty(t, *seen)
		} else {
			require.Equal(t, ran, *seen)
		}
	})
}
