package task

import (
	"sync/atomic"

	"github.com/roasbeef/cmdqueue/internal/command"
	"github.com/roasbeef/cmdqueue/internal/object"
)

const (
	waiterPending int32 = iota
	waiterDelivering
	waiterAbandoned
)

// waiter is the finished event of one blocking call. The consumer fills dst
// and closes done; a caller giving up first marks the waiter abandoned so
// the consumer never touches dst after the caller returned.
type waiter struct {
	dst    object.GenericObject
	state  atomic.Int32
	result command.ExecutionResult
	done   chan struct{}
}

// newWaiter returns a waiter copying results into dst, which may be nil for
// calls without a result.
func newWaiter(dst object.GenericObject) *waiter {
	return &waiter{
		dst:  dst,
		done: make(chan struct{}),
	}
}

// Execute implements command.FinishedEvent, deriving the result from the
// payload.
func (w *waiter) Execute(payload object.GenericObject,
	_ command.BlockingType) command.ExecutionResult {

	if !w.deliver(payload, command.ResultOf(payload)) {
		return command.ResultDisabled
	}

	return command.ResultSucceeded
}

// ExecuteResult implements command.ResultEvent. It runs on the consumer
// goroutine.
func (w *waiter) ExecuteResult(payload object.GenericObject,
	result command.ExecutionResult) {

	w.deliver(payload, result)
}

// deliver hands result and payload to the caller unless it gave up. The
// result object is only copied into dst when the call succeeded.
func (w *waiter) deliver(payload object.GenericObject,
	result command.ExecutionResult) bool {

	if !w.state.CompareAndSwap(waiterPending, waiterDelivering) {
		return false
	}

	w.result = result
	_, proxy := payload.(*command.ResultProxy)
	if result == command.ResultSucceeded && !proxy && w.dst != nil &&
		payload != nil {

		if !w.dst.AssignFrom(payload) {
			w.result = command.ResultInvalidInputType
		}
	}
	close(w.done)

	return true
}

// abandon detaches the caller. It returns false if delivery already started,
// in which case the caller must wait for done.
func (w *waiter) abandon() bool {
	return w.state.CompareAndSwap(waiterPending, waiterAbandoned)
}

var _ command.ResultEvent = (*waiter)(nil)
