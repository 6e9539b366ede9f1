package mailbox

import "errors"

var (
	// ErrQueueBusy is returned when a resize is attempted while calls are
	// still queued.
	ErrQueueBusy = errors.New("queue has calls in flight")

	// ErrNoPrototype is returned by Allocate when the wrapped command does
	// not know its argument or result prototype yet.
	ErrNoPrototype = errors.New("command prototype not available")

	// ErrShapeMismatch is returned when a command's declared shape does not
	// match the interface it implements.
	ErrShapeMismatch = errors.New("command shape mismatch")
)
