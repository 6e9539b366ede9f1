package command

import (
	"errors"
	"fmt"
)

// ExecutionResult is the outcome of an attempt to run a command.
type ExecutionResult uint8

const (
	// ResultUndefined signals an internal or unexpected condition.
	ResultUndefined ExecutionResult = iota

	// ResultSucceeded means the command ran and succeeded.
	ResultSucceeded

	// ResultQueued means the command was accepted for deferred execution.
	ResultQueued

	// ResultDisabled means the command is administratively disabled.
	ResultDisabled

	// ResultNoMailbox means a queued command is not bound to a mailbox.
	ResultNoMailbox

	// ResultInvalidInputType means an argument's runtime type does not
	// match the command's prototype.
	ResultInvalidInputType

	// ResultArgumentQueueFull means one of the queues an enqueue needs is
	// full.
	ResultArgumentQueueFull

	// ResultMethodFailed means the command ran and its callable reported
	// failure.
	ResultMethodFailed

	// ResultFunctionNotBound means a caller-side handle was used before it
	// was connected to a command.
	ResultFunctionNotBound
)

// ErrMethodFailed is the error wrapped by ExecutionError when the command's
// callable reported failure.
var ErrMethodFailed = errors.New("command callable failed")

// IsOK reports whether r is a success or an accepted enqueue.
func (r ExecutionResult) IsOK() bool {
	return r == ResultSucceeded || r == ResultQueued
}

// String returns the name of the result.
func (r ExecutionResult) String() string {
	switch r {
	case ResultUndefined:
		return "Undefined"
	case ResultSucceeded:
		return "CommandSucceeded"
	case ResultQueued:
		return "CommandQueued"
	case ResultDisabled:
		return "CommandDisabled"
	case ResultNoMailbox:
		return "CommandHasNoMailbox"
	case ResultInvalidInputType:
		return "InvalidInputType"
	case ResultArgumentQueueFull:
		return "CommandArgumentQueueFull"
	case ResultMethodFailed:
		return "MethodOrFunctionFailed"
	case ResultFunctionNotBound:
		return "FunctionNotBound"
	default:
		return fmt.Sprintf("ExecutionResult(%d)", uint8(r))
	}
}

// Err returns nil when r is OK and an *ExecutionError otherwise.
func (r ExecutionResult) Err() error {
	if r.IsOK() {
		return nil
	}

	return &ExecutionError{Result: r}
}

// ExecutionError is an error carrying a non-OK ExecutionResult.
type ExecutionError struct {
	// Command is the name of the command, if known.
	Command string

	// Result is the non-OK outcome.
	Result ExecutionResult
}

// Error implements the error interface.
func (e *ExecutionError) Error() string {
	if e.Command == "" {
		return fmt.Sprintf("command execution: %v", e.Result)
	}

	return fmt.Sprintf("command %q: %v", e.Command, e.Result)
}

// Unwrap lets errors.Is match ErrMethodFailed for callable failures.
func (e *ExecutionError) Unwrap() error {
	if e.Result == ResultMethodFailed {
		return ErrMethodFailed
	}

	return nil
}

// BlockingType tags a queued call with whether its caller waits for the
// command to run.
type BlockingType uint8

const (
	// NotBlocking means the caller does not wait.
	NotBlocking BlockingType = iota

	// Blocking means the caller waits for a post-dequeue notification.
	Blocking
)

// String returns the name of the blocking type.
func (b BlockingType) String() string {
	if b == Blocking {
		return "Blocking"
	}

	return "NotBlocking"
}
