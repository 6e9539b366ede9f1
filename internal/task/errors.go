package task

import "errors"

var (
	// ErrCommandNotFound is returned when a connection is asked to call a
	// command its task does not provide.
	ErrCommandNotFound = errors.New("command not found")

	// ErrDuplicateCommand is returned when a command name is registered
	// twice on the same task.
	ErrDuplicateCommand = errors.New("command already registered")

	// ErrWrongShape is returned when a command is called through a method
	// that does not match its shape.
	ErrWrongShape = errors.New("command called with wrong shape")

	// ErrTaskStopped is returned for calls made after the task stopped
	// draining its mailboxes.
	ErrTaskStopped = errors.New("task stopped")

	// ErrConnectionClosed is returned for calls made on a closed
	// connection.
	ErrConnectionClosed = errors.New("connection closed")
)
