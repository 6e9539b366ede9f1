package task

import (
	"context"

	"github.com/roasbeef/cmdqueue/internal/object"
)

// ReadAwait calls a Read command whose out-parameter is an object.Value[T]
// and returns the value read.
func ReadAwait[T any](ctx context.Context, conn *Connection,
	name string) (T, error) {

	var zero T
	out := object.NewValue(zero)
	if err := conn.Read(ctx, name, out); err != nil {
		return zero, err
	}

	return out.Data, nil
}

// QualifiedReadAwait calls a QualifiedRead command taking an
// object.Value[Q] qualifier and filling an object.Value[T].
func QualifiedReadAwait[Q, T any](ctx context.Context, conn *Connection,
	name string, qualifier Q) (T, error) {

	var zero T
	out := object.NewValue(zero)
	err := conn.QualifiedRead(ctx, name, object.NewValue(qualifier), out)
	if err != nil {
		return zero, err
	}

	return out.Data, nil
}

// CallAwait calls a VoidReturn command returning an object.Value[R].
func CallAwait[R any](ctx context.Context, conn *Connection,
	name string) (R, error) {

	var zero R
	out := object.NewValue(zero)
	if err := conn.VoidReturn(ctx, name, out); err != nil {
		return zero, err
	}

	return out.Data, nil
}

// ApplyAwait calls a WriteReturn command taking an object.Value[A] and
// returning an object.Value[R].
func ApplyAwait[A, R any](ctx context.Context, conn *Connection, name string,
	arg A) (R, error) {

	var zero R
	out := object.NewValue(zero)
	err := conn.WriteReturn(ctx, name, object.NewValue(arg), out)
	if err != nil {
		return zero, err
	}

	return out.Data, nil
}

// WriteAll queues the same fire-and-forget write on every connection and
// returns the first admission error.
func WriteAll[A any](conns []*Connection, name string, arg A) error {
	var firstErr error
	for _, conn := range conns {
		err := conn.Write(name, object.NewValue(arg))
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	return firstErr
}
