package ringbuf

import (
	"testing"

	"github.com/roasbeef/cmdqueue/internal/object"
	"github.com/stretchr/testify/require"
)

// TestGenericPutCopiesIntoSlots tests that Put copies by value into the
// pre-allocated slots rather than storing the caller's object.
func TestGenericPutCopiesIntoSlots(t *testing.T) {
	t.Parallel()

	g := NewGeneric(2, object.NewValue(0))
	require.Equal(t, 2, g.Size())

	arg := object.NewValue(5)
	require.NoError(t, g.Put(arg))

	// Mutating the caller's value must not affect the queued copy.
	arg.Data = 6

	got, ok := g.Peek().(*object.Value[int])
	require.True(t, ok)
	require.Equal(t, 5, got.Data)
	require.NotSame(t, arg, got)
}

// TestGenericRejectsTypeMismatch tests that a value of another runtime type
// is rejected without changing the buffer.
func TestGenericRejectsTypeMismatch(t *testing.T) {
	t.Parallel()

	g := NewGeneric(2, object.NewValue(0))

	err := g.Put(object.NewValue("five"))
	require.ErrorIs(t, err, ErrTypeMismatch)
	require.True(t, g.IsEmpty())

	require.ErrorIs(t, g.Put(nil), ErrTypeMismatch)

	var typedNil *object.Value[int]
	require.False(t, g.Matches(typedNil))
	require.ErrorIs(t, g.Put(typedNil), ErrTypeMismatch)
	require.True(t, g.IsEmpty())
	require.False(t, g.Matches(object.NewValue(1.5)))
	require.True(t, g.Matches(object.NewValue(3)))
}

// TestGenericFull tests the full boundary and slot reuse.
func TestGenericFull(t *testing.T) {
	t.Parallel()

	g := NewGeneric(1, object.NewValue(0))
	require.NoError(t, g.Put(object.NewValue(1)))
	require.ErrorIs(t, g.Put(object.NewValue(2)), ErrFull)

	_, err := g.Reserve()
	require.ErrorIs(t, err, ErrFull)

	got := g.Get().(*object.Value[int])
	require.Equal(t, 1, got.Data)
	require.Nil(t, g.Get())

	require.NoError(t, g.Put(object.NewValue(2)))
	require.Equal(t, 2, g.Get().(*object.Value[int]).Data)
}

// TestGenericReserve tests that reserved slots are handed out invalid and
// count toward occupancy.
func TestGenericReserve(t *testing.T) {
	t.Parallel()

	g := NewGeneric(2, object.NewValue(""))
	slot, err := g.Reserve()
	require.NoError(t, err)
	require.False(t, slot.Valid())
	require.Equal(t, 1, g.Available())

	// The consumer fills the slot it finds at the read cursor.
	require.Same(t, slot, g.Peek())
	require.True(t, slot.AssignFrom(object.NewValue("filled")))
	require.Equal(t, "filled", g.Get().(*object.Value[string]).Data)

	require.NoError(t, g.Put(object.NewValue("x")))
	require.True(t, g.Unput())
	require.True(t, g.IsEmpty())
}

// TestGenericSetSize tests that a resize re-clones the slots from the new
// prototype and is refused while elements are queued.
func TestGenericSetSize(t *testing.T) {
	t.Parallel()

	g := NewGeneric(1, object.NewValue(0))
	require.NoError(t, g.Put(object.NewValue(1)))
	require.ErrorIs(t, g.SetSize(3, object.NewValue(0)), ErrBufferNotEmpty)

	g.Get()
	require.NoError(t, g.SetSize(3, object.NewValue("s")))
	require.Equal(t, 3, g.Size())
	require.True(t, g.Matches(object.NewValue("t")))
	require.False(t, g.Matches(object.NewValue(1)))
	require.Equal(t, "s", g.Prototype().(*object.Value[string]).Data)
}
