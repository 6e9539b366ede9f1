package ringbuf

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// TestRingBufferPutGet tests basic FIFO behavior and the full/empty
// boundaries.
func TestRingBufferPutGet(t *testing.T) {
	t.Parallel()

	r := New(3, 0)
	require.Equal(t, 3, r.Size())
	require.True(t, r.IsEmpty())
	require.Nil(t, r.Peek())
	require.Nil(t, r.Get())

	require.True(t, r.Put(1))
	require.True(t, r.Put(2))
	require.True(t, r.Put(3))
	require.True(t, r.IsFull())
	require.False(t, r.Put(4), "put into full buffer should fail")
	require.Equal(t, 3, r.Available())

	require.Equal(t, 1, *r.Peek())
	require.Equal(t, 1, *r.Get())
	require.Equal(t, 2, r.Available())

	// The freed slot can be reused.
	require.True(t, r.Put(4))
	require.Equal(t, 2, *r.Get())
	require.Equal(t, 3, *r.Get())
	require.Equal(t, 4, *r.Get())
	require.True(t, r.IsEmpty())
}

// TestRingBufferMinimumSize tests that a non-positive size is raised to 1.
func TestRingBufferMinimumSize(t *testing.T) {
	t.Parallel()

	r := New(0, "")
	require.Equal(t, 1, r.Size())
	require.True(t, r.Put("a"))
	require.False(t, r.Put("b"))
}

// TestRingBufferUnput tests that the newest element can be rolled back
// without disturbing older ones.
func TestRingBufferUnput(t *testing.T) {
	t.Parallel()

	r := New(2, 0)
	require.False(t, r.Unput(), "unput on empty buffer should fail")

	// Wrap the cursors around so that head sits at index 0.
	require.True(t, r.Put(1))
	require.True(t, r.Put(2))
	require.Equal(t, 1, *r.Get())
	require.True(t, r.Put(3))

	require.True(t, r.Unput())
	require.Equal(t, 1, r.Available())
	require.Equal(t, 2, *r.Get())
	require.True(t, r.IsEmpty())
}

// TestRingBufferSetSize tests that resizing is refused while elements are
// queued and resets the buffer otherwise.
func TestRingBufferSetSize(t *testing.T) {
	t.Parallel()

	r := New(2, 0)
	require.True(t, r.Put(5))
	require.ErrorIs(t, r.SetSize(4, 9), ErrBufferNotEmpty)
	require.Equal(t, 2, r.Size())

	r.Get()
	require.NoError(t, r.SetSize(4, 9))
	require.Equal(t, 4, r.Size())
	require.True(t, r.IsEmpty())

	for i := 0; i < 4; i++ {
		require.True(t, r.Put(i))
	}
	require.False(t, r.Put(4))
}

// TestRingBufferConcurrentSPSC tests one producer and one consumer running
// concurrently preserve order and lose nothing.
func TestRingBufferConcurrentSPSC(t *testing.T) {
	t.Parallel()

	const total = 10000
	r := New(16, 0)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < total; {
			if r.Put(i) {
				i++
			}
		}
	}()

	for want := 0; want < total; {
		v := r.Get()
		if v == nil {
			continue
		}
		require.Equal(t, want, *v)
		want++
	}

	wg.Wait()
	require.True(t, r.IsEmpty())
}

// TestRingBufferModelProperty checks the buffer against a slice model under
// random operation sequences.
func TestRingBufferModelProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		size := rapid.IntRange(1, 8).Draw(t, "size")
		r := New(size, 0)
		var model []int

		numOps := rapid.IntRange(1, 100).Draw(t, "numOps")
		for i := 0; i < numOps; i++ {
			switch rapid.IntRange(0, 2).Draw(t, "op") {
			case 0:
				v := rapid.Int().Draw(t, "value")
				ok := r.Put(v)

				// PROPERTY: Put fails exactly when size
				// elements are queued.
				if ok != (len(model) < size) {
					t.Fatalf("put ok=%v with %d/%d queued",
						ok, len(model), size)
				}
				if ok {
					model = append(model, v)
				}

			case 1:
				got := r.Get()
				if len(model) == 0 {
					if got != nil {
						t.Fatalf("get on empty returned %d",
							*got)
					}
					continue
				}

				// PROPERTY: elements come out in FIFO order.
				if got == nil || *got != model[0] {
					t.Fatalf("get mismatch, want %d",
						model[0])
				}
				model = model[1:]

			case 2:
				ok := r.Unput()
				if ok != (len(model) > 0) {
					t.Fatalf("unput ok=%v with %d queued",
						ok, len(model))
				}
				if ok {
					model = model[:len(model)-1]
				}
			}

			// PROPERTY: occupancy follows the model.
			if r.Available() != len(model) {
				t.Fatalf("available=%d, model=%d",
					r.Available(), len(model))
			}
			if r.IsEmpty() != (len(model) == 0) ||
				r.IsFull() != (len(model) == size) {

				t.Fatalf("empty/full flags wrong at %d/%d",
					len(model), size)
			}
		}
	})
}
