// Package ringbuf provides fixed-capacity circular buffers for a single
// producer and a single consumer.
//
// Thread Safety:
//   - Put, Unput and the write side of Generic (Put, Reserve) may be called
//     from exactly one producer goroutine.
//   - Peek and Get may be called from exactly one consumer goroutine.
//   - IsFull, IsEmpty and Available may be called from either side.
//   - SetSize must not race with any other call.
//
// The cursors are atomics, so a slot written before the head index is
// published is visible to the consumer that observes the new head. Multiple
// producers (or multiple consumers) must be serialized by the caller.
package ringbuf

import (
	"errors"
	"sync/atomic"
)

var (
	// ErrFull is returned when a put is attempted on a full buffer.
	ErrFull = errors.New("ring buffer full")

	// ErrTypeMismatch is returned when a value of the wrong runtime type is
	// put into a Generic buffer.
	ErrTypeMismatch = errors.New("ring buffer element type mismatch")

	// ErrBufferNotEmpty is returned by SetSize while unread elements are
	// still queued.
	ErrBufferNotEmpty = errors.New("ring buffer not empty")
)

// RingBuffer is a fixed-capacity circular buffer over pre-allocated slots.
// One slot beyond the nominal size is kept as a sentinel so that a full
// buffer can be told apart from an empty one using the cursors alone.
type RingBuffer[T any] struct {
	// slots holds size+1 elements.
	slots []T

	// head is the index of the next slot to write. Only the producer
	// stores to it.
	head atomic.Uint64

	// tail is the index of the next slot to read. Only the consumer
	// stores to it.
	tail atomic.Uint64
}

// New creates a buffer able to hold size elements, every slot initialized
// to a copy of value. A size below 1 is raised to 1.
func New[T any](size int, value T) *RingBuffer[T] {
	return newWithFill(size, func() T { return value })
}

// newWithFill creates a buffer whose slots are produced by fill.
func newWithFill[T any](size int, fill func() T) *RingBuffer[T] {
	r := &RingBuffer[T]{}
	r.reset(size, fill)

	return r
}

// reset reallocates the slots and empties the buffer.
func (r *RingBuffer[T]) reset(size int, fill func() T) {
	if size < 1 {
		size = 1
	}

	slots := make([]T, size+1)
	for i := range slots {
		slots[i] = fill()
	}

	r.slots = slots
	r.head.Store(0)
	r.tail.Store(0)
}

// next returns the index following i.
func (r *RingBuffer[T]) next(i uint64) uint64 {
	i++
	if i == uint64(len(r.slots)) {
		return 0
	}

	return i
}

// writeSlot returns the slot at the write cursor, or false when full. The
// slot is not visible to the consumer until advance is called.
func (r *RingBuffer[T]) writeSlot() (*T, bool) {
	head := r.head.Load()
	if r.next(head) == r.tail.Load() {
		return nil, false
	}

	return &r.slots[head], true
}

// advance publishes the slot returned by writeSlot.
func (r *RingBuffer[T]) advance() {
	r.head.Store(r.next(r.head.Load()))
}

// Put copies value into the next free slot. It returns false, without
// copying, if the buffer is full.
func (r *RingBuffer[T]) Put(value T) bool {
	slot, ok := r.writeSlot()
	if !ok {
		return false
	}

	*slot = value
	r.advance()

	return true
}

// Unput removes the most recently put element. It is meant for a producer
// rolling back a put whose companion operations failed, and is only safe
// while the consumer cannot yet have been told about that element. It
// returns false if the buffer is empty.
func (r *RingBuffer[T]) Unput() bool {
	head := r.head.Load()
	if head == r.tail.Load() {
		return false
	}

	if head == 0 {
		head = uint64(len(r.slots))
	}
	r.head.Store(head - 1)

	return true
}

// Peek returns the oldest unread element without consuming it, or nil if
// the buffer is empty.
func (r *RingBuffer[T]) Peek() *T {
	tail := r.tail.Load()
	if tail == r.head.Load() {
		return nil
	}

	return &r.slots[tail]
}

// Get returns the oldest unread element and consumes it, or nil if the
// buffer is empty. The returned pointer stays valid until a later Put
// recycles the slot.
func (r *RingBuffer[T]) Get() *T {
	tail := r.tail.Load()
	if tail == r.head.Load() {
		return nil
	}

	slot := &r.slots[tail]
	r.tail.Store(r.next(tail))

	return slot
}

// IsFull reports whether a Put would fail.
func (r *RingBuffer[T]) IsFull() bool {
	return r.next(r.head.Load()) == r.tail.Load()
}

// IsEmpty reports whether there is nothing to read.
func (r *RingBuffer[T]) IsEmpty() bool {
	return r.head.Load() == r.tail.Load()
}

// Size returns the number of elements the buffer can hold.
func (r *RingBuffer[T]) Size() int {
	return len(r.slots) - 1
}

// Available returns the number of unread elements.
func (r *RingBuffer[T]) Available() int {
	n := uint64(len(r.slots))
	head, tail := r.head.Load(), r.tail.Load()

	return int((head + n - tail) % n)
}

// SetSize reallocates the buffer to hold size elements, each slot set to a
// copy of value. It is destructive and refuses with ErrBufferNotEmpty while
// unread elements remain.
func (r *RingBuffer[T]) SetSize(size int, value T) error {
	if !r.IsEmpty() {
		return ErrBufferNotEmpty
	}

	log.Debugf("Resizing ring buffer from %d to %d", r.Size(), size)

	r.reset(size, func() T { return value })

	return nil
}
