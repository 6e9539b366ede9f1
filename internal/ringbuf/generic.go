package ringbuf

import (
	"fmt"
	"reflect"

	"github.com/roasbeef/cmdqueue/internal/object"
)

// Generic is a type-erased circular buffer of GenericObject slots. Every
// slot is cloned from one prototype up front, and puts copy into existing
// slots with AssignFrom, so the hot path never allocates. Values whose
// runtime type differs from the prototype's are rejected.
type Generic struct {
	ring *RingBuffer[object.GenericObject]

	// prototype is the object every slot was cloned from.
	prototype object.GenericObject

	// elemType is the prototype's runtime type.
	elemType reflect.Type
}

// NewGeneric creates a buffer of size slots cloned from prototype. A size
// below 1 is raised to 1. prototype must not be nil.
func NewGeneric(size int, prototype object.GenericObject) *Generic {
	g := &Generic{}
	g.reset(size, prototype)

	return g
}

// reset reallocates the slots from prototype.
func (g *Generic) reset(size int, prototype object.GenericObject) {
	g.prototype = prototype
	g.elemType = reflect.TypeOf(prototype)
	g.ring = newWithFill(size, prototype.Clone)
}

// Prototype returns the object the slots were cloned from.
func (g *Generic) Prototype() object.GenericObject {
	return g.prototype
}

// Matches reports whether value has the buffer's element type. A typed nil
// pointer never matches.
func (g *Generic) Matches(value object.GenericObject) bool {
	return !object.IsNil(value) && reflect.TypeOf(value) == g.elemType
}

// Put copies value into the next free slot.
func (g *Generic) Put(value object.GenericObject) error {
	if !g.Matches(value) {
		return fmt.Errorf("%w: got %s, want %s", ErrTypeMismatch,
			object.TypeName(value), g.elemType)
	}

	slot, ok := g.ring.writeSlot()
	if !ok {
		return ErrFull
	}

	if !(*slot).AssignFrom(value) {
		return fmt.Errorf("%w: %s refused assignment", ErrTypeMismatch,
			g.elemType)
	}
	g.ring.advance()

	return nil
}

// Reserve claims the next free slot without copying anything into it and
// returns it marked invalid. It is used for out-parameter slots that the
// consumer fills in.
func (g *Generic) Reserve() (object.GenericObject, error) {
	slot, ok := g.ring.writeSlot()
	if !ok {
		return nil, ErrFull
	}

	(*slot).SetValid(false)
	g.ring.advance()

	return *slot, nil
}

// Unput removes the most recent element; see RingBuffer.Unput.
func (g *Generic) Unput() bool {
	return g.ring.Unput()
}

// Peek returns the oldest unread slot, or nil if the buffer is empty.
func (g *Generic) Peek() object.GenericObject {
	slot := g.ring.Peek()
	if slot == nil {
		return nil
	}

	return *slot
}

// Get returns the oldest unread slot and consumes it, or nil if the buffer
// is empty. The object stays usable until a later put recycles the slot.
func (g *Generic) Get() object.GenericObject {
	slot := g.ring.Get()
	if slot == nil {
		return nil
	}

	return *slot
}

// IsFull reports whether a put would fail.
func (g *Generic) IsFull() bool {
	return g.ring.IsFull()
}

// IsEmpty reports whether there is nothing to read.
func (g *Generic) IsEmpty() bool {
	return g.ring.IsEmpty()
}

// Size returns the number of elements the buffer can hold.
func (g *Generic) Size() int {
	return g.ring.Size()
}

// Available returns the number of unread elements.
func (g *Generic) Available() int {
	return g.ring.Available()
}

// SetSize reallocates the buffer from prototype. Like RingBuffer.SetSize it
// refuses while unread elements remain.
func (g *Generic) SetSize(size int, prototype object.GenericObject) error {
	if !g.ring.IsEmpty() {
		return ErrBufferNotEmpty
	}

	log.Debugf("Resizing generic ring buffer of %s from %d to %d",
		object.TypeName(prototype), g.ring.Size(), size)

	g.reset(size, prototype)

	return nil
}
