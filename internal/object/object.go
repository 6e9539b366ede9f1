// Package object defines the payload capability set carried through queued
// commands: values that can be copied from a prototype into a pre-allocated
// slot and that carry a validity flag.
package object

import (
	"fmt"
	"reflect"
)

// GenericObject is the capability set every queued payload must provide.
// Queues never allocate payloads on the hot path; instead they Clone a
// prototype once per slot and then AssignFrom into existing slots.
type GenericObject interface {
	// Clone returns a new object of the same runtime type holding a copy
	// of the receiver's value.
	Clone() GenericObject

	// AssignFrom copies src into the receiver. It returns false, leaving
	// the receiver untouched, if src is not of the receiver's type.
	AssignFrom(src GenericObject) bool

	// Valid reports whether the value is meaningful. Results delivered
	// through a finished event are marked invalid when the producing
	// command did not succeed.
	Valid() bool

	// SetValid sets the validity flag.
	SetValid(valid bool)
}

// SameType reports whether a and b have the same runtime type.
func SameType(a, b GenericObject) bool {
	if a == nil || b == nil {
		return false
	}

	return reflect.TypeOf(a) == reflect.TypeOf(b)
}

// TypeName returns a printable name for obj's runtime type.
func TypeName(obj GenericObject) string {
	if obj == nil {
		return "<nil>"
	}

	return reflect.TypeOf(obj).String()
}

// Base carries the validity flag and can be embedded by payload types
// defined outside this package.
type Base struct {
	valid bool
}

// Valid reports whether the value is meaningful.
func (b *Base) Valid() bool {
	return b.valid
}

// SetValid sets the validity flag.
func (b *Base) SetValid(valid bool) {
	b.valid = valid
}

// Value is a GenericObject wrapping a plain Go value. Copies are shallow: a
// Value holding a slice or map shares the backing storage with its clones.
type Value[T any] struct {
	Base

	// Data is the wrapped value.
	Data T
}

// NewValue returns a valid Value holding data.
func NewValue[T any](data T) *Value[T] {
	return &Value[T]{
		Base: Base{valid: true},
		Data: data,
	}
}

// Clone returns a copy of v.
func (v *Value[T]) Clone() GenericObject {
	c := *v
	return &c
}

// AssignFrom copies src into v if src is a *Value[T].
func (v *Value[T]) AssignFrom(src GenericObject) bool {
	s, ok := src.(*Value[T])
	if !ok || s == nil {
		return false
	}

	v.Data = s.Data
	v.valid = s.valid

	return true
}

// String implements fmt.Stringer.
func (v *Value[T]) String() string {
	return fmt.Sprintf("%v", v.Data)
}

// Compile-time check that Value implements GenericObject.
var _ GenericObject = (*Value[int])(nil)

// IsNil reports whether obj is nil or wraps a nil pointer. A prototype
// accessor typed on a pointer payload returns such a value before the
// prototype is known.
func IsNil(obj GenericObject) bool {
	if obj == nil {
		return true
	}

	v := reflect.ValueOf(obj)

	return v.Kind() == reflect.Pointer && v.IsNil()
}
