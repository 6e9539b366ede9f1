// Package command defines the non-queued command shapes that queued
// commands wrap, the outcome and blocking tags shared across the dispatch
// core, and adapters that turn plain functions into commands.
package command

import (
	"sync/atomic"

	"github.com/roasbeef/cmdqueue/internal/object"
)

// Command is the capability set shared by all command shapes.
type Command interface {
	// Name returns the command's name.
	Name() string

	// Shape returns the command's argument layout.
	Shape() Shape

	// NumberOfArguments returns Shape().NumberOfArguments().
	NumberOfArguments() int

	// Returns returns Shape().Returns().
	Returns() bool

	// Enable allows the command to run.
	Enable()

	// Disable makes every later Execute return ResultDisabled.
	Disable()

	// IsEnabled reports whether the command may run.
	IsEnabled() bool
}

// Void is a command without arguments or result.
type Void interface {
	Command

	// Execute runs the command.
	Execute(blocking BlockingType) ExecutionResult
}

// Write is a command taking one argument.
type Write interface {
	Command

	// Execute runs the command with arg.
	Execute(arg object.GenericObject, blocking BlockingType) ExecutionResult

	// ArgumentPrototype returns a sample argument, or nil if not known
	// yet.
	ArgumentPrototype() object.GenericObject
}

// Read is a command filling one out-parameter.
type Read interface {
	Command

	// Execute fills out.
	Execute(out object.GenericObject) ExecutionResult

	// ArgumentPrototype returns a sample out-parameter.
	ArgumentPrototype() object.GenericObject
}

// QualifiedRead is a command filling an out-parameter selected by a
// qualifier.
type QualifiedRead interface {
	Command

	// Execute fills out according to qualifier.
	Execute(qualifier, out object.GenericObject) ExecutionResult

	// Argument1Prototype returns a sample qualifier.
	Argument1Prototype() object.GenericObject

	// Argument2Prototype returns a sample out-parameter.
	Argument2Prototype() object.GenericObject
}

// VoidReturn is a command without arguments that produces a result.
type VoidReturn interface {
	Command

	// Execute runs the command and stores its result in result.
	Execute(result object.GenericObject) ExecutionResult

	// ResultPrototype returns a sample result.
	ResultPrototype() object.GenericObject
}

// WriteReturn is a command taking one argument and producing a result.
type WriteReturn interface {
	Command

	// Execute runs the command with arg and stores its result in result.
	Execute(arg, result object.GenericObject) ExecutionResult

	// ArgumentPrototype returns a sample argument.
	ArgumentPrototype() object.GenericObject

	// ResultPrototype returns a sample result.
	ResultPrototype() object.GenericObject
}

// FinishedEvent is notified after a queued command runs. It is write-shaped:
// the payload is either the command's result object, valid only on success,
// or a *ResultProxy when there is no result object. The payload belongs to
// the dispatcher and must be copied out before Execute returns.
type FinishedEvent interface {
	Execute(payload object.GenericObject, blocking BlockingType) ExecutionResult
}

// ResultEvent is a FinishedEvent that is also told the ExecutionResult of
// the call. A result object only reports success through its validity flag,
// so the dispatcher prefers ExecuteResult when the event implements it.
type ResultEvent interface {
	FinishedEvent

	// ExecuteResult is called instead of Execute with the payload and the
	// executed command's result.
	ExecuteResult(payload object.GenericObject, result ExecutionResult)
}

// FinishedFunc adapts a function to FinishedEvent.
type FinishedFunc func(payload object.GenericObject)

// Execute calls f(payload).
func (f FinishedFunc) Execute(payload object.GenericObject,
	_ BlockingType) ExecutionResult {

	f(payload)

	return ResultSucceeded
}

// base holds the fields shared by the function adapters.
type base struct {
	name     string
	shape    Shape
	disabled atomic.Bool
}

// Name returns the command's name.
func (b *base) Name() string {
	return b.name
}

// Shape returns the command's argument layout.
func (b *base) Shape() Shape {
	return b.shape
}

// NumberOfArguments returns the shape's argument count.
func (b *base) NumberOfArguments() int {
	return b.shape.NumberOfArguments()
}

// Returns reports whether the shape has a return value.
func (b *base) Returns() bool {
	return b.shape.Returns()
}

// Enable allows the command to run.
func (b *base) Enable() {
	b.disabled.Store(false)
}

// Disable makes every later Execute return ResultDisabled.
func (b *base) Disable() {
	b.disabled.Store(true)
}

// IsEnabled reports whether the command may run.
func (b *base) IsEnabled() bool {
	return !b.disabled.Load()
}

// outcome maps a callable's error to an ExecutionResult.
func (b *base) outcome(err error) ExecutionResult {
	if err != nil {
		log.Debugf("Command %q failed: %v", b.name, err)
		return ResultMethodFailed
	}

	return ResultSucceeded
}

// VoidFunc is a Void command backed by a function.
type VoidFunc struct {
	base
	fn func() error
}

// NewVoid returns a Void command calling f.
func NewVoid(name string, f func() error) *VoidFunc {
	return &VoidFunc{
		base: base{name: name, shape: ShapeVoid},
		fn:   f,
	}
}

// Execute runs the function.
func (c *VoidFunc) Execute(_ BlockingType) ExecutionResult {
	if !c.IsEnabled() {
		return ResultDisabled
	}

	return c.outcome(c.fn())
}

// WriteFunc is a Write command backed by a function over argument type A.
type WriteFunc[A object.GenericObject] struct {
	base
	proto A
	fn    func(A) error
}

// NewWrite returns a Write command calling f. proto is the argument
// prototype used to size queues.
func NewWrite[A object.GenericObject](name string, proto A,
	f func(A) error) *WriteFunc[A] {

	return &WriteFunc[A]{
		base:  base{name: name, shape: ShapeWrite},
		proto: proto,
		fn:    f,
	}
}

// Execute narrows arg to A and runs the function.
func (c *WriteFunc[A]) Execute(arg object.GenericObject,
	_ BlockingType) ExecutionResult {

	if !c.IsEnabled() {
		return ResultDisabled
	}

	a, ok := arg.(A)
	if !ok {
		return ResultInvalidInputType
	}

	return c.outcome(c.fn(a))
}

// ArgumentPrototype returns the argument prototype.
func (c *WriteFunc[A]) ArgumentPrototype() object.GenericObject {
	return c.proto
}

// ReadFunc is a Read command backed by a function over out-parameter type R.
type ReadFunc[R object.GenericObject] struct {
	base
	proto R
	fn    func(R) error
}

// NewRead returns a Read command calling f with the out-parameter.
func NewRead[R object.GenericObject](name string, proto R,
	f func(R) error) *ReadFunc[R] {

	return &ReadFunc[R]{
		base:  base{name: name, shape: ShapeRead},
		proto: proto,
		fn:    f,
	}
}

// Execute narrows out to R and runs the function.
func (c *ReadFunc[R]) Execute(out object.GenericObject) ExecutionResult {
	if !c.IsEnabled() {
		return ResultDisabled
	}

	r, ok := out.(R)
	if !ok {
		return ResultInvalidInputType
	}

	return c.outcome(c.fn(r))
}

// ArgumentPrototype returns the out-parameter prototype.
func (c *ReadFunc[R]) ArgumentPrototype() object.GenericObject {
	return c.proto
}

// QualifiedReadFunc is a QualifiedRead command backed by a function.
type QualifiedReadFunc[Q, R object.GenericObject] struct {
	base
	qualifier Q
	proto     R
	fn        func(Q, R) error
}

// NewQualifiedRead returns a QualifiedRead command calling f.
func NewQualifiedRead[Q, R object.GenericObject](name string, qualifier Q,
	proto R, f func(Q, R) error) *QualifiedReadFunc[Q, R] {

	return &QualifiedReadFunc[Q, R]{
		base:      base{name: name, shape: ShapeQualifiedRead},
		qualifier: qualifier,
		proto:     proto,
		fn:        f,
	}
}

// Execute narrows both arguments and runs the function.
func (c *QualifiedReadFunc[Q, R]) Execute(
	qualifier, out object.GenericObject) ExecutionResult {

	if !c.IsEnabled() {
		return ResultDisabled
	}

	q, ok := qualifier.(Q)
	if !ok {
		return ResultInvalidInputType
	}
	r, ok := out.(R)
	if !ok {
		return ResultInvalidInputType
	}

	return c.outcome(c.fn(q, r))
}

// Argument1Prototype returns the qualifier prototype.
func (c *QualifiedReadFunc[Q, R]) Argument1Prototype() object.GenericObject {
	return c.qualifier
}

// Argument2Prototype returns the out-parameter prototype.
func (c *QualifiedReadFunc[Q, R]) Argument2Prototype() object.GenericObject {
	return c.proto
}

// VoidReturnFunc is a VoidReturn command backed by a function.
type VoidReturnFunc[R object.GenericObject] struct {
	base
	proto R
	fn    func(R) error
}

// NewVoidReturn returns a VoidReturn command calling f with the result
// object to fill.
func NewVoidReturn[R object.GenericObject](name string, proto R,
	f func(R) error) *VoidReturnFunc[R] {

	return &VoidReturnFunc[R]{
		base:  base{name: name, shape: ShapeVoidReturn},
		proto: proto,
		fn:    f,
	}
}

// Execute narrows result to R and runs the function.
func (c *VoidReturnFunc[R]) Execute(result object.GenericObject) ExecutionResult {
	if !c.IsEnabled() {
		return ResultDisabled
	}

	r, ok := result.(R)
	if !ok {
		return ResultInvalidInputType
	}

	return c.outcome(c.fn(r))
}

// ResultPrototype returns the result prototype.
func (c *VoidReturnFunc[R]) ResultPrototype() object.GenericObject {
	return c.proto
}

// WriteReturnFunc is a WriteReturn command backed by a function.
type WriteReturnFunc[A, R object.GenericObject] struct {
	base
	argProto    A
	resultProto R
	fn          func(A, R) error
}

// NewWriteReturn returns a WriteReturn command calling f.
func NewWriteReturn[A, R object.GenericObject](name string, argProto A,
	resultProto R, f func(A, R) error) *WriteReturnFunc[A, R] {

	return &WriteReturnFunc[A, R]{
		base:        base{name: name, shape: ShapeWriteReturn},
		argProto:    argProto,
		resultProto: resultProto,
		fn:          f,
	}
}

// Execute narrows both objects and runs the function.
func (c *WriteReturnFunc[A, R]) Execute(
	arg, result object.GenericObject) ExecutionResult {

	if !c.IsEnabled() {
		return ResultDisabled
	}

	a, ok := arg.(A)
	if !ok {
		return ResultInvalidInputType
	}
	r, ok := result.(R)
	if !ok {
		return ResultInvalidInputType
	}

	return c.outcome(c.fn(a, r))
}

// ArgumentPrototype returns the argument prototype.
func (c *WriteReturnFunc[A, R]) ArgumentPrototype() object.GenericObject {
	return c.argProto
}

// ResultPrototype returns the result prototype.
func (c *WriteReturnFunc[A, R]) ResultPrototype() object.GenericObject {
	return c.resultProto
}

// Compile-time checks that the adapters implement their shapes.
var (
	_ Void          = (*VoidFunc)(nil)
	_ Write         = (*WriteFunc[*object.Value[int]])(nil)
	_ Read          = (*ReadFunc[*object.Value[int]])(nil)
	_ VoidReturn    = (*VoidReturnFunc[*object.Value[int]])(nil)
	_ FinishedEvent = FinishedFunc(nil)
	_ FinishedEvent = Write(nil)

	_ QualifiedRead = (*QualifiedReadFunc[
		*object.Value[int], *object.Value[int],
	])(nil)
	_ WriteReturn = (*WriteReturnFunc[
		*object.Value[int], *object.Value[int],
	])(nil)
)
