package command

import "fmt"

// Shape identifies a command's argument and return-value layout.
type Shape uint8

const (
	// ShapeVoid takes no argument and returns nothing.
	ShapeVoid Shape = iota

	// ShapeWrite takes one argument and returns nothing.
	ShapeWrite

	// ShapeRead takes one out-parameter. It is dispatched like
	// ShapeVoidReturn with the out-parameter as result slot.
	ShapeRead

	// ShapeQualifiedRead takes a qualifier and an out-parameter. It is
	// dispatched like ShapeWriteReturn with the out-parameter as result
	// slot.
	ShapeQualifiedRead

	// ShapeVoidReturn takes no argument and produces a result.
	ShapeVoidReturn

	// ShapeWriteReturn takes one argument and produces a result.
	ShapeWriteReturn
)

// NumberOfArguments returns the number of value arguments the shape
// declares, out-parameters included.
func (s Shape) NumberOfArguments() int {
	switch s {
	case ShapeWrite, ShapeRead, ShapeWriteReturn:
		return 1
	case ShapeQualifiedRead:
		return 2
	default:
		return 0
	}
}

// Returns reports whether the shape declares a return value.
func (s Shape) Returns() bool {
	return s == ShapeVoidReturn || s == ShapeWriteReturn
}

// ProducesResult reports whether executing the shape fills a result slot,
// either a return value or an out-parameter.
func (s Shape) ProducesResult() bool {
	switch s {
	case ShapeRead, ShapeQualifiedRead, ShapeVoidReturn, ShapeWriteReturn:
		return true
	default:
		return false
	}
}

// String returns the name of the shape.
func (s Shape) String() string {
	switch s {
	case ShapeVoid:
		return "Void"
	case ShapeWrite:
		return "Write"
	case ShapeRead:
		return "Read"
	case ShapeQualifiedRead:
		return "QualifiedRead"
	case ShapeVoidReturn:
		return "VoidReturn"
	case ShapeWriteReturn:
		return "WriteReturn"
	default:
		return fmt.Sprintf("Shape(%d)", uint8(s))
	}
}
