package command

import "github.com/roasbeef/cmdqueue/internal/object"

// ResultProxy is the finished-event payload for calls that produce no
// result object. It only carries the ExecutionResult; Valid reports whether
// that result is OK.
type ResultProxy struct {
	// Result is the outcome of the executed command.
	Result ExecutionResult
}

// Clone returns a copy of p.
func (p *ResultProxy) Clone() object.GenericObject {
	c := *p
	return &c
}

// AssignFrom copies src into p if src is a *ResultProxy.
func (p *ResultProxy) AssignFrom(src object.GenericObject) bool {
	s, ok := src.(*ResultProxy)
	if !ok {
		return false
	}
	p.Result = s.Result

	return true
}

// Valid reports whether the carried result is OK.
func (p *ResultProxy) Valid() bool {
	return p.Result.IsOK()
}

// SetValid is a no-op; validity derives from Result.
func (p *ResultProxy) SetValid(bool) {}

// ResultOf extracts the ExecutionResult from a finished-event payload: the
// carried result for a *ResultProxy, otherwise ResultSucceeded or
// ResultMethodFailed from the payload's validity flag.
func ResultOf(payload object.GenericObject) ExecutionResult {
	switch p := payload.(type) {
	case nil:
		return ResultUndefined

	case *ResultProxy:
		return p.Result

	default:
		if p.Valid() {
			return ResultSucceeded
		}

		return ResultMethodFailed
	}
}

var _ object.GenericObject = (*ResultProxy)(nil)
