package typesystem

import (
	"fmt"

	"github.com/funvibe/loom/internal/token"
)

// TypeMismatchError reports a value whose type is not assignable to the
// expected type. Index is the argument index for call checks, -1 otherwise.
type TypeMismatchError struct {
	Expected Type
	Actual   Type
	Pos      token.Position
	Index    int
}

func (e *TypeMismatchError) Error() string {
	if e.Index >= 0 {
		return fmt.Sprintf("argument %d: expected %s, got %s", e.Index+1, typeString(e.Expected), typeString(e.Actual))
	}
	return fmt.Sprintf("expected %s, got %s", typeString(e.Expected), typeString(e.Actual))
}

func NewTypeMismatchError(expected, actual Type, pos token.Position) *TypeMismatchError {
	return &TypeMismatchError{Expected: expected, Actual: actual, Pos: pos, Index: -1}
}

// ArityMismatchError reports a call with the wrong number of arguments.
// For variadic callees Want is the minimum.
type ArityMismatchError struct {
	Want     int
	Got      int
	Variadic bool
	Pos      token.Position
}

func (e *ArityMismatchError) Error() string {
	if e.Variadic {
		return fmt.Sprintf("expected at least %d arguments, got %d", e.Want, e.Got)
	}
	return fmt.Sprintf("expected %d arguments, got %d", e.Want, e.Got)
}

// NotCallableError reports a call through a value of non-function type.
type NotCallableError struct {
	Type Type
	Pos  token.Position
}

func (e *NotCallableError) Error() string {
	return fmt.Sprintf("%s is not callable", typeString(e.Type))
}
