package tensor

import (
	"errors"
	"fmt"
	"strings"
)

// ErrShape is the sentinel every ShapeError matches through errors.Is.
var ErrShape = errors.New("tensor shape error")

// ShapeError reports operands whose shapes an operation cannot accept.
type ShapeError struct {
	Op      string  // Operation name (e.g., "matmul")
	Shapes  []Shape // Offending operand shapes
	Details string  // Additional details
}

// Error implements the error interface.
func (e *ShapeError) Error() string {
	parts := make([]string, len(e.Shapes))
	for i, s := range e.Shapes {
		parts[i] = s.String()
	}
	msg := fmt.Sprintf("%s: incompatible shapes %s", e.Op, strings.Join(parts, ", "))
	if e.Details != "" {
		msg += ": " + e.Details
	}
	return msg
}

// Is reports whether target is ErrShape.
func (e *ShapeError) Is(target error) bool {
	return target == ErrShape
}

func shapeErr(op, details string, shapes ...Shape) error {
	return &ShapeError{Op: op, Shapes: shapes, Details: details}
}
