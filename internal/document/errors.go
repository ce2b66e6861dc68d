package document

import (
	"errors"
	"fmt"
)

// ErrUnsupportedType is matched by every error reporting a node the tree model
// cannot represent.
var ErrUnsupportedType = errors.New("unsupported node type")

// ErrExcessiveAliasing is returned when alias expansion would grow a small
// descriptor into a disproportionately large tree.
var ErrExcessiveAliasing = errors.New("document contains excessive aliasing")

// UnsupportedTypeError reports a YAML node outside the Mapping/Sequence/Scalar
// model, such as !!binary, !!timestamp, or an application-specific tag.
type UnsupportedTypeError struct {
	Tag    string
	Line   int
	Column int
	Reason string
}

func (e *UnsupportedTypeError) Error() string {
	msg := fmt.Sprintf("unsupported node type %s", e.Tag)
	if e.Line > 0 {
		msg = fmt.Sprintf("line %d, column %d: %s", e.Line, e.Column, msg)
	}
	if e.Reason != "" {
		msg += " (" + e.Reason + ")"
	}
	return msg
}

func (e *UnsupportedTypeError) Is(target error) bool {
	return target == ErrUnsupportedType
}
