package rewrite

import (
	"fmt"

	"songpack/internal/document"
)

// PathError reports a string value that could not be resolved to a readable file.
type PathError struct {
	// Field is the location of the value inside the descriptor, e.g. charts[1].audio.
	Field string
	Value string
	// Position locates the value in the descriptor, when known.
	Position string
	Err      error
}

func (e *PathError) Error() string {
	field := e.Field
	if e.Position != "" {
		field += " (" + e.Position + ")"
	}
	msg := fmt.Sprintf("%s: %q is not a readable file: %v", field, e.Value, e.Err)
	if key := lastKey(e.Field); key != "" {
		msg += fmt.Sprintf(" (if %q holds text, add it to rewrite.text_fields)", key)
	}
	return msg
}

func (e *PathError) Unwrap() error {
	return e.Err
}

// UnsupportedTypeError reports a node the rewriter has no rule for.
type UnsupportedTypeError struct {
	Path string
	Tag  string
}

func (e *UnsupportedTypeError) Error() string {
	return fmt.Sprintf("%s: unsupported node type %s", e.Path, e.Tag)
}

func (e *UnsupportedTypeError) Is(target error) bool {
	return target == document.ErrUnsupportedType
}
