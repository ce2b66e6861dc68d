package materialize

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidAddress is reported for a reference whose hash is not a
// lowercase hex digest, so it cannot name a file under res/.
var ErrInvalidAddress = errors.New("invalid content address")

// Failure records one reference that could not be materialized.
type Failure struct {
	Hash   string
	Source string
	Err    error
}

func (f Failure) Error() string {
	return fmt.Sprintf("%s -> %s: %v", f.Source, shortHash(f.Hash), f.Err)
}

func (f Failure) Unwrap() error {
	return f.Err
}

// Error aggregates every failure of one Materialize call.
type Error struct {
	Failures []Failure
}

func (e *Error) Error() string {
	if len(e.Failures) == 1 {
		return "materialize: " + e.Failures[0].Error()
	}
	var b strings.Builder
	fmt.Fprintf(&b, "materialize: %d files failed", len(e.Failures))
	for _, failure := range e.Failures {
		b.WriteString("\n  ")
		b.WriteString(failure.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() []error {
	errs := make([]error, len(e.Failures))
	for i, failure := range e.Failures {
		errs[i] = failure
	}
	return errs
}

func shortHash(hash string) string {
	if len(hash) > 16 {
		return hash[:16]
	}
	return hash
}
