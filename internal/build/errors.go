package build

import (
	"errors"
	"fmt"
)

// ErrBuildInProgress is returned when another build holds the output lock.
var ErrBuildInProgress = errors.New("another build is writing this output directory")

// MalformedPackageError reports a package whose descriptor cannot be used.
type MalformedPackageError struct {
	Descriptor string
	Reason     string
	Err        error
}

func (e *MalformedPackageError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed package %s: %s: %v", e.Descriptor, e.Reason, e.Err)
	}
	return fmt.Sprintf("malformed package %s: %s", e.Descriptor, e.Reason)
}

func (e *MalformedPackageError) Unwrap() error {
	return e.Err
}
