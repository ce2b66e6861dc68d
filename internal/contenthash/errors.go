package contenthash

import (
	"errors"
	"fmt"
)

// ErrIsDirectory is returned when a directory is passed where a file is expected.
var ErrIsDirectory = errors.New("is a directory")

// IOError reports a failure to read a file being hashed.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}
