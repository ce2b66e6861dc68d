// Package cleanup empties an output directory before a build.
package cleanup

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/afero"

	"songpack/internal/logging"
)

// Result contains the outcome of a Clean call.
type Result struct {
	Removed    []string
	Suppressed []CleanupError
	// Bytes is the size of the regular files that were removed.
	Bytes int64
}

// CleanupError pairs a path with the error encountered removing it.
type CleanupError struct {
	Path  string
	Error error
}

// NotADirectoryError is returned when the directory to clean is missing or is
// not a directory.
type NotADirectoryError struct {
	Path string
	Err  error
}

func (e *NotADirectoryError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("clean %s: not a directory: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("clean %s: not a directory", e.Path)
}

func (e *NotADirectoryError) Unwrap() error {
	return e.Err
}

// Clean removes every entry inside dir and leaves dir itself in place.
// Symlinks are unlinked without following them. Subdirectories are removed
// best effort: failures are logged and recorded in Result.Suppressed. A
// regular file that cannot be removed for lack of permission is made
// writable and retried once; if that fails too the error is returned.
func Clean(fsys afero.Fs, dir string, logger *slog.Logger) (Result, error) {
	result := Result{}
	logger = logging.NewComponentLogger(logger, "cleanup")

	info, err := fsys.Stat(dir)
	if err != nil {
		return result, &NotADirectoryError{Path: dir, Err: err}
	}
	if !info.IsDir() {
		return result, &NotADirectoryError{Path: dir}
	}

	entries, err := afero.ReadDir(fsys, dir)
	if err != nil {
		return result, fmt.Errorf("read %s: %w", dir, err)
	}

	for _, entry := range entries {
		path := filepath.Join(dir, entry.Name())
		switch {
		case entry.Mode()&os.ModeSymlink != 0:
			if err := fsys.Remove(path); err != nil {
				return result, fmt.Errorf("unlink %s: %w", path, err)
			}
		case entry.IsDir():
			size, _ := DirSize(fsys, path)
			if err := fsys.RemoveAll(path); err != nil {
				result.Suppressed = append(result.Suppressed, CleanupError{Path: path, Error: err})
				logging.WarnWithContext(logger, "failed to remove directory", "cleanup_failed",
					logging.String("path", path),
					logging.Error(err),
					logging.String(logging.FieldErrorHint, "check output_dir permissions"),
					logging.String(logging.FieldImpact, "stale files may remain in the output"),
				)
				continue
			}
			result.Bytes += size
		default:
			if err := removeFile(fsys, path); err != nil {
				return result, err
			}
			result.Bytes += entry.Size()
		}
		result.Removed = append(result.Removed, path)
	}

	if len(result.Removed) > 0 {
		logger.Debug("output directory cleaned",
			logging.String("path", dir),
			logging.Int("removed", len(result.Removed)),
			logging.Int("suppressed", len(result.Suppressed)),
		)
	}
	return result, nil
}

func removeFile(fsys afero.Fs, path string) error {
	err := fsys.Remove(path)
	if err == nil {
		return nil
	}
	if !errors.Is(err, fs.ErrPermission) {
		return fmt.Errorf("remove %s: %w", path, err)
	}
	if chmodErr := fsys.Chmod(path, 0o666); chmodErr != nil {
		return fmt.Errorf("remove %s: %w", path, err)
	}
	if err := fsys.Remove(path); err != nil {
		return fmt.Errorf("remove %s after chmod: %w", path, err)
	}
	return nil
}

// DirSize calculates the total size of a directory recursively.
func DirSize(fsys afero.Fs, path string) (int64, error) {
	var size int64
	err := afero.Walk(fsys, path, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // best effort
		}
		if info.Mode().IsRegular() {
			size += info.Size()
		}
		return nil
	})
	return size, err
}
