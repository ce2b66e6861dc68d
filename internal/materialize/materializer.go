package materialize

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/afero"

	"songpack/internal/contenthash"
	"songpack/internal/fileutil"
	"songpack/internal/logging"
	"songpack/internal/rewrite"
)

// Mode selects how files are placed in the output directory.
type Mode string

const (
	Copy Mode = "copy"
	Link Mode = "link"
)

// ErrLinkUnsupported is returned in link mode when the filesystem cannot create symlinks.
var ErrLinkUnsupported = errors.New("filesystem does not support symlinks")

// Report summarizes one Materialize call.
type Report struct {
	Written      int
	Linked       int
	Skipped      int
	BytesWritten int64
	BytesSkipped int64
	Failures     []Failure
}

// Materializer writes content-addressed files.
type Materializer struct {
	fs     afero.Fs
	mode   Mode
	hasher *contenthash.Hasher
	logger *slog.Logger
}

// Option configures a Materializer.
type Option func(*Materializer)

// WithFs sets the filesystem used for both sources and destinations.
func WithFs(fsys afero.Fs) Option {
	return func(m *Materializer) { m.fs = fsys }
}

// WithMode selects copy or link placement. Defaults to Copy.
func WithMode(mode Mode) Option {
	return func(m *Materializer) { m.mode = mode }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Materializer) { m.logger = logger }
}

// New constructs a Materializer. hasher verifies copies and existing
// destinations, so it must use the same algorithm that produced the hashes.
func New(hasher *contenthash.Hasher, opts ...Option) *Materializer {
	m := &Materializer{fs: afero.NewOsFs(), mode: Copy, hasher: hasher}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = logging.NewComponentLogger(m.logger, "materialize")
	return m
}

// Materialize places every reference at outputDir/<hash>. A hash is handled
// once, by its first reference. Failures do not stop the remaining files;
// they are listed in the report and returned together as *Error.
func (m *Materializer) Materialize(ctx context.Context, refs []rewrite.Reference, outputDir string) (Report, error) {
	var report Report
	if m.mode != Copy && m.mode != Link {
		return report, fmt.Errorf("materialize: unknown mode %q", m.mode)
	}
	if err := m.fs.MkdirAll(outputDir, 0o755); err != nil {
		return report, fmt.Errorf("create %s: %w", outputDir, err)
	}

	logger := logging.WithContext(ctx, m.logger)
	seen := make(map[string]struct{}, len(refs))
	for _, ref := range refs {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if _, dup := seen[ref.Hash]; dup {
			continue
		}
		seen[ref.Hash] = struct{}{}

		dst := filepath.Join(outputDir, ref.Hash)
		var err error
		if !contenthash.IsDigest(ref.Hash) {
			err = fmt.Errorf("%w %q", ErrInvalidAddress, ref.Hash)
		} else if m.mode == Link {
			err = m.link(ref, dst, &report)
		} else {
			err = m.copy(ref, dst, &report)
		}
		if err != nil {
			failure := Failure{Hash: ref.Hash, Source: ref.AbsolutePath, Err: err}
			report.Failures = append(report.Failures, failure)
			logging.WarnWithContext(logger, "asset not materialized", "materialize_failed",
				logging.String("source", ref.AbsolutePath),
				logging.String("hash", shortHash(ref.Hash)),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check the source file is readable and the output directory is writable"),
				logging.String(logging.FieldImpact, "song.json references an asset missing from res/"),
			)
		}
	}

	logger.Debug("materialize complete",
		logging.Int("written", report.Written),
		logging.Int("linked", report.Linked),
		logging.Int("skipped", report.Skipped),
		logging.Int("failed", len(report.Failures)),
	)
	if len(report.Failures) > 0 {
		return report, &Error{Failures: report.Failures}
	}
	return report, nil
}

func (m *Materializer) copy(ref rewrite.Reference, dst string, report *Report) error {
	srcInfo, err := m.fs.Stat(ref.AbsolutePath)
	if err != nil {
		return err
	}

	if info, err := m.lstat(dst); err == nil {
		if info.Mode().IsRegular() && info.Size() == srcInfo.Size() {
			if digest, hashErr := m.hasher.HashFile(dst); hashErr == nil && digest == ref.Hash {
				report.Skipped++
				report.BytesSkipped += info.Size()
				return nil
			}
		}
		if err := m.fs.RemoveAll(dst); err != nil {
			return fmt.Errorf("replace %s: %w", dst, err)
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	written, err := fileutil.CopyFileVerified(m.fs, ref.AbsolutePath, dst, m.hasher.NewDigest, ref.Hash)
	if err != nil {
		return err
	}
	report.Written++
	report.BytesWritten += written
	return nil
}

func (m *Materializer) link(ref rewrite.Reference, dst string, report *Report) error {
	linker, ok := m.fs.(afero.Linker)
	if !ok {
		return ErrLinkUnsupported
	}
	if _, err := m.fs.Stat(ref.AbsolutePath); err != nil {
		return err
	}

	if info, err := m.lstat(dst); err == nil {
		if info.Mode()&os.ModeSymlink != 0 {
			if reader, ok := m.fs.(afero.LinkReader); ok {
				if target, err := reader.ReadlinkIfPossible(dst); err == nil && target == ref.AbsolutePath {
					report.Skipped++
					return nil
				}
			}
		}
		if err := m.fs.RemoveAll(dst); err != nil {
			return fmt.Errorf("replace %s: %w", dst, err)
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	if err := linker.SymlinkIfPossible(ref.AbsolutePath, dst); err != nil {
		return err
	}
	report.Linked++
	return nil
}

func (m *Materializer) lstat(path string) (os.FileInfo, error) {
	if lstater, ok := m.fs.(afero.Lstater); ok {
		info, _, err := lstater.LstatIfPossible(path)
		return info, err
	}
	return m.fs.Stat(path)
}
