// Package archive writes a build output tree as a deterministic tar.zst
// bundle: entries are sorted, timestamps and ownership are fixed, and
// symlinks are stored as links.
package archive

import (
	"archive/tar"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/spf13/afero"
)

// Summary describes a written archive.
type Summary struct {
	Path    string
	Entries int
	// Bytes is the uncompressed size of the regular files stored.
	Bytes int64
}

// Entry is one member of an archive, as reported by List.
type Entry struct {
	Name     string
	Size     int64
	Typeflag byte
	Linkname string
}

type options struct {
	modTime time.Time
	prefix  string
}

// Option configures Write.
type Option func(*options)

// WithModTime sets the timestamp stamped on every entry. Defaults to the Unix epoch.
func WithModTime(t time.Time) Option {
	return func(o *options) { o.modTime = t }
}

// WithPrefix nests every entry under the given directory name.
func WithPrefix(prefix string) Option {
	return func(o *options) { o.prefix = strings.Trim(filepath.ToSlash(prefix), "/") }
}

// Write bundles the tree rooted at dir into a zstd-compressed tarball at
// dest. The archive is written to a temporary file and renamed into place.
func Write(fsys afero.Fs, dir, dest string, opts ...Option) (Summary, error) {
	o := options{modTime: time.Unix(0, 0).UTC()}
	for _, opt := range opts {
		opt(&o)
	}

	absDest, err := filepath.Abs(dest)
	if err != nil {
		return Summary{}, fmt.Errorf("resolve %s: %w", dest, err)
	}
	paths, err := collect(fsys, dir, absDest)
	if err != nil {
		return Summary{}, err
	}

	if err := fsys.MkdirAll(filepath.Dir(absDest), 0o755); err != nil {
		return Summary{}, fmt.Errorf("create archive directory: %w", err)
	}
	tmp, err := afero.TempFile(fsys, filepath.Dir(absDest), tempPrefix(absDest))
	if err != nil {
		return Summary{}, fmt.Errorf("create archive file: %w", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		_ = tmp.Close()
		if !committed {
			_ = fsys.Remove(tmpName)
		}
	}()

	zw, err := zstd.NewWriter(tmp, zstd.WithEncoderLevel(zstd.SpeedDefault), zstd.WithEncoderConcurrency(1))
	if err != nil {
		return Summary{}, fmt.Errorf("create zstd writer: %w", err)
	}
	tw := tar.NewWriter(zw)

	summary := Summary{Path: absDest}
	for _, rel := range paths {
		written, err := writeEntry(fsys, tw, dir, rel, o)
		if err != nil {
			_ = tw.Close()
			_ = zw.Close()
			return Summary{}, err
		}
		summary.Entries++
		summary.Bytes += written
	}

	if err := tw.Close(); err != nil {
		_ = zw.Close()
		return Summary{}, fmt.Errorf("finish tar stream: %w", err)
	}
	if err := zw.Close(); err != nil {
		return Summary{}, fmt.Errorf("finish zstd stream: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return Summary{}, err
	}
	if err := fsys.Rename(tmpName, absDest); err != nil {
		return Summary{}, fmt.Errorf("rename archive into place: %w", err)
	}
	committed = true
	return summary, nil
}

// collect returns the slash-separated relative paths under dir in sorted
// order, skipping the archive being written.
func collect(fsys afero.Fs, dir, absDest string) ([]string, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", dir, err)
	}
	var paths []string
	err = afero.Walk(fsys, absDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if path == absDir || path == absDest {
			return nil
		}
		if filepath.Dir(path) == filepath.Dir(absDest) && strings.HasPrefix(info.Name(), tempStem(absDest)) {
			return nil
		}
		rel, err := filepath.Rel(absDir, path)
		if err != nil {
			return err
		}
		paths = append(paths, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", dir, err)
	}
	sort.Strings(paths)
	return paths, nil
}

func writeEntry(fsys afero.Fs, tw *tar.Writer, dir, rel string, o options) (int64, error) {
	full := filepath.Join(dir, filepath.FromSlash(rel))
	info, err := lstat(fsys, full)
	if err != nil {
		return 0, err
	}

	name := rel
	if o.prefix != "" {
		name = o.prefix + "/" + rel
	}
	header := &tar.Header{
		Name:    name,
		ModTime: o.modTime,
		Format:  tar.FormatPAX,
	}

	switch {
	case info.Mode()&os.ModeSymlink != 0:
		reader, ok := fsys.(afero.LinkReader)
		if !ok {
			return 0, fmt.Errorf("read link %s: filesystem does not support symlinks", full)
		}
		target, err := reader.ReadlinkIfPossible(full)
		if err != nil {
			return 0, fmt.Errorf("read link %s: %w", full, err)
		}
		header.Typeflag = tar.TypeSymlink
		header.Linkname = target
		header.Mode = 0o777
	case info.IsDir():
		header.Typeflag = tar.TypeDir
		header.Name += "/"
		header.Mode = 0o755
	case info.Mode().IsRegular():
		header.Typeflag = tar.TypeReg
		header.Size = info.Size()
		header.Mode = 0o644
	default:
		return 0, fmt.Errorf("archive %s: unsupported file type %s", full, info.Mode().Type())
	}

	if err := tw.WriteHeader(header); err != nil {
		return 0, fmt.Errorf("write header for %s: %w", rel, err)
	}
	if header.Typeflag != tar.TypeReg {
		return 0, nil
	}

	f, err := fsys.Open(full)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	written, err := io.Copy(tw, f)
	if err != nil {
		return 0, fmt.Errorf("write content for %s: %w", rel, err)
	}
	return written, nil
}

// List reads the entries of a tar.zst archive in stored order.
func List(fsys afero.Fs, path string) ([]Entry, error) {
	f, err := fsys.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	zr, err := zstd.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("open zstd stream: %w", err)
	}
	defer zr.Close()

	var entries []Entry
	tr := tar.NewReader(zr)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			return entries, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		entries = append(entries, Entry{
			Name:     header.Name,
			Size:     header.Size,
			Typeflag: header.Typeflag,
			Linkname: header.Linkname,
		})
	}
}

func tempStem(dest string) string {
	return "." + filepath.Base(dest) + ".tmp-"
}

func tempPrefix(dest string) string {
	return tempStem(dest) + "*"
}

func lstat(fsys afero.Fs, path string) (os.FileInfo, error) {
	if lstater, ok := fsys.(afero.Lstater); ok {
		info, _, err := lstater.LstatIfPossible(path)
		return info, err
	}
	return fsys.Stat(path)
}
