package fileutil

import (
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// CopyFileVerified streams src into a temporary file beside dst, checks the
// copied size against the source and the digest of the copied bytes against
// expectedHex, then renames it into place. Returns the number of bytes
// written. Nothing is left at dst on mismatch.
func CopyFileVerified(fsys afero.Fs, src, dst string, newDigest func() hash.Hash, expectedHex string) (int64, error) {
	srcInfo, err := fsys.Stat(src)
	if err != nil {
		return 0, fmt.Errorf("stat source: %w", err)
	}
	srcSize := srcInfo.Size()

	in, err := fsys.Open(src)
	if err != nil {
		return 0, err
	}
	defer in.Close()

	tmp, err := afero.TempFile(fsys, filepath.Dir(dst), "."+filepath.Base(dst)+".tmp-*")
	if err != nil {
		return 0, fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		_ = tmp.Close()
		if !committed {
			_ = fsys.Remove(tmpName)
		}
	}()

	digest := newDigest()
	written, err := io.Copy(io.MultiWriter(tmp, digest), in)
	if err != nil {
		return 0, err
	}
	if err := tmp.Close(); err != nil {
		return 0, err
	}

	if written != srcSize {
		return 0, fmt.Errorf("copy size mismatch: source %d bytes, copied %d bytes", srcSize, written)
	}
	if got := hex.EncodeToString(digest.Sum(nil)); got != expectedHex {
		return 0, fmt.Errorf("copy hash mismatch: expected %s, copied %s", short(expectedHex), short(got))
	}

	if err := fsys.Chmod(tmpName, 0o644); err != nil {
		return 0, fmt.Errorf("chmod temp file: %w", err)
	}
	if err := fsys.Rename(tmpName, dst); err != nil {
		return 0, fmt.Errorf("rename into place: %w", err)
	}
	committed = true
	return written, nil
}

// WriteFileAtomic writes data to a temporary file in the target directory and
// renames it over path, so readers never observe a partial file.
func WriteFileAtomic(fsys afero.Fs, path string, data []byte, mode os.FileMode) error {
	tmp, err := afero.TempFile(fsys, filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = fsys.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = fsys.Remove(tmpName)
		return err
	}
	if err := fsys.Chmod(tmpName, mode); err != nil {
		_ = fsys.Remove(tmpName)
		return err
	}
	if err := fsys.Rename(tmpName, path); err != nil {
		_ = fsys.Remove(tmpName)
		return err
	}
	return nil
}

// Within reports whether path is parent itself or lies beneath it. Both are
// compared by path segment after cleaning, so a sibling such as "out/..songs"
// counts as inside "out" while "out2" does not.
func Within(parent, path string) bool {
	rel, err := filepath.Rel(filepath.Clean(parent), filepath.Clean(path))
	if err != nil || filepath.IsAbs(rel) {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func short(digest string) string {
	if len(digest) > 16 {
		return digest[:16] + "…"
	}
	return digest
}
