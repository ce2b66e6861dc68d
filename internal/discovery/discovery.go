// Package discovery locates package descriptors under a source tree.
package discovery

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/afero"
	"golang.org/x/text/cases"
)

// Matcher decides whether a file is a descriptor. rel is the slash-separated
// path relative to the walk root.
type Matcher func(rel string, info os.FileInfo) bool

// DescriptorMatcher matches regular files whose name contains "info" and ends
// in .yml or .yaml, compared case-insensitively. Files whose relative path
// matches any exclude glob are skipped.
func DescriptorMatcher(excludes ...string) Matcher {
	return func(rel string, info os.FileInfo) bool {
		if !info.Mode().IsRegular() {
			return false
		}
		for _, pattern := range excludes {
			if ok, _ := doublestar.Match(pattern, rel); ok {
				return false
			}
		}
		return IsDescriptorName(info.Name())
	}
}

// IsDescriptorName applies the descriptor naming rule to a base name.
func IsDescriptorName(name string) bool {
	folded := cases.Fold().String(name)
	ext := filepath.Ext(folded)
	if ext != ".yml" && ext != ".yaml" {
		return false
	}
	return strings.Contains(folded, "info")
}

// Find walks root recursively and returns the absolute paths of files
// accepted by match, sorted lexicographically.
func Find(fsys afero.Fs, root string, match Matcher) ([]string, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", root, err)
	}
	info, err := fsys.Stat(absRoot)
	if err != nil {
		return nil, fmt.Errorf("discover %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("discover %s: not a directory", root)
	}

	var found []string
	err = afero.Walk(fsys, absRoot, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(absRoot, path)
		if relErr != nil {
			return relErr
		}
		if match(filepath.ToSlash(rel), info) {
			found = append(found, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", root, err)
	}
	sort.Strings(found)
	return found, nil
}
