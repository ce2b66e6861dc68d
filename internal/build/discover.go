package build

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"

	"songpack/internal/discovery"
)

// Package is one descriptor and the directory its relative paths resolve against.
type Package struct {
	// Name is the package directory relative to the source root.
	Name       string
	Descriptor string
	Root       string
}

// Discover lists the packages under sourceDir in descriptor path order.
func Discover(fsys afero.Fs, sourceDir string, excludes []string) ([]Package, error) {
	absSource, err := filepath.Abs(sourceDir)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", sourceDir, err)
	}
	descriptors, err := discovery.Find(fsys, absSource, discovery.DescriptorMatcher(excludes...))
	if err != nil {
		return nil, err
	}

	packages := make([]Package, 0, len(descriptors))
	for _, descriptor := range descriptors {
		root := filepath.Dir(descriptor)
		info, err := fsys.Stat(root)
		if err != nil {
			return nil, &MalformedPackageError{Descriptor: descriptor, Reason: "package root is not accessible", Err: err}
		}
		if !info.IsDir() {
			return nil, &MalformedPackageError{Descriptor: descriptor, Reason: "package root is not a directory"}
		}
		name, err := filepath.Rel(absSource, root)
		if err != nil {
			return nil, err
		}
		packages = append(packages, Package{Name: filepath.ToSlash(name), Descriptor: descriptor, Root: root})
	}
	return packages, nil
}
