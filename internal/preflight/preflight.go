package preflight

import (
	"errors"
	"fmt"
	"path/filepath"

	"songpack/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// CheckBuild runs the checks a build needs: the source tree must be
// readable and the output directory must be writable or creatable.
func CheckBuild(sourceDir, outputDir string) []Result {
	return []Result{
		CheckDirectoryReadable("Source directory", sourceDir),
		CheckCreatable("Output directory", outputDir),
	}
}

// RunAll executes all applicable preflight checks for the given config.
// The ledger check only runs when the ledger is enabled.
func RunAll(cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}
	results := CheckBuild(cfg.Paths.SourceDir, cfg.Paths.OutputDir)
	if cfg.Ledger.Enabled {
		results = append(results, CheckCreatable("Ledger directory", filepath.Dir(cfg.Ledger.Path)))
	}
	return results
}

// Err joins the failed results into one error, or returns nil when every
// check passed.
func Err(results []Result) error {
	var errs []error
	for _, r := range results {
		if !r.Passed {
			errs = append(errs, fmt.Errorf("%s: %s", r.Name, r.Detail))
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("preflight failed: %w", errors.Join(errs...))
}
