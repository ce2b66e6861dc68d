package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"songpack/internal/fileutil"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateBuild(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.SourceDir) == "" {
		return errors.New("paths.source_dir must be set")
	}
	if strings.TrimSpace(c.Paths.OutputDir) == "" {
		return errors.New("paths.output_dir must be set")
	}
	source := filepath.Clean(c.Paths.SourceDir)
	output := filepath.Clean(c.Paths.OutputDir)
	if source == output {
		return fmt.Errorf("paths.output_dir must differ from paths.source_dir (%s)", source)
	}
	if fileutil.Within(output, source) {
		return fmt.Errorf("paths.source_dir %s must not live inside paths.output_dir %s (the output is cleaned before each build)", source, output)
	}
	return nil
}

func (c *Config) validateBuild() error {
	switch c.Build.Materialize {
	case MaterializeCopy, MaterializeLink:
	default:
		return fmt.Errorf("build.materialize must be %q or %q, got %q", MaterializeCopy, MaterializeLink, c.Build.Materialize)
	}
	switch c.Build.HashAlgorithm {
	case "sha512", "blake3-512":
	default:
		return fmt.Errorf("build.hash_algorithm must be sha512 or blake3-512, got %q", c.Build.HashAlgorithm)
	}
	for _, pattern := range c.Build.DescriptorExcludes {
		if !doublestar.ValidatePattern(pattern) {
			return fmt.Errorf("build.descriptor_excludes: invalid glob %q", pattern)
		}
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
		return nil
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error; got %q", c.Logging.Level)
	}
}
