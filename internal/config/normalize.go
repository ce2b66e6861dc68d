package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeBuild()
	c.normalizeRewrite()
	c.normalizeRuntime()
	if err := c.normalizeLedger(); err != nil {
		return err
	}
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	if value, ok := os.LookupEnv("SONGPACK_SOURCE"); ok && strings.TrimSpace(value) != "" && c.Paths.SourceDir == defaultSourceDir {
		c.Paths.SourceDir = strings.TrimSpace(value)
	}
	if value, ok := os.LookupEnv("SONGPACK_OUTPUT"); ok && strings.TrimSpace(value) != "" && c.Paths.OutputDir == defaultOutputDir {
		c.Paths.OutputDir = strings.TrimSpace(value)
	}
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir()
	}

	var err error
	if c.Paths.SourceDir, err = expandPath(strings.TrimSpace(c.Paths.SourceDir)); err != nil {
		return fmt.Errorf("paths.source_dir: %w", err)
	}
	if c.Paths.OutputDir, err = expandPath(strings.TrimSpace(c.Paths.OutputDir)); err != nil {
		return fmt.Errorf("paths.output_dir: %w", err)
	}
	if c.Paths.StateDir, err = expandPath(strings.TrimSpace(c.Paths.StateDir)); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeBuild() {
	c.Build.Materialize = strings.ToLower(strings.TrimSpace(c.Build.Materialize))
	switch c.Build.Materialize {
	case "":
		c.Build.Materialize = defaultMaterialize
	case "symlink":
		c.Build.Materialize = MaterializeLink
	}

	c.Build.HashAlgorithm = strings.ToLower(strings.TrimSpace(c.Build.HashAlgorithm))
	switch c.Build.HashAlgorithm {
	case "":
		c.Build.HashAlgorithm = defaultHashAlgorithm
	case "sha-512":
		c.Build.HashAlgorithm = "sha512"
	case "blake3":
		c.Build.HashAlgorithm = "blake3-512"
	}

	c.Build.Archive = strings.TrimSpace(c.Build.Archive)
	c.Build.DescriptorExcludes = normalizeList(c.Build.DescriptorExcludes, false)
}

func (c *Config) normalizeRewrite() {
	c.Rewrite.TextFields = normalizeList(c.Rewrite.TextFields, false)
}

func (c *Config) normalizeRuntime() {
	c.Runtime.APIURL = strings.TrimSpace(c.Runtime.APIURL)
	c.Runtime.SongInfoURL = strings.TrimSpace(c.Runtime.SongInfoURL)
	if c.Runtime.SongInfoURL == "" {
		c.Runtime.SongInfoURL = defaultSongInfoURL
	}
	c.Runtime.ResURL = strings.TrimSpace(c.Runtime.ResURL)
	if c.Runtime.ResURL == "" {
		c.Runtime.ResURL = defaultResURL
	}
}

func (c *Config) normalizeLedger() error {
	if strings.TrimSpace(c.Ledger.Path) == "" {
		c.Ledger.Path = filepath.Join(c.Paths.StateDir, defaultLedgerName)
	}
	var err error
	if c.Ledger.Path, err = expandPath(strings.TrimSpace(c.Ledger.Path)); err != nil {
		return fmt.Errorf("ledger.path: %w", err)
	}
	return nil
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

func normalizeList(values []string, lower bool) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, value := range values {
		normalized := strings.TrimSpace(value)
		if lower {
			normalized = strings.ToLower(normalized)
		}
		if normalized == "" {
			continue
		}
		if _, exists := seen[normalized]; exists {
			continue
		}
		seen[normalized] = struct{}{}
		out = append(out, normalized)
	}
	return out
}
