package testsupport

import (
	"path/filepath"
	"testing"

	"songpack/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.SourceDir = filepath.Join(base, "songs")
	cfgVal.Paths.OutputDir = filepath.Join(base, "build")
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Ledger.Path = filepath.Join(base, "state", "builds.db")

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithLinkMode switches materialization to symlinks.
func WithLinkMode() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Build.Materialize = config.MaterializeLink
	}
}

// WithoutLedger disables build history.
func WithoutLedger() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Ledger.Enabled = false
	}
}

// WithTextFields replaces the descriptor keys kept as text.
func WithTextFields(fields ...string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Rewrite.TextFields = fields
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.SourceDir)
}
