package build

import (
	"log/slog"
	"time"

	"github.com/spf13/afero"

	"songpack/internal/config"
	"songpack/internal/contenthash"
	"songpack/internal/ledger"
	"songpack/internal/materialize"
)

// Option configures a Builder.
type Option func(*Builder)

// WithFs sets the filesystem for sources and outputs. Preflight checks and
// the output lock only apply to the OS filesystem.
func WithFs(fsys afero.Fs) Option {
	return func(b *Builder) { b.fs = fsys }
}

// WithMode selects copy or link materialization.
func WithMode(mode materialize.Mode) Option {
	return func(b *Builder) { b.mode = mode }
}

// WithAlgorithm selects the content address digest.
func WithAlgorithm(algorithm contenthash.Algorithm) Option {
	return func(b *Builder) { b.algorithm = algorithm }
}

// WithTextFields sets the descriptor keys whose values are kept as text.
func WithTextFields(fields ...string) Option {
	return func(b *Builder) { b.textFields = fields }
}

// WithExcludes sets doublestar globs, relative to the source root, that
// hide descriptors from discovery.
func WithExcludes(patterns ...string) Option {
	return func(b *Builder) { b.excludes = patterns }
}

// WithCleanOutput controls whether the output directory is emptied first.
func WithCleanOutput(clean bool) Option {
	return func(b *Builder) { b.cleanOutput = clean }
}

// WithRuntimeInfo sets the contents of info.json.
func WithRuntimeInfo(info RuntimeInfo) Option {
	return func(b *Builder) { b.runtime = info }
}

// WithArchive requests a tar.zst bundle of the output at path.
func WithArchive(path string) Option {
	return func(b *Builder) { b.archivePath = path }
}

// WithLedger records every build in store.
func WithLedger(store *ledger.Store) Option {
	return func(b *Builder) { b.ledger = store }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Builder) { b.logger = logger }
}

// WithClock overrides time.Now for timestamps.
func WithClock(now func() time.Time) Option {
	return func(b *Builder) { b.now = now }
}

// ConfigOptions translates the [build], [rewrite] and [runtime] sections
// of cfg into builder options.
func ConfigOptions(cfg *config.Config) []Option {
	if cfg == nil {
		return nil
	}
	return []Option{
		WithMode(materialize.Mode(cfg.Build.Materialize)),
		WithAlgorithm(contenthash.Algorithm(cfg.Build.HashAlgorithm)),
		WithTextFields(cfg.Rewrite.TextFields...),
		WithExcludes(cfg.Build.DescriptorExcludes...),
		WithCleanOutput(cfg.Build.CleanOutput),
		WithArchive(cfg.Build.Archive),
		WithRuntimeInfo(RuntimeInfo{
			APIEnable:   cfg.Runtime.APIEnable,
			APIURL:      cfg.Runtime.APIURL,
			SongInfoURL: cfg.Runtime.SongInfoURL,
			ResURL:      cfg.Runtime.ResURL,
		}),
	}
}
