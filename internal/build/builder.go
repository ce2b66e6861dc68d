package build

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"github.com/spf13/afero"

	"songpack/internal/archive"
	"songpack/internal/cleanup"
	"songpack/internal/contenthash"
	"songpack/internal/document"
	"songpack/internal/fileutil"
	"songpack/internal/ledger"
	"songpack/internal/logging"
	"songpack/internal/materialize"
	"songpack/internal/preflight"
	"songpack/internal/rewrite"
)

// Builder runs one source tree into one output tree.
type Builder struct {
	fs          afero.Fs
	sourceDir   string
	outputDir   string
	mode        materialize.Mode
	algorithm   contenthash.Algorithm
	textFields  []string
	excludes    []string
	cleanOutput bool
	runtime     RuntimeInfo
	archivePath string
	ledger      *ledger.Store
	logger      *slog.Logger
	now         func() time.Time
}

// Result describes a finished (or failed) build.
type Result struct {
	ID           string
	StartedAt    time.Time
	FinishedAt   time.Time
	SourceDir    string
	OutputDir    string
	Mode         materialize.Mode
	Algorithm    contenthash.Algorithm
	Packages     []Package
	References   []rewrite.Reference
	Aliases      int
	Cleanup      cleanup.Result
	Materialize  materialize.Report
	ManifestPath string
	InfoPath     string
	Fingerprint  string
	Archive      *archive.Summary
}

// Duration reports the wall time of the build.
func (r *Result) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// New constructs a Builder for sourceDir and outputDir.
func New(sourceDir, outputDir string, opts ...Option) *Builder {
	b := &Builder{
		fs:          afero.NewOsFs(),
		sourceDir:   sourceDir,
		outputDir:   outputDir,
		mode:        materialize.Copy,
		algorithm:   contenthash.Default,
		textFields:  rewrite.DefaultTextFields,
		cleanOutput: true,
		runtime:     DefaultRuntimeInfo(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = logging.NewComponentLogger(b.logger, "build")
	return b
}

// Run executes the pipeline. The returned Result is non-nil whenever the
// build got far enough to be assigned an id, including on failure.
func (b *Builder) Run(ctx context.Context) (*Result, error) {
	sourceDir, err := filepath.Abs(b.sourceDir)
	if err != nil {
		return nil, fmt.Errorf("resolve source %s: %w", b.sourceDir, err)
	}
	outputDir, err := filepath.Abs(b.outputDir)
	if err != nil {
		return nil, fmt.Errorf("resolve output %s: %w", b.outputDir, err)
	}

	if fileutil.Within(outputDir, sourceDir) {
		return nil, fmt.Errorf("source %s must not be inside output %s", sourceDir, outputDir)
	}

	_, osBacked := b.fs.(*afero.OsFs)
	if osBacked {
		if err := preflight.Err(preflight.CheckBuild(sourceDir, outputDir)); err != nil {
			return nil, err
		}
	}

	result := &Result{
		ID:        uuid.NewString(),
		StartedAt: b.now(),
		SourceDir: sourceDir,
		OutputDir: outputDir,
		Mode:      b.mode,
		Algorithm: b.algorithm,
	}
	ctx = logging.WithBuildID(ctx, result.ID)
	logger := logging.WithContext(ctx, b.logger)

	if osBacked {
		if err := b.fs.MkdirAll(filepath.Dir(outputDir), 0o755); err != nil {
			return nil, fmt.Errorf("create output parent: %w", err)
		}
		lock := flock.New(outputDir + ".lock")
		ok, err := lock.TryLock()
		if err != nil {
			return nil, fmt.Errorf("acquire build lock: %w", err)
		}
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrBuildInProgress, outputDir)
		}
		defer func() {
			if err := lock.Unlock(); err != nil {
				logger.Warn("failed to release build lock", logging.Error(err))
			}
		}()
	}

	logger.Info("build started",
		logging.String("source", sourceDir),
		logging.String("output", outputDir),
		logging.String("mode", string(b.mode)),
		logging.String("algorithm", string(b.algorithm)),
	)

	runErr := b.run(ctx, logger, result)
	result.FinishedAt = b.now()
	b.record(ctx, logger, result, runErr)

	if runErr != nil {
		logging.ErrorWithContext(logger, "build failed", "build_failed",
			logging.Error(runErr),
			logging.Duration("duration", result.Duration()),
		)
		return result, runErr
	}
	logger.Info("build complete",
		logging.Int("packages", len(result.Packages)),
		logging.Int("assets", len(result.References)),
		logging.Int("aliases", result.Aliases),
		logging.String("written", logging.FormatBytes(result.Materialize.BytesWritten)),
		logging.Duration("duration", result.Duration()),
	)
	return result, nil
}

func (b *Builder) run(ctx context.Context, logger *slog.Logger, result *Result) error {
	fsys := b.fs
	if err := fsys.MkdirAll(result.OutputDir, 0o755); err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	if b.cleanOutput {
		cleaned, err := cleanup.Clean(fsys, result.OutputDir, logger)
		result.Cleanup = cleaned
		if err != nil {
			return fmt.Errorf("clean output: %w", err)
		}
	}

	packages, err := Discover(fsys, result.SourceDir, b.excludes)
	if err != nil {
		return err
	}
	result.Packages = packages
	if len(packages) == 0 {
		logging.WarnWithContext(logger, "no package descriptors found", "no_packages",
			logging.String("source", result.SourceDir),
			logging.String(logging.FieldErrorHint, "descriptor names must contain \"info\" and end in .yml or .yaml"),
			logging.String(logging.FieldImpact, "song.json will be an empty list"),
		)
	}

	hasher, err := contenthash.New(b.algorithm, contenthash.WithFs(fsys))
	if err != nil {
		return err
	}
	memo := contenthash.NewMemo(hasher)
	refs := rewrite.NewReferences()
	rewriter := rewrite.New(memo, refs, rewrite.WithTextFields(b.textFields...), rewrite.WithLogger(logger))

	manifest := make(Manifest, 0, len(packages))
	for _, pkg := range packages {
		if err := ctx.Err(); err != nil {
			return err
		}
		node, err := b.rewritePackage(rewriter, pkg)
		if err != nil {
			return err
		}
		logging.WithContext(logging.WithPackage(ctx, pkg.Name), logger).Debug("package rewritten",
			logging.String("descriptor", pkg.Descriptor),
		)
		manifest = append(manifest, node)
	}
	result.References = refs.List()
	result.Aliases = refs.Aliases()
	logger.Debug("hash cache", logging.Int("hits", memo.Hits()), logging.Int("misses", memo.Misses()))

	data, err := manifest.Encode()
	if err != nil {
		return err
	}
	result.ManifestPath = filepath.Join(result.OutputDir, ManifestName)
	if err := fileutil.WriteFileAtomic(fsys, result.ManifestPath, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", ManifestName, err)
	}
	result.Fingerprint = ledger.Fingerprint(data)

	materializer := materialize.New(hasher,
		materialize.WithFs(fsys),
		materialize.WithMode(b.mode),
		materialize.WithLogger(logger),
	)
	report, materializeErr := materializer.Materialize(ctx, result.References, filepath.Join(result.OutputDir, ResDir))
	result.Materialize = report
	var partial *materialize.Error
	if materializeErr != nil && !errors.As(materializeErr, &partial) {
		return materializeErr
	}

	info, err := b.runtime.Encode()
	if err != nil {
		return err
	}
	result.InfoPath = filepath.Join(result.OutputDir, InfoName)
	if err := fileutil.WriteFileAtomic(fsys, result.InfoPath, info, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", InfoName, err)
	}

	if materializeErr != nil {
		return materializeErr
	}

	if b.archivePath != "" {
		summary, err := archive.Write(fsys, result.OutputDir, b.archivePath,
			archive.WithPrefix(filepath.Base(result.OutputDir)))
		if err != nil {
			return fmt.Errorf("write archive: %w", err)
		}
		result.Archive = &summary
		logger.Info("archive written",
			logging.String("path", summary.Path),
			logging.Int("entries", summary.Entries),
		)
	}
	return nil
}

func (b *Builder) rewritePackage(rewriter *rewrite.Rewriter, pkg Package) (*document.Node, error) {
	data, err := afero.ReadFile(b.fs, pkg.Descriptor)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", pkg.Descriptor, err)
	}
	node, err := document.Decode(data)
	if err != nil {
		return nil, &MalformedPackageError{Descriptor: pkg.Descriptor, Reason: "descriptor does not decode", Err: err}
	}
	if node.Kind != document.MappingNode {
		return nil, &MalformedPackageError{
			Descriptor: pkg.Descriptor,
			Reason:     fmt.Sprintf("descriptor root must be a mapping, got %s", describe(node)),
		}
	}
	rewritten, err := rewriter.Rewrite(node, pkg.Root)
	if err != nil {
		return nil, fmt.Errorf("package %s: %w", pkg.Name, err)
	}
	return rewritten, nil
}

func describe(node *document.Node) string {
	if node.Kind == document.ScalarNode {
		return node.Scalar.String()
	}
	return node.Kind.String()
}

func (b *Builder) record(ctx context.Context, logger *slog.Logger, result *Result, runErr error) {
	if b.ledger == nil {
		return
	}
	entry := ledger.Build{
		ID:           result.ID,
		StartedAt:    result.StartedAt,
		FinishedAt:   result.FinishedAt,
		SourceDir:    result.SourceDir,
		OutputDir:    result.OutputDir,
		Mode:         string(result.Mode),
		Algorithm:    string(result.Algorithm),
		Packages:     len(result.Packages),
		Assets:       len(result.References),
		Aliases:      result.Aliases,
		BytesWritten: result.Materialize.BytesWritten,
		Fingerprint:  result.Fingerprint,
		Status:       ledger.StatusSucceeded,
	}
	if runErr != nil {
		entry.Status = ledger.StatusFailed
		entry.ErrorMessage = runErr.Error()
	}
	assets := make([]ledger.Asset, 0, len(result.References))
	for _, ref := range result.References {
		asset := ledger.Asset{Hash: ref.Hash, SourcePath: ref.AbsolutePath}
		if info, err := b.fs.Stat(ref.AbsolutePath); err == nil {
			asset.Size = info.Size()
		}
		assets = append(assets, asset)
	}
	// Record even when ctx was cancelled.
	if err := b.ledger.Record(context.WithoutCancel(ctx), entry, assets); err != nil {
		logging.WarnWithContext(logger, "failed to record build", "ledger_write_failed",
			logging.Error(err),
			logging.String("ledger", b.ledger.Path()),
			logging.String(logging.FieldErrorHint, "check ledger.path permissions or disable the ledger"),
			logging.String(logging.FieldImpact, "build missing from songpack history"),
		)
	}
}
