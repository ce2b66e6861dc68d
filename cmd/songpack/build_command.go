package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"songpack/internal/build"
	"songpack/internal/config"
	"songpack/internal/contenthash"
	"songpack/internal/ledger"
	"songpack/internal/logging"
	"songpack/internal/materialize"
)

type buildFlags struct {
	source  string
	output  string
	link    bool
	archive string
	hash    string
	json    bool
}

// buildReport is the --json rendering of a build.
type buildReport struct {
	ID           string   `json:"id"`
	Status       string   `json:"status"`
	Error        string   `json:"error,omitempty"`
	SourceDir    string   `json:"source_dir"`
	OutputDir    string   `json:"output_dir"`
	Mode         string   `json:"mode"`
	Algorithm    string   `json:"algorithm"`
	Packages     []string `json:"packages"`
	Assets       int      `json:"assets"`
	Aliases      int      `json:"aliases"`
	Written      int      `json:"written"`
	Linked       int      `json:"linked"`
	Skipped      int      `json:"skipped"`
	BytesWritten int64    `json:"bytes_written"`
	Failures     []string `json:"failures,omitempty"`
	Fingerprint  string   `json:"fingerprint,omitempty"`
	Archive      string   `json:"archive,omitempty"`
	DurationMS   int64    `json:"duration_ms"`
}

func newBuildCommand(ctx *commandContext) *cobra.Command {
	flags := &buildFlags{}
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Rewrite package descriptors and materialize referenced files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBuild(cmd, ctx, flags)
		},
	}
	cmd.Flags().StringVar(&flags.source, "source", "", "Source directory (defaults to paths.source_dir)")
	cmd.Flags().StringVar(&flags.output, "output", "", "Output directory (defaults to paths.output_dir)")
	cmd.Flags().BoolVar(&flags.link, "link", false, "Symlink referenced files instead of copying them")
	cmd.Flags().StringVar(&flags.archive, "archive", "", "Also write a tar.zst bundle of the output to this path")
	cmd.Flags().StringVar(&flags.hash, "hash", "", "Digest algorithm: sha512 or blake3-512")
	cmd.Flags().BoolVar(&flags.json, "json", false, "Print the build report as JSON")
	return cmd
}

func runBuild(cmd *cobra.Command, ctx *commandContext, flags *buildFlags) error {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}
	logger, err := ctx.ensureLogger()
	if err != nil {
		return err
	}

	source, err := pathFlag(flags.source, cfg.Paths.SourceDir)
	if err != nil {
		return err
	}
	output, err := pathFlag(flags.output, cfg.Paths.OutputDir)
	if err != nil {
		return err
	}

	opts := build.ConfigOptions(cfg)
	opts = append(opts, build.WithLogger(logger))
	if flags.link {
		opts = append(opts, build.WithMode(materialize.Link))
	}
	if strings.TrimSpace(flags.hash) != "" {
		algorithm, err := contenthash.ParseAlgorithm(flags.hash)
		if err != nil {
			return err
		}
		opts = append(opts, build.WithAlgorithm(algorithm))
	}
	if strings.TrimSpace(flags.archive) != "" {
		archivePath, err := config.ExpandPath(strings.TrimSpace(flags.archive))
		if err != nil {
			return err
		}
		opts = append(opts, build.WithArchive(archivePath))
	}

	if cfg.Ledger.Enabled {
		store, err := ledger.Open(cfg.Ledger.Path)
		if err != nil {
			logging.WarnWithContext(logger, "build history unavailable", "ledger_open_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "this build will not appear in history"),
			)
		} else {
			defer store.Close()
			opts = append(opts, build.WithLedger(store))
		}
	}

	result, runErr := build.New(source, output, opts...).Run(cmd.Context())
	if result == nil {
		return runErr
	}

	if flags.json {
		if err := writeJSON(cmd, newBuildReport(result, runErr)); err != nil {
			return err
		}
		return runErr
	}

	fmt.Fprintln(cmd.OutOrStdout(), renderBuildSummary(result, runErr, shouldColorize(cmd.OutOrStdout())))
	return runErr
}

func newBuildReport(result *build.Result, runErr error) buildReport {
	report := buildReport{
		ID:           result.ID,
		Status:       string(ledger.StatusSucceeded),
		SourceDir:    result.SourceDir,
		OutputDir:    result.OutputDir,
		Mode:         string(result.Mode),
		Algorithm:    string(result.Algorithm),
		Packages:     make([]string, 0, len(result.Packages)),
		Assets:       len(result.References),
		Aliases:      result.Aliases,
		Written:      result.Materialize.Written,
		Linked:       result.Materialize.Linked,
		Skipped:      result.Materialize.Skipped,
		BytesWritten: result.Materialize.BytesWritten,
		Fingerprint:  result.Fingerprint,
		DurationMS:   result.Duration().Milliseconds(),
	}
	if runErr != nil {
		report.Status = string(ledger.StatusFailed)
		report.Error = runErr.Error()
	}
	for _, pkg := range result.Packages {
		report.Packages = append(report.Packages, pkg.Name)
	}
	for _, failure := range result.Materialize.Failures {
		report.Failures = append(report.Failures, failure.Error())
	}
	if result.Archive != nil {
		report.Archive = result.Archive.Path
	}
	return report
}

func renderBuildSummary(result *build.Result, runErr error, colorize bool) string {
	var lines []string
	lines = append(lines, renderSectionHeader("Build "+shortID(result.ID), colorize)...)

	if runErr != nil {
		headline, _, _ := strings.Cut(runErr.Error(), "\n")
		lines = append(lines, renderStatusLine("Status", statusError, headline, colorize))
	} else {
		lines = append(lines, renderStatusLine("Status", statusOK, "succeeded", colorize))
	}
	lines = append(lines,
		renderStatusLine("Source", statusInfo, result.SourceDir, colorize),
		renderStatusLine("Output", statusInfo, result.OutputDir, colorize),
	)
	if n := len(result.Cleanup.Removed); n > 0 {
		lines = append(lines, renderStatusLine("Cleaned", statusInfo,
			fmt.Sprintf("%d entries (%s)", n, logging.FormatBytes(result.Cleanup.Bytes)), colorize))
	}
	if n := len(result.Cleanup.Suppressed); n > 0 {
		lines = append(lines, renderStatusLine("Cleanup", statusWarn, fmt.Sprintf("%d entries could not be removed", n), colorize))
	}
	if result.Archive != nil {
		lines = append(lines, renderStatusLine("Archive", statusInfo,
			fmt.Sprintf("%s (%s)", result.Archive.Path, logging.FormatBytes(result.Archive.Bytes)), colorize))
	}
	if n := len(result.Materialize.Failures); n > 0 {
		lines = append(lines, renderStatusLine("Materialize", statusWarn, fmt.Sprintf("%d assets failed", n), colorize))
		for _, failure := range result.Materialize.Failures {
			lines = append(lines, statusIndent+statusIndent+failure.Error())
		}
	}

	report := result.Materialize
	rows := [][]string{
		{"Packages", strconv.Itoa(len(result.Packages))},
		{"Assets", strconv.Itoa(len(result.References))},
		{"Aliases", strconv.Itoa(result.Aliases)},
		{"Written", fmt.Sprintf("%d (%s)", report.Written, logging.FormatBytes(report.BytesWritten))},
		{"Linked", strconv.Itoa(report.Linked)},
		{"Skipped", fmt.Sprintf("%d (%s)", report.Skipped, logging.FormatBytes(report.BytesSkipped))},
		{"Mode", string(result.Mode)},
		{"Algorithm", string(result.Algorithm)},
		{"Fingerprint", valueOrDash(result.Fingerprint)},
		{"Duration", result.Duration().Round(time.Millisecond).String()},
	}
	lines = append(lines, "", renderTable([]string{"Metric", "Value"}, rows, []columnAlignment{alignLeft, alignRight}))
	return strings.Join(lines, "\n")
}

// pathFlag expands a path flag the way config paths are expanded, falling
// back to the configured value when the flag is unset.
func pathFlag(value, fallback string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return fallback, nil
	}
	return config.ExpandPath(value)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func valueOrDash(value string) string {
	if strings.TrimSpace(value) == "" {
		return "-"
	}
	return value
}
