package main

import (
	"fmt"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"songpack/internal/cleanup"
	"songpack/internal/config"
	"songpack/internal/logging"
)

func newCleanCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "clean [DIR]",
		Short: "Remove everything inside an output directory",
		Long: "Remove every entry inside DIR (default paths.output_dir) while keeping DIR itself.\n" +
			"Symlinks are unlinked, never followed.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}

			dir := cfg.Paths.OutputDir
			if len(args) == 1 {
				if dir, err = config.ExpandPath(args[0]); err != nil {
					return err
				}
			}

			result, err := cleanup.Clean(afero.NewOsFs(), dir, logger)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			fmt.Fprintln(out, renderStatusLine("Cleaned", statusOK,
				fmt.Sprintf("%d entries (%s) from %s", len(result.Removed), logging.FormatBytes(result.Bytes), dir), colorize))
			for _, suppressed := range result.Suppressed {
				fmt.Fprintln(out, renderStatusLine("Skipped", statusWarn,
					fmt.Sprintf("%s: %v", suppressed.Path, suppressed.Error), colorize))
			}
			return nil
		},
	}
}
