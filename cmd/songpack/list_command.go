package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"songpack/internal/build"
)

type packageView struct {
	Name       string `json:"name"`
	Descriptor string `json:"descriptor"`
}

func newListCommand(ctx *commandContext) *cobra.Command {
	var source string
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "Show the packages a build would include",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			root, err := pathFlag(source, cfg.Paths.SourceDir)
			if err != nil {
				return fmt.Errorf("resolve source %s: %w", source, err)
			}

			packages, err := build.Discover(afero.NewOsFs(), root, cfg.Build.DescriptorExcludes)
			if err != nil {
				return err
			}

			views := make([]packageView, 0, len(packages))
			for _, pkg := range packages {
				descriptor := pkg.Descriptor
				if rel, err := filepath.Rel(root, descriptor); err == nil {
					descriptor = filepath.ToSlash(rel)
				}
				views = append(views, packageView{Name: pkg.Name, Descriptor: descriptor})
			}

			if jsonOut {
				return writeJSON(cmd, views)
			}
			out := cmd.OutOrStdout()
			if len(views) == 0 {
				fmt.Fprintf(out, "No packages found under %s\n", root)
				return nil
			}
			rows := make([][]string, 0, len(views))
			for i, view := range views {
				rows = append(rows, []string{fmt.Sprintf("%d", i+1), view.Name, view.Descriptor})
			}
			fmt.Fprintln(out, renderTable([]string{"#", "Package", "Descriptor"}, rows, []columnAlignment{alignRight, alignLeft, alignLeft}))
			return nil
		},
	}
	cmd.Flags().StringVar(&source, "source", "", "Source directory (defaults to paths.source_dir)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print the package list as JSON")
	return cmd
}
