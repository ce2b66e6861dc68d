package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"songpack/internal/contenthash"
)

func newHashCommand(ctx *commandContext) *cobra.Command {
	var algorithmFlag string

	cmd := &cobra.Command{
		Use:   "hash FILE...",
		Short: "Print the content address of files, or of stdin with -",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			name := cfg.Build.HashAlgorithm
			if strings.TrimSpace(algorithmFlag) != "" {
				name = algorithmFlag
			}
			algorithm, err := contenthash.ParseAlgorithm(name)
			if err != nil {
				return err
			}
			hasher, err := contenthash.New(algorithm)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, arg := range args {
				var digest string
				if arg == "-" {
					digest, err = hasher.HashReader(cmd.InOrStdin())
					if err != nil {
						return fmt.Errorf("hash stdin: %w", err)
					}
				} else if digest, err = hasher.HashFile(arg); err != nil {
					return err
				}
				fmt.Fprintf(out, "%s  %s\n", digest, arg)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&algorithmFlag, "hash", "", "Digest algorithm: sha512 or blake3-512 (defaults to build.hash_algorithm)")
	return cmd
}
