package main

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"songpack/internal/ledger"
	"songpack/internal/logging"
)

type historyEntry struct {
	ID           string `json:"id"`
	Status       string `json:"status"`
	StartedAt    string `json:"started_at"`
	DurationMS   int64  `json:"duration_ms"`
	SourceDir    string `json:"source_dir"`
	OutputDir    string `json:"output_dir"`
	Mode         string `json:"mode"`
	Algorithm    string `json:"algorithm"`
	Packages     int    `json:"packages"`
	Assets       int    `json:"assets"`
	Aliases      int    `json:"aliases"`
	BytesWritten int64  `json:"bytes_written"`
	Fingerprint  string `json:"fingerprint,omitempty"`
	Error        string `json:"error,omitempty"`
}

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded builds, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if !cfg.Ledger.Enabled {
				return errors.New("build history is disabled (ledger.enabled = false)")
			}
			if limit < 0 {
				return fmt.Errorf("--limit must not be negative, got %d", limit)
			}

			store, err := ledger.Open(cfg.Ledger.Path)
			if err != nil {
				return err
			}
			defer store.Close()

			builds, err := store.List(cmd.Context(), limit)
			if err != nil {
				return err
			}

			if jsonOut {
				entries := make([]historyEntry, 0, len(builds))
				for _, b := range builds {
					entries = append(entries, historyEntry{
						ID:           b.ID,
						Status:       string(b.Status),
						StartedAt:    b.StartedAt.Format(time.RFC3339),
						DurationMS:   b.Duration().Milliseconds(),
						SourceDir:    b.SourceDir,
						OutputDir:    b.OutputDir,
						Mode:         b.Mode,
						Algorithm:    b.Algorithm,
						Packages:     b.Packages,
						Assets:       b.Assets,
						Aliases:      b.Aliases,
						BytesWritten: b.BytesWritten,
						Fingerprint:  b.Fingerprint,
						Error:        b.ErrorMessage,
					})
				}
				return writeJSON(cmd, entries)
			}

			out := cmd.OutOrStdout()
			if len(builds) == 0 {
				fmt.Fprintln(out, "No builds recorded")
				return nil
			}
			rows := make([][]string, 0, len(builds))
			for _, b := range builds {
				rows = append(rows, []string{
					shortID(b.ID),
					b.StartedAt.Local().Format("2006-01-02 15:04:05"),
					string(b.Status),
					strconv.Itoa(b.Packages),
					strconv.Itoa(b.Assets),
					logging.FormatBytes(b.BytesWritten),
					b.Duration().Round(time.Millisecond).String(),
					valueOrDash(b.Fingerprint),
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"ID", "Started", "Status", "Packages", "Assets", "Written", "Duration", "Fingerprint"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight, alignLeft},
			))
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of builds to show (0 for all)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print history as JSON")
	return cmd
}
