package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/lingoreel/lingoreel/internal/seed"
	"github.com/spf13/cobra"
)

func newSeedCmd(opts *options) *cobra.Command {
	var file string
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Import videos, subtitles and word cards from a YAML manifest",
		Long: `Reads a manifest listing videos, their SRT files and word cards, and
inserts every video whose title is not already in the catalog.
Subtitle paths are resolved relative to the manifest.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			abs, err := filepath.Abs(file)
			if err != nil {
				return err
			}
			m, err := seed.Load(os.DirFS(filepath.Dir(abs)), filepath.Base(abs))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if dryRun {
				for _, v := range m.Videos {
					fmt.Fprintf(out, "%-40s %-12s cues=%d words=%d\n", v.Title, v.Difficulty, len(v.Cues()), len(v.Words))
				}
				fmt.Fprintf(out, "manifest OK: %d videos\n", len(m.Videos))
				return nil
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()
			db, err := opts.connect(ctx)
			if err != nil {
				return err
			}
			defer db.Close()

			sum, err := seed.Import(ctx, db.Pool, m)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "imported %d videos (%d cues, %d words), skipped %d existing\n",
				sum.Videos, sum.Subtitles, sum.Words, sum.Skipped)
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "seed.yaml", "Manifest to import")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Validate the manifest without touching the database")
	return cmd
}
