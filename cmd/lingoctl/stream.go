package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/lingoreel/lingoreel/internal/database"
	"github.com/lingoreel/lingoreel/internal/video"
	"github.com/spf13/cobra"
)

func newStreamCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stream",
		Short: "Reconcile the Cloudflare Stream account with the catalog",
	}
	cmd.AddCommand(newStreamOrphansCmd(opts))
	return cmd
}

// assetStore is the part of the Stream client orphan cleanup needs.
type assetStore interface {
	video.AssetLister
	DeleteVideo(ctx context.Context, uid string) error
}

func newStreamOrphansCmd(opts *options) *cobra.Command {
	var remove bool
	cmd := &cobra.Command{
		Use:   "orphans",
		Short: "List Stream assets no video points at",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()
			assets, err := streamClient()
			if err != nil {
				return err
			}
			db, err := opts.connect(ctx)
			if err != nil {
				return err
			}
			defer db.Close()
			return reportOrphans(ctx, cmd.OutOrStdout(), db.Pool, assets, remove)
		},
	}
	cmd.Flags().BoolVar(&remove, "delete", false, "Delete the orphaned assets")
	return cmd
}

func reportOrphans(ctx context.Context, out io.Writer, db database.DBTX, assets assetStore, remove bool) error {
	orphans, err := video.OrphanAssets(ctx, db, assets)
	if err != nil {
		return err
	}
	failed := 0
	for _, o := range orphans {
		fmt.Fprintf(out, "%s  %s  %s\n", o.UID, o.Created.Format("2006-01-02"), o.Status.State)
		if !remove {
			continue
		}
		if err := assets.DeleteVideo(ctx, o.UID); err != nil {
			slog.Error("stream: orphan delete failed", "stream_uid", o.UID, "error", err)
			failed++
		}
	}

	switch {
	case !remove:
		fmt.Fprintf(out, "%d orphaned assets\n", len(orphans))
	case failed > 0:
		return fmt.Errorf("deleted %d of %d orphaned assets", len(orphans)-failed, len(orphans))
	default:
		fmt.Fprintf(out, "deleted %d orphaned assets\n", len(orphans))
	}
	return nil
}
