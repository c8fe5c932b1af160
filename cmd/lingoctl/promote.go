package main

import (
	"context"
	"fmt"

	"github.com/lingoreel/lingoreel/internal/admin"
	"github.com/spf13/cobra"
)

func newPromoteCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "promote <email>",
		Short: "Approve a registered user and grant the admin role",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()
			db, err := opts.connect(ctx)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := admin.Promote(ctx, db.Pool, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s is now an admin\n", args[0])
			return nil
		},
	}
}
