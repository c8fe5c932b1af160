// Command lingoctl is the operator CLI: it seeds the catalog, bootstraps
// admins, checks subtitle files before they are uploaded and tidies the
// archive and Stream account.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/lingoreel/lingoreel/internal/database"
	"github.com/lingoreel/lingoreel/internal/storage"
	"github.com/lingoreel/lingoreel/internal/stream"
	"github.com/spf13/cobra"
)

type options struct {
	databaseURL string
	timeout     time.Duration
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "lingoctl",
		Short:         "Operate a LingoReel deployment",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.databaseURL, "database-url", os.Getenv("DATABASE_URL"), "Postgres connection string (or set DATABASE_URL)")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 2*time.Minute, "Operation timeout")

	root.AddCommand(newSeedCmd(opts))
	root.AddCommand(newPromoteCmd(opts))
	root.AddCommand(newSRTCmd(opts))
	root.AddCommand(newStreamCmd(opts))
	return root
}

// connect opens the pool and applies pending migrations.
func (o *options) connect(ctx context.Context) (*database.DB, error) {
	if o.databaseURL == "" {
		return nil, fmt.Errorf("--database-url or DATABASE_URL is required")
	}
	db, err := database.Connect(ctx, o.databaseURL)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(o.databaseURL); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

// objectStore opens the subtitle archive with the same S3_* variables the
// server reads.
func objectStore(ctx context.Context) (*storage.Storage, error) {
	endpoint := os.Getenv("S3_ENDPOINT")
	if endpoint == "" {
		return nil, errors.New("S3_ENDPOINT is required")
	}
	bucket := os.Getenv("S3_BUCKET")
	if bucket == "" {
		bucket = "lingoreel"
	}
	return storage.New(ctx, storage.Config{
		Endpoint:  endpoint,
		Bucket:    bucket,
		AccessKey: os.Getenv("S3_ACCESS_KEY"),
		SecretKey: os.Getenv("S3_SECRET_KEY"),
		Region:    os.Getenv("S3_REGION"),
	})
}

func streamClient() (*stream.Client, error) {
	c := stream.New(stream.Config{
		AccountID:    os.Getenv("CLOUDFLARE_ACCOUNT_ID"),
		Token:        os.Getenv("CLOUDFLARE_STREAM_TOKEN"),
		CustomerCode: os.Getenv("CLOUDFLARE_CUSTOMER_CODE"),
	})
	if !c.Configured() {
		return nil, errors.New("CLOUDFLARE_ACCOUNT_ID and CLOUDFLARE_STREAM_TOKEN are required")
	}
	return c, nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
