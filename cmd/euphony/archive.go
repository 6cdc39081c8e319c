package main

import (
	"fmt"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/spf13/cobra"

	"github.com/euphony-chat/euphony/pkg/archive"
	"github.com/euphony-chat/euphony/pkg/room"
)

func archiveCmd(opts *options) *cobra.Command {
	var (
		depth    int
		dir      string
		s3Bucket string
		s3Prefix string
	)

	cmd := &cobra.Command{
		Use:   "archive <room>",
		Short: "Export a room's recent log",
		Long: `Fetch a room's recent message log and store it as a JSON snapshot,
either under a local directory or in an S3 bucket. S3 credentials and
region come from the standard AWS environment.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			logger := opts.logger()

			ctx, stop := signalContext()
			defer stop()

			var store archive.Store
			if s3Bucket != "" {
				cfg, err := config.LoadDefaultConfig(ctx)
				if err != nil {
					return fmt.Errorf("load AWS config: %w", err)
				}
				store = archive.NewS3Store(s3.NewFromConfig(cfg), s3Bucket, s3Prefix)
			} else {
				diskStore, err := archive.NewDiskStore(dir)
				if err != nil {
					return err
				}
				store = diskStore
			}

			r, err := room.New(opts.roomConfig(name, logger, nil))
			if err != nil {
				return err
			}
			defer r.Close()

			if err := r.Connect(ctx); err != nil {
				return fmt.Errorf("join &%s: %w", name, err)
			}

			key, count, err := archive.New(store, logger).Archive(ctx, r, depth)
			if err != nil {
				return err
			}
			fmt.Printf("archived %d messages from &%s as %s\n", count, name, key)
			return nil
		},
	}

	cmd.Flags().IntVar(&depth, "depth", archive.DefaultDepth, "number of messages to capture")
	cmd.Flags().StringVar(&dir, "dir", "archives", "local directory for snapshots")
	cmd.Flags().StringVar(&s3Bucket, "s3-bucket", "", "store snapshots in this S3 bucket instead of locally")
	cmd.Flags().StringVar(&s3Prefix, "s3-prefix", "", "key prefix inside the S3 bucket")

	return cmd
}
