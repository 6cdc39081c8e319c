package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/euphony-chat/euphony/pkg/room"
)

func sayCmd(opts *options) *cobra.Command {
	var parent string

	cmd := &cobra.Command{
		Use:   "say <room> <message>...",
		Short: "Post a single message to a room",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			content := strings.Join(args[1:], " ")
			logger := opts.logger()

			ctx, stop := signalContext()
			defer stop()

			r, err := room.New(opts.roomConfig(name, logger, nil))
			if err != nil {
				return err
			}
			defer r.Close()

			if err := r.Connect(ctx); err != nil {
				return fmt.Errorf("join &%s: %w", name, err)
			}
			msg, err := r.Send(ctx, content, parent)
			if err != nil {
				return fmt.Errorf("send to &%s: %w", name, err)
			}
			fmt.Printf("posted %s to &%s\n", msg.ID, name)
			return nil
		},
	}

	cmd.Flags().StringVar(&parent, "parent", "", "post as a reply to this message id")

	return cmd
}
