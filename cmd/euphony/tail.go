package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/euphony-chat/euphony/pkg/client"
	"github.com/euphony-chat/euphony/pkg/room"
)

func tailCmd(opts *options) *cobra.Command {
	var withPresence bool

	cmd := &cobra.Command{
		Use:   "tail <room>",
		Short: "Follow a room's messages",
		Long: `Join a room and print its messages as they arrive, starting with
the recent history from the server's snapshot. Runs until interrupted.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			logger := opts.logger()
			registry := opts.metrics(logger)

			ctx, stop := signalContext()
			defer stop()

			c := client.New(client.Config{
				Nick:            opts.nick,
				Human:           opts.human,
				BaseURL:         opts.baseURL,
				Logger:          logger,
				MetricsRegistry: registry,
				Handlers: client.Handlers{
					Connected: func(r *room.Room) {
						fmt.Printf("-- connected to &%s (%d present)\n", r.Name(), r.Users().Len())
					},
					Snapshot: func(r *room.Room, log []room.LiveMessage) {
						for _, msg := range log {
							printMessage(msg)
						}
					},
					Send: func(r *room.Room, msg room.LiveMessage) {
						printMessage(msg)
					},
					Edit: func(r *room.Room, msg room.LiveMessage) {
						if msg.IsDeleted() {
							fmt.Printf("-- message %s deleted\n", msg.ID)
							return
						}
						fmt.Print("(edited) ")
						printMessage(msg)
					},
					Join: func(r *room.Room, s room.Session) {
						if withPresence {
							fmt.Printf("-- %s joined\n", displayName(s))
						}
					},
					Part: func(r *room.Room, s room.Session) {
						if withPresence {
							fmt.Printf("-- %s left\n", displayName(s))
						}
					},
					Nick: func(r *room.Room, change room.NickChange) {
						if withPresence {
							fmt.Printf("-- %s is now %s\n", change.From, change.To)
						}
					},
					Disconnect: func(r *room.Room, reason string) {
						fmt.Printf("-- server disconnecting: %s\n", reason)
					},
				},
			})
			defer c.Close()

			if _, err := c.Join(ctx, name, client.RoomOptions{Password: opts.password}); err != nil {
				return fmt.Errorf("join &%s: %w", name, err)
			}

			<-ctx.Done()
			return nil
		},
	}

	cmd.Flags().BoolVar(&withPresence, "presence", false, "also print joins, parts and nick changes")

	return cmd
}

func printMessage(msg room.LiveMessage) {
	nick := msg.Sender.Name
	if nick == "" {
		nick = "(lurker)"
	}
	fmt.Printf("%s <%s> %s\n", msg.Time().Format("15:04:05"), nick, msg.Content)
}

func displayName(s room.Session) string {
	if s.Name == "" {
		return "a lurker"
	}
	return s.Name
}
