package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/vango-dev/pulse/pkg/protocol"
	"github.com/vango-dev/pulse/pkg/realtime"
)

func subscribeCmd(g *globalFlags) *cobra.Command {
	var withPresence bool

	cmd := &cobra.Command{
		Use:   "subscribe <channel> [name...]",
		Short: "Print messages published to a channel",
		Long: `Attach to a channel and print each message until interrupted.

Names restrict output to messages with those event names.

Examples:
  pulse subscribe chat
  pulse subscribe chat greeting status
  pulse subscribe chat --presence`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := interruptContext(cmd.Context())
			defer cancel()

			s, err := openSession(ctx, g)
			if err != nil {
				return err
			}
			defer s.Close()

			ch, err := s.channel(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			ch.OnStateChange(func(change realtime.ChannelStateChange) {
				if change.Reason != nil {
					warn(cmd, "channel %s: %s (%s)", ch.Name(), change.Current, change.Reason.Message)
				}
			})
			s.client.Connection.On(func(change realtime.ConnectionStateChange) {
				if change.Current != realtime.ConnectionConnected && change.Reason != nil {
					warn(cmd, "connection %s: %s", change.Current, change.Reason.Message)
				}
			})

			if _, err := ch.Subscribe(func(m *protocol.Message) {
				fmt.Fprintf(out, "%s %s %s %s\n", faint(stamp(m.Timestamp)), cyan(m.Name), formatData(m.Data), faint(m.ClientID))
			}, args[1:]...); err != nil {
				return err
			}
			if withPresence {
				if _, err := ch.Presence.Subscribe(func(m *protocol.PresenceMessage) {
					fmt.Fprintf(out, "%s %s %s %s\n", faint(stamp(m.Timestamp)), yellow(m.Action), m.ClientID, formatData(m.Data))
				}); err != nil {
					return err
				}
			}

			if err := ch.AttachContext(ctx); err != nil {
				return err
			}
			success(cmd, "Subscribed to %s", cyan(ch.Name()))

			<-ctx.Done()
			return nil
		},
	}

	cmd.Flags().BoolVar(&withPresence, "presence", false, "Also print presence events")

	return cmd
}

func stamp(ms int64) string {
	if ms == 0 {
		return time.Now().Format("15:04:05.000")
	}
	return time.UnixMilli(ms).Format("15:04:05.000")
}
