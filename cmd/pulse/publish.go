package main

import (
	"strconv"

	"github.com/spf13/cobra"

	"github.com/vango-dev/pulse/pkg/protocol"
)

func publishCmd(g *globalFlags) *cobra.Command {
	var (
		asJSON bool
		count  int
	)

	cmd := &cobra.Command{
		Use:   "publish <channel> <name> [data]",
		Short: "Publish a message to a channel",
		Long: `Publish a message and wait for the service to acknowledge it.

With --count, the message is published that many times with the
sequence number appended to the name. The messages are sent together
so they may share a single envelope.

Examples:
  pulse publish chat greeting hello
  pulse publish chat status '{"online":true}' --json
  pulse publish chat tick --count=10`,
		Args: cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			var raw string
			if len(args) == 3 {
				raw = args[2]
			}
			data, err := parseData(raw, asJSON)
			if err != nil {
				return err
			}

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

			messages := make([]*protocol.Message, 0, count)
			for i := 0; i < count; i++ {
				name := args[1]
				if count > 1 {
					name += "-" + strconv.Itoa(i+1)
				}
				messages = append(messages, protocol.NewMessage(name, data))
			}
			if err := ch.PublishContext(ctx, messages...); err != nil {
				return err
			}
			success(cmd, "Published %d message(s) to %s", len(messages), cyan(args[0]))
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Parse data as JSON")
	cmd.Flags().IntVarP(&count, "count", "n", 1, "Number of messages to publish")

	return cmd
}
