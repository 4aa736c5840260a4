package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func presenceCmd(g *globalFlags) *cobra.Command {
	var (
		enter  string
		asJSON bool
		stay   bool
	)

	cmd := &cobra.Command{
		Use:   "presence <channel>",
		Short: "List or join the members present on a channel",
		Long: `Attach to a channel and print its member set.

With --enter, the client first enters the channel with the given data.
It requires a client id from --client-id or the config file. With
--stay, the command keeps the membership until interrupted.

Examples:
  pulse presence chat
  pulse presence chat --client-id alice --enter online --stay`,
		Args: cobra.ExactArgs(1),
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
			if err := ch.AttachContext(ctx); err != nil {
				return err
			}

			if cmd.Flags().Changed("enter") {
				data, err := parseData(enter, asJSON)
				if err != nil {
					return err
				}
				if err := ch.Presence.EnterContext(ctx, data); err != nil {
					return err
				}
				success(cmd, "Entered %s as %s", cyan(ch.Name()), s.client.ClientID())
			}

			out := cmd.OutOrStdout()
			members := ch.Presence.Get()
			fmt.Fprintf(out, "%d member(s) on %s\n", len(members), cyan(ch.Name()))
			for _, m := range members {
				fmt.Fprintf(out, "  %s %s %s\n", m.ClientID, faint(m.ConnectionID), formatData(m.Data))
			}

			if stay {
				<-ctx.Done()
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&enter, "enter", "", "Enter the channel with this data")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Parse --enter data as JSON")
	cmd.Flags().BoolVar(&stay, "stay", false, "Stay present until interrupted")

	return cmd
}
