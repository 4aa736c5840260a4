package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/vango-dev/pulse/pkg/realtime"
)

func checkCmd(g *globalFlags) *cobra.Command {
	var pings int

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check connectivity to the realtime service",
		Long: `Check whether the internet is reachable, connect to the realtime
host and measure heartbeat round trips.

Examples:
  pulse check
  pulse check --pings=5 --host=localhost --port=8080 --insecure`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := interruptContext(cmd.Context())
			defer cancel()

			cfg, err := loadConfig(g)
			if err != nil {
				return err
			}
			opts, err := cfg.Options()
			if err != nil {
				return err
			}

			checker := realtime.NewHTTPConnectivityChecker(opts.ConnectivityCheckURL, opts.ConnectivityCheckBody, opts.ConnectivityCheckTimeout)
			if checker.Check(ctx) {
				success(cmd, "Internet reachable (%s)", faint(opts.ConnectivityCheckURL))
			} else {
				warn(cmd, "Connectivity check failed (%s)", opts.ConnectivityCheckURL)
			}

			start := time.Now()
			s, err := openSession(ctx, g)
			if err != nil {
				return err
			}
			defer s.Close()
			success(cmd, "Connected to %s in %s (connection %s)", cyan(cfg.Host), time.Since(start).Round(time.Millisecond), s.client.Connection.ID())

			for i := 0; i < pings; i++ {
				pctx, pcancel := context.WithTimeout(ctx, 10*time.Second)
				rtt, err := s.client.Connection.PingContext(pctx)
				pcancel()
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "  heartbeat %d: %s\n", i+1, rtt.Round(time.Microsecond))
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&pings, "pings", 3, "Number of heartbeats to send")

	return cmd
}
