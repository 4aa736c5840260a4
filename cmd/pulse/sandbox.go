package main

import (
	"context"
	stderrors "errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/vango-dev/pulse/internal/sandbox"
)

func sandboxCmd(g *globalFlags) *cobra.Command {
	var (
		addr        string
		key         string
		tokens      []string
		withMetrics bool
	)

	cmd := &cobra.Command{
		Use:   "sandbox",
		Short: "Run a local realtime service",
		Long: `Run an in-memory realtime service for local development.

Point clients at it with --host=localhost --port=<port> --insecure.
The service also answers the connectivity check at
/is-the-internet-up.txt.

Examples:
  pulse sandbox
  pulse sandbox --addr=:9000 --key=app.key:secret --metrics`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := interruptContext(cmd.Context())
			defer cancel()

			cfg := sandbox.Config{Key: key, Tokens: tokens, Logger: g.logger}
			if withMetrics {
				reg := prometheus.NewRegistry()
				reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
				cfg.Metrics = promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
			}
			s := sandbox.New(cfg)

			srv := &http.Server{
				Addr:              addr,
				Handler:           s.Handler(),
				ReadHeaderTimeout: 10 * time.Second,
			}
			errCh := make(chan error, 1)
			go func() { errCh <- srv.ListenAndServe() }()
			success(cmd, "Sandbox listening on %s", cyan(addr))

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			s.Close()
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			if err := srv.Shutdown(shutdownCtx); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":8080", "Listen address")
	cmd.Flags().StringVar(&key, "key", "", "Require this API key")
	cmd.Flags().StringSliceVar(&tokens, "token", nil, "Accept this access token (repeatable)")
	cmd.Flags().BoolVar(&withMetrics, "metrics", false, "Serve Prometheus metrics at /metrics")

	return cmd
}
