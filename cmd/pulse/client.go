package main

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vango-dev/pulse/internal/config"
	"github.com/vango-dev/pulse/internal/errors"
	"github.com/vango-dev/pulse/pkg/protocol"
	"github.com/vango-dev/pulse/pkg/realtime"
	"github.com/vango-dev/pulse/pkg/transport"
)

const connectTimeout = 20 * time.Second

// loadConfig resolves configuration from file, environment and flags.
func loadConfig(g *globalFlags) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if g.configPath != "" {
		cfg, err = config.LoadFile(g.configPath)
	} else {
		cfg, err = config.Load(".")
		var ei *protocol.ErrorInfo
		if stderrors.As(err, &ei) && ei.Code == errors.CodeConfigNotFound {
			cfg, err = config.New(), nil
		}
	}
	if err != nil {
		return nil, err
	}

	cfg.ApplyEnv(nil)
	if g.host != "" {
		cfg.Host = g.host
	}
	if g.port != 0 {
		cfg.Port = g.port
	}
	if g.insecure {
		cfg.Insecure = true
	}
	if g.key != "" {
		cfg.Key = g.key
	}
	if g.token != "" {
		cfg.Token = g.token
	}
	if g.clientID != "" {
		cfg.ClientID = g.clientID
	}
	if g.binary {
		cfg.Format = string(protocol.FormatBinary)
	}
	return cfg, cfg.Validate()
}

// session is a connected client plus the config it was built from.
type session struct {
	cfg    *config.Config
	client *realtime.Client
}

func openSession(ctx context.Context, g *globalFlags) (*session, error) {
	cfg, err := loadConfig(g)
	if err != nil {
		return nil, err
	}
	opts, err := cfg.Options()
	if err != nil {
		return nil, err
	}
	opts.AutoConnect = false
	opts.Logger = g.logger
	opts.TransportFactory = transport.NewFactory(transport.Config{Logger: g.logger})

	client, err := realtime.NewClient(opts)
	if err != nil {
		return nil, err
	}

	cctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := client.Connection.ConnectContext(cctx); err != nil {
		client.Close()
		return nil, err
	}
	g.logger.Info("connected", "connection", client.Connection.ID(), "host", cfg.Host)
	return &session{cfg: cfg, client: client}, nil
}

func (s *session) channel(name string) (*realtime.Channel, error) {
	opts, err := s.cfg.ChannelOptions(name)
	if err != nil {
		return nil, err
	}
	return s.client.Channels.GetWithOptions(name, opts), nil
}

func (s *session) Close() {
	s.client.Close()
}

// parseData interprets a command line payload.
func parseData(s string, asJSON bool) (any, error) {
	if !asJSON {
		return s, nil
	}
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, errors.Newf(errors.CodeCLIUsage, "invalid JSON payload: %v", err)
	}
	return v, nil
}

// formatData renders a payload for display.
func formatData(v any) string {
	switch d := v.(type) {
	case nil:
		return ""
	case string:
		return d
	case []byte:
		return string(d)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "<unprintable>"
	}
	return string(b)
}

// interruptContext is cancelled on SIGINT or SIGTERM.
func interruptContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
