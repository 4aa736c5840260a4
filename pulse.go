// Package pulse provides the public API for the Pulse realtime client.
//
// This is the recommended import for most applications:
//
//	import "github.com/vango-dev/pulse"
//
// Usage:
//
//	client, err := pulse.New(pulse.Config{Key: "app.key:secret", ClientID: "alice"})
//	ch := client.Channels.Get("chat")
//	ch.Subscribe(func(m *pulse.Message) { fmt.Println(m.Name, m.Data) })
//	ch.Publish("greeting", "hello", nil)
package pulse

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/vango-dev/pulse/pkg/auth"
	"github.com/vango-dev/pulse/pkg/metrics"
	"github.com/vango-dev/pulse/pkg/protocol"
	"github.com/vango-dev/pulse/pkg/realtime"
	"github.com/vango-dev/pulse/pkg/transport"
)

// =============================================================================
// Type aliases
// =============================================================================

type (
	Client                = realtime.Client
	Channel               = realtime.Channel
	Presence              = realtime.Presence
	Options               = realtime.Options
	ChannelOptions        = realtime.ChannelOptions
	ConnectionState       = realtime.ConnectionState
	ConnectionStateChange = realtime.ConnectionStateChange
	ChannelState          = realtime.ChannelState
	ChannelStateChange    = realtime.ChannelStateChange
	CompletionListener    = realtime.CompletionListener
	CompletionFunc        = realtime.CompletionFunc
	Message               = protocol.Message
	PresenceMessage       = protocol.PresenceMessage
	ErrorInfo             = protocol.ErrorInfo
)

// =============================================================================
// Configuration
// =============================================================================

// Config is the user-friendly entry point for configuring a client. Fields
// left empty take the realtime package defaults.
type Config struct {
	// Key is an API key, "appId.keyId:secret".
	Key string

	// Token is a static access token. It takes precedence over Key.
	Token string

	// AuthCallback fetches tokens and enables renewal. It takes precedence
	// over Token and Key.
	AuthCallback auth.TokenFunc

	// AuthURL serves tokens as JSON. Used when AuthCallback is nil.
	AuthURL string

	// ClientID identifies this client for presence.
	ClientID string

	// Host and Port of the realtime endpoint.
	Host string
	Port int

	// Insecure connects with ws:// instead of wss://.
	Insecure bool

	// FallbackHosts replaces the default fallback hosts when set.
	FallbackHosts []string

	// NoFallback disables fallback hosts.
	NoFallback bool

	// Binary selects the CBOR wire format.
	Binary bool

	// NoEcho stops the service delivering this client's publishes back to it.
	NoEcho bool

	// ManualConnect defers connecting until Connection.Connect is called.
	ManualConnect bool

	// Metrics registers Prometheus collectors for the client when set.
	Metrics prometheus.Registerer

	// HTTPClient is used for token requests. Default: http.DefaultClient
	HTTPClient *http.Client

	// Transport tunes the WebSocket transport.
	Transport transport.Config

	// Logger for structured logging. Default: slog.Default()
	Logger *slog.Logger
}

// Options converts the configuration to realtime options.
func (c Config) Options() *Options {
	opts := realtime.DefaultOptions()
	if c.Host != "" {
		opts.Host = c.Host
	}
	if c.Port != 0 {
		opts.Port = c.Port
	}
	opts.Insecure = c.Insecure
	opts.ClientID = c.ClientID
	opts.EchoMessages = !c.NoEcho
	opts.AutoConnect = !c.ManualConnect
	switch {
	case c.NoFallback:
		opts.FallbackHosts = nil
	case len(c.FallbackHosts) > 0:
		opts.FallbackHosts = append([]string(nil), c.FallbackHosts...)
	}
	if c.Binary {
		opts.Format = protocol.FormatBinary
	}
	if c.Logger != nil {
		opts.Logger = c.Logger
	}

	switch {
	case c.AuthCallback != nil:
		opts.Auth = auth.NewCallbackProvider(c.AuthCallback)
	case c.AuthURL != "":
		opts.Auth = auth.NewCallbackProvider(auth.URLTokenFunc(c.AuthURL, c.HTTPClient))
	case c.Token != "":
		opts.Auth = auth.NewTokenProvider(c.Token, c.ClientID)
	case c.Key != "":
		// An invalid key surfaces from New.
		if p, err := auth.NewKeyProvider(c.Key, c.ClientID); err == nil {
			opts.Auth = p
		}
	}

	if c.Metrics != nil {
		opts.Observer = metrics.New(metrics.WithRegistry(c.Metrics))
	}
	tc := c.Transport
	if tc.Logger == nil {
		tc.Logger = opts.Logger
	}
	opts.TransportFactory = transport.NewFactory(tc)
	return opts
}

// New creates a client connected over WebSocket.
func New(cfg Config) (*Client, error) {
	if cfg.Key != "" && cfg.Token == "" && cfg.AuthCallback == nil && cfg.AuthURL == "" {
		if _, _, err := auth.ParseKey(cfg.Key); err != nil {
			return nil, err
		}
	}
	return realtime.NewClient(cfg.Options())
}

// NewWithOptions creates a client from realtime options, supplying the
// WebSocket transport when none is set.
func NewWithOptions(opts *Options) (*Client, error) {
	if opts == nil {
		opts = realtime.DefaultOptions()
	}
	if opts.TransportFactory == nil {
		opts = opts.Clone()
		opts.TransportFactory = transport.NewFactory(transport.Config{Logger: opts.Logger})
	}
	return realtime.NewClient(opts)
}
