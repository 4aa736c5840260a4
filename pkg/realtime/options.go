package realtime

import (
	"log/slog"
	"math/rand/v2"
	"slices"
	"time"

	"github.com/vango-dev/pulse/pkg/auth"
	"github.com/vango-dev/pulse/pkg/protocol"
)

// Defaults for Options.
const (
	DefaultHost                     = "realtime.pulse.dev"
	DefaultPort                     = 443
	DefaultConnectivityCheckURL     = "https://internet-up.pulse.dev/is-the-internet-up.txt"
	DefaultConnectivityCheckBody    = "yes\n"
	DefaultConnectivityCheckTimeout = 3 * time.Second
	DefaultConnectTimeout           = 15 * time.Second
	DefaultDisconnectedRetryTimeout = 15 * time.Second
	DefaultSuspendedRetryTimeout    = 30 * time.Second
	DefaultSuspendTimeout           = 60 * time.Second
)

// DefaultFallbackHosts are tried, one at random, when the primary host is
// unreachable but the internet is not.
var DefaultFallbackHosts = []string{
	"a.fallback.pulse.dev",
	"b.fallback.pulse.dev",
	"c.fallback.pulse.dev",
	"d.fallback.pulse.dev",
	"e.fallback.pulse.dev",
}

// Options configures a realtime client.
type Options struct {
	// Host is the primary realtime endpoint.
	// Default: realtime.pulse.dev
	Host string

	// Port of the realtime endpoint.
	// Default: 443
	Port int

	// Insecure connects with ws:// instead of wss://.
	Insecure bool

	// FallbackHosts are alternatives to Host. An empty list disables
	// fallback.
	FallbackHosts []string

	// ConnectivityCheckURL is fetched to decide whether a failed attempt is
	// worth retrying on a fallback host. The check passes only when the
	// response body equals ConnectivityCheckBody exactly.
	ConnectivityCheckURL     string
	ConnectivityCheckBody    string
	ConnectivityCheckTimeout time.Duration

	// ConnectTimeout bounds a single connection attempt.
	// Default: 15s
	ConnectTimeout time.Duration

	// DisconnectedRetryTimeout is the delay before retrying from the
	// disconnected state.
	// Default: 15s
	DisconnectedRetryTimeout time.Duration

	// SuspendedRetryTimeout is the delay before retrying from the suspended
	// state.
	// Default: 30s
	SuspendedRetryTimeout time.Duration

	// SuspendTimeout is how long the connection may stay unavailable before
	// it is suspended and queued messages are failed.
	// Default: 60s
	SuspendTimeout time.Duration

	// ClientID identifies this client for presence and message attribution.
	ClientID string

	// AutoConnect starts connecting as soon as the client is created.
	// Default: true
	AutoConnect bool

	// EchoMessages asks the service to deliver this connection's own
	// publishes back to it.
	// Default: true
	EchoMessages bool

	// Format is the wire format requested from the service.
	// Default: protocol.FormatJSON
	Format protocol.Format

	// Auth supplies credentials. Nil connects anonymously.
	Auth auth.Provider

	// TransportFactory creates the transport for each attempt. Required.
	TransportFactory TransportFactory

	// Connectivity overrides the HTTP connectivity check.
	Connectivity ConnectivityChecker

	// Clock overrides the time source.
	Clock Clock

	// Observer receives metrics events.
	Observer Observer

	// Logger for structured logging. Default: slog.Default()
	Logger *slog.Logger

	// Random picks a fallback host index in [0, n).
	Random func(n int) int
}

// DefaultOptions returns options with sensible defaults.
func DefaultOptions() *Options {
	return &Options{
		Host:                     DefaultHost,
		Port:                     DefaultPort,
		FallbackHosts:            slices.Clone(DefaultFallbackHosts),
		ConnectivityCheckURL:     DefaultConnectivityCheckURL,
		ConnectivityCheckBody:    DefaultConnectivityCheckBody,
		ConnectivityCheckTimeout: DefaultConnectivityCheckTimeout,
		ConnectTimeout:           DefaultConnectTimeout,
		DisconnectedRetryTimeout: DefaultDisconnectedRetryTimeout,
		SuspendedRetryTimeout:    DefaultSuspendedRetryTimeout,
		SuspendTimeout:           DefaultSuspendTimeout,
		AutoConnect:              true,
		EchoMessages:             true,
		Format:                   protocol.FormatJSON,
	}
}

// Clone returns a copy of the options.
func (o *Options) Clone() *Options {
	if o == nil {
		return nil
	}
	clone := *o
	clone.FallbackHosts = slices.Clone(o.FallbackHosts)
	return &clone
}

// WithHost sets the primary host and port.
func (o *Options) WithHost(host string, port int) *Options {
	o.Host = host
	o.Port = port
	return o
}

// WithFallbackHosts replaces the fallback host list.
func (o *Options) WithFallbackHosts(hosts ...string) *Options {
	o.FallbackHosts = hosts
	return o
}

// WithClientID sets the client identifier.
func (o *Options) WithClientID(id string) *Options {
	o.ClientID = id
	return o
}

// WithAuth sets the credential provider.
func (o *Options) WithAuth(p auth.Provider) *Options {
	o.Auth = p
	return o
}

// WithTransportFactory sets the transport factory.
func (o *Options) WithTransportFactory(f TransportFactory) *Options {
	o.TransportFactory = f
	return o
}

// WithClock sets the time source.
func (o *Options) WithClock(c Clock) *Options {
	o.Clock = c
	return o
}

// WithLogger sets the logger.
func (o *Options) WithLogger(l *slog.Logger) *Options {
	o.Logger = l
	return o
}

// WithObserver sets the metrics observer.
func (o *Options) WithObserver(obs Observer) *Options {
	o.Observer = obs
	return o
}

// WithAutoConnect enables or disables connecting on construction.
func (o *Options) WithAutoConnect(v bool) *Options {
	o.AutoConnect = v
	return o
}

// applyDefaults fills zero values. Collections and booleans are left alone
// so that callers can disable them.
func (o *Options) applyDefaults() {
	if o.Host == "" {
		o.Host = DefaultHost
	}
	if o.Port == 0 {
		o.Port = DefaultPort
	}
	if o.ConnectivityCheckURL == "" {
		o.ConnectivityCheckURL = DefaultConnectivityCheckURL
	}
	if o.ConnectivityCheckBody == "" {
		o.ConnectivityCheckBody = DefaultConnectivityCheckBody
	}
	if o.ConnectivityCheckTimeout <= 0 {
		o.ConnectivityCheckTimeout = DefaultConnectivityCheckTimeout
	}
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = DefaultConnectTimeout
	}
	if o.DisconnectedRetryTimeout <= 0 {
		o.DisconnectedRetryTimeout = DefaultDisconnectedRetryTimeout
	}
	if o.SuspendedRetryTimeout <= 0 {
		o.SuspendedRetryTimeout = DefaultSuspendedRetryTimeout
	}
	if o.SuspendTimeout <= 0 {
		o.SuspendTimeout = DefaultSuspendTimeout
	}
	if o.Format == "" {
		o.Format = protocol.FormatJSON
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Clock == nil {
		o.Clock = SystemClock()
	}
	if o.Observer == nil {
		o.Observer = NopObserver{}
	}
	if o.Connectivity == nil {
		o.Connectivity = NewHTTPConnectivityChecker(o.ConnectivityCheckURL, o.ConnectivityCheckBody, o.ConnectivityCheckTimeout)
	}
	if o.Random == nil {
		o.Random = rand.IntN
	}
}
