package realtime

import (
	"github.com/google/uuid"
)

// Client is a realtime client: one connection and the channels multiplexed
// over it.
type Client struct {
	// Connection controls the connection to the service.
	Connection *Connection

	// Channels is the channel registry.
	Channels *Channels

	id   string
	opts *Options
}

// NewClient creates a client. With AutoConnect set it starts connecting
// immediately.
func NewClient(opts *Options) (*Client, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	opts = opts.Clone()
	opts.applyDefaults()
	if opts.TransportFactory == nil {
		return nil, ErrNoTransport
	}

	id := uuid.NewString()
	opts.Logger = opts.Logger.With("client", id[:8])

	manager := newConnectionManager(opts)
	channels := newChannels(manager, opts)
	manager.setChannels(channels)

	c := &Client{
		Connection: &Connection{manager: manager},
		Channels:   channels,
		id:         id,
		opts:       opts,
	}
	opts.Logger.Debug("client created", "host", opts.Host, "clientId", opts.ClientID)

	if opts.AutoConnect {
		manager.Connect()
	}
	return c, nil
}

// ID returns the unique id of this client instance.
func (c *Client) ID() string {
	return c.id
}

// ClientID returns the configured client identifier.
func (c *Client) ClientID() string {
	return c.opts.ClientID
}

// Options returns a copy of the effective options.
func (c *Client) Options() *Options {
	return c.opts.Clone()
}

// Close closes the connection.
func (c *Client) Close() {
	c.Connection.Close()
}
