package realtime

import "errors"

// Sentinel errors for client construction and closed clients.
var (
	// ErrNoTransport is returned when Options has no TransportFactory.
	ErrNoTransport = errors.New("realtime: no transport factory configured")

	// ErrClientClosed is returned by blocking helpers once the connection
	// has closed.
	ErrClientClosed = errors.New("realtime: client closed")

	// ErrChannelReleased is returned for operations on a released channel.
	ErrChannelReleased = errors.New("realtime: channel released")
)
