package realtime

import (
	"github.com/vango-dev/pulse/pkg/auth"
	"github.com/vango-dev/pulse/pkg/protocol"
)

// TransportParams describe one connection attempt.
type TransportParams struct {
	Host     string
	Port     int
	Insecure bool

	// Fallback is set when Host is one of the fallback hosts.
	Fallback bool

	Format      protocol.Format
	Credentials auth.Credentials
	ClientID    string
	Echo        bool
}

// TransportListener receives the events of a transport. Every connect
// attempt ends with exactly one of OnTransportAvailable or
// OnTransportUnavailable; after OnTransportAvailable, a later
// OnTransportUnavailable reports the loss of the link.
type TransportListener interface {
	OnTransportAvailable(t Transport)
	OnTransportUnavailable(t Transport, reason *protocol.ErrorInfo)
	OnTransportMessage(t Transport, msg *protocol.ProtocolMessage)
}

// Transport carries protocol messages to and from the service.
//
// Implementations must not call back into the listener from inside Send.
type Transport interface {
	// Connect starts connecting without blocking.
	Connect(listener TransportListener)

	// Send writes one message.
	Send(msg *protocol.ProtocolMessage) error

	// Close shuts the link down gracefully, telling the service when
	// sendDisconnect is set.
	Close(sendDisconnect bool)

	// Abort tears the link down immediately.
	Abort(reason *protocol.ErrorInfo)

	// Host returns the host this transport connects to.
	Host() string
}

// TransportFactory creates a transport for one connection attempt.
type TransportFactory func(params TransportParams) (Transport, error)
