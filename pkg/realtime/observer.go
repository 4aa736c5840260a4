package realtime

import "github.com/vango-dev/pulse/pkg/protocol"

// Observer receives events for metrics collection. Calls are made
// synchronously and must not block.
type Observer interface {
	ConnectionStateChanged(change ConnectionStateChange)
	ChannelStateChanged(channel string, change ChannelStateChange)
	MessageSent(msg *protocol.ProtocolMessage)
	MessageReceived(msg *protocol.ProtocolMessage)
	MessagesAcked(n int)
	MessagesNacked(n int)
	QueueDepth(queued, pending int)
	ConnectAttempt(host string, fallback bool)
}

// NopObserver ignores every event.
type NopObserver struct{}

func (NopObserver) ConnectionStateChanged(ConnectionStateChange)   {}
func (NopObserver) ChannelStateChanged(string, ChannelStateChange) {}
func (NopObserver) MessageSent(*protocol.ProtocolMessage)          {}
func (NopObserver) MessageReceived(*protocol.ProtocolMessage)      {}
func (NopObserver) MessagesAcked(int)                              {}
func (NopObserver) MessagesNacked(int)                             {}
func (NopObserver) QueueDepth(int, int)                            {}
func (NopObserver) ConnectAttempt(string, bool)                    {}
