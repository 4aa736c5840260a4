package realtime

import (
	"time"

	perrors "github.com/vango-dev/pulse/internal/errors"
	"github.com/vango-dev/pulse/pkg/protocol"
)

// ConnectionState is the lifecycle state of the connection.
type ConnectionState int

const (
	ConnectionInitialized ConnectionState = iota
	ConnectionConnecting
	ConnectionConnected
	ConnectionDisconnected
	ConnectionSuspended
	ConnectionClosed
	ConnectionFailed

	numConnectionStates
)

// String returns the lowercase state name.
func (s ConnectionState) String() string {
	switch s {
	case ConnectionInitialized:
		return "initialized"
	case ConnectionConnecting:
		return "connecting"
	case ConnectionConnected:
		return "connected"
	case ConnectionDisconnected:
		return "disconnected"
	case ConnectionSuspended:
		return "suspended"
	case ConnectionClosed:
		return "closed"
	case ConnectionFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// stateInfo describes how the manager behaves while in a state. The table
// built by newStateTable is never mutated after construction.
type stateInfo struct {
	state ConnectionState

	// queueEvents allows messages to be held in the pre-send queue.
	queueEvents bool

	// sendEvents allows messages to go out on the transport immediately.
	sendEvents bool

	// terminal states have no automatic way out.
	terminal bool

	// retry states request a new connection attempt when they expire.
	retry bool

	// timeout is how long the state lasts. Zero means unbounded.
	timeout time.Duration

	defaultError *protocol.ErrorInfo
}

type stateTable [numConnectionStates]stateInfo

func newStateTable(opts *Options) *stateTable {
	return &stateTable{
		ConnectionInitialized: {
			state:       ConnectionInitialized,
			queueEvents: true,
		},
		ConnectionConnecting: {
			state:       ConnectionConnecting,
			queueEvents: true,
			timeout:     opts.ConnectTimeout,
		},
		ConnectionConnected: {
			state:      ConnectionConnected,
			sendEvents: true,
		},
		ConnectionDisconnected: {
			state:        ConnectionDisconnected,
			queueEvents:  true,
			retry:        true,
			timeout:      opts.DisconnectedRetryTimeout,
			defaultError: perrors.New(protocol.CodeDisconnected),
		},
		ConnectionSuspended: {
			state:        ConnectionSuspended,
			retry:        true,
			timeout:      opts.SuspendedRetryTimeout,
			defaultError: perrors.New(protocol.CodeSuspended),
		},
		ConnectionClosed: {
			state:        ConnectionClosed,
			terminal:     true,
			defaultError: perrors.New(protocol.CodeConnectionClosed),
		},
		ConnectionFailed: {
			state:        ConnectionFailed,
			terminal:     true,
			defaultError: perrors.New(protocol.CodeConnectionFailed),
		},
	}
}

func (t *stateTable) info(s ConnectionState) *stateInfo {
	return &t[s]
}

// active reports whether messages may be sent or queued in this state.
func (si *stateInfo) active() bool {
	return si.queueEvents || si.sendEvents
}

// ConnectionStateChange is broadcast to connection listeners on every
// transition.
type ConnectionStateChange struct {
	Previous ConnectionState
	Current  ConnectionState

	// RetryIn is the delay before the next automatic attempt, for states
	// that retry.
	RetryIn time.Duration

	Reason *protocol.ErrorInfo
}

// ChannelState is the lifecycle state of a channel.
type ChannelState int

const (
	ChannelInitialized ChannelState = iota
	ChannelAttaching
	ChannelAttached
	ChannelDetaching
	ChannelDetached
	ChannelFailed
)

// String returns the lowercase state name.
func (s ChannelState) String() string {
	switch s {
	case ChannelInitialized:
		return "initialized"
	case ChannelAttaching:
		return "attaching"
	case ChannelAttached:
		return "attached"
	case ChannelDetaching:
		return "detaching"
	case ChannelDetached:
		return "detached"
	case ChannelFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ChannelStateChange is broadcast to channel listeners on every transition.
type ChannelStateChange struct {
	Previous ChannelState
	Current  ChannelState
	Reason   *protocol.ErrorInfo
}

// err returns a copy of the state's default error, or a generic
// disconnected error for states without one.
func (si *stateInfo) err() *protocol.ErrorInfo {
	if si.defaultError != nil {
		return si.defaultError.Clone()
	}
	return perrors.New(protocol.CodeDisconnected)
}
