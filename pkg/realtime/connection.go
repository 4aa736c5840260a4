package realtime

import (
	"context"
	"time"

	perrors "github.com/vango-dev/pulse/internal/errors"
	"github.com/vango-dev/pulse/pkg/protocol"
)

// Connection is the application-facing view of the connection manager.
type Connection struct {
	manager *ConnectionManager
}

// Connect starts connecting. It returns immediately; follow progress with
// On or use ConnectContext.
func (c *Connection) Connect() {
	c.manager.Connect()
}

// ConnectContext connects and waits until the connection is established.
// It fails if the connection is suspended, closed or failed first.
func (c *Connection) ConnectContext(ctx context.Context) error {
	result := make(chan *protocol.ErrorInfo, 1)
	off := c.manager.OnStateChange(func(change ConnectionStateChange) {
		switch change.Current {
		case ConnectionConnected:
			trySend(result, nil)
		case ConnectionSuspended, ConnectionClosed, ConnectionFailed:
			reason := change.Reason
			if reason == nil {
				reason = perrors.New(protocol.CodeConnectionFailed)
			}
			trySend(result, reason)
		}
	})
	defer off()

	c.manager.Connect()
	if c.manager.State() == ConnectionConnected {
		return nil
	}
	select {
	case err := <-result:
		if err != nil {
			return err
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close closes the connection. Queued and unacknowledged messages fail.
func (c *Connection) Close() {
	c.manager.Close()
}

// Ping sends a heartbeat; listener resolves when the service replies.
func (c *Connection) Ping(listener CompletionListener) error {
	return c.manager.Ping(listener)
}

// PingContext sends a heartbeat and returns the round trip time.
func (c *Connection) PingContext(ctx context.Context) (time.Duration, error) {
	done := make(chan *protocol.ErrorInfo, 1)
	start := c.manager.clock.Now()
	if err := c.manager.Ping(CompletionFunc(func(err *protocol.ErrorInfo) { trySend(done, err) })); err != nil {
		return 0, err
	}
	select {
	case err := <-done:
		if err != nil {
			return 0, err
		}
		return c.manager.clock.Now().Sub(start), nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// State returns the current connection state.
func (c *Connection) State() ConnectionState { return c.manager.State() }

// ID returns the connection id, or "" when not connected.
func (c *Connection) ID() string { return c.manager.ID() }

// Key returns the connection key, or "" when not connected.
func (c *Connection) Key() string { return c.manager.Key() }

// Serial returns the serial of the last channel message received.
func (c *Connection) Serial() int64 { return c.manager.Serial() }

// ErrorReason returns the reason attached to the current state.
func (c *Connection) ErrorReason() *protocol.ErrorInfo { return c.manager.ErrorReason() }

// On registers fn for every state change.
func (c *Connection) On(fn func(ConnectionStateChange)) (off func()) {
	return c.manager.OnStateChange(fn)
}

// OnState registers fn for changes into state.
func (c *Connection) OnState(state ConnectionState, fn func(ConnectionStateChange)) (off func()) {
	return c.manager.OnStateChange(func(change ConnectionStateChange) {
		if change.Current == state {
			fn(change)
		}
	})
}
