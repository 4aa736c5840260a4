package realtime

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	perrors "github.com/vango-dev/pulse/internal/errors"
	"github.com/vango-dev/pulse/pkg/protocol"
)

// MessageListener receives messages delivered on a channel.
type MessageListener func(msg *protocol.Message)

// ChannelOptions configure a channel.
type ChannelOptions struct {
	// Cipher encrypts published payloads and decrypts received ones.
	Cipher protocol.Cipher
}

// Channel is a named stream of messages multiplexed over the connection.
//
// Publishes made before the channel is attached are held in a local queue
// and handed to the connection, in order, once the service confirms the
// attach.
type Channel struct {
	name     string
	manager  *ConnectionManager
	logger   *slog.Logger
	observer Observer
	format   protocol.Format

	// Presence is the presence set of this channel.
	Presence *Presence

	all         *emitter[*protocol.Message]
	stateEvents *emitter[ChannelStateChange]

	// Lock order: Presence.mu, then mu, then the manager's lock.
	mu           sync.Mutex
	state        ChannelState
	reason       *protocol.ErrorInfo
	attachSerial string
	options      ChannelOptions
	queue        messageQueue
	byName       map[string]*emitter[*protocol.Message]
	released     bool
}

func newChannel(name string, manager *ConnectionManager, opts *Options) *Channel {
	logger := opts.Logger.With("channel", name)
	c := &Channel{
		name:        name,
		manager:     manager,
		logger:      logger,
		observer:    opts.Observer,
		format:      opts.Format,
		all:         newEmitter[*protocol.Message](logger, "message"),
		stateEvents: newEmitter[ChannelStateChange](logger, "channel state"),
		queue:       messageQueue{logger: logger},
		byName:      make(map[string]*emitter[*protocol.Message]),
	}
	c.Presence = newPresence(c, opts)
	return c
}

// Name returns the channel name.
func (c *Channel) Name() string {
	return c.name
}

// State returns the current channel state.
func (c *Channel) State() ChannelState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// ErrorReason returns the reason attached to the current state, if any.
func (c *Channel) ErrorReason() *protocol.ErrorInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reason.Clone()
}

// AttachSerial returns the channel serial reported by the last ATTACHED.
func (c *Channel) AttachSerial() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attachSerial
}

// SetOptions replaces the channel options. They apply to subsequent
// publishes and deliveries.
func (c *Channel) SetOptions(options ChannelOptions) {
	c.mu.Lock()
	c.options = options
	c.mu.Unlock()
}

func (c *Channel) cipher() protocol.Cipher {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.options.Cipher
}

// OnStateChange registers fn for every channel state change.
func (c *Channel) OnStateChange(fn func(ChannelStateChange)) (off func()) {
	return c.stateEvents.on(fn)
}

func (c *Channel) setStateLocked(s ChannelState, reason *protocol.ErrorInfo, cb *callbacks) {
	prev := c.state
	c.state = s
	c.reason = reason
	if prev == s {
		return
	}

	change := ChannelStateChange{Previous: prev, Current: s, Reason: reason}
	attrs := []any{"from", prev, "to", s}
	if reason != nil {
		attrs = append(attrs, "code", reason.Code)
	}
	c.logger.Debug("channel state changed", attrs...)
	cb.add(func() {
		c.observer.ChannelStateChanged(c.name, change)
		c.stateEvents.emit(change)
	})
}

// Attach asks the service to attach the channel. It is a no-op while the
// channel is attaching or attached, and fails if the connection can neither
// send nor queue.
func (c *Channel) Attach() error {
	var cb callbacks
	c.mu.Lock()
	err := c.attachLocked(&cb)
	c.mu.Unlock()
	cb.run()
	return err
}

func (c *Channel) attachLocked(cb *callbacks) error {
	if c.released {
		return ErrChannelReleased
	}
	switch c.state {
	case ChannelAttaching, ChannelAttached:
		return nil
	}
	if conn := c.manager.currentState(); !conn.active() {
		return conn.err()
	}
	if err := c.manager.Send(protocol.NewProtocolMessage(protocol.ActionAttach, c.name), true, nil); err != nil {
		return err
	}
	c.setStateLocked(ChannelAttaching, nil, cb)
	return nil
}

// AttachContext attaches the channel and waits until the service confirms
// it, the attach fails, or ctx is done.
func (c *Channel) AttachContext(ctx context.Context) error {
	result := make(chan *protocol.ErrorInfo, 1)
	off := c.stateEvents.on(func(change ChannelStateChange) {
		switch change.Current {
		case ChannelAttached:
			trySend(result, nil)
		case ChannelDetached, ChannelFailed:
			reason := change.Reason
			if reason == nil {
				reason = perrors.New(protocol.CodeChannelDetached)
			}
			trySend(result, reason)
		}
	})
	defer off()

	if err := c.Attach(); err != nil {
		return err
	}
	if c.State() == ChannelAttached {
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

// Detach asks the service to detach the channel. Queued publishes and
// presence updates fail with a "not attached" error.
func (c *Channel) Detach() error {
	var cb callbacks
	c.mu.Lock()
	err := c.detachLocked(&cb)
	c.mu.Unlock()
	cb.run()
	return err
}

func (c *Channel) detachLocked(cb *callbacks) error {
	switch c.state {
	case ChannelInitialized, ChannelDetaching, ChannelDetached:
		return nil
	case ChannelFailed:
		return perrors.Newf(protocol.CodeChannelState, "unable to detach channel %q in failed state", c.name)
	}

	reason := perrors.New(protocol.CodeChannelDetached)
	if !c.manager.currentState().active() {
		c.failLocked(ChannelDetached, reason, cb)
		return nil
	}
	if err := c.manager.Send(protocol.NewProtocolMessage(protocol.ActionDetach, c.name), true, nil); err != nil {
		c.failLocked(ChannelDetached, reason, cb)
		return nil
	}
	c.failLocked(ChannelDetaching, reason, cb)
	return nil
}

// failLocked enters state s and fails everything queued on the channel and
// its presence with reason.
func (c *Channel) failLocked(s ChannelState, reason *protocol.ErrorInfo, cb *callbacks) {
	c.setStateLocked(s, reason, cb)
	if queued := c.queue.drain(); len(queued) > 0 {
		cb.add(func() { resolveAll(c.logger, queued, reason) })
	}
	cb.add(func() { c.Presence.onDetached(reason) })
}

// Publish publishes a single message.
func (c *Channel) Publish(name string, data any, listener CompletionListener) error {
	return c.publish(context.Background(), []*protocol.Message{protocol.NewMessage(name, data)}, listener)
}

// PublishMessages publishes a batch of messages as one envelope. listener
// is resolved when the service acknowledges the batch. Errors detected
// before anything is sent are returned and listener is not called.
func (c *Channel) PublishMessages(messages []*protocol.Message, listener CompletionListener) error {
	return c.publish(context.Background(), messages, listener)
}

// PublishContext publishes messages and waits for the acknowledgement.
func (c *Channel) PublishContext(ctx context.Context, messages ...*protocol.Message) error {
	done := make(chan *protocol.ErrorInfo, 1)
	listener := CompletionFunc(func(err *protocol.ErrorInfo) { trySend(done, err) })
	if err := c.publish(ctx, messages, listener); err != nil {
		return err
	}
	select {
	case err := <-done:
		if err != nil {
			return err
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Channel) publish(ctx context.Context, messages []*protocol.Message, listener CompletionListener) error {
	if len(messages) == 0 {
		return perrors.Newf(protocol.CodeBadRequest, "no messages to publish")
	}

	cipher := c.cipher()
	encoded := make([]*protocol.Message, len(messages))
	for i, msg := range messages {
		if msg == nil {
			return perrors.Newf(protocol.CodeBadRequest, "message %d is nil", i)
		}
		m := msg.Clone()
		if err := m.Encode(cipher, c.format); err != nil {
			return perrors.Wrap(protocol.CodeBadRequest, err)
		}
		encoded[i] = m
	}
	pm := protocol.NewProtocolMessage(protocol.ActionMessage, c.name)
	pm.Messages = encoded

	span := startSpan(ctx, "pulse.publish", c.name, len(encoded))

	var cb callbacks
	c.mu.Lock()
	err := c.publishLocked(pm, traceCompletion(span, listener), &cb)
	c.mu.Unlock()
	cb.run()

	if err != nil {
		endSpan(span, perrors.FromError(err, protocol.CodeChannelState))
		return err
	}
	return nil
}

func (c *Channel) publishLocked(pm *protocol.ProtocolMessage, listener CompletionListener, cb *callbacks) error {
	switch c.state {
	case ChannelInitialized:
		if err := c.attachLocked(cb); err != nil {
			return err
		}
		c.queue.push(pm, listener)
	case ChannelAttaching:
		c.queue.push(pm, listener)
	case ChannelAttached:
		return c.manager.Send(pm, true, listener)
	default:
		return perrors.Newf(protocol.CodeChannelState, "unable to publish to channel %q in %s state", c.name, c.state)
	}
	return nil
}

// Subscribe registers listener for messages on the channel, or only for
// messages with one of the given names, and attaches the channel. The
// listener stays registered even if the attach fails.
func (c *Channel) Subscribe(listener MessageListener, names ...string) (*Subscription, error) {
	sub := &Subscription{}
	if len(names) == 0 {
		sub.offs = append(sub.offs, c.all.on(listener))
	} else {
		c.mu.Lock()
		for _, name := range names {
			em, ok := c.byName[name]
			if !ok {
				em = newEmitter[*protocol.Message](c.logger, "message")
				c.byName[name] = em
			}
			sub.offs = append(sub.offs, em.on(listener))
		}
		c.mu.Unlock()
	}
	return sub, c.Attach()
}

// UnsubscribeAll removes every message listener.
func (c *Channel) UnsubscribeAll() {
	c.all.clear()
	c.mu.Lock()
	c.byName = make(map[string]*emitter[*protocol.Message])
	c.mu.Unlock()
}

func (c *Channel) onProtocolMessage(msg *protocol.ProtocolMessage) {
	switch msg.Action {
	case protocol.ActionAttached:
		c.onAttached(msg)
	case protocol.ActionDetached:
		c.onDetached(msg)
	case protocol.ActionError:
		c.onError(msg)
	case protocol.ActionMessage:
		c.onMessages(msg)
	case protocol.ActionPresence:
		c.Presence.onPresence(msg)
	default:
		c.logger.Debug("ignoring channel message", "action", msg.Action)
	}
}

func (c *Channel) onAttached(msg *protocol.ProtocolMessage) {
	var cb callbacks
	c.mu.Lock()
	switch c.state {
	case ChannelAttaching:
	case ChannelAttached:
		c.attachSerial = msg.ChannelSerial
		c.mu.Unlock()
		c.Presence.onAttached(msg.Presence)
		return
	default:
		state := c.state
		c.mu.Unlock()
		c.logger.Debug("ignoring ATTACHED", "state", state)
		return
	}

	c.attachSerial = msg.ChannelSerial
	c.setStateLocked(ChannelAttached, msg.Error, &cb)
	for _, qm := range c.queue.drain() {
		if err := c.manager.Send(qm.Msg, true, qm.Listener); err != nil {
			l, reason := qm.Listener, perrors.FromError(err, protocol.CodeChannelFailed)
			cb.add(func() { complete(c.logger, l, reason) })
		}
	}
	c.mu.Unlock()

	cb.run()
	c.Presence.onAttached(msg.Presence)
}

func (c *Channel) onDetached(msg *protocol.ProtocolMessage) {
	var cb callbacks
	c.mu.Lock()
	if c.state == ChannelInitialized || c.state == ChannelDetached {
		c.mu.Unlock()
		return
	}
	reason := msg.Error
	if reason == nil {
		reason = perrors.New(protocol.CodeChannelDetached)
	}
	c.failLocked(ChannelDetached, reason, &cb)
	c.mu.Unlock()
	cb.run()
}

func (c *Channel) onError(msg *protocol.ProtocolMessage) {
	var cb callbacks
	c.mu.Lock()
	if c.state == ChannelFailed {
		c.mu.Unlock()
		return
	}
	reason := msg.Error
	if reason == nil {
		reason = perrors.New(protocol.CodeChannelFailed)
	}
	c.logger.Warn("channel failed", "code", reason.Code, "reason", reason.Message)
	c.failLocked(ChannelFailed, reason, &cb)
	c.mu.Unlock()
	cb.run()
}

// suspend detaches the channel locally after the connection stopped
// queueing.
func (c *Channel) suspend(reason *protocol.ErrorInfo) {
	var cb callbacks
	c.mu.Lock()
	switch c.state {
	case ChannelAttaching, ChannelAttached, ChannelDetaching:
		c.failLocked(ChannelDetached, reason, &cb)
	}
	c.mu.Unlock()
	cb.run()
}

// reattach sends ATTACH again on a new connection.
func (c *Channel) reattach() {
	var cb callbacks
	c.mu.Lock()
	switch c.state {
	case ChannelAttaching, ChannelAttached:
		c.setStateLocked(ChannelAttaching, nil, &cb)
		c.manager.sendFirst(protocol.NewProtocolMessage(protocol.ActionAttach, c.name))
	}
	c.mu.Unlock()
	cb.run()
}

func (c *Channel) onMessages(msg *protocol.ProtocolMessage) {
	cipher := c.cipher()
	for i, m := range msg.Messages {
		if m == nil {
			continue
		}
		if m.ID == "" && msg.ID != "" {
			m.ID = fmt.Sprintf("%s:%d", msg.ID, i)
		}
		if m.ConnectionID == "" {
			m.ConnectionID = msg.ConnectionID
		}
		if m.Timestamp == 0 {
			m.Timestamp = msg.Timestamp
		}
		if err := m.Decode(cipher); err != nil {
			c.logger.Error("message decode failed", "id", m.ID, "encoding", m.Encoding, "error", err)
		}
	}

	for _, m := range msg.Messages {
		if m == nil {
			continue
		}
		c.all.emit(m)

		c.mu.Lock()
		em := c.byName[m.Name]
		c.mu.Unlock()
		if em != nil {
			em.emit(m)
		}
	}
}

// trySend delivers v unless ch already holds a value.
func trySend[T any](ch chan T, v T) {
	select {
	case ch <- v:
	default:
	}
}
