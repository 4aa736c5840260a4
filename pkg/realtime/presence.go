package realtime

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"sync"

	perrors "github.com/vango-dev/pulse/internal/errors"
	"github.com/vango-dev/pulse/pkg/protocol"
)

// PresenceListener receives presence events on a channel.
type PresenceListener func(msg *protocol.PresenceMessage)

type pendingPresence struct {
	msg      *protocol.PresenceMessage
	listener CompletionListener
}

// Presence tracks the members of a channel and publishes this client's own
// presence.
//
// Updates made while the channel is attaching are held per clientId, with a
// later update replacing an earlier one, and sent as one PRESENCE envelope
// when the channel attaches.
type Presence struct {
	channel  *Channel
	clientID string
	logger   *slog.Logger
	events   *emitter[*protocol.PresenceMessage]

	// mu is taken before the channel's lock, never while holding it.
	mu      sync.Mutex
	members map[string]*protocol.PresenceMessage
	pending map[string]*pendingPresence
	order   []string
}

func newPresence(c *Channel, opts *Options) *Presence {
	return &Presence{
		channel:  c,
		clientID: opts.ClientID,
		logger:   c.logger,
		events:   newEmitter[*protocol.PresenceMessage](c.logger, "presence"),
		members:  make(map[string]*protocol.PresenceMessage),
		pending:  make(map[string]*pendingPresence),
	}
}

// Get returns the current members ordered by clientId.
func (p *Presence) Get() []*protocol.PresenceMessage {
	p.mu.Lock()
	defer p.mu.Unlock()

	members := make([]*protocol.PresenceMessage, 0, len(p.members))
	for _, m := range p.members {
		members = append(members, m)
	}
	slices.SortFunc(members, func(a, b *protocol.PresenceMessage) int {
		return strings.Compare(a.ClientID, b.ClientID)
	})
	return members
}

// Member returns the latest presence message of clientID.
func (p *Presence) Member(clientID string) (*protocol.PresenceMessage, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	m, ok := p.members[clientID]
	return m, ok
}

// Enter enters this client into the presence set.
func (p *Presence) Enter(data any, listener CompletionListener) error {
	return p.EnterClient(p.clientID, data, listener)
}

// Update updates this client's presence data.
func (p *Presence) Update(data any, listener CompletionListener) error {
	return p.UpdateClient(p.clientID, data, listener)
}

// Leave removes this client from the presence set.
func (p *Presence) Leave(data any, listener CompletionListener) error {
	return p.LeaveClient(p.clientID, data, listener)
}

// EnterClient enters clientID into the presence set.
func (p *Presence) EnterClient(clientID string, data any, listener CompletionListener) error {
	return p.UpdatePresence(presenceMessage(protocol.PresenceEnter, clientID, data), listener)
}

// UpdateClient updates the presence data of clientID.
func (p *Presence) UpdateClient(clientID string, data any, listener CompletionListener) error {
	return p.UpdatePresence(presenceMessage(protocol.PresenceUpdate, clientID, data), listener)
}

// LeaveClient removes clientID from the presence set.
func (p *Presence) LeaveClient(clientID string, data any, listener CompletionListener) error {
	return p.UpdatePresence(presenceMessage(protocol.PresenceLeave, clientID, data), listener)
}

// EnterContext enters this client and waits for the acknowledgement.
func (p *Presence) EnterContext(ctx context.Context, data any) error {
	done := make(chan *protocol.ErrorInfo, 1)
	listener := CompletionFunc(func(err *protocol.ErrorInfo) { trySend(done, err) })
	msg := presenceMessage(protocol.PresenceEnter, p.clientID, data)
	if err := p.updatePresence(ctx, msg, listener); err != nil {
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

func presenceMessage(action protocol.PresenceAction, clientID string, data any) *protocol.PresenceMessage {
	return &protocol.PresenceMessage{Action: action, ClientID: clientID, Data: data}
}

// UpdatePresence sends msg, or holds it until the channel attaches. A
// message without a clientId, or a channel that is detached or failed,
// fails immediately and listener is not called.
func (p *Presence) UpdatePresence(msg *protocol.PresenceMessage, listener CompletionListener) error {
	return p.updatePresence(context.Background(), msg, listener)
}

func (p *Presence) updatePresence(ctx context.Context, msg *protocol.PresenceMessage, listener CompletionListener) error {
	if msg == nil {
		return perrors.Newf(protocol.CodeBadRequest, "nil presence message")
	}
	if msg.ClientID == "" {
		return perrors.New(protocol.CodeNoClientID)
	}
	m := msg.Clone()
	if err := m.Encode(p.channel.cipher(), p.channel.format); err != nil {
		return perrors.Wrap(protocol.CodeBadRequest, err)
	}

	if p.channel.State() == ChannelInitialized {
		if err := p.channel.Attach(); err != nil {
			return err
		}
	}

	span := startSpan(ctx, "pulse.presence", p.channel.name, 1)
	traced := traceCompletion(span, listener)

	p.mu.Lock()
	err := p.updateLocked(m, traced)
	p.mu.Unlock()

	if err != nil {
		endSpan(span, perrors.FromError(err, protocol.CodePresenceState))
		return err
	}
	return nil
}

func (p *Presence) updateLocked(m *protocol.PresenceMessage, listener CompletionListener) error {
	switch state := p.channel.State(); state {
	case ChannelInitialized, ChannelAttaching:
		p.queueLocked(m, listener)
		return nil
	case ChannelAttached:
		if len(p.order) > 0 {
			p.queueLocked(m, listener)
			return nil
		}
		pm := protocol.NewProtocolMessage(protocol.ActionPresence, p.channel.name)
		pm.Presence = []*protocol.PresenceMessage{m}
		return p.channel.manager.Send(pm, true, listener)
	default:
		return perrors.Newf(protocol.CodePresenceState,
			"unable to enter presence channel %q in %s state", p.channel.name, state)
	}
}

// queueLocked holds m until attach. A pending update for the same clientId
// is replaced; both listeners resolve with the outcome of the newer one.
func (p *Presence) queueLocked(m *protocol.PresenceMessage, listener CompletionListener) {
	if prev, ok := p.pending[m.ClientID]; ok {
		prev.msg = m
		prev.listener = NewCompletionMulticaster(p.logger, prev.listener, listener)
		return
	}
	p.pending[m.ClientID] = &pendingPresence{msg: m, listener: listener}
	p.order = append(p.order, m.ClientID)
}

// Subscribe registers listener for presence events and attaches the
// channel.
func (p *Presence) Subscribe(listener PresenceListener) (*Subscription, error) {
	sub := &Subscription{offs: []func(){p.events.on(listener)}}
	return sub, p.channel.Attach()
}

// UnsubscribeAll removes every presence listener.
func (p *Presence) UnsubscribeAll() {
	p.events.clear()
}

// onAttached merges the presence snapshot carried by ATTACHED and sends the
// updates held while attaching.
func (p *Presence) onAttached(snapshot []*protocol.PresenceMessage) {
	p.mu.Lock()
	changed := p.applyLocked(snapshot)

	var (
		listener CompletionListener
		sendErr  error
	)
	if len(p.order) > 0 {
		pm := protocol.NewProtocolMessage(protocol.ActionPresence, p.channel.name)
		listeners := make([]CompletionListener, 0, len(p.order))
		for _, id := range p.order {
			entry := p.pending[id]
			pm.Presence = append(pm.Presence, entry.msg)
			listeners = append(listeners, entry.listener)
		}
		p.pending = make(map[string]*pendingPresence)
		p.order = nil

		if len(listeners) == 1 {
			listener = listeners[0]
		} else {
			listener = NewCompletionMulticaster(p.logger, listeners...)
		}
		sendErr = p.channel.manager.Send(pm, true, listener)
	}
	p.mu.Unlock()

	if sendErr != nil {
		complete(p.logger, listener, perrors.FromError(sendErr, protocol.CodePresenceState))
	}
	for _, m := range changed {
		p.events.emit(m)
	}
}

// onDetached fails held updates and forgets the member set.
func (p *Presence) onDetached(reason *protocol.ErrorInfo) {
	p.mu.Lock()
	pending := make([]*pendingPresence, 0, len(p.order))
	for _, id := range p.order {
		pending = append(pending, p.pending[id])
	}
	p.pending = make(map[string]*pendingPresence)
	p.order = nil
	clear(p.members)
	p.mu.Unlock()

	for _, entry := range pending {
		complete(p.logger, entry.listener, reason)
	}
}

func (p *Presence) onPresence(msg *protocol.ProtocolMessage) {
	for _, m := range msg.Presence {
		if m == nil {
			continue
		}
		if m.ConnectionID == "" {
			m.ConnectionID = msg.ConnectionID
		}
		if m.Timestamp == 0 {
			m.Timestamp = msg.Timestamp
		}
	}

	p.mu.Lock()
	changed := p.applyLocked(msg.Presence)
	p.mu.Unlock()

	for _, m := range changed {
		p.events.emit(m)
	}
}

// applyLocked decodes msgs and folds them into the member map: enter,
// update and present upsert by clientId, leave and absent remove.
func (p *Presence) applyLocked(msgs []*protocol.PresenceMessage) []*protocol.PresenceMessage {
	cipher := p.channel.cipher()
	applied := make([]*protocol.PresenceMessage, 0, len(msgs))
	for _, m := range msgs {
		if m == nil {
			continue
		}
		if err := m.Decode(cipher); err != nil {
			p.logger.Error("presence decode failed", "clientId", m.ClientID, "error", err)
		}
		switch m.Action {
		case protocol.PresenceEnter, protocol.PresenceUpdate, protocol.PresencePresent:
			p.members[m.MemberKey()] = m
		case protocol.PresenceLeave, protocol.PresenceAbsent:
			delete(p.members, m.MemberKey())
		}
		applied = append(applied, m)
	}
	return applied
}
