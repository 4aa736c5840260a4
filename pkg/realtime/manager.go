package realtime

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	perrors "github.com/vango-dev/pulse/internal/errors"
	"github.com/vango-dev/pulse/pkg/auth"
	"github.com/vango-dev/pulse/pkg/protocol"
)

// channelHandler is the part of the channel registry the manager calls.
// It is always called without the manager lock held.
type channelHandler interface {
	onChannelMessage(msg *protocol.ProtocolMessage)
	suspendAll(reason *protocol.ErrorInfo)
	reattachAll()
}

// stateRequest is a pending target state for the control loop.
type stateRequest struct {
	state  ConnectionState
	reason *protocol.ErrorInfo

	// host and fallback select a fallback host for a Connecting request.
	host     string
	fallback bool

	// renew asks the auth provider for new credentials first.
	renew bool
}

// completion is a listener to resolve once the lock is released.
type completion struct {
	l   CompletionListener
	err *protocol.ErrorInfo
}

// transition collects the side effects of a state change that must run
// outside the manager lock.
type transition struct {
	change    *ConnectionStateChange
	reason    *protocol.ErrorInfo
	completed []completion
	failed    []*QueuedMessage
	pings     []CompletionListener
	suspend   bool
	queued    int
	pending   int
}

// ConnectionManager owns the connection lifecycle: the state machine, the
// transport, the pre-send queue and the pending-ack queue.
//
// All state lives behind mu. A single control loop goroutine applies
// requested and indicated states and waits for state timeouts; it is started
// on demand and exits when there is nothing left to do. Listeners, channels
// and transports are only called with mu released.
type ConnectionManager struct {
	opts     *Options
	states   *stateTable
	logger   *slog.Logger
	clock    Clock
	observer Observer
	events   *emitter[ConnectionStateChange]
	channels channelHandler

	mu        sync.Mutex
	state     *stateInfo
	reason    *protocol.ErrorInfo
	deadline  time.Time
	requested *stateRequest
	indicated *stateRequest
	running   bool
	wake      chan struct{}

	transport       Transport
	fallbackAttempt bool
	renewAttempted  bool

	id          string
	key         string
	lastID      string
	serial      int64
	msgSerial   int64
	suspendTime time.Time

	queue   messageQueue
	pending *PendingAckQueue
	pings   []CompletionListener
}

// newConnectionManager creates a manager. opts must already have defaults
// applied.
func newConnectionManager(opts *Options) *ConnectionManager {
	logger := opts.Logger.With("component", "connection")
	states := newStateTable(opts)
	return &ConnectionManager{
		opts:     opts,
		states:   states,
		logger:   logger,
		clock:    opts.Clock,
		observer: opts.Observer,
		events:   newEmitter[ConnectionStateChange](logger, "connection state"),
		state:    states.info(ConnectionInitialized),
		wake:     make(chan struct{}, 1),
		serial:   -1,
		queue:    messageQueue{logger: logger},
		pending:  NewPendingAckQueue(0, logger),
	}
}

func (m *ConnectionManager) setChannels(h channelHandler) {
	m.channels = h
}

// State returns the current connection state.
func (m *ConnectionManager) State() ConnectionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.state
}

func (m *ConnectionManager) currentState() *stateInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// ErrorReason returns the reason attached to the current state, if any.
func (m *ConnectionManager) ErrorReason() *protocol.ErrorInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reason.Clone()
}

// ID returns the connection id assigned by the service, or "".
func (m *ConnectionManager) ID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.id
}

// Key returns the connection key assigned by the service, or "".
func (m *ConnectionManager) Key() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.key
}

// Serial returns the serial of the last channel message received, or -1.
func (m *ConnectionManager) Serial() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.serial
}

// QueueDepth returns the number of queued and unacknowledged envelopes.
func (m *ConnectionManager) QueueDepth() (queued, pending int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.queue.len(), m.pending.Len()
}

// Connect requests a connection. It returns immediately.
func (m *ConnectionManager) Connect() {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.state.state {
	case ConnectionConnected, ConnectionConnecting:
		if m.requested == nil {
			return
		}
	case ConnectionInitialized, ConnectionClosed, ConnectionFailed:
		m.suspendTime = m.clock.Now()
	}
	m.requestLocked(&stateRequest{state: ConnectionConnecting})
}

// Close requests the connection be closed. It returns immediately.
func (m *ConnectionManager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state.state == ConnectionClosed && m.requested == nil {
		return
	}
	m.requestLocked(&stateRequest{state: ConnectionClosed})
}

func (m *ConnectionManager) requestLocked(req *stateRequest) {
	m.requested = req
	m.ensureLoopLocked()
	m.signalLocked()
}

func (m *ConnectionManager) indicateLocked(req *stateRequest) {
	m.indicated = req
	m.ensureLoopLocked()
	m.signalLocked()
}

func (m *ConnectionManager) ensureLoopLocked() {
	if m.running {
		return
	}
	m.running = true
	go m.run()
}

func (m *ConnectionManager) signalLocked() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

// run is the control loop. Requests are handled before indications; with
// neither pending it waits for the current state to expire.
func (m *ConnectionManager) run() {
	for {
		m.mu.Lock()
		switch {
		case m.requested != nil:
			req := m.requested
			m.requested = nil
			m.mu.Unlock()
			m.handleRequest(req)

		case m.indicated != nil:
			ind := m.indicated
			m.indicated = nil
			m.mu.Unlock()
			m.applyState(ind, false)

		case !m.deadline.IsZero():
			deadline := m.deadline
			m.mu.Unlock()
			if m.waitUntil(deadline) {
				m.handleTimeout(deadline)
			}

		default:
			m.running = false
			m.mu.Unlock()
			return
		}
	}
}

// waitUntil blocks until deadline or a wake signal. It reports whether the
// deadline was reached.
func (m *ConnectionManager) waitUntil(deadline time.Time) bool {
	timer := m.clock.NewTimer(deadline)
	defer timer.Stop()

	select {
	case <-m.wake:
		return false
	case <-timer.C():
		return true
	}
}

func (m *ConnectionManager) handleTimeout(deadline time.Time) {
	m.mu.Lock()
	if !m.deadline.Equal(deadline) || m.requested != nil || m.indicated != nil {
		m.mu.Unlock()
		return
	}
	m.deadline = time.Time{}

	if m.state.retry {
		m.logger.Debug("retry timer expired", "state", m.state.state)
		m.requested = &stateRequest{state: ConnectionConnecting}
		m.mu.Unlock()
		return
	}
	if m.state.state != ConnectionConnecting {
		m.mu.Unlock()
		return
	}
	t := m.transport
	m.transport = nil
	m.mu.Unlock()

	reason := perrors.New(protocol.CodeConnectTimedOut)
	m.logger.Warn("connection attempt timed out", "timeout", m.opts.ConnectTimeout)
	if t != nil {
		t.Abort(reason)
	}
	m.checkSuspend(reason)
}

func (m *ConnectionManager) handleRequest(req *stateRequest) {
	switch req.state {
	case ConnectionConnecting:
		m.connect(req)
	case ConnectionClosed:
		m.stopTransport(req, func(t Transport) { t.Close(true) })
	case ConnectionFailed:
		m.stopTransport(req, func(t Transport) { t.Abort(req.reason) })
	default:
		m.applyState(req, true)
	}
}

// stopTransport detaches the current transport, stops it and enters the
// requested state. Indications from the old transport are discarded.
func (m *ConnectionManager) stopTransport(req *stateRequest, stop func(Transport)) {
	m.mu.Lock()
	t := m.transport
	m.transport = nil
	m.indicated = nil
	m.id = ""
	m.mu.Unlock()

	if t != nil {
		stop(t)
	}
	m.applyState(req, true)
}

// applyState enters the state described by req. A Disconnected indication
// during a connection attempt is a failed attempt and goes through
// checkSuspend instead.
func (m *ConnectionManager) applyState(req *stateRequest, requested bool) {
	m.mu.Lock()
	current := m.state.state
	if !requested {
		if m.state.terminal || req.state == current {
			m.mu.Unlock()
			return
		}
		if req.state == ConnectionDisconnected && current == ConnectionConnecting {
			m.mu.Unlock()
			m.checkSuspend(req.reason)
			return
		}
	}

	var stale Transport
	if req.state != ConnectionConnecting && req.state != ConnectionConnected {
		stale = m.transport
		m.transport = nil
	}
	tr := m.setStateLocked(req.state, req.reason)
	m.mu.Unlock()

	if stale != nil {
		stale.Abort(tr.reason)
	}
	m.finish(tr)
}

// connect starts a connection attempt on the primary host, or on req.host
// for a fallback attempt.
func (m *ConnectionManager) connect(req *stateRequest) {
	m.mu.Lock()
	if !req.fallback && !req.renew {
		switch {
		case m.state.state == ConnectionConnected:
			m.mu.Unlock()
			return
		case m.state.state == ConnectionConnecting && m.transport != nil:
			m.mu.Unlock()
			return
		}
	}

	host := m.opts.Host
	if req.fallback {
		host = req.host
	}
	old := m.transport
	m.transport = nil
	m.fallbackAttempt = req.fallback
	tr := m.setStateLocked(ConnectionConnecting, nil)
	m.mu.Unlock()

	if old != nil {
		old.Abort(perrors.New(protocol.CodeDisconnected))
	}
	m.finish(tr)

	creds, err := m.credentials(req.renew)
	if err != nil {
		m.logger.Warn("unable to obtain credentials", "error", err)
		if errors.Is(err, auth.ErrNoCredentials) || errors.Is(err, auth.ErrNotRenewable) {
			m.applyState(&stateRequest{state: ConnectionFailed, reason: perrors.Wrap(protocol.CodeUnauthorized, err)}, true)
			return
		}
		m.checkSuspend(perrors.Wrap(protocol.CodeConnectionFailed, err))
		return
	}

	clientID := m.opts.ClientID
	if clientID == "" {
		clientID = creds.ClientID
	}
	params := TransportParams{
		Host:        host,
		Port:        m.opts.Port,
		Insecure:    m.opts.Insecure,
		Fallback:    req.fallback,
		Format:      m.opts.Format,
		Credentials: creds,
		ClientID:    clientID,
		Echo:        m.opts.EchoMessages,
	}

	m.logger.Debug("connecting", "host", host, "fallback", req.fallback)
	m.observer.ConnectAttempt(host, req.fallback)

	t, err := m.opts.TransportFactory(params)
	if err != nil {
		m.logger.Warn("unable to create transport", "host", host, "error", err)
		m.checkSuspend(perrors.Wrap(protocol.CodeConnectionFailed, err))
		return
	}

	m.mu.Lock()
	if m.requested != nil || m.state.state != ConnectionConnecting {
		m.mu.Unlock()
		t.Abort(nil)
		return
	}
	m.transport = t
	m.mu.Unlock()

	t.Connect(m)
}

func (m *ConnectionManager) credentials(renew bool) (auth.Credentials, error) {
	p := m.opts.Auth
	if p == nil {
		return auth.Credentials{}, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), m.opts.ConnectTimeout)
	defer cancel()

	if renew {
		return p.Renew(ctx)
	}
	return p.Credentials(ctx)
}

// checkSuspend decides what follows a failed connection attempt: a fallback
// host if the primary looks down but the internet is up, otherwise
// Disconnected, or Suspended once the outage outlasts SuspendTimeout.
func (m *ConnectionManager) checkSuspend(reason *protocol.ErrorInfo) {
	m.mu.Lock()
	tryFallback := !m.fallbackAttempt && len(m.opts.FallbackHosts) > 0
	m.mu.Unlock()

	if tryFallback && m.probe() {
		hosts := m.opts.FallbackHosts
		host := hosts[m.opts.Random(len(hosts))]

		m.mu.Lock()
		if m.requested == nil && m.state.state == ConnectionConnecting {
			m.logger.Info("trying fallback host", "host", host, "reason", reason)
			m.requested = &stateRequest{state: ConnectionConnecting, host: host, fallback: true}
		}
		m.mu.Unlock()
		return
	}

	m.mu.Lock()
	if m.requested != nil || m.state.state != ConnectionConnecting {
		m.mu.Unlock()
		return
	}
	next := ConnectionDisconnected
	if m.clock.Now().Sub(m.suspendTime) > m.opts.SuspendTimeout {
		next, reason = ConnectionSuspended, nil
	}
	tr := m.setStateLocked(next, reason)
	m.mu.Unlock()

	m.finish(tr)
}

func (m *ConnectionManager) probe() bool {
	ctx, cancel := context.WithTimeout(context.Background(), m.opts.ConnectivityCheckTimeout)
	defer cancel()
	return m.opts.Connectivity.Check(ctx)
}

// setStateLocked enters state s and returns the effects to run once the
// lock is released. Entering a sending state flushes the pre-send queue;
// entering a state that can neither send nor queue fails all queued and
// pending messages.
func (m *ConnectionManager) setStateLocked(s ConnectionState, reason *protocol.ErrorInfo) *transition {
	info := m.states.info(s)
	if reason == nil {
		reason = info.defaultError.Clone()
	}
	prev := m.state
	m.state = info
	m.reason = reason
	if info.timeout > 0 {
		m.deadline = m.clock.Now().Add(info.timeout)
	} else {
		m.deadline = time.Time{}
	}

	tr := &transition{reason: reason}
	if prev.state != s {
		change := ConnectionStateChange{Previous: prev.state, Current: s, Reason: reason}
		if info.retry {
			change.RetryIn = info.timeout
		}
		tr.change = &change

		attrs := []any{"from", prev.state, "to", s}
		if reason != nil {
			attrs = append(attrs, "code", reason.Code, "reason", reason.Message)
		}
		m.logger.Info("connection state changed", attrs...)
	}

	if s != ConnectionConnected && len(m.pings) > 0 {
		tr.pings = m.pings
		m.pings = nil
	}

	switch {
	case info.sendEvents:
		tr.completed = m.flushLocked()
	case !info.queueEvents:
		tr.failed = append(m.pending.reset(m.msgSerial), m.queue.drain()...)
		tr.suspend = true
	}
	tr.queued, tr.pending = m.queue.len(), m.pending.Len()
	return tr
}

func (m *ConnectionManager) finish(tr *transition) {
	if tr == nil {
		return
	}
	if tr.change != nil {
		m.observer.ConnectionStateChanged(*tr.change)
		m.events.emit(*tr.change)
	}
	for _, c := range tr.completed {
		complete(m.logger, c.l, c.err)
	}

	reason := tr.reason
	if reason == nil {
		reason = perrors.New(protocol.CodeDisconnected)
	}
	for _, l := range tr.pings {
		complete(m.logger, l, reason)
	}
	if tr.suspend && m.channels != nil {
		m.channels.suspendAll(reason)
	}
	if len(tr.failed) > 0 {
		m.logger.Debug("failing queued messages", "count", len(tr.failed), "code", reason.Code)
		resolveAll(m.logger, tr.failed, reason)
	}
	m.observer.QueueDepth(tr.queued, tr.pending)
}

// flushLocked sends the pre-send queue in order.
func (m *ConnectionManager) flushLocked() []completion {
	if m.transport == nil {
		return nil
	}
	var done []completion
	for _, qm := range m.queue.drain() {
		if c, ok := m.sendLocked(qm); ok {
			done = append(done, c)
		}
	}
	return done
}

// sendLocked writes qm to the transport. Envelopes that need an ack get the
// next serial and join the pending queue; for the others it returns the
// completion to resolve once the lock is released.
func (m *ConnectionManager) sendLocked(qm *QueuedMessage) (completion, bool) {
	ack := qm.Msg.AckRequired()
	if ack {
		qm.Msg.MsgSerial = m.msgSerial
		m.msgSerial++
		m.pending.Push(qm)
	}
	qm.sent = true

	err := m.transport.Send(qm.Msg)
	if err != nil {
		m.logger.Warn("transport send failed", "msg", qm.Msg, "error", err)
	}
	m.observer.MessageSent(qm.Msg)

	if ack {
		return completion{}, false
	}
	c := completion{l: qm.Listener}
	if err != nil {
		c.err = perrors.Wrap(protocol.CodeDisconnected, err)
	}
	return c, true
}

// Send transmits msg, or queues it when the connection cannot send yet and
// queueEvents allows it. Envelopes that need an ack resolve listener when
// the service acks or nacks them; others resolve it once written. If the
// message can be neither sent nor queued, Send returns the state's error and
// does not call listener.
func (m *ConnectionManager) Send(msg *protocol.ProtocolMessage, queueEvents bool, listener CompletionListener) error {
	m.mu.Lock()
	state := m.state

	if state.sendEvents && m.transport != nil {
		c, ok := m.sendLocked(&QueuedMessage{Msg: msg, Listener: listener})
		m.mu.Unlock()
		if ok {
			complete(m.logger, c.l, c.err)
		}
		return nil
	}

	if queueEvents && state.active() {
		m.queue.push(msg, listener)
		queued, pending := m.queue.len(), m.pending.Len()
		m.mu.Unlock()
		m.observer.QueueDepth(queued, pending)
		return nil
	}

	err := m.stateErrorLocked()
	m.mu.Unlock()
	return err
}

// sendFirst sends msg now or puts it at the head of the pre-send queue.
func (m *ConnectionManager) sendFirst(msg *protocol.ProtocolMessage) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch {
	case m.state.sendEvents && m.transport != nil:
		m.sendLocked(&QueuedMessage{Msg: msg})
	case m.state.active():
		m.queue.pushFront(&QueuedMessage{Msg: msg})
	}
}

func (m *ConnectionManager) stateErrorLocked() *protocol.ErrorInfo {
	return m.state.err()
}

// Ping sends a heartbeat. listener is resolved when the service answers, or
// failed if the connection leaves the connected state first.
func (m *ConnectionManager) Ping(listener CompletionListener) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state.state != ConnectionConnected || m.transport == nil {
		return m.stateErrorLocked()
	}
	if err := m.transport.Send(protocol.NewProtocolMessage(protocol.ActionHeartbeat, "")); err != nil {
		return perrors.Wrap(protocol.CodeDisconnected, err)
	}
	m.pings = append(m.pings, listener)
	return nil
}

// OnStateChange registers fn for every connection state change.
func (m *ConnectionManager) OnStateChange(fn func(ConnectionStateChange)) (off func()) {
	return m.events.on(fn)
}

// OnTransportAvailable implements TransportListener.
func (m *ConnectionManager) OnTransportAvailable(t Transport) {
	m.mu.Lock()
	current := t == m.transport
	m.mu.Unlock()

	if !current {
		m.logger.Debug("stale transport became available", "host", t.Host())
		t.Abort(nil)
		return
	}
	m.logger.Debug("transport available", "host", t.Host())
}

// OnTransportUnavailable implements TransportListener.
func (m *ConnectionManager) OnTransportUnavailable(t Transport, reason *protocol.ErrorInfo) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if t != m.transport {
		return
	}
	m.transport = nil
	m.id = ""
	if reason == nil {
		reason = perrors.New(protocol.CodeDisconnected)
	}
	m.logger.Debug("transport unavailable", "host", t.Host(), "code", reason.Code)

	switch {
	case m.renewableLocked(reason):
		m.renewLocked()
	case reason.IsAuthError():
		m.indicateLocked(&stateRequest{state: ConnectionFailed, reason: reason})
	default:
		m.indicateLocked(&stateRequest{state: ConnectionDisconnected, reason: reason})
	}
}

// OnTransportMessage implements TransportListener.
func (m *ConnectionManager) OnTransportMessage(t Transport, msg *protocol.ProtocolMessage) {
	m.mu.Lock()
	current := t == m.transport
	m.mu.Unlock()

	if !current {
		m.logger.Debug("dropping message from stale transport", "msg", msg)
		return
	}
	m.onMessage(msg)
}

func (m *ConnectionManager) onMessage(msg *protocol.ProtocolMessage) {
	m.observer.MessageReceived(msg)

	switch msg.Action {
	case protocol.ActionHeartbeat:
		m.onHeartbeat()
	case protocol.ActionAck:
		m.onAck(msg)
	case protocol.ActionNack:
		m.onNack(msg)
	case protocol.ActionConnected:
		m.onConnected(msg)
	case protocol.ActionDisconnected:
		m.onDisconnected(msg)
	case protocol.ActionError:
		if msg.Channel != "" {
			m.dispatch(msg)
			return
		}
		m.onError(msg)
	case protocol.ActionAttach, protocol.ActionAttached,
		protocol.ActionDetach, protocol.ActionDetached,
		protocol.ActionMessage, protocol.ActionPresence:
		if msg.ConnectionSerial != nil {
			m.mu.Lock()
			m.serial = *msg.ConnectionSerial
			m.mu.Unlock()
		}
		m.dispatch(msg)
	default:
		m.logger.Warn("unexpected action", "action", msg.Action)
	}
}

func (m *ConnectionManager) dispatch(msg *protocol.ProtocolMessage) {
	if m.channels == nil {
		return
	}
	m.channels.onChannelMessage(msg)
}

func (m *ConnectionManager) onHeartbeat() {
	m.mu.Lock()
	pings := m.pings
	m.pings = nil
	m.mu.Unlock()

	for _, l := range pings {
		complete(m.logger, l, nil)
	}
}

func (m *ConnectionManager) onAck(msg *protocol.ProtocolMessage) {
	m.mu.Lock()
	acked, nacked := m.pending.ack(msg.MsgSerial, msg.Count)
	m.syncSerialLocked()
	queued, pending := m.queue.len(), m.pending.Len()
	m.mu.Unlock()

	if len(nacked) > 0 {
		m.observer.MessagesNacked(len(nacked))
		resolveAll(m.logger, nacked, nackReason(msg.Error))
	}
	m.observer.MessagesAcked(len(acked))
	resolveAll(m.logger, acked, nil)
	m.observer.QueueDepth(queued, pending)
}

func (m *ConnectionManager) onNack(msg *protocol.ProtocolMessage) {
	m.mu.Lock()
	nacked := m.pending.nack(msg.MsgSerial, msg.Count)
	m.syncSerialLocked()
	queued, pending := m.queue.len(), m.pending.Len()
	m.mu.Unlock()

	m.logger.Warn("messages nacked", "serial", msg.MsgSerial, "count", len(nacked), "reason", msg.Error)
	m.observer.MessagesNacked(len(nacked))
	resolveAll(m.logger, nacked, nackReason(msg.Error))
	m.observer.QueueDepth(queued, pending)
}

// syncSerialLocked moves msgSerial up to the pending queue's start serial
// after an ack or nack that ran past every sent envelope.
func (m *ConnectionManager) syncSerialLocked() {
	if start := m.pending.StartSerial(); m.msgSerial < start {
		m.msgSerial = start
	}
}

// onConnected starts a new connection generation. Unacknowledged envelopes
// go back to the head of the queue to be sent again with fresh serials, and
// channels re-attach when the service assigned a different connection.
func (m *ConnectionManager) onConnected(msg *protocol.ProtocolMessage) {
	m.mu.Lock()
	reattach := m.lastID != "" && m.lastID != msg.ConnectionID
	m.id = msg.ConnectionID
	m.key = msg.ConnectionKey
	m.lastID = msg.ConnectionID
	m.serial = -1
	m.suspendTime = m.clock.Now()
	m.renewAttempted = false
	m.queue.pushFront(m.pending.reset(0)...)
	m.msgSerial = 0
	// Already connected: the Connected indication below is a no-op, so the
	// requeued envelopes go out now, ahead of anything published later.
	var completed []completion
	if m.state.sendEvents {
		completed = m.flushLocked()
	}
	m.mu.Unlock()

	for _, c := range completed {
		complete(m.logger, c.l, c.err)
	}
	m.logger.Debug("connected", "id", msg.ConnectionID, "reattach", reattach)
	if reattach && m.channels != nil {
		m.channels.reattachAll()
	}

	m.mu.Lock()
	m.indicateLocked(&stateRequest{state: ConnectionConnected})
	m.mu.Unlock()
}

func (m *ConnectionManager) onDisconnected(msg *protocol.ProtocolMessage) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.id = ""
	switch {
	case m.renewableLocked(msg.Error):
		m.renewLocked()
	case msg.Error.IsTokenError():
		m.requestLocked(&stateRequest{state: ConnectionFailed, reason: msg.Error})
	default:
		m.indicateLocked(&stateRequest{state: ConnectionDisconnected, reason: msg.Error})
	}
}

func (m *ConnectionManager) onError(msg *protocol.ProtocolMessage) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.id = ""
	if m.renewableLocked(msg.Error) {
		m.renewLocked()
		return
	}
	reason := msg.Error
	if reason == nil {
		reason = perrors.New(protocol.CodeConnectionFailed)
	}
	m.logger.Error("connection error", "code", reason.Code, "reason", reason.Message)
	m.requestLocked(&stateRequest{state: ConnectionFailed, reason: reason})
}

// renewableLocked reports whether err is a token error that a single
// credential renewal may fix.
func (m *ConnectionManager) renewableLocked(err *protocol.ErrorInfo) bool {
	return err.IsTokenError() && !m.renewAttempted &&
		m.opts.Auth != nil && m.opts.Auth.CanRenew()
}

func (m *ConnectionManager) renewLocked() {
	m.logger.Info("renewing credentials after token error")
	m.renewAttempted = true
	m.requestLocked(&stateRequest{state: ConnectionConnecting, renew: true})
}
