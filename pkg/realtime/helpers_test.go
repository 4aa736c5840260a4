package realtime

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vango-dev/pulse/pkg/protocol"
)

const waitTimeout = 2 * time.Second

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeTransport records outbound messages and lets tests inject inbound
// events as if they came from the service.
type fakeTransport struct {
	params    TransportParams
	connected chan struct{}
	sentCh    chan *protocol.ProtocolMessage

	mu       sync.Mutex
	listener TransportListener
	closed   bool
	aborted  bool
}

func newFakeTransport(params TransportParams) *fakeTransport {
	return &fakeTransport{
		params:    params,
		connected: make(chan struct{}),
		sentCh:    make(chan *protocol.ProtocolMessage, 1024),
	}
}

func (f *fakeTransport) Connect(l TransportListener) {
	f.mu.Lock()
	f.listener = l
	f.mu.Unlock()
	close(f.connected)
}

func (f *fakeTransport) Send(msg *protocol.ProtocolMessage) error {
	f.sentCh <- msg
	return nil
}

func (f *fakeTransport) Close(bool) {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
}

func (f *fakeTransport) Abort(*protocol.ErrorInfo) {
	f.mu.Lock()
	f.aborted = true
	f.mu.Unlock()
}

func (f *fakeTransport) Host() string { return f.params.Host }

func (f *fakeTransport) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeTransport) isAborted() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.aborted
}

func (f *fakeTransport) l() TransportListener {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listener
}

func (f *fakeTransport) available() {
	f.l().OnTransportAvailable(f)
}

func (f *fakeTransport) receive(msg *protocol.ProtocolMessage) {
	f.l().OnTransportMessage(f, msg)
}

func (f *fakeTransport) drop(reason *protocol.ErrorInfo) {
	f.l().OnTransportUnavailable(f, reason)
}

func (f *fakeTransport) expectSent(t *testing.T, action protocol.Action) *protocol.ProtocolMessage {
	t.Helper()
	select {
	case msg := <-f.sentCh:
		if msg.Action != action {
			t.Fatalf("expected %s to be sent, got %s", action, msg)
		}
		return msg
	case <-time.After(waitTimeout):
		t.Fatalf("timed out waiting for %s", action)
		return nil
	}
}

func (f *fakeTransport) expectNothingSent(t *testing.T) {
	t.Helper()
	select {
	case msg := <-f.sentCh:
		t.Fatalf("expected nothing to be sent, got %s", msg)
	case <-time.After(20 * time.Millisecond):
	}
}

// harness wires a client to fake transports, a manual clock and a
// scriptable connectivity check.
type harness struct {
	t          *testing.T
	clock      *ManualClock
	transports chan *fakeTransport
	online     atomic.Bool
	probes     atomic.Int32
	client     *Client
}

func newHarness(t *testing.T, configure func(*Options)) *harness {
	t.Helper()
	h := &harness{
		t:          t,
		clock:      NewManualClock(time.Unix(1700000000, 0)),
		transports: make(chan *fakeTransport, 16),
	}

	opts := DefaultOptions()
	opts.AutoConnect = false
	opts.FallbackHosts = nil
	opts.Clock = h.clock
	opts.Logger = discardLogger()
	opts.Connectivity = ConnectivityFunc(func(context.Context) bool {
		h.probes.Add(1)
		return h.online.Load()
	})
	opts.TransportFactory = func(p TransportParams) (Transport, error) {
		ft := newFakeTransport(p)
		h.transports <- ft
		return ft, nil
	}
	if configure != nil {
		configure(opts)
	}

	client, err := NewClient(opts)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	h.client = client
	t.Cleanup(client.Close)
	return h
}

// nextTransport returns the next transport the client connects with.
func (h *harness) nextTransport() *fakeTransport {
	h.t.Helper()
	select {
	case ft := <-h.transports:
		select {
		case <-ft.connected:
		case <-time.After(waitTimeout):
			h.t.Fatal("transport was never connected")
		}
		return ft
	case <-time.After(waitTimeout):
		h.t.Fatal("timed out waiting for a transport")
		return nil
	}
}

// establish completes the handshake on ft.
func (h *harness) establish(ft *fakeTransport, id string) {
	h.t.Helper()
	ft.available()
	ft.receive(&protocol.ProtocolMessage{
		Action:        protocol.ActionConnected,
		ConnectionID:  id,
		ConnectionKey: id + "-key",
	})
	h.waitState(ConnectionConnected)
}

// connect connects the client and completes the handshake.
func (h *harness) connect(id string) *fakeTransport {
	h.t.Helper()
	h.client.Connection.Connect()
	ft := h.nextTransport()
	h.establish(ft, id)
	return ft
}

func (h *harness) waitState(want ConnectionState) {
	h.t.Helper()
	waitFor(h.t, func() bool { return h.client.Connection.State() == want },
		"connection state %s (have %s)", want, h.client.Connection.State())
}

// attach attaches name over ft and waits until it is attached.
func (h *harness) attach(ft *fakeTransport, name string) *Channel {
	h.t.Helper()
	ch := h.client.Channels.Get(name)
	if err := ch.Attach(); err != nil {
		h.t.Fatalf("Attach: %v", err)
	}
	ft.expectSent(h.t, protocol.ActionAttach)
	ft.receive(&protocol.ProtocolMessage{Action: protocol.ActionAttached, Channel: name, ChannelSerial: "1"})
	waitChannelState(h.t, ch, ChannelAttached)
	return ch
}

func waitChannelState(t *testing.T, ch *Channel, want ChannelState) {
	t.Helper()
	waitFor(t, func() bool { return ch.State() == want },
		"channel state %s (have %s)", want, ch.State())
}

func waitFor(t *testing.T, cond func() bool, format string, args ...any) {
	t.Helper()
	deadline := time.Now().Add(waitTimeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for "+format, args...)
}

// outcome records how a completion listener was resolved.
type outcome struct {
	mu    sync.Mutex
	calls int
	err   *protocol.ErrorInfo
	done  chan struct{}
}

func newOutcome() *outcome {
	return &outcome{done: make(chan struct{})}
}

func (o *outcome) OnComplete(err *protocol.ErrorInfo) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls++
	o.err = err
	if o.calls == 1 {
		close(o.done)
	}
}

func (o *outcome) resolved() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.calls > 0
}

// wait blocks until the listener is resolved and returns its error.
func (o *outcome) wait(t *testing.T) *protocol.ErrorInfo {
	t.Helper()
	select {
	case <-o.done:
	case <-time.After(waitTimeout):
		t.Fatal("listener was never resolved")
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.calls != 1 {
		t.Errorf("listener resolved %d times", o.calls)
	}
	return o.err
}

// stateRecorder collects connection state changes.
type stateRecorder struct {
	mu      sync.Mutex
	changes []ConnectionStateChange
}

func recordStates(c *Connection) *stateRecorder {
	r := &stateRecorder{}
	c.On(func(change ConnectionStateChange) {
		r.mu.Lock()
		r.changes = append(r.changes, change)
		r.mu.Unlock()
	})
	return r
}

func (r *stateRecorder) states() []ConnectionState {
	r.mu.Lock()
	defer r.mu.Unlock()
	states := make([]ConnectionState, len(r.changes))
	for i, c := range r.changes {
		states[i] = c.Current
	}
	return states
}

func (r *stateRecorder) last() ConnectionStateChange {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.changes) == 0 {
		return ConnectionStateChange{}
	}
	return r.changes[len(r.changes)-1]
}
