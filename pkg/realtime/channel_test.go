package realtime

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vango-dev/pulse/pkg/protocol"
)

func TestChannel_PublishBeforeAttach(t *testing.T) {
	h := newHarness(t, nil)
	ft := h.connect("conn-1")
	ch := h.client.Channels.Get("demo")

	out := newOutcome()
	if err := ch.Publish("greeting", "hello", out); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if ch.State() != ChannelAttaching {
		t.Errorf("state = %s, want attaching", ch.State())
	}
	ft.expectSent(t, protocol.ActionAttach)
	ft.expectNothingSent(t)

	ft.receive(&protocol.ProtocolMessage{Action: protocol.ActionAttached, Channel: "demo", ChannelSerial: "1"})
	if ch.State() != ChannelAttached {
		t.Fatalf("state = %s, want attached", ch.State())
	}
	if s := ch.AttachSerial(); s != "1" {
		t.Errorf("AttachSerial() = %q", s)
	}

	msg := ft.expectSent(t, protocol.ActionMessage)
	if msg.Channel != "demo" || msg.MsgSerial != 0 {
		t.Errorf("sent %s serial %d", msg, msg.MsgSerial)
	}
	if len(msg.Messages) != 1 || msg.Messages[0].Name != "greeting" || msg.Messages[0].Data != "hello" {
		t.Errorf("unexpected payload %+v", msg.Messages)
	}
	if out.resolved() {
		t.Fatal("listener resolved before ACK")
	}

	ft.receive(&protocol.ProtocolMessage{Action: protocol.ActionAck, MsgSerial: 0, Count: 1})
	if err := out.wait(t); err != nil {
		t.Errorf("publish failed: %v", err)
	}
}

func TestChannel_PublishMergesWhileAttaching(t *testing.T) {
	h := newHarness(t, nil)
	ft := h.connect("conn-1")
	ch := h.client.Channels.Get("demo")
	if err := ch.Attach(); err != nil {
		t.Fatal(err)
	}
	ft.expectSent(t, protocol.ActionAttach)

	outs := []*outcome{newOutcome(), newOutcome(), newOutcome()}
	for i, o := range outs {
		if err := ch.Publish("n", string(rune('a'+i)), o); err != nil {
			t.Fatal(err)
		}
	}
	ft.expectNothingSent(t)

	ft.receive(&protocol.ProtocolMessage{Action: protocol.ActionAttached, Channel: "demo"})
	msg := ft.expectSent(t, protocol.ActionMessage)
	if len(msg.Messages) != 3 {
		t.Fatalf("expected one envelope with 3 messages, got %d", len(msg.Messages))
	}
	for i, m := range msg.Messages {
		if want := string(rune('a' + i)); m.Data != want {
			t.Errorf("message %d data = %v, want %s", i, m.Data, want)
		}
	}
	ft.expectNothingSent(t)

	ft.receive(&protocol.ProtocolMessage{Action: protocol.ActionAck, MsgSerial: msg.MsgSerial, Count: 1})
	for i, o := range outs {
		if err := o.wait(t); err != nil {
			t.Errorf("listener %d: %v", i, err)
		}
	}
}

func TestChannel_Nack(t *testing.T) {
	h := newHarness(t, nil)
	ft := h.connect("conn-1")
	ch := h.attach(ft, "demo")

	out := newOutcome()
	ch.Publish("n", "x", out)
	msg := ft.expectSent(t, protocol.ActionMessage)

	ft.receive(&protocol.ProtocolMessage{
		Action:    protocol.ActionNack,
		MsgSerial: msg.MsgSerial,
		Count:     1,
		Error:     protocol.NewErrorInfo(40160, 401, "not permitted"),
	})
	if err := out.wait(t); err == nil || err.Code != 40160 {
		t.Errorf("expected nack error 40160, got %v", err)
	}
	if h.client.Connection.State() != ConnectionConnected {
		t.Error("a nack must not affect the connection")
	}
}

func TestChannel_PublishStateGuard(t *testing.T) {
	tests := []struct {
		name  string
		enter func(ft *fakeTransport)
		want  ChannelState
	}{
		{
			name: "detached",
			enter: func(ft *fakeTransport) {
				ft.receive(&protocol.ProtocolMessage{Action: protocol.ActionDetached, Channel: "demo"})
			},
			want: ChannelDetached,
		},
		{
			name: "failed",
			enter: func(ft *fakeTransport) {
				ft.receive(&protocol.ProtocolMessage{
					Action:  protocol.ActionError,
					Channel: "demo",
					Error:   protocol.NewErrorInfo(40160, 401, "not permitted"),
				})
			},
			want: ChannelFailed,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, nil)
			ft := h.connect("conn-1")
			ch := h.attach(ft, "demo")

			tt.enter(ft)
			if ch.State() != tt.want {
				t.Fatalf("state = %s, want %s", ch.State(), tt.want)
			}

			out := newOutcome()
			err := ch.Publish("n", "x", out)
			var ei *protocol.ErrorInfo
			if !errors.As(err, &ei) || ei.Code != protocol.CodeChannelState {
				t.Errorf("expected code %d, got %v", protocol.CodeChannelState, err)
			}
			ft.expectNothingSent(t)
			if out.resolved() {
				t.Error("listener must not be called for a rejected publish")
			}
		})
	}
}

func TestChannel_ErrorKeepsConnection(t *testing.T) {
	h := newHarness(t, nil)
	ft := h.connect("conn-1")
	ch := h.client.Channels.Get("demo")

	queued := newOutcome()
	ch.Publish("n", "x", queued)
	ft.expectSent(t, protocol.ActionAttach)

	var changes []ChannelStateChange
	ch.OnStateChange(func(c ChannelStateChange) { changes = append(changes, c) })

	denied := protocol.NewErrorInfo(40160, 401, "channel denied")
	ft.receive(&protocol.ProtocolMessage{Action: protocol.ActionError, Channel: "demo", Error: denied})

	if ch.State() != ChannelFailed {
		t.Fatalf("state = %s, want failed", ch.State())
	}
	if reason := ch.ErrorReason(); reason == nil || reason.Code != 40160 {
		t.Errorf("ErrorReason() = %v", reason)
	}
	if err := queued.wait(t); err == nil || err.Code != 40160 {
		t.Errorf("queued publish: got %v", err)
	}
	if len(changes) != 1 || changes[0].Previous != ChannelAttaching || changes[0].Current != ChannelFailed {
		t.Errorf("changes = %+v", changes)
	}
	if h.client.Connection.State() != ConnectionConnected {
		t.Errorf("connection state = %s", h.client.Connection.State())
	}
	if err := ch.Detach(); err == nil {
		t.Error("expected Detach to fail on a failed channel")
	}

	// A failed channel can attach again.
	if err := ch.Attach(); err != nil {
		t.Fatalf("re-attach: %v", err)
	}
	ft.expectSent(t, protocol.ActionAttach)
}

func TestChannel_DetachFailsQueued(t *testing.T) {
	h := newHarness(t, nil)
	ft := h.connect("conn-1")
	ch := h.client.Channels.Get("demo")

	queued := newOutcome()
	ch.Publish("n", "x", queued)
	ft.expectSent(t, protocol.ActionAttach)

	if err := ch.Detach(); err != nil {
		t.Fatal(err)
	}
	ft.expectSent(t, protocol.ActionDetach)
	if ch.State() != ChannelDetaching {
		t.Errorf("state = %s, want detaching", ch.State())
	}
	if err := queued.wait(t); err == nil || err.Code != protocol.CodeChannelDetached {
		t.Errorf("queued publish: got %v", err)
	}

	ft.receive(&protocol.ProtocolMessage{Action: protocol.ActionDetached, Channel: "demo"})
	if ch.State() != ChannelDetached {
		t.Errorf("state = %s, want detached", ch.State())
	}
	// ATTACHED after DETACHED is stale.
	ft.receive(&protocol.ProtocolMessage{Action: protocol.ActionAttached, Channel: "demo"})
	if ch.State() != ChannelDetached {
		t.Errorf("state = %s after stale ATTACHED", ch.State())
	}
}

func TestChannel_AttachRequiresActiveConnection(t *testing.T) {
	h := newHarness(t, nil)
	h.connect("conn-1")
	h.client.Connection.Close()
	h.waitState(ConnectionClosed)

	err := h.client.Channels.Get("demo").Attach()
	var ei *protocol.ErrorInfo
	if !errors.As(err, &ei) || ei.Code != protocol.CodeConnectionClosed {
		t.Errorf("expected code %d, got %v", protocol.CodeConnectionClosed, err)
	}
}

func TestChannel_AttachContext(t *testing.T) {
	h := newHarness(t, nil)
	ft := h.connect("conn-1")
	ch := h.client.Channels.Get("demo")

	result := make(chan error, 1)
	go func() { result <- ch.AttachContext(context.Background()) }()

	ft.expectSent(t, protocol.ActionAttach)
	ft.receive(&protocol.ProtocolMessage{Action: protocol.ActionAttached, Channel: "demo"})

	select {
	case err := <-result:
		if err != nil {
			t.Errorf("AttachContext: %v", err)
		}
	case <-time.After(waitTimeout):
		t.Fatal("AttachContext did not return")
	}
}

func TestChannel_PublishContext(t *testing.T) {
	h := newHarness(t, nil)
	ft := h.connect("conn-1")
	ch := h.attach(ft, "demo")

	result := make(chan error, 1)
	go func() {
		result <- ch.PublishContext(context.Background(), protocol.NewMessage("a", "1"), protocol.NewMessage("b", "2"))
	}()

	msg := ft.expectSent(t, protocol.ActionMessage)
	if len(msg.Messages) != 2 {
		t.Errorf("expected a batch of 2, got %d", len(msg.Messages))
	}
	ft.receive(&protocol.ProtocolMessage{Action: protocol.ActionAck, MsgSerial: msg.MsgSerial, Count: 1})

	select {
	case err := <-result:
		if err != nil {
			t.Errorf("PublishContext: %v", err)
		}
	case <-time.After(waitTimeout):
		t.Fatal("PublishContext did not return")
	}
}

func TestChannel_PublishValidation(t *testing.T) {
	h := newHarness(t, nil)
	ch := h.client.Channels.Get("demo")

	if err := ch.PublishMessages(nil, nil); err == nil {
		t.Error("expected an error for an empty batch")
	}
	if err := ch.PublishMessages([]*protocol.Message{nil}, nil); err == nil {
		t.Error("expected an error for a nil message")
	}
	if err := ch.Publish("n", make(chan int), nil); err == nil {
		t.Error("expected an error for unsupported data")
	}
	if ch.State() != ChannelInitialized {
		t.Errorf("rejected publishes must not attach, state = %s", ch.State())
	}
}

func TestChannel_Subscribe(t *testing.T) {
	h := newHarness(t, nil)
	ft := h.connect("conn-1")
	ch := h.client.Channels.Get("demo")

	var all, named []*protocol.Message
	if _, err := ch.Subscribe(func(*protocol.Message) { panic("listener bug") }); err != nil {
		t.Fatal(err)
	}
	sub, err := ch.Subscribe(func(m *protocol.Message) { all = append(all, m) })
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ch.Subscribe(func(m *protocol.Message) { named = append(named, m) }, "b"); err != nil {
		t.Fatal(err)
	}

	ft.expectSent(t, protocol.ActionAttach)
	ft.expectNothingSent(t)
	ft.receive(&protocol.ProtocolMessage{Action: protocol.ActionAttached, Channel: "demo"})

	serial := int64(7)
	ft.receive(&protocol.ProtocolMessage{
		Action:           protocol.ActionMessage,
		Channel:          "demo",
		ID:               "env",
		ConnectionID:     "publisher",
		ConnectionSerial: &serial,
		Timestamp:        1700000000000,
		Messages: []*protocol.Message{
			{Name: "a", Data: "1"},
			{Name: "b", Data: `{"n":2}`, Encoding: "json"},
		},
	})

	if len(all) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(all))
	}
	if all[0].ID != "env:0" || all[1].ID != "env:1" {
		t.Errorf("ids = %q, %q", all[0].ID, all[1].ID)
	}
	if all[0].ConnectionID != "publisher" || all[0].Timestamp != 1700000000000 {
		t.Errorf("envelope fields not copied: %+v", all[0])
	}
	if data, ok := all[1].Data.(map[string]any); !ok || data["n"] != float64(2) {
		t.Errorf("decoded data = %#v", all[1].Data)
	}
	if all[1].Encoding != "" {
		t.Errorf("encoding = %q, want empty", all[1].Encoding)
	}
	if len(named) != 1 || named[0].Name != "b" {
		t.Errorf("named listener got %d messages", len(named))
	}
	if s := h.client.Connection.Serial(); s != 7 {
		t.Errorf("connection serial = %d, want 7", s)
	}

	sub.Unsubscribe()
	ft.receive(&protocol.ProtocolMessage{
		Action:   protocol.ActionMessage,
		Channel:  "demo",
		Messages: []*protocol.Message{{Name: "a", Data: "again"}},
	})
	if len(all) != 2 {
		t.Errorf("unsubscribed listener received %d messages", len(all))
	}
}

func TestChannels_Registry(t *testing.T) {
	h := newHarness(t, nil)
	ft := h.connect("conn-1")
	cs := h.client.Channels

	a := h.attach(ft, "a")
	if cs.Get("a") != a {
		t.Error("Get should return the existing channel")
	}
	cs.Get("b")
	if names := cs.Names(); len(names) != 2 || names[0] != "a" || names[1] != "b" {
		t.Errorf("Names() = %v", names)
	}

	cs.Release("a")
	ft.expectSent(t, protocol.ActionDetach)
	if cs.Exists("a") {
		t.Error("released channel should be gone")
	}
	if err := a.Attach(); !errors.Is(err, ErrChannelReleased) {
		t.Errorf("Attach on released channel: %v", err)
	}
	if cs.Get("a") == a {
		t.Error("Get after Release should create a new channel")
	}

	// Messages for unknown channels are dropped.
	ft.receive(&protocol.ProtocolMessage{Action: protocol.ActionMessage, Channel: "nope"})
}
