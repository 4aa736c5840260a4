package protocol

import "testing"

func TestAckRequired(t *testing.T) {
	tests := []struct {
		action Action
		want   bool
	}{
		{ActionMessage, true},
		{ActionPresence, true},
		{ActionAttach, false},
		{ActionDetach, false},
		{ActionHeartbeat, false},
		{ActionAck, false},
		{ActionNack, false},
		{ActionConnected, false},
	}

	for _, tc := range tests {
		t.Run(tc.action.String(), func(t *testing.T) {
			pm := NewProtocolMessage(tc.action, "ch")
			if got := pm.AckRequired(); got != tc.want {
				t.Errorf("AckRequired() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestMerge(t *testing.T) {
	msg := func(channel, name string) *ProtocolMessage {
		pm := NewProtocolMessage(ActionMessage, channel)
		pm.Messages = []*Message{NewMessage(name, nil)}
		return pm
	}

	t.Run("same_channel_messages", func(t *testing.T) {
		dst := msg("a", "one")
		if !dst.Merge(msg("a", "two")) {
			t.Fatal("Merge() = false, want true")
		}
		if len(dst.Messages) != 2 {
			t.Fatalf("len(Messages) = %d, want 2", len(dst.Messages))
		}
		if dst.Messages[1].Name != "two" {
			t.Errorf("Messages[1].Name = %q, want two", dst.Messages[1].Name)
		}
	})

	t.Run("different_channel", func(t *testing.T) {
		dst := msg("a", "one")
		if dst.Merge(msg("b", "two")) {
			t.Error("Merge() across channels = true, want false")
		}
		if len(dst.Messages) != 1 {
			t.Errorf("len(Messages) = %d, want 1", len(dst.Messages))
		}
	})

	t.Run("different_action", func(t *testing.T) {
		dst := msg("a", "one")
		src := NewProtocolMessage(ActionPresence, "a")
		src.Presence = []*PresenceMessage{{Action: PresenceEnter, ClientID: "c"}}
		if dst.Merge(src) {
			t.Error("Merge() MESSAGE+PRESENCE = true, want false")
		}
	})

	t.Run("presence", func(t *testing.T) {
		dst := NewProtocolMessage(ActionPresence, "a")
		dst.Presence = []*PresenceMessage{{Action: PresenceEnter, ClientID: "x"}}
		src := NewProtocolMessage(ActionPresence, "a")
		src.Presence = []*PresenceMessage{{Action: PresenceEnter, ClientID: "y"}}
		if !dst.Merge(src) {
			t.Fatal("Merge() = false, want true")
		}
		if len(dst.Presence) != 2 {
			t.Errorf("len(Presence) = %d, want 2", len(dst.Presence))
		}
	})

	t.Run("attach_never_merges", func(t *testing.T) {
		dst := NewProtocolMessage(ActionAttach, "a")
		if dst.Merge(NewProtocolMessage(ActionAttach, "a")) {
			t.Error("Merge() ATTACH = true, want false")
		}
	})
}

func TestProtocolMessageString(t *testing.T) {
	pm := NewProtocolMessage(ActionMessage, "demo")
	pm.MsgSerial = 3
	pm.Messages = []*Message{NewMessage("e", "hello")}

	want := "MESSAGE channel=demo msgSerial=3 messages=1"
	if got := pm.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}
