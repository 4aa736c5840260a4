package protocol

import "fmt"

// ProtocolMessage is the envelope exchanged with the service. Every frame on
// the wire decodes to exactly one ProtocolMessage.
type ProtocolMessage struct {
	Action           Action             `json:"action"`
	Count            int                `json:"count,omitempty"`
	Error            *ErrorInfo         `json:"error,omitempty"`
	ID               string             `json:"id,omitempty"`
	Channel          string             `json:"channel,omitempty"`
	ChannelSerial    string             `json:"channelSerial,omitempty"`
	ConnectionID     string             `json:"connectionId,omitempty"`
	ConnectionKey    string             `json:"connectionKey,omitempty"`
	ConnectionSerial *int64             `json:"connectionSerial,omitempty"`
	MsgSerial        int64              `json:"msgSerial"`
	Timestamp        int64              `json:"timestamp,omitempty"`
	Messages         []*Message         `json:"messages,omitempty"`
	Presence         []*PresenceMessage `json:"presence,omitempty"`
}

// NewProtocolMessage creates an envelope with the given action and channel.
func NewProtocolMessage(action Action, channel string) *ProtocolMessage {
	return &ProtocolMessage{
		Action:  action,
		Channel: channel,
	}
}

// AckRequired reports whether the service acknowledges this envelope. Only
// MESSAGE and PRESENCE envelopes carry a msgSerial and are acked.
func (pm *ProtocolMessage) AckRequired() bool {
	return pm.Action == ActionMessage || pm.Action == ActionPresence
}

// CanMerge reports whether src may be folded into pm: same channel, same
// action, and an action whose payload is a list.
func (pm *ProtocolMessage) CanMerge(src *ProtocolMessage) bool {
	if pm == nil || src == nil {
		return false
	}
	if pm.Channel != src.Channel || pm.Action != src.Action {
		return false
	}
	return pm.Action == ActionMessage || pm.Action == ActionPresence
}

// Merge appends the payload of src to pm. It returns false and leaves pm
// untouched when the two envelopes are not mergeable.
func (pm *ProtocolMessage) Merge(src *ProtocolMessage) bool {
	if !pm.CanMerge(src) {
		return false
	}
	switch pm.Action {
	case ActionMessage:
		pm.Messages = append(pm.Messages, src.Messages...)
	case ActionPresence:
		pm.Presence = append(pm.Presence, src.Presence...)
	}
	return true
}

// String returns a compact description for logging.
func (pm *ProtocolMessage) String() string {
	if pm == nil {
		return "<nil>"
	}
	s := pm.Action.String()
	if pm.Channel != "" {
		s += " channel=" + pm.Channel
	}
	if pm.AckRequired() || pm.Action == ActionAck || pm.Action == ActionNack {
		s += fmt.Sprintf(" msgSerial=%d", pm.MsgSerial)
	}
	if pm.Count > 0 {
		s += fmt.Sprintf(" count=%d", pm.Count)
	}
	if n := len(pm.Messages); n > 0 {
		s += fmt.Sprintf(" messages=%d", n)
	}
	if n := len(pm.Presence); n > 0 {
		s += fmt.Sprintf(" presence=%d", n)
	}
	if pm.Error != nil {
		s += fmt.Sprintf(" error=%d", pm.Error.Code)
	}
	return s
}

// Message is one published item on a channel.
type Message struct {
	ID           string         `json:"id,omitempty"`
	ClientID     string         `json:"clientId,omitempty"`
	ConnectionID string         `json:"connectionId,omitempty"`
	Name         string         `json:"name,omitempty"`
	Data         any            `json:"data,omitempty"`
	Encoding     string         `json:"encoding,omitempty"`
	Timestamp    int64          `json:"timestamp,omitempty"`
	Extras       map[string]any `json:"extras,omitempty"`
}

// NewMessage creates a message with an event name and payload.
func NewMessage(name string, data any) *Message {
	return &Message{Name: name, Data: data}
}

// Clone returns a shallow copy, so encoding can run without touching the
// caller's value.
func (m *Message) Clone() *Message {
	if m == nil {
		return nil
	}
	c := *m
	return &c
}

// PresenceMessage reports one client's presence on a channel.
type PresenceMessage struct {
	ID           string         `json:"id,omitempty"`
	Action       PresenceAction `json:"action"`
	ClientID     string         `json:"clientId,omitempty"`
	ConnectionID string         `json:"connectionId,omitempty"`
	Data         any            `json:"data,omitempty"`
	Encoding     string         `json:"encoding,omitempty"`
	Timestamp    int64          `json:"timestamp,omitempty"`
}

// Clone returns a shallow copy.
func (p *PresenceMessage) Clone() *PresenceMessage {
	if p == nil {
		return nil
	}
	c := *p
	return &c
}

// MemberKey identifies the member a presence message refers to.
func (p *PresenceMessage) MemberKey() string {
	return p.ClientID
}
