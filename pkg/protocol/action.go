package protocol

// Action identifies what a ProtocolMessage asks for or reports.
type Action uint8

const (
	ActionHeartbeat    Action = 0
	ActionAck          Action = 1
	ActionNack         Action = 2
	ActionConnected    Action = 4
	ActionDisconnected Action = 6
	ActionError        Action = 9
	ActionAttach       Action = 10
	ActionAttached     Action = 11
	ActionDetach       Action = 12
	ActionDetached     Action = 13
	ActionPresence     Action = 14
	ActionMessage      Action = 15
)

// String returns the string representation of the action.
func (a Action) String() string {
	switch a {
	case ActionHeartbeat:
		return "HEARTBEAT"
	case ActionAck:
		return "ACK"
	case ActionNack:
		return "NACK"
	case ActionConnected:
		return "CONNECTED"
	case ActionDisconnected:
		return "DISCONNECTED"
	case ActionError:
		return "ERROR"
	case ActionAttach:
		return "ATTACH"
	case ActionAttached:
		return "ATTACHED"
	case ActionDetach:
		return "DETACH"
	case ActionDetached:
		return "DETACHED"
	case ActionPresence:
		return "PRESENCE"
	case ActionMessage:
		return "MESSAGE"
	default:
		return "UNKNOWN"
	}
}

// Valid reports whether a is one of the defined actions.
func (a Action) Valid() bool {
	switch a {
	case ActionHeartbeat, ActionAck, ActionNack, ActionConnected,
		ActionDisconnected, ActionError, ActionAttach, ActionAttached,
		ActionDetach, ActionDetached, ActionPresence, ActionMessage:
		return true
	}
	return false
}

// PresenceAction identifies a presence transition for one client.
type PresenceAction uint8

const (
	PresenceAbsent  PresenceAction = 0
	PresencePresent PresenceAction = 1
	PresenceEnter   PresenceAction = 2
	PresenceLeave   PresenceAction = 3
	PresenceUpdate  PresenceAction = 4
)

// String returns the string representation of the presence action.
func (a PresenceAction) String() string {
	switch a {
	case PresenceAbsent:
		return "absent"
	case PresencePresent:
		return "present"
	case PresenceEnter:
		return "enter"
	case PresenceLeave:
		return "leave"
	case PresenceUpdate:
		return "update"
	default:
		return "unknown"
	}
}
