// Package protocol defines the envelope exchanged with the realtime service
// and the codecs that put it on the wire.
//
// Every frame carries one ProtocolMessage. The Action field says what the
// frame means; MESSAGE and PRESENCE frames carry batches of Message and
// PresenceMessage values and are acknowledged by msgSerial.
//
// # Actions
//
//   - HEARTBEAT: keepalive, also answers a client ping
//   - CONNECTED / DISCONNECTED: connection lifecycle, sent by the service
//   - ERROR: fatal for the connection, or for one channel when Channel is set
//   - ATTACH / ATTACHED, DETACH / DETACHED: channel lifecycle
//   - MESSAGE, PRESENCE: payload batches (ack required)
//   - ACK / NACK: outcome for Count envelopes starting at MsgSerial
//
// # Wire Formats
//
// FormatJSON sends text frames with JSON. FormatBinary sends binary frames
// with CBOR. Both use the same field names.
//
// # Payload Encoding
//
// Message data may be a string, a byte slice, or any JSON/CBOR-serializable
// value. EncodeData records every transformation in the Encoding field
// ("json/cipher+aes-256-cbc/base64") so DecodeData can unwind it:
//
//	data, enc, err := protocol.EncodeData(map[string]any{"n": 1}, "", nil, protocol.FormatJSON)
//	// data == `{"n":1}`, enc == "json"
//
// # Merging
//
// Two queued MESSAGE (or PRESENCE) envelopes for the same channel can be
// merged into one by concatenating their payload lists; see
// ProtocolMessage.Merge.
package protocol
