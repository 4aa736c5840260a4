// Package transport implements the realtime transport over WebSocket.
//
// NewFactory returns a realtime.TransportFactory; each connection attempt
// dials one WebSocket, reads frames on its own goroutine and reports them
// to the connection manager:
//
//	opts := realtime.DefaultOptions()
//	opts.TransportFactory = transport.NewFactory(transport.Config{})
//
// JSON envelopes travel as text frames and CBOR envelopes as binary frames.
package transport
