// Package realtime implements the connection and channel state machines of
// the Pulse realtime client.
//
// A Client owns one Connection to the service and a registry of Channels
// multiplexed over it. The connection moves through the states
// initialized, connecting, connected, disconnected, suspended, closed and
// failed. Each state decides whether outgoing messages are sent at once,
// queued until the connection returns, or rejected:
//
//	state         queue  send  retry  timeout
//	initialized   yes    no    no     -
//	connecting    yes    no    no     ConnectTimeout
//	connected     no     yes   no     -
//	disconnected  yes    no    yes    DisconnectedRetryTimeout
//	suspended     no     no    yes    SuspendedRetryTimeout
//	closed        no     no    no     -
//	failed        no     no    no     -
//
// A failed connection attempt is retried on a random fallback host when the
// primary host looks down but a connectivity check passes. Otherwise the
// connection waits in disconnected, or in suspended once it has been
// unavailable for longer than SuspendTimeout. Entering suspended, closed or
// failed fails every queued message and detaches every channel.
//
// Messages that need an acknowledgement (MESSAGE and PRESENCE) carry a
// msgSerial that starts at 0 on every new connection. They stay in a
// pending queue until the service acks or nacks their serial range, and are
// sent again with fresh serials if the connection is replaced first.
//
// # Usage
//
//	client, err := realtime.NewClient(realtime.DefaultOptions().
//	    WithTransportFactory(transport.NewFactory(nil)).
//	    WithAuth(provider))
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	ch := client.Channels.Get("demo")
//	ch.Subscribe(func(msg *protocol.Message) {
//	    fmt.Println(msg.Name, msg.Data)
//	})
//	err = ch.PublishContext(ctx, protocol.NewMessage("greeting", "hello"))
//
// # Listeners
//
// Completion, message, presence and state listeners are called on the
// goroutine that processed the event, never with an internal lock held. A
// panicking listener is recovered and logged; the remaining listeners still
// run.
package realtime
