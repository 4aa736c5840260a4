package sandbox

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vango-dev/pulse/pkg/protocol"
)

const writeWait = 10 * time.Second

// conn is one client's socket.
type conn struct {
	id       string
	key      string
	clientID string
	echo     bool
	format   protocol.Format
	ws       *websocket.Conn
	server   *Server

	// channels is guarded by server.mu.
	channels map[string]bool

	writeMu sync.Mutex
	closed  bool
}

func (c *conn) readLoop() {
	defer c.close()
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		msg, err := protocol.Unmarshal(c.format, data)
		if err != nil {
			c.server.logger.Warn("dropping malformed frame", "connection", c.id, "error", err)
			continue
		}
		c.server.handle(c, msg)
	}
}

func (c *conn) send(msg *protocol.ProtocolMessage) {
	data, err := protocol.Marshal(c.format, msg)
	if err != nil {
		c.server.logger.Error("encode failed", "connection", c.id, "error", err)
		return
	}
	frame := websocket.TextMessage
	if c.format.IsBinary() {
		frame = websocket.BinaryMessage
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.closed {
		return
	}
	c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.ws.WriteMessage(frame, data); err != nil {
		c.server.logger.Debug("write failed", "connection", c.id, "error", err)
	}
}

func (c *conn) close() {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.ws.Close()
}
