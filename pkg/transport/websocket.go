package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	perrors "github.com/vango-dev/pulse/internal/errors"
	"github.com/vango-dev/pulse/pkg/protocol"
	"github.com/vango-dev/pulse/pkg/realtime"
)

// ProtocolVersion is sent as the v query parameter.
const ProtocolVersion = "1"

// ErrNotConnected is returned by Send before the socket is open or after it
// has closed.
var ErrNotConnected = errors.New("transport: not connected")

// Config configures WebSocket transports.
type Config struct {
	// Dialer opens the socket. Default: websocket.DefaultDialer.
	Dialer *websocket.Dialer

	// Path is the request path on the realtime host. Default: "/".
	Path string

	// Header is added to the upgrade request.
	Header http.Header

	// DialTimeout bounds the upgrade handshake. Default: 15s
	DialTimeout time.Duration

	// WriteTimeout bounds each frame write. Default: 10s
	WriteTimeout time.Duration

	Logger *slog.Logger
}

func (c Config) withDefaults() Config {
	if c.Dialer == nil {
		c.Dialer = websocket.DefaultDialer
	}
	if c.Path == "" {
		c.Path = "/"
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = 15 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// NewFactory returns a factory creating one WebSocket per attempt.
func NewFactory(cfg Config) realtime.TransportFactory {
	cfg = cfg.withDefaults()
	return func(params realtime.TransportParams) (realtime.Transport, error) {
		return New(params, cfg), nil
	}
}

// WebSocket is a realtime.Transport over one WebSocket connection.
type WebSocket struct {
	params realtime.TransportParams
	cfg    Config
	logger *slog.Logger

	// writeMu serializes frame writes; gorilla allows one concurrent writer.
	writeMu sync.Mutex

	mu       sync.Mutex
	conn     *websocket.Conn
	cancel   context.CancelFunc
	stopped  bool
	reason   *protocol.ErrorInfo
	reported bool
}

// New creates an unconnected transport.
func New(params realtime.TransportParams, cfg Config) *WebSocket {
	cfg = cfg.withDefaults()
	return &WebSocket{
		params: params,
		cfg:    cfg,
		logger: cfg.Logger.With("component", "transport", "host", params.Host),
	}
}

// Host implements realtime.Transport.
func (w *WebSocket) Host() string {
	return w.params.Host
}

// URL returns the connection URL for the attempt.
func (w *WebSocket) URL() string {
	scheme := "wss"
	if w.params.Insecure {
		scheme = "ws"
	}
	host := w.params.Host
	if w.params.Port > 0 {
		host = net.JoinHostPort(host, strconv.Itoa(w.params.Port))
	}

	q := url.Values{}
	q.Set("v", ProtocolVersion)
	q.Set("format", string(w.format()))
	if c := w.params.Credentials; c.Token != "" {
		q.Set("accessToken", c.Token)
	} else if c.Key != "" {
		q.Set("key", c.Key)
	}
	if w.params.ClientID != "" {
		q.Set("clientId", w.params.ClientID)
	}
	if !w.params.Echo {
		q.Set("echo", "false")
	}
	u := url.URL{Scheme: scheme, Host: host, Path: w.cfg.Path, RawQuery: q.Encode()}
	return u.String()
}

func (w *WebSocket) format() protocol.Format {
	if w.params.Format == "" {
		return protocol.FormatJSON
	}
	return w.params.Format
}

// Connect implements realtime.Transport. It dials on a new goroutine.
func (w *WebSocket) Connect(l realtime.TransportListener) {
	ctx, cancel := context.WithTimeout(context.Background(), w.cfg.DialTimeout)
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		cancel()
		return
	}
	w.cancel = cancel
	w.mu.Unlock()

	go w.run(ctx, cancel, l)
}

func (w *WebSocket) run(ctx context.Context, cancel context.CancelFunc, l realtime.TransportListener) {
	conn, resp, err := w.cfg.Dialer.DialContext(ctx, w.URL(), w.cfg.Header)
	cancel()
	if err != nil {
		w.unavailable(l, dialError(resp, err))
		return
	}

	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		conn.Close()
		w.unavailable(l, nil)
		return
	}
	w.conn = conn
	w.mu.Unlock()

	w.logger.Debug("websocket open")
	l.OnTransportAvailable(w)
	w.readLoop(conn, l)
}

func (w *WebSocket) readLoop(conn *websocket.Conn, l realtime.TransportListener) {
	defer conn.Close()
	format := w.format()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				w.logger.Warn("read error", "error", err)
			}
			w.unavailable(l, perrors.Wrap(protocol.CodeDisconnected, err))
			return
		}

		msg, err := protocol.Unmarshal(format, data)
		if err != nil {
			w.logger.Error("frame decode error", "error", err, "bytes", len(data))
			continue
		}
		l.OnTransportMessage(w, msg)
	}
}

// unavailable reports the end of the transport once. A reason recorded by
// Abort takes precedence over reason.
func (w *WebSocket) unavailable(l realtime.TransportListener, reason *protocol.ErrorInfo) {
	w.mu.Lock()
	if w.reported {
		w.mu.Unlock()
		return
	}
	w.reported = true
	if w.reason != nil {
		reason = w.reason
	}
	w.conn = nil
	w.mu.Unlock()

	if reason == nil {
		reason = perrors.New(protocol.CodeDisconnected)
	}
	l.OnTransportUnavailable(w, reason)
}

// dialError maps a failed upgrade to an ErrorInfo. Rejections carrying a
// JSON ErrorInfo body keep its code.
func dialError(resp *http.Response, err error) *protocol.ErrorInfo {
	if resp == nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return perrors.Wrap(protocol.CodeConnectTimedOut, err)
		}
		return perrors.Wrap(protocol.CodeConnectionFailed, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if info, decodeErr := decodeErrorBody(body); decodeErr == nil && info.Code != 0 {
		if info.StatusCode == 0 {
			info.StatusCode = resp.StatusCode
		}
		return info
	}

	code := protocol.CodeConnectionFailed
	switch resp.StatusCode {
	case http.StatusUnauthorized:
		code = protocol.CodeUnauthorized
	case http.StatusForbidden:
		code = protocol.CodeForbidden
	}
	info := perrors.Newf(code, "upgrade rejected: %s", resp.Status)
	info.StatusCode = resp.StatusCode
	return info
}

// Send implements realtime.Transport.
func (w *WebSocket) Send(msg *protocol.ProtocolMessage) error {
	w.mu.Lock()
	conn := w.conn
	w.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	format := w.format()
	data, err := protocol.Marshal(format, msg)
	if err != nil {
		return fmt.Errorf("transport: encode %s: %w", msg.Action, err)
	}
	frameType := websocket.TextMessage
	if format.IsBinary() {
		frameType = websocket.BinaryMessage
	}

	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(w.cfg.WriteTimeout))
	return conn.WriteMessage(frameType, data)
}

// Close implements realtime.Transport.
func (w *WebSocket) Close(sendDisconnect bool) {
	conn := w.stop(nil)
	if conn == nil {
		return
	}
	if sendDisconnect {
		w.writeMu.Lock()
		deadline := time.Now().Add(w.cfg.WriteTimeout)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "client closed")
		if err := conn.WriteControl(websocket.CloseMessage, msg, deadline); err != nil {
			w.logger.Debug("close frame not sent", "error", err)
		}
		w.writeMu.Unlock()
	}
	conn.Close()
}

// Abort implements realtime.Transport.
func (w *WebSocket) Abort(reason *protocol.ErrorInfo) {
	if conn := w.stop(reason); conn != nil {
		conn.Close()
	}
}

// stop marks the transport stopped, cancels a dial in progress and returns
// the open socket, if any.
func (w *WebSocket) stop(reason *protocol.ErrorInfo) *websocket.Conn {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return nil
	}
	w.stopped = true
	w.reason = reason
	if w.cancel != nil {
		w.cancel()
	}
	return w.conn
}
