package sandbox

import (
	"cmp"
	"encoding/json"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	perrors "github.com/vango-dev/pulse/internal/errors"
	"github.com/vango-dev/pulse/pkg/protocol"
)

// ConnectivityPath serves the internet-up check body.
const ConnectivityPath = "/is-the-internet-up.txt"

// Config configures a sandbox server.
type Config struct {
	// Key, when set, is the only API key accepted.
	Key string

	// Tokens are accepted access tokens. A client presenting a token not in
	// the list is rejected with 40142.
	Tokens []string

	// Metrics is mounted at /metrics when set.
	Metrics http.Handler

	// Logger for structured logging. Default: slog.Default()
	Logger *slog.Logger
}

func (c Config) requiresAuth() bool {
	return c.Key != "" || len(c.Tokens) > 0
}

// Server is an in-memory realtime service.
type Server struct {
	cfg      Config
	router   chi.Router
	upgrader websocket.Upgrader
	logger   *slog.Logger

	mu     sync.Mutex
	conns  map[string]*conn
	rooms  map[string]*room
	tokens map[string]bool
}

// room is one channel's subscribers and presence set.
type room struct {
	serial   int64
	members  map[string]*conn
	presence map[string]*protocol.PresenceMessage
}

// New creates a sandbox server.
func New(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	s := &Server{
		cfg:      cfg,
		logger:   cfg.Logger.With("component", "sandbox"),
		upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		conns:    make(map[string]*conn),
		rooms:    make(map[string]*room),
		tokens:   make(map[string]bool),
	}
	for _, t := range cfg.Tokens {
		s.tokens[t] = true
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get(ConnectivityPath, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("yes\n"))
	})
	if cfg.Metrics != nil {
		r.Handle("/metrics", cfg.Metrics)
	}
	r.Get("/", s.serveRealtime)
	s.router = r
	return s
}

// Handler returns the HTTP handler serving the realtime endpoint.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ConnectionIDs returns the ids of open connections, sorted.
func (s *Server) ConnectionIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.conns))
	for id := range s.conns {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Disconnect sends DISCONNECTED to a connection and closes it.
func (s *Server) Disconnect(id string, reason *protocol.ErrorInfo) bool {
	s.mu.Lock()
	c := s.conns[id]
	s.mu.Unlock()
	if c == nil {
		return false
	}
	c.send(&protocol.ProtocolMessage{Action: protocol.ActionDisconnected, Error: reason})
	c.close()
	return true
}

// Close disconnects every client.
func (s *Server) Close() {
	for _, id := range s.ConnectionIDs() {
		s.Disconnect(id, nil)
	}
}

func (s *Server) serveRealtime(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	format, err := protocol.ParseFormat(q.Get("format"))
	if err != nil {
		writeError(w, http.StatusBadRequest, perrors.Newf(protocol.CodeBadRequest, "%v", err))
		return
	}
	if ei := s.authorize(q.Get("key"), q.Get("accessToken")); ei != nil {
		writeError(w, ei.StatusCode, ei)
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("upgrade failed", "error", err)
		return
	}

	c := &conn{
		id:       uuid.NewString(),
		clientID: q.Get("clientId"),
		echo:     q.Get("echo") != "false",
		format:   format,
		ws:       ws,
		server:   s,
		channels: make(map[string]bool),
	}
	c.key = c.id + "!" + strconv.FormatInt(time.Now().UnixNano(), 36)

	s.mu.Lock()
	s.conns[c.id] = c
	s.mu.Unlock()

	s.logger.Info("client connected", "connection", c.id, "client_id", c.clientID, "format", format)
	c.send(&protocol.ProtocolMessage{
		Action:        protocol.ActionConnected,
		ConnectionID:  c.id,
		ConnectionKey: c.key,
	})
	c.readLoop()
	s.remove(c)
}

func (s *Server) authorize(key, token string) *protocol.ErrorInfo {
	if !s.cfg.requiresAuth() {
		return nil
	}
	switch {
	case token != "":
		if !s.tokens[token] {
			return protocol.NewErrorInfo(protocol.CodeTokenExpired, http.StatusUnauthorized, "token expired or unknown")
		}
	case key != "":
		if key != s.cfg.Key {
			return protocol.NewErrorInfo(protocol.CodeUnauthorized, http.StatusUnauthorized, "invalid key")
		}
	default:
		return protocol.NewErrorInfo(protocol.CodeUnauthorized, http.StatusUnauthorized, "no credentials")
	}
	return nil
}

// RevokeToken stops accepting token for new connections.
func (s *Server) RevokeToken(token string) {
	s.mu.Lock()
	delete(s.tokens, token)
	s.mu.Unlock()
}

// AllowToken accepts token for new connections.
func (s *Server) AllowToken(token string) {
	s.mu.Lock()
	s.tokens[token] = true
	s.mu.Unlock()
}

func writeError(w http.ResponseWriter, status int, ei *protocol.ErrorInfo) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{"error": ei})
}

func (s *Server) roomLocked(name string) *room {
	rm := s.rooms[name]
	if rm == nil {
		rm = &room{
			members:  make(map[string]*conn),
			presence: make(map[string]*protocol.PresenceMessage),
		}
		s.rooms[name] = rm
	}
	return rm
}

func (s *Server) handle(c *conn, msg *protocol.ProtocolMessage) {
	switch msg.Action {
	case protocol.ActionHeartbeat:
		c.send(&protocol.ProtocolMessage{Action: protocol.ActionHeartbeat, ID: msg.ID})
	case protocol.ActionAttach:
		s.attach(c, msg.Channel)
	case protocol.ActionDetach:
		s.detach(c, msg.Channel)
		c.send(&protocol.ProtocolMessage{Action: protocol.ActionDetached, Channel: msg.Channel})
	case protocol.ActionMessage:
		s.publish(c, msg)
	case protocol.ActionPresence:
		s.presence(c, msg)
	case protocol.ActionDisconnected:
		c.close()
	default:
		c.send(&protocol.ProtocolMessage{
			Action: protocol.ActionError,
			Error:  perrors.Newf(protocol.CodeBadRequest, "unexpected action %s", msg.Action),
		})
	}
}

func (s *Server) attach(c *conn, channel string) {
	s.mu.Lock()
	rm := s.roomLocked(channel)
	rm.members[c.id] = c
	c.channels[channel] = true
	snapshot := make([]*protocol.PresenceMessage, 0, len(rm.presence))
	for _, p := range rm.presence {
		m := p.Clone()
		m.Action = protocol.PresencePresent
		snapshot = append(snapshot, m)
	}
	serial := strconv.FormatInt(rm.serial, 10)
	s.mu.Unlock()

	slices.SortFunc(snapshot, func(a, b *protocol.PresenceMessage) int {
		return cmp.Compare(a.ClientID, b.ClientID)
	})
	c.send(&protocol.ProtocolMessage{
		Action:        protocol.ActionAttached,
		Channel:       channel,
		ChannelSerial: serial,
		Presence:      snapshot,
	})
}

// detach removes c from channel and broadcasts leaves for the members it
// entered.
func (s *Server) detach(c *conn, channel string) {
	s.mu.Lock()
	rm := s.rooms[channel]
	if rm == nil {
		s.mu.Unlock()
		return
	}
	delete(rm.members, c.id)
	delete(c.channels, channel)

	var leaves []*protocol.PresenceMessage
	for key, p := range rm.presence {
		if p.ConnectionID != c.id {
			continue
		}
		delete(rm.presence, key)
		m := p.Clone()
		m.Action = protocol.PresenceLeave
		m.Timestamp = time.Now().UnixMilli()
		leaves = append(leaves, m)
	}
	targets := rm.targetsLocked(nil)
	s.mu.Unlock()

	if len(leaves) > 0 {
		broadcast(targets, &protocol.ProtocolMessage{
			Action:       protocol.ActionPresence,
			Channel:      channel,
			ConnectionID: c.id,
			Presence:     leaves,
		})
	}
}

// targetsLocked lists the room members a broadcast from origin reaches.
func (rm *room) targetsLocked(origin *conn) []*conn {
	out := make([]*conn, 0, len(rm.members))
	for _, m := range rm.members {
		if m == origin && !origin.echo {
			continue
		}
		out = append(out, m)
	}
	return out
}

func broadcast(targets []*conn, msg *protocol.ProtocolMessage) {
	for _, t := range targets {
		t.send(msg)
	}
}

func (s *Server) publish(c *conn, msg *protocol.ProtocolMessage) {
	now := time.Now().UnixMilli()
	s.mu.Lock()
	rm := s.roomLocked(msg.Channel)
	rm.serial++
	serial := rm.serial
	for i, m := range msg.Messages {
		if m.ID == "" {
			m.ID = c.id + ":" + strconv.FormatInt(msg.MsgSerial, 10) + ":" + strconv.Itoa(i)
		}
		if m.ClientID == "" {
			m.ClientID = c.clientID
		}
		m.ConnectionID = c.id
		if m.Timestamp == 0 {
			m.Timestamp = now
		}
	}
	targets := rm.targetsLocked(c)
	s.mu.Unlock()

	c.send(&protocol.ProtocolMessage{Action: protocol.ActionAck, MsgSerial: msg.MsgSerial, Count: 1})
	broadcast(targets, &protocol.ProtocolMessage{
		Action:        protocol.ActionMessage,
		Channel:       msg.Channel,
		ChannelSerial: strconv.FormatInt(serial, 10),
		ConnectionID:  c.id,
		Timestamp:     now,
		Messages:      msg.Messages,
	})
}

func (s *Server) presence(c *conn, msg *protocol.ProtocolMessage) {
	now := time.Now().UnixMilli()
	s.mu.Lock()
	if !c.channels[msg.Channel] {
		s.mu.Unlock()
		c.send(&protocol.ProtocolMessage{
			Action:    protocol.ActionNack,
			MsgSerial: msg.MsgSerial,
			Count:     1,
			Error:     perrors.Newf(protocol.CodeChannelState, "channel %s is not attached", msg.Channel),
		})
		return
	}
	rm := s.roomLocked(msg.Channel)
	for _, p := range msg.Presence {
		if p.ClientID == "" {
			p.ClientID = c.clientID
		}
		p.ConnectionID = c.id
		p.Timestamp = now
		if p.Action == protocol.PresenceLeave {
			delete(rm.presence, p.MemberKey())
			continue
		}
		rm.presence[p.MemberKey()] = p.Clone()
	}
	targets := rm.targetsLocked(c)
	s.mu.Unlock()

	c.send(&protocol.ProtocolMessage{Action: protocol.ActionAck, MsgSerial: msg.MsgSerial, Count: 1})
	broadcast(targets, &protocol.ProtocolMessage{
		Action:       protocol.ActionPresence,
		Channel:      msg.Channel,
		ConnectionID: c.id,
		Timestamp:    now,
		Presence:     msg.Presence,
	})
}

func (s *Server) remove(c *conn) {
	s.mu.Lock()
	channels := make([]string, 0, len(c.channels))
	for ch := range c.channels {
		channels = append(channels, ch)
	}
	delete(s.conns, c.id)
	s.mu.Unlock()

	for _, ch := range channels {
		s.detach(c, ch)
	}
	s.logger.Info("client disconnected", "connection", c.id)
}
