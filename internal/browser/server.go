// Package browser is the bridge to the browser extension: a local websocket
// the extension connects to, an id-correlated command protocol over it, and
// typed tab/group operations on top.
package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/lotas/tabgruppen/internal/applog"
	"nhooyr.io/websocket"
)

// IncomingMsg is a message from the extension: a command response (ID set),
// a relayed protocol request (Type "request"), or an event.
type IncomingMsg struct {
	Type string `json:"type,omitempty"`

	// Command response fields.
	ID      string          `json:"id,omitempty"`
	OK      *bool           `json:"ok,omitempty"`
	Error   string          `json:"error,omitempty"`
	Tabs    json.RawMessage `json:"tabs,omitempty"`
	Groups  json.RawMessage `json:"groups,omitempty"`
	Group   json.RawMessage `json:"group,omitempty"`
	Tab     json.RawMessage `json:"tab,omitempty"`
	GroupID int             `json:"groupId,omitempty"`

	// Event and relay fields.
	Metadata json.RawMessage `json:"metadata,omitempty"`
	Command  string          `json:"command,omitempty"`
	Request  json.RawMessage `json:"request,omitempty"`
}

// OutgoingMsg is a command or relayed response to the extension.
type OutgoingMsg struct {
	ID       string          `json:"id,omitempty"`
	Action   string          `json:"action"`
	TabID    int             `json:"tabId,omitempty"`
	TabIDs   []int           `json:"tabIds,omitempty"`
	GroupID  int             `json:"groupId,omitempty"`
	WindowID int             `json:"windowId,omitempty"`
	Title    *string         `json:"title,omitempty"`
	Color    string          `json:"color,omitempty"`
	Query    *TabQuery       `json:"query,omitempty"`
	Groups   *GroupQuery     `json:"groupQuery,omitempty"`
	Response json.RawMessage `json:"response,omitempty"`
}

// RequestHandler serves a relayed protocol request and returns the raw
// response envelope to send back.
type RequestHandler func(ctx context.Context, raw []byte) []byte

// Server manages the WebSocket connection to the extension. A single
// connection is active at a time; a newer one replaces the old.
type Server struct {
	port   int
	events chan Event

	mu        sync.Mutex
	conn      *websocket.Conn
	connCtx   context.Context
	pending   map[string]chan IncomingMsg
	onRequest RequestHandler
}

// New creates a new Server. Port 0 means the caller manages the listener.
func New(port int) *Server {
	return &Server{
		port:    port,
		events:  make(chan Event, 64),
		pending: make(map[string]chan IncomingMsg),
	}
}

// Port returns the configured port.
func (s *Server) Port() int {
	return s.port
}

// Events returns the channel of extension events (group removed/updated,
// tab ready, keyboard commands).
func (s *Server) Events() <-chan Event {
	return s.events
}

// SetRequestHandler installs the handler for relayed protocol requests.
// Must be called before ListenAndServe.
func (s *Server) SetRequestHandler(h RequestHandler) {
	s.mu.Lock()
	s.onRequest = h
	s.mu.Unlock()
}

// Connected reports whether an extension is connected.
func (s *Server) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn != nil
}

// Send sends a command to the connected extension. Sending without a
// connection is a silent no-op, matching fire-and-forget semantics; callers
// that need a response use call and get a connection error there.
func (s *Server) Send(msg OutgoingMsg) error {
	s.mu.Lock()
	conn := s.conn
	ctx := s.connCtx
	s.mu.Unlock()

	if conn == nil {
		return nil
	}

	applog.Info("ws.send", "action", msg.Action, "id", msg.ID)
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, data)
}

// Handler returns an http.Handler that accepts WebSocket upgrades.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			InsecureSkipVerify: true,
		})
		if err != nil {
			applog.Error("ws.accept", err)
			return
		}

		conn.SetReadLimit(16 << 20) // 16 MB — full-window tab queries can be large

		ctx := r.Context()
		s.mu.Lock()
		if s.conn != nil {
			applog.Info("ws.replaced")
			s.conn.CloseNow()
		}
		s.conn = conn
		s.connCtx = ctx
		s.mu.Unlock()

		applog.Info("ws.connected", "remote", r.RemoteAddr)

		defer func() {
			s.mu.Lock()
			if s.conn == conn {
				s.conn = nil
				s.connCtx = nil
			}
			s.mu.Unlock()
			conn.CloseNow()
			applog.Info("ws.disconnected")
		}()

		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				return
			}
			var msg IncomingMsg
			if err := json.Unmarshal(data, &msg); err != nil {
				applog.Error("ws.parse", err)
				continue
			}
			s.route(ctx, msg)
		}
	})
}

// route delivers one inbound message: command responses to their waiter,
// relayed requests to the request handler, everything else to the event
// channel.
func (s *Server) route(ctx context.Context, msg IncomingMsg) {
	if msg.ID != "" && msg.Type != "request" {
		s.mu.Lock()
		ch, ok := s.pending[msg.ID]
		if ok {
			delete(s.pending, msg.ID)
		}
		s.mu.Unlock()
		if ok {
			ch <- msg
			return
		}
		applog.Warn("ws.orphan_response", "id", msg.ID)
		return
	}

	if msg.Type == "request" {
		s.mu.Lock()
		handler := s.onRequest
		s.mu.Unlock()
		if handler == nil {
			applog.Warn("ws.request_dropped")
			return
		}
		// Served off the read loop so a slow handler cannot stall responses.
		go func() {
			resp := handler(ctx, msg.Request)
			if err := s.Send(OutgoingMsg{ID: msg.ID, Action: "response", Response: resp}); err != nil {
				applog.Error("ws.respond", err, "id", msg.ID)
			}
		}()
		return
	}

	applog.Info("ws.recv", "type", msg.Type)
	select {
	case s.events <- parseEvent(msg):
	default:
	}
}

// ListenAndServe starts the WebSocket server on the configured port.
func (s *Server) ListenAndServe(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle("/", s.Handler())

	addr := fmt.Sprintf("127.0.0.1:%d", s.port)
	applog.Info("server.start", "addr", addr)
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		srv.Close()
	}()

	return srv.ListenAndServe()
}
