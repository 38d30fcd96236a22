package api

import (
	"encoding/base64"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/smazurov/mediaout/internal/events"
)

const (
	wsWriteDeadline = 5 * time.Second
	wsPingInterval  = 30 * time.Second
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(*http.Request) bool {
		return true
	},
}

// wsMessage is the envelope for both directions of the event socket.
type wsMessage struct {
	Type   string `json:"type"`
	Output string `json:"output,omitempty"`
	Data   any    `json:"data,omitempty"`
	Error  string `json:"error,omitempty"`
}

// wsEventName maps engine events to the names used on the SSE stream.
func wsEventName(ev any) string {
	switch ev.(type) {
	case events.OutputStartEvent:
		return "output-start"
	case events.OutputStopEvent:
		return "output-stop"
	case events.OutputCreatedEvent:
		return "output-created"
	case events.OutputDestroyedEvent:
		return "output-destroyed"
	case events.OutputUpdatedEvent:
		return "output-updated"
	}
	return ""
}

// handleWebSocket serves /api/ws: the output events of /api/events plus
// start, stop and pause commands over one connection.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		w.Header().Set("WWW-Authenticate", `Basic realm="mediaout API"`)
		http.Error(w, "Authentication required", http.StatusUnauthorized)
		return
	}

	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("Failed to upgrade WebSocket", "error", err)
		return
	}
	defer conn.Close()
	s.logger.Debug("WebSocket connected", "remote_addr", r.RemoteAddr)

	eventCh := make(chan any, 32)
	bus := s.manager.Events()
	defer events.SubscribeOutputEvents(bus, eventCh)()

	// Replies go through the writer loop; gorilla connections allow one
	// concurrent writer.
	replies := make(chan wsMessage, 8)
	done := make(chan struct{})
	go s.readCommands(conn, replies, done)

	write := func(msg wsMessage) error {
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteDeadline))
		return conn.WriteJSON(msg)
	}

	if err := write(wsMessage{Type: "connected", Data: time.Now().Format(time.RFC3339)}); err != nil {
		return
	}

	ping := time.NewTicker(wsPingInterval)
	defer ping.Stop()

	for {
		select {
		case <-done:
			return
		case <-r.Context().Done():
			return
		case ev := <-eventCh:
			if err := write(wsMessage{Type: wsEventName(ev), Data: ev}); err != nil {
				return
			}
		case reply := <-replies:
			if err := write(reply); err != nil {
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteDeadline)); err != nil {
				return
			}
		}
	}
}

// readCommands handles client messages until the connection fails.
func (s *Server) readCommands(conn *websocket.Conn, replies chan<- wsMessage, done chan<- struct{}) {
	defer close(done)
	for {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug("WebSocket read error", "error", err)
			}
			return
		}
		reply := s.runCommand(msg)
		select {
		case replies <- reply:
		default:
			s.logger.Warn("Dropping WebSocket reply", "command", msg.Type)
		}
	}
}

func (s *Server) runCommand(msg wsMessage) wsMessage {
	reply := wsMessage{Type: "result", Output: msg.Output}
	o := s.manager.Find(msg.Output)
	if o == nil {
		reply.Error = "output not found: " + msg.Output
		return reply
	}

	switch msg.Type {
	case "start":
		if !o.IsActive() && !o.Start() {
			reply.Error = "output did not start"
		}
	case "stop":
		o.Stop()
	case "pause":
		if !o.Pause() {
			reply.Error = "output cannot pause"
		}
	default:
		reply.Error = "unknown command: " + msg.Type
	}
	reply.Data = actionResponse(o).Body
	return reply
}

// authorized applies the basic auth credentials, if any, to a raw request.
func (s *Server) authorized(r *http.Request) bool {
	user, pass := s.options.AuthUsername, s.options.AuthPassword
	if user == "" || pass == "" {
		return true
	}
	if u, p, ok := r.BasicAuth(); ok {
		return u == user && p == pass
	}
	decoded, err := base64.StdEncoding.DecodeString(r.URL.Query().Get("auth"))
	if err != nil {
		return false
	}
	u, p, ok := strings.Cut(string(decoded), ":")
	return ok && u == user && p == pass
}
