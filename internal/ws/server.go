package ws

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"echoes-server/internal/ident"
	"echoes-server/internal/room"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1 << 20
	sendBuffer     = 64
)

// EventHandler receives decoded connection events. The session
// coordinator implements it.
type EventHandler interface {
	HandleJoinRoom(connID, roomID, playerID, playerName string)
	HandleLeaveRoom(connID, roomID, playerID, playerName string)
	HandleLegacyLeave(connID, roomID string)
	HandleGameAction(connID, roomID string, action json.RawMessage, playerID string)
	HandleSubmit(connID, roomID, playerID, playerName string, gameRole room.Role)
	HandleGameState(connID, roomID, playerID, playerName string, gameRole room.Role, payload json.RawMessage)
	HandleChat(connID, roomID, message, playerName string)
	HandleDisconnect(connID string)
}

type client struct {
	id     string
	conn   *websocket.Conn
	send   chan []byte
	roomID string
}

// Server owns the websocket connections and their room grouping for
// fan-out. It implements the coordinator's Broadcaster capability:
// emission is fire and forget, and a client that cannot keep up has
// messages dropped rather than blocking the dispatcher.
type Server struct {
	upgrader websocket.Upgrader

	mu      sync.Mutex
	handler EventHandler
	conns   map[string]*client
	rooms   map[string]map[*client]bool
}

func NewServer() *Server {
	return &Server{
		upgrader: websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		conns:    map[string]*client{},
		rooms:    map[string]map[*client]bool{},
	}
}

// SetHandler wires the event sink. Called once at startup.
func (s *Server) SetHandler(h EventHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = h
}

func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Debug().Err(err).Msg("ws_upgrade_failed")
		return
	}
	c := &client{
		id:   ident.NewConnID(),
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}
	s.mu.Lock()
	s.conns[c.id] = c
	s.mu.Unlock()
	log.Info().Str("conn_id", c.id).Msg("conn_open")

	go s.writeLoop(c)
	s.readLoop(c)
}

func (s *Server) readLoop(c *client) {
	defer func() {
		s.unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Debug().Str("conn_id", c.id).Err(err).Msg("ws_read_error")
			}
			return
		}
		s.dispatch(c, msg)
	}
}

func (s *Server) dispatch(c *client, msg []byte) {
	h := s.currentHandler()
	if h == nil {
		return
	}
	var base struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(msg, &base); err != nil {
		log.Debug().Str("conn_id", c.id).Msg("drop_unparseable_message")
		return
	}

	switch base.Type {
	case "joinRoom":
		var join JoinRoomMessage
		if err := json.Unmarshal(msg, &join); err != nil || join.RoomID == "" || join.PlayerID == "" {
			log.Debug().Str("conn_id", c.id).Str("event", base.Type).Msg("drop_malformed_message")
			return
		}
		s.joinRoom(c, join.RoomID)
		h.HandleJoinRoom(c.id, join.RoomID, join.PlayerID, join.PlayerName)

	case "leaveRoom":
		roomID, playerID, playerName, legacy, ok := decodeLeave(msg)
		switch {
		case ok && legacy:
			h.HandleLegacyLeave(c.id, roomID)
		case ok && playerID != "":
			h.HandleLeaveRoom(c.id, roomID, playerID, playerName)
		default:
			// Drop the transition, but the coordinator still unbinds.
			log.Debug().Str("conn_id", c.id).Str("event", base.Type).Msg("drop_malformed_message")
			h.HandleLeaveRoom(c.id, "", "", "")
		}
		s.leaveRoom(c)

	case "gameAction":
		var action GameActionMessage
		if err := json.Unmarshal(msg, &action); err != nil || action.RoomID == "" {
			log.Debug().Str("conn_id", c.id).Str("event", base.Type).Msg("drop_malformed_message")
			return
		}
		h.HandleGameAction(c.id, action.RoomID, action.Action, action.PlayerID)

	case "playerSubmitted":
		var sub PlayerSubmittedMessage
		if err := json.Unmarshal(msg, &sub); err != nil || sub.RoomID == "" || sub.GameRole == "" {
			log.Debug().Str("conn_id", c.id).Str("event", base.Type).Msg("drop_malformed_message")
			return
		}
		h.HandleSubmit(c.id, sub.RoomID, sub.PlayerID, sub.PlayerName, sub.GameRole)

	case "gameState":
		var state GameStateMessage
		if err := json.Unmarshal(msg, &state); err != nil || state.RoomID == "" || len(state.Payload) == 0 {
			log.Debug().Str("conn_id", c.id).Str("event", base.Type).Msg("drop_malformed_message")
			return
		}
		h.HandleGameState(c.id, state.RoomID, state.PlayerID, state.PlayerName, state.GameRole, state.Payload)

	case "chatMessage":
		var chat ChatMessage
		if err := json.Unmarshal(msg, &chat); err != nil || chat.RoomID == "" || chat.Message == "" {
			log.Debug().Str("conn_id", c.id).Str("event", base.Type).Msg("drop_malformed_message")
			return
		}
		h.HandleChat(c.id, chat.RoomID, chat.Message, chat.PlayerName)

	default:
		log.Debug().Str("conn_id", c.id).Str("event", base.Type).Msg("drop_unknown_event")
	}
}

func (s *Server) writeLoop(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// joinRoom moves the client into a transport-level room group; a
// client is in at most one group.
func (s *Server) joinRoom(c *client, roomID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeFromRoomLocked(c)
	if s.rooms[roomID] == nil {
		s.rooms[roomID] = map[*client]bool{}
	}
	s.rooms[roomID][c] = true
	c.roomID = roomID
}

func (s *Server) leaveRoom(c *client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeFromRoomLocked(c)
}

func (s *Server) removeFromRoomLocked(c *client) {
	if c.roomID == "" {
		return
	}
	if members, ok := s.rooms[c.roomID]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(s.rooms, c.roomID)
		}
	}
	c.roomID = ""
}

// unregister drops the client from the maps, then reports the
// disconnect. Membership is gone first so the handler's own emissions
// cannot loop back to the dead connection.
func (s *Server) unregister(c *client) {
	s.mu.Lock()
	if _, ok := s.conns[c.id]; !ok {
		s.mu.Unlock()
		return
	}
	delete(s.conns, c.id)
	s.removeFromRoomLocked(c)
	h := s.handler
	s.mu.Unlock()

	log.Info().Str("conn_id", c.id).Msg("conn_closed")
	if h != nil {
		h.HandleDisconnect(c.id)
	}
	close(c.send)
}

func (s *Server) currentHandler() EventHandler {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handler
}

// ---- Broadcaster ---------------------------------------------------

func (s *Server) SendTo(connID string, event any) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Msg("marshal_outbound_event")
		return
	}
	s.mu.Lock()
	c := s.conns[connID]
	s.mu.Unlock()
	if c != nil {
		trySend(c, data)
	}
}

func (s *Server) SendToRoom(roomID string, event any, excludeConnID string) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Msg("marshal_outbound_event")
		return
	}
	s.mu.Lock()
	targets := make([]*client, 0, 2)
	for c := range s.rooms[roomID] {
		if c.id != excludeConnID {
			targets = append(targets, c)
		}
	}
	s.mu.Unlock()
	for _, c := range targets {
		trySend(c, data)
	}
}

// trySend never blocks; a full buffer means the message is dropped.
func trySend(c *client, data []byte) {
	defer func() {
		// Send channel closed by unregister while we held a reference.
		_ = recover()
	}()
	select {
	case c.send <- data:
	default:
		log.Warn().Str("conn_id", c.id).Msg("send_buffer_full")
	}
}
