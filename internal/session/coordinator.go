package session

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"echoes-server/internal/room"
)

// DefaultGracePeriod is how long a disconnected player's slot stays
// reserved before removal.
const DefaultGracePeriod = 30 * time.Second

const replayPhaseMessage = "Both players have submitted! Starting replay phase..."

// Coordinator is the session state machine. Every transition runs
// under one mutex, whether it came from a connection event, the HTTP
// surface, or a grace-timer expiry. An expiry racing a reconnect
// therefore resolves to exactly one winner.
type Coordinator struct {
	mu          sync.Mutex
	registry    *room.Registry
	bindings    *Bindings
	grace       *GraceScheduler
	bc          Broadcaster
	gracePeriod time.Duration
}

func NewCoordinator(reg *room.Registry, bc Broadcaster, gracePeriod time.Duration) *Coordinator {
	if gracePeriod <= 0 {
		gracePeriod = DefaultGracePeriod
	}
	return &Coordinator{
		registry:    reg,
		bindings:    NewBindings(),
		grace:       NewGraceScheduler(),
		bc:          bc,
		gracePeriod: gracePeriod,
	}
}

// SetBroadcaster wires the outbound side. Called once at startup; the
// transport needs the coordinator and the coordinator needs the
// transport's broadcaster.
func (c *Coordinator) SetBroadcaster(bc Broadcaster) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bc = bc
}

// ---- request/response surface -------------------------------------

func (c *Coordinator) CreateRoom(playerName string) (*room.Room, *room.Player, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, host, err := c.registry.Create(playerName)
	if err != nil {
		return nil, nil, err
	}
	log.Info().Str("room_id", r.ID).Str("player", host.Name).Msg("room_created")
	return r.Clone(), host.Clone(), nil
}

// JoinRoom appends a player over the HTTP surface and notifies the
// room's existing occupants.
func (c *Coordinator) JoinRoom(roomID, playerName string) (*room.Room, *room.Player, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, p, err := c.registry.Join(roomID, playerName)
	if err != nil {
		return nil, nil, err
	}
	log.Info().Str("room_id", roomID).Str("player", p.Name).Str("game_role", string(p.GameRole)).Msg("room_joined")
	c.bc.SendToRoom(roomID, PlayerJoined{Type: "playerJoined", Player: p.Clone(), Room: r.Clone()}, "")
	return r.Clone(), p.Clone(), nil
}

func (c *Coordinator) ListAvailable() []room.Summary {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.registry.ListAvailable()
}

// ---- connection events --------------------------------------------

// HandleJoinRoom binds the connection and replays the room (and its
// last game state) to the joining connection only. A pending grace
// timer for the player means this is a reconnect: cancel removal and
// tell the opponent.
func (c *Coordinator) HandleJoinRoom(connID, roomID, playerID, playerName string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.bindings.Bind(connID, roomID, playerID, playerName)
	log.Info().Str("conn_id", connID).Str("room_id", roomID).Str("player_id", playerID).Msg("conn_join")

	if c.grace.Cancel(playerID) {
		log.Info().Str("room_id", roomID).Str("player_id", playerID).Msg("player_reconnected")
		c.bc.SendToRoom(roomID, OpponentReconnected{Type: "opponentReconnected", PlayerID: playerID, PlayerName: playerName}, connID)
	}

	r, ok := c.registry.Get(roomID)
	if !ok {
		log.Debug().Str("room_id", roomID).Msg("join_unknown_room")
		return
	}
	c.bc.SendTo(connID, RoomJoined{Type: "roomJoined", Room: r.Clone()})
	if r.GameState != nil {
		c.bc.SendTo(connID, GameStateSnapshot{Type: "gameState", Payload: append(json.RawMessage(nil), r.GameState...)})
	}
}

// HandleLeaveRoom removes the player explicitly. A payload missing
// either id is dropped without a transition; the connection is
// unbound regardless of outcome.
func (c *Coordinator) HandleLeaveRoom(connID, roomID, playerID, playerName string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	defer c.bindings.Unbind(connID)

	if roomID == "" || playerID == "" {
		log.Debug().Str("conn_id", connID).Msg("leave_missing_fields")
		return
	}
	log.Info().Str("room_id", roomID).Str("player_id", playerID).Str("player", playerName).Msg("conn_leave")
	c.removePlayerLocked(roomID, playerID, connID, "")
}

// HandleLegacyLeave serves the old payload shape that carries only a
// room id. The leaving player's identity comes from the connection's
// binding; with no binding there is nothing to remove.
func (c *Coordinator) HandleLegacyLeave(connID, roomID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	defer c.bindings.Unbind(connID)

	b, ok := c.bindings.Lookup(connID)
	if !ok || roomID == "" {
		log.Debug().Str("conn_id", connID).Str("room_id", roomID).Msg("leave_unresolved_binding")
		return
	}
	log.Info().Str("room_id", roomID).Str("player_id", b.PlayerID).Str("player", b.PlayerName).Msg("conn_leave")
	c.removePlayerLocked(roomID, b.PlayerID, connID, "")
}

// HandleGameAction relays an action to the other occupant, never back
// to the sender.
func (c *Coordinator) HandleGameAction(connID, roomID string, action json.RawMessage, playerID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.registry.Get(roomID); !ok {
		log.Debug().Str("room_id", roomID).Msg("action_unknown_room")
		return
	}
	c.bc.SendToRoom(roomID, GameAction{Type: "gameAction", Action: action, PlayerID: playerID}, connID)
}

// HandleSubmit records a barrier submission. When both roles are in,
// the whole room gets a replayPhase broadcast and the barrier clears;
// the raw submission is always relayed to the other occupant.
func (c *Coordinator) HandleSubmit(connID, roomID, playerID, playerName string, gameRole room.Role) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.registry.Get(roomID)
	if !ok {
		log.Debug().Str("room_id", roomID).Msg("submit_unknown_room")
		return
	}
	if !r.HasRole(gameRole) {
		log.Debug().Str("room_id", roomID).Str("game_role", string(gameRole)).Msg("submit_role_absent")
		return
	}

	r.Submissions[gameRole] = true
	log.Info().Str("room_id", roomID).Str("player", playerName).Str("game_role", string(gameRole)).Msg("player_submitted")

	if len(r.Submissions) == room.MaxPlayers {
		log.Info().Str("room_id", roomID).Msg("replay_phase")
		c.bc.SendToRoom(roomID, ReplayPhase{Type: "replayPhase", RoomID: roomID, Message: replayPhaseMessage}, "")
		clear(r.Submissions)
	}

	c.bc.SendToRoom(roomID, PlayerSubmitted{
		Type:       "playerSubmitted",
		RoomID:     roomID,
		PlayerID:   playerID,
		PlayerName: playerName,
		GameRole:   gameRole,
	}, connID)
}

// HandleGameState stores the room's latest state snapshot and relays
// it to the other occupant relabelled as an opponent update.
func (c *Coordinator) HandleGameState(connID, roomID, playerID, playerName string, gameRole room.Role, payload json.RawMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.registry.Get(roomID)
	if !ok {
		log.Debug().Str("room_id", roomID).Msg("state_unknown_room")
		return
	}
	r.GameState = append(json.RawMessage(nil), payload...)
	c.bc.SendToRoom(roomID, OpponentEchoes{
		Type:       "opponentEchoes",
		RoomID:     roomID,
		PlayerID:   playerID,
		PlayerName: playerName,
		GameRole:   gameRole,
		Payload:    payload,
	}, connID)
}

// HandleChat broadcasts to the whole room, sender included, stamped
// with the server clock.
func (c *Coordinator) HandleChat(connID, roomID, message, playerName string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.registry.Get(roomID); !ok {
		log.Debug().Str("room_id", roomID).Msg("chat_unknown_room")
		return
	}
	c.bc.SendToRoom(roomID, ChatMessage{Type: "chatMessage", Message: message, PlayerName: playerName, Timestamp: time.Now()}, "")
}

// HandleDisconnect destroys the binding immediately, tells the
// opponent, and starts the grace countdown on the player entity.
func (c *Coordinator) HandleDisconnect(connID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	b, ok := c.bindings.Lookup(connID)
	if !ok {
		return
	}
	c.bindings.Unbind(connID)

	if _, ok := c.registry.Get(b.RoomID); !ok {
		log.Debug().Str("conn_id", connID).Str("room_id", b.RoomID).Msg("disconnect_unknown_room")
		return
	}

	log.Info().Str("room_id", b.RoomID).Str("player_id", b.PlayerID).Dur("grace", c.gracePeriod).Msg("player_disconnected")
	c.bc.SendToRoom(b.RoomID, OpponentDisconnected{Type: "opponentDisconnected", PlayerID: b.PlayerID, PlayerName: b.PlayerName}, connID)

	roomID, playerID := b.RoomID, b.PlayerID
	err := c.grace.Schedule(playerID, c.gracePeriod, func(gen uint64) {
		c.graceExpired(roomID, playerID, gen)
	})
	if err != nil {
		// A live timer means the player disconnected without ever
		// rebinding; the running countdown stays authoritative.
		log.Warn().Str("player_id", playerID).Msg("grace_timer_already_pending")
	}
}

func (c *Coordinator) graceExpired(roomID, playerID string, gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.grace.Consume(playerID, gen) {
		// Cancelled by a reconnect after the timer fired but before
		// it acquired the coordinator.
		return
	}
	log.Info().Str("room_id", roomID).Str("player_id", playerID).Msg("grace_expired")
	c.removePlayerLocked(roomID, playerID, "", LeaveReasonGrace)
}

// removePlayerLocked performs the shared removal transition for
// explicit leaves and grace expiries and emits the fallout.
func (c *Coordinator) removePlayerLocked(roomID, playerID, excludeConn, reason string) {
	res, err := c.registry.Leave(roomID, playerID)
	if err != nil {
		log.Debug().Str("room_id", roomID).Str("player_id", playerID).Err(err).Msg("remove_noop")
		return
	}

	remaining := 0
	if res.Room != nil {
		remaining = len(res.Room.Players)
	}
	c.bc.SendToRoom(roomID, PlayerLeft{
		Type:             "playerLeft",
		PlayerID:         playerID,
		PlayerName:       res.Removed.Name,
		RemainingPlayers: remaining,
		Reason:           reason,
	}, excludeConn)

	if res.NewHost != nil {
		log.Info().Str("room_id", roomID).Str("new_host", res.NewHost.Name).Msg("host_changed")
		c.bc.SendToRoom(roomID, HostChanged{Type: "hostChanged", NewHostID: res.NewHost.ID, NewHostName: res.NewHost.Name}, "")
	}
	if res.RoomDeleted {
		log.Info().Str("room_id", roomID).Msg("room_deleted")
	}
	if res.StatusReverted {
		log.Info().Str("room_id", roomID).Msg("room_status_reverted")
	}
}

// ---- ops/debug surface --------------------------------------------

// RoomDump is the debug view of one room, barrier state included.
type RoomDump struct {
	ID          string         `json:"id"`
	Host        string         `json:"host"`
	Status      room.Status    `json:"status"`
	PlayerCount int            `json:"playerCount"`
	Players     []*room.Player `json:"players"`
	CreatedAt   time.Time      `json:"createdAt"`
	Submissions []room.Role    `json:"submissions"`
}

type DebugState struct {
	TotalRooms     int        `json:"totalRooms"`
	Rooms          []RoomDump `json:"rooms"`
	ActiveBindings int        `json:"activeBindings"`
	PendingTimers  int        `json:"pendingTimers"`
}

func (c *Coordinator) DebugRooms() DebugState {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := DebugState{
		TotalRooms:     c.registry.Len(),
		Rooms:          []RoomDump{},
		ActiveBindings: c.bindings.Len(),
		PendingTimers:  c.grace.Len(),
	}
	for _, r := range c.registry.Snapshot() {
		orig, _ := c.registry.Get(r.ID)
		st.Rooms = append(st.Rooms, RoomDump{
			ID:          r.ID,
			Host:        r.HostName,
			Status:      r.Status,
			PlayerCount: len(r.Players),
			Players:     r.Players,
			CreatedAt:   r.CreatedAt,
			Submissions: orig.SubmittedRoles(),
		})
	}
	return st
}

// SubmissionState is the debug view of one room's barrier.
type SubmissionState struct {
	RoomID          string         `json:"roomId"`
	Submissions     []room.Role    `json:"submissions"`
	SubmissionCount int            `json:"submissionCount"`
	PlayerCount     int            `json:"playerCount"`
	Players         []*room.Player `json:"players"`
}

func (c *Coordinator) RoomSubmissions(roomID string) (SubmissionState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.registry.Get(roomID)
	if !ok {
		return SubmissionState{}, room.ErrRoomNotFound
	}
	roles := r.SubmittedRoles()
	return SubmissionState{
		RoomID:          roomID,
		Submissions:     roles,
		SubmissionCount: len(roles),
		PlayerCount:     len(r.Players),
		Players:         r.Clone().Players,
	}, nil
}

// TriggerReplay force-broadcasts the replay phase and clears the
// barrier, for out-of-band test triggers.
func (c *Coordinator) TriggerReplay(roomID, message string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.registry.Get(roomID)
	if !ok {
		return room.ErrRoomNotFound
	}
	c.bc.SendToRoom(roomID, ReplayPhase{Type: "replayPhase", RoomID: roomID, Message: message}, "")
	clear(r.Submissions)
	return nil
}

// ResetSubmissions manually clears the barrier without releasing it.
func (c *Coordinator) ResetSubmissions(roomID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.registry.Get(roomID)
	if !ok {
		return room.ErrRoomNotFound
	}
	clear(r.Submissions)
	return nil
}

// SetRoomStatus is the collaborator hook that flips waiting <-> playing.
func (c *Coordinator) SetRoomStatus(roomID string, s room.Status) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.registry.SetStatus(roomID, s)
}
