package session

import (
	"encoding/json"
	"time"

	"echoes-server/internal/room"
)

// Broadcaster is the outbound capability the coordinator is handed.
// Both operations are fire and forget; delivery order is only
// meaningful within a single room.
type Broadcaster interface {
	SendTo(connID string, event any)
	SendToRoom(roomID string, event any, excludeConnID string)
}

// LeaveReasonGrace labels a PlayerLeft caused by grace-timer expiry
// rather than an explicit leave.
const LeaveReasonGrace = "grace_period"

type RoomJoined struct {
	Type string     `json:"type"`
	Room *room.Room `json:"room"`
}

// GameStateSnapshot replays the room's last known game state to a
// (re)joining connection.
type GameStateSnapshot struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type PlayerJoined struct {
	Type   string       `json:"type"`
	Player *room.Player `json:"player"`
	Room   *room.Room   `json:"room"`
}

type PlayerLeft struct {
	Type             string `json:"type"`
	PlayerID         string `json:"playerId"`
	PlayerName       string `json:"playerName"`
	RemainingPlayers int    `json:"remainingPlayers"`
	Reason           string `json:"reason,omitempty"`
}

type HostChanged struct {
	Type        string `json:"type"`
	NewHostID   string `json:"newHostId"`
	NewHostName string `json:"newHostName"`
}

type OpponentReconnected struct {
	Type       string `json:"type"`
	PlayerID   string `json:"playerId"`
	PlayerName string `json:"playerName"`
}

type OpponentDisconnected struct {
	Type       string `json:"type"`
	PlayerID   string `json:"playerId"`
	PlayerName string `json:"playerName"`
}

type GameAction struct {
	Type     string          `json:"type"`
	Action   json.RawMessage `json:"action"`
	PlayerID string          `json:"playerId"`
}

type PlayerSubmitted struct {
	Type       string    `json:"type"`
	RoomID     string    `json:"roomId"`
	PlayerID   string    `json:"playerId"`
	PlayerName string    `json:"playerName"`
	GameRole   room.Role `json:"gameRole"`
}

type ReplayPhase struct {
	Type    string `json:"type"`
	RoomID  string `json:"roomId"`
	Message string `json:"message"`
}

// OpponentEchoes is the relabelled relay of an occupant's gameState
// upload to the other occupant.
type OpponentEchoes struct {
	Type       string          `json:"type"`
	RoomID     string          `json:"roomId"`
	PlayerID   string          `json:"playerId"`
	PlayerName string          `json:"playerName"`
	GameRole   room.Role       `json:"gameRole"`
	Payload    json.RawMessage `json:"payload"`
}

type ChatMessage struct {
	Type       string    `json:"type"`
	Message    string    `json:"message"`
	PlayerName string    `json:"playerName"`
	Timestamp  time.Time `json:"timestamp"`
}
