package ws

import (
	"encoding/json"

	"echoes-server/internal/room"
)

// Inbound message shapes. Every message carries a "type" tag; fields
// beyond the tag are flat. A message that does not match its variant
// shape is dropped with a diagnostic log line, never answered.

type JoinRoomMessage struct {
	Type       string `json:"type"`
	RoomID     string `json:"roomId"`
	PlayerID   string `json:"playerId"`
	PlayerName string `json:"playerName"`
}

// LeaveRoomMessage accepts two shapes: the structured form with flat
// fields, and a legacy form whose data field is either a bare room-id
// string or an object. The legacy path resolves player identity from
// the connection's binding.
type LeaveRoomMessage struct {
	Type       string          `json:"type"`
	RoomID     string          `json:"roomId"`
	PlayerID   string          `json:"playerId"`
	PlayerName string          `json:"playerName"`
	Data       json.RawMessage `json:"data,omitempty"`
}

type GameActionMessage struct {
	Type     string          `json:"type"`
	RoomID   string          `json:"roomId"`
	Action   json.RawMessage `json:"action"`
	PlayerID string          `json:"playerId"`
}

type PlayerSubmittedMessage struct {
	Type       string    `json:"type"`
	RoomID     string    `json:"roomId"`
	PlayerID   string    `json:"playerId"`
	PlayerName string    `json:"playerName"`
	GameRole   room.Role `json:"gameRole"`
}

type GameStateMessage struct {
	Type       string          `json:"type"`
	RoomID     string          `json:"roomId"`
	PlayerID   string          `json:"playerId"`
	PlayerName string          `json:"playerName"`
	GameRole   room.Role       `json:"gameRole"`
	Payload    json.RawMessage `json:"payload"`
}

type ChatMessage struct {
	Type       string `json:"type"`
	RoomID     string `json:"roomId"`
	Message    string `json:"message"`
	PlayerName string `json:"playerName"`
}

// decodeLeave resolves the accepted leave shapes into flat fields.
// legacy marks the bare room-id form, whose player identity must be
// resolved from the connection's binding; ok is false when no room id
// could be recovered.
func decodeLeave(msg []byte) (roomID, playerID, playerName string, legacy, ok bool) {
	var leave LeaveRoomMessage
	if err := json.Unmarshal(msg, &leave); err != nil {
		return "", "", "", false, false
	}
	if leave.RoomID != "" {
		return leave.RoomID, leave.PlayerID, leave.PlayerName, false, true
	}
	if len(leave.Data) == 0 {
		return "", "", "", false, false
	}
	// Legacy: data is a bare room-id string.
	var bare string
	if err := json.Unmarshal(leave.Data, &bare); err == nil {
		matched := bare != ""
		return bare, "", "", matched, matched
	}
	// Structured payload wrapped in data.
	var nested struct {
		RoomID     string `json:"roomId"`
		PlayerID   string `json:"playerId"`
		PlayerName string `json:"playerName"`
	}
	if err := json.Unmarshal(leave.Data, &nested); err != nil {
		return "", "", "", false, false
	}
	return nested.RoomID, nested.PlayerID, nested.PlayerName, false, nested.RoomID != ""
}
