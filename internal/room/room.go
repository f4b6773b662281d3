package room

import (
	"encoding/json"
	"time"
)

type Status string

const (
	StatusWaiting Status = "waiting"
	StatusPlaying Status = "playing"
)

// Role is the game slot a player occupies, distinct from identity.
// The first occupant (the creator, or the surviving host after a
// migration) is always player1.
type Role string

const (
	RolePlayer1 Role = "player1"
	RolePlayer2 Role = "player2"
)

const (
	MaxPlayers = 2
	MaxNameLen = 20
)

type Player struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	IsHost   bool   `json:"isHost"`
	GameRole Role   `json:"gameRole"`
}

func (p *Player) Clone() *Player {
	cp := *p
	return &cp
}

// Room is an ephemeral two-player session container. Submissions is
// the barrier state for the current round; it never outlives the room.
type Room struct {
	ID          string          `json:"id"`
	HostName    string          `json:"host"`
	Status      Status          `json:"status"`
	Players     []*Player       `json:"players"`
	CreatedAt   time.Time       `json:"createdAt"`
	GameState   json.RawMessage `json:"gameState,omitempty"`
	Submissions map[Role]bool   `json:"-"`
}

func (r *Room) FindPlayer(playerID string) (*Player, int) {
	for i, p := range r.Players {
		if p.ID == playerID {
			return p, i
		}
	}
	return nil, -1
}

func (r *Room) HasPlayerNamed(name string) bool {
	for _, p := range r.Players {
		if p.Name == name {
			return true
		}
	}
	return false
}

func (r *Room) HasRole(role Role) bool {
	for _, p := range r.Players {
		if p.GameRole == role {
			return true
		}
	}
	return false
}

// SubmittedRoles returns the barrier members in a stable order.
func (r *Room) SubmittedRoles() []Role {
	out := []Role{}
	for _, role := range []Role{RolePlayer1, RolePlayer2} {
		if r.Submissions[role] {
			out = append(out, role)
		}
	}
	return out
}

// Clone returns a deep copy safe to marshal outside the registry's
// serialization domain.
func (r *Room) Clone() *Room {
	cp := &Room{
		ID:        r.ID,
		HostName:  r.HostName,
		Status:    r.Status,
		CreatedAt: r.CreatedAt,
		Players:   make([]*Player, 0, len(r.Players)),
	}
	for _, p := range r.Players {
		cp.Players = append(cp.Players, p.Clone())
	}
	if r.GameState != nil {
		cp.GameState = append(json.RawMessage(nil), r.GameState...)
	}
	return cp
}

// Summary is the listing shape for a joinable room.
type Summary struct {
	ID          string    `json:"id"`
	Host        string    `json:"host"`
	CreatedAt   time.Time `json:"createdAt"`
	PlayerCount int       `json:"playerCount"`
}
