package room

import (
	"sort"
	"strings"
	"time"

	"echoes-server/internal/ident"
)

// Registry owns the roomID -> room mapping. It is not safe for
// concurrent use on its own: every call must happen inside the session
// coordinator's serialization domain.
type Registry struct {
	rooms map[string]*Room
}

func NewRegistry() *Registry {
	return &Registry{rooms: map[string]*Room{}}
}

// LeaveResult describes everything a single removal changed, so the
// caller can emit the matching notifications.
type LeaveResult struct {
	Removed        *Player
	Room           *Room // nil when the room was deleted
	NewHost        *Player
	RoomDeleted    bool
	StatusReverted bool
}

func validateName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if len(name) < 1 || len(name) > MaxNameLen {
		return "", ErrInvalidName
	}
	return name, nil
}

// Create makes a room with the creator as its sole occupant and host.
func (reg *Registry) Create(playerName string) (*Room, *Player, error) {
	name, err := validateName(playerName)
	if err != nil {
		return nil, nil, err
	}

	id := ident.NewRoomCode()
	for reg.rooms[id] != nil {
		id = ident.NewRoomCode()
	}

	host := &Player{
		ID:       ident.NewPlayerID(),
		Name:     name,
		IsHost:   true,
		GameRole: RolePlayer1,
	}
	r := &Room{
		ID:          id,
		HostName:    name,
		Status:      StatusWaiting,
		Players:     []*Player{host},
		CreatedAt:   time.Now(),
		Submissions: map[Role]bool{},
	}
	reg.rooms[id] = r
	return r, host, nil
}

// Join appends a second occupant to a waiting room.
func (reg *Registry) Join(roomID, playerName string) (*Room, *Player, error) {
	name, err := validateName(playerName)
	if err != nil {
		return nil, nil, err
	}
	r, ok := reg.rooms[roomID]
	if !ok {
		return nil, nil, ErrRoomNotFound
	}
	if r.Status != StatusWaiting {
		return nil, nil, ErrRoomNotWaiting
	}
	if len(r.Players) >= MaxPlayers {
		return nil, nil, ErrRoomFull
	}
	if r.HasPlayerNamed(name) {
		return nil, nil, ErrDuplicateName
	}

	p := &Player{
		ID:       ident.NewPlayerID(),
		Name:     name,
		IsHost:   false,
		GameRole: RolePlayer2,
	}
	r.Players = append(r.Players, p)
	return r, p, nil
}

func (reg *Registry) Get(roomID string) (*Room, bool) {
	r, ok := reg.rooms[roomID]
	return r, ok
}

// Leave removes a player. It migrates the host when the host leaves a
// still-occupied room, deletes the room the instant it empties, and
// reverts playing -> waiting when occupancy drops below two.
func (reg *Registry) Leave(roomID, playerID string) (LeaveResult, error) {
	r, ok := reg.rooms[roomID]
	if !ok {
		return LeaveResult{}, ErrRoomNotFound
	}
	p, idx := r.FindPlayer(playerID)
	if p == nil {
		return LeaveResult{}, ErrPlayerNotFound
	}

	r.Players = append(r.Players[:idx], r.Players[idx+1:]...)
	delete(r.Submissions, p.GameRole)
	res := LeaveResult{Removed: p, Room: r}

	if p.IsHost && len(r.Players) > 0 {
		// The survivor takes over host and player1, even if it
		// already held player1. Downstream game logic relies on
		// player1 always denoting the host.
		newHost := r.Players[0]
		newHost.IsHost = true
		newHost.GameRole = RolePlayer1
		r.HostName = newHost.Name
		res.NewHost = newHost
	}

	if len(r.Players) == 0 {
		delete(reg.rooms, roomID)
		res.Room = nil
		res.RoomDeleted = true
		return res, nil
	}
	if r.Status == StatusPlaying && len(r.Players) < MaxPlayers {
		r.Status = StatusWaiting
		res.StatusReverted = true
	}
	return res, nil
}

// SetStatus is driven by the routing layer, not by the core state
// machine; the core only ever reverts playing -> waiting on its own.
func (reg *Registry) SetStatus(roomID string, s Status) error {
	if s != StatusWaiting && s != StatusPlaying {
		return ErrInvalidStatus
	}
	r, ok := reg.rooms[roomID]
	if !ok {
		return ErrRoomNotFound
	}
	r.Status = s
	return nil
}

// ListAvailable returns summaries of all waiting rooms, oldest first.
func (reg *Registry) ListAvailable() []Summary {
	out := []Summary{}
	for _, r := range reg.rooms {
		if r.Status != StatusWaiting {
			continue
		}
		out = append(out, Summary{
			ID:          r.ID,
			Host:        r.HostName,
			CreatedAt:   r.CreatedAt,
			PlayerCount: len(r.Players),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Snapshot clones every room, for the debug surface.
func (reg *Registry) Snapshot() []*Room {
	out := make([]*Room, 0, len(reg.rooms))
	for _, r := range reg.rooms {
		out = append(out, r.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (reg *Registry) Len() int {
	return len(reg.rooms)
}
