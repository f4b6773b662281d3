package ident

import (
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

const (
	roomCodeLen   = 6
	roomCodeChars = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
)

var (
	mu      sync.Mutex
	entropy = ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0)
	codes   = rand.New(rand.NewSource(time.Now().UnixNano() ^ 0x5f3759df))
)

// NewID returns a ULID, unique within the process lifetime.
func NewID() string {
	mu.Lock()
	defer mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

// NewPlayerID returns an identifier for a player joining a room.
func NewPlayerID() string {
	return "p_" + NewID()
}

// NewConnID returns an identifier for a live websocket connection.
func NewConnID() string {
	return "conn_" + NewID()
}

// NewRoomCode returns a short join code users can type by hand.
// Callers must retry on collision with an existing room.
func NewRoomCode() string {
	mu.Lock()
	defer mu.Unlock()
	b := make([]byte, roomCodeLen)
	for i := range b {
		b[i] = roomCodeChars[codes.Intn(len(roomCodeChars))]
	}
	return string(b)
}
