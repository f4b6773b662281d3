package session

import "sync"

// Binding ties a live connection to the room occupant it speaks for.
// Bindings die with the connection; the grace period protects the
// player entity, never the binding.
type Binding struct {
	RoomID     string
	PlayerID   string
	PlayerName string
}

// Bindings is a plain lookup table keyed by connection id. A given key
// is only ever written by the handler of that connection.
type Bindings struct {
	mu     sync.RWMutex
	byConn map[string]Binding
}

func NewBindings() *Bindings {
	return &Bindings{byConn: map[string]Binding{}}
}

// Bind overwrites any prior binding for connID.
func (b *Bindings) Bind(connID, roomID, playerID, playerName string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.byConn[connID] = Binding{RoomID: roomID, PlayerID: playerID, PlayerName: playerName}
}

func (b *Bindings) Lookup(connID string) (Binding, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	bd, ok := b.byConn[connID]
	return bd, ok
}

// Unbind is idempotent.
func (b *Bindings) Unbind(connID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.byConn, connID)
}

func (b *Bindings) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.byConn)
}
