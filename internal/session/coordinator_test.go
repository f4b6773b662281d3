package session

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"echoes-server/internal/room"
)

// recorder captures everything the coordinator emits.
type recorder struct {
	mu   sync.Mutex
	sent []sent
}

type sent struct {
	ConnID  string // direct sends only
	RoomID  string // room sends only
	Exclude string
	Event   any
}

func (r *recorder) SendTo(connID string, event any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, sent{ConnID: connID, Event: event})
}

func (r *recorder) SendToRoom(roomID string, event any, excludeConnID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, sent{RoomID: roomID, Exclude: excludeConnID, Event: event})
}

func (r *recorder) all() []sent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]sent(nil), r.sent...)
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = nil
}

func (r *recorder) count(match func(sent) bool) int {
	n := 0
	for _, s := range r.all() {
		if match(s) {
			n++
		}
	}
	return n
}

func isType[T any](s sent) bool {
	_, ok := s.Event.(T)
	return ok
}

func newTestCoordinator(t *testing.T, grace time.Duration) (*Coordinator, *recorder) {
	t.Helper()
	rec := &recorder{}
	return NewCoordinator(room.NewRegistry(), rec, grace), rec
}

// createPair sets up the canonical Alice-hosts, Bob-joins room with
// both connections bound.
func createPair(t *testing.T, c *Coordinator) (*room.Room, *room.Player, *room.Player) {
	t.Helper()
	r, alice, err := c.CreateRoom("Alice")
	if err != nil {
		t.Fatalf("CreateRoom() error = %v", err)
	}
	_, bob, err := c.JoinRoom(r.ID, "Bob")
	if err != nil {
		t.Fatalf("JoinRoom() error = %v", err)
	}
	c.HandleJoinRoom("conn_alice", r.ID, alice.ID, alice.Name)
	c.HandleJoinRoom("conn_bob", r.ID, bob.ID, bob.Name)
	return r, alice, bob
}

func waitFor(t *testing.T, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestScenarioCreateJoinSubmit(t *testing.T) {
	c, rec := newTestCoordinator(t, time.Minute)

	r, alice, err := c.CreateRoom("Alice")
	if err != nil {
		t.Fatalf("CreateRoom() error = %v", err)
	}
	if r.Status != room.StatusWaiting || len(r.Players) != 1 || !alice.IsHost {
		t.Fatalf("created room = %+v host = %+v", r, alice)
	}

	joined, bob, err := c.JoinRoom(r.ID, "Bob")
	if err != nil {
		t.Fatalf("JoinRoom() error = %v", err)
	}
	if len(joined.Players) != 2 || bob.GameRole != room.RolePlayer2 {
		t.Fatalf("joined room = %+v bob = %+v", joined, bob)
	}
	if rec.count(isType[PlayerJoined]) != 1 {
		t.Fatal("playerJoined not emitted to the room")
	}

	c.HandleJoinRoom("conn_alice", r.ID, alice.ID, alice.Name)
	c.HandleJoinRoom("conn_bob", r.ID, bob.ID, bob.Name)
	rec.reset()

	c.HandleSubmit("conn_alice", r.ID, alice.ID, alice.Name, room.RolePlayer1)
	if rec.count(isType[ReplayPhase]) != 0 {
		t.Fatal("replayPhase triggered with one submission")
	}
	c.HandleSubmit("conn_bob", r.ID, bob.ID, bob.Name, room.RolePlayer2)
	if rec.count(isType[ReplayPhase]) != 1 {
		t.Fatal("replayPhase not triggered after both submissions")
	}

	st, err := c.RoomSubmissions(r.ID)
	if err != nil {
		t.Fatalf("RoomSubmissions() error = %v", err)
	}
	if st.SubmissionCount != 0 {
		t.Fatalf("submissions = %v after release, want empty", st.Submissions)
	}

	// A fresh single submission does not immediately re-trigger.
	rec.reset()
	c.HandleSubmit("conn_alice", r.ID, alice.ID, alice.Name, room.RolePlayer1)
	if rec.count(isType[ReplayPhase]) != 0 {
		t.Fatal("replayPhase re-triggered by a single post-release submission")
	}
}

func TestSubmitSameRoleTwiceIsIdempotent(t *testing.T) {
	c, rec := newTestCoordinator(t, time.Minute)
	r, alice, _ := createPair(t, c)
	rec.reset()

	c.HandleSubmit("conn_alice", r.ID, alice.ID, alice.Name, room.RolePlayer1)
	c.HandleSubmit("conn_alice", r.ID, alice.ID, alice.Name, room.RolePlayer1)
	if rec.count(isType[ReplayPhase]) != 0 {
		t.Fatal("double submission of one role released the barrier")
	}
	st, _ := c.RoomSubmissions(r.ID)
	if st.SubmissionCount != 1 {
		t.Fatalf("submission count = %d, want 1", st.SubmissionCount)
	}
}

func TestSubmitRelaysToOpponentOnly(t *testing.T) {
	c, rec := newTestCoordinator(t, time.Minute)
	r, alice, _ := createPair(t, c)
	rec.reset()

	c.HandleSubmit("conn_alice", r.ID, alice.ID, alice.Name, room.RolePlayer1)
	for _, s := range rec.all() {
		if _, ok := s.Event.(PlayerSubmitted); ok {
			if s.Exclude != "conn_alice" {
				t.Fatalf("playerSubmitted exclude = %q, want conn_alice", s.Exclude)
			}
			return
		}
	}
	t.Fatal("playerSubmitted was not relayed")
}

func TestGameActionNeverEchoesToSender(t *testing.T) {
	c, rec := newTestCoordinator(t, time.Minute)
	r, alice, _ := createPair(t, c)
	rec.reset()

	c.HandleGameAction("conn_alice", r.ID, json.RawMessage(`{"move":"north"}`), alice.ID)
	events := rec.all()
	if len(events) != 1 {
		t.Fatalf("emitted %d events, want 1", len(events))
	}
	if events[0].Exclude != "conn_alice" {
		t.Fatalf("gameAction exclude = %q, want conn_alice", events[0].Exclude)
	}
	ga := events[0].Event.(GameAction)
	if string(ga.Action) != `{"move":"north"}` || ga.PlayerID != alice.ID {
		t.Fatalf("relayed action = %+v", ga)
	}
}

func TestGameStateStoredAndRelayedAsOpponentEchoes(t *testing.T) {
	c, rec := newTestCoordinator(t, time.Minute)
	r, alice, _ := createPair(t, c)
	rec.reset()

	payload := json.RawMessage(`{"echoes":[1,2,3]}`)
	c.HandleGameState("conn_alice", r.ID, alice.ID, alice.Name, room.RolePlayer1, payload)

	events := rec.all()
	if len(events) != 1 {
		t.Fatalf("emitted %d events, want 1", len(events))
	}
	oe := events[0].Event.(OpponentEchoes)
	if events[0].Exclude != "conn_alice" || string(oe.Payload) != string(payload) {
		t.Fatalf("opponentEchoes = %+v exclude = %q", oe, events[0].Exclude)
	}

	// A later rejoin replays the stored snapshot.
	rec.reset()
	c.HandleJoinRoom("conn_alice2", r.ID, alice.ID, alice.Name)
	found := false
	for _, s := range rec.all() {
		if gs, ok := s.Event.(GameStateSnapshot); ok {
			found = true
			if s.ConnID != "conn_alice2" || string(gs.Payload) != string(payload) {
				t.Fatalf("snapshot = %+v to %q", gs, s.ConnID)
			}
		}
	}
	if !found {
		t.Fatal("stored game state not replayed on join")
	}
}

func TestChatBroadcastsToWholeRoom(t *testing.T) {
	c, rec := newTestCoordinator(t, time.Minute)
	r, _, _ := createPair(t, c)
	rec.reset()

	c.HandleChat("conn_alice", r.ID, "hello", "Alice")
	events := rec.all()
	if len(events) != 1 {
		t.Fatalf("emitted %d events, want 1", len(events))
	}
	if events[0].Exclude != "" {
		t.Fatal("chat excluded the sender")
	}
	cm := events[0].Event.(ChatMessage)
	if cm.Message != "hello" || cm.Timestamp.IsZero() {
		t.Fatalf("chat = %+v", cm)
	}
}

func TestReconnectWithinGraceKeepsPlayer(t *testing.T) {
	c, rec := newTestCoordinator(t, 80*time.Millisecond)
	r, alice, _ := createPair(t, c)
	rec.reset()

	c.HandleDisconnect("conn_alice")
	if rec.count(isType[OpponentDisconnected]) != 1 {
		t.Fatal("opponentDisconnected not emitted")
	}

	// Reconnect well within the window.
	time.Sleep(20 * time.Millisecond)
	c.HandleJoinRoom("conn_alice2", r.ID, alice.ID, alice.Name)
	if rec.count(isType[OpponentReconnected]) != 1 {
		t.Fatal("opponentReconnected not emitted")
	}

	// Wait past the original deadline: the player must survive.
	time.Sleep(150 * time.Millisecond)
	if rec.count(isType[PlayerLeft]) != 0 {
		t.Fatal("playerLeft emitted despite reconnect")
	}
	st, err := c.RoomSubmissions(r.ID)
	if err != nil {
		t.Fatalf("room vanished: %v", err)
	}
	if st.PlayerCount != 2 {
		t.Fatalf("players = %d, want 2", st.PlayerCount)
	}
	for _, p := range st.Players {
		if p.ID == alice.ID && (!p.IsHost || p.GameRole != room.RolePlayer1) {
			t.Fatalf("reconnected player mutated: %+v", p)
		}
	}
}

func TestGraceExpiryRemovesHostAndMigrates(t *testing.T) {
	c, rec := newTestCoordinator(t, 40*time.Millisecond)
	r, _, bob := createPair(t, c)
	if err := c.SetRoomStatus(r.ID, room.StatusPlaying); err != nil {
		t.Fatalf("SetRoomStatus() error = %v", err)
	}
	rec.reset()

	c.HandleDisconnect("conn_alice")
	waitFor(t, func() bool { return rec.count(isType[PlayerLeft]) == 1 }, "playerLeft")

	var leftIdx, hostIdx = -1, -1
	for i, s := range rec.all() {
		switch ev := s.Event.(type) {
		case PlayerLeft:
			leftIdx = i
			if ev.Reason != LeaveReasonGrace {
				t.Fatalf("playerLeft reason = %q, want %q", ev.Reason, LeaveReasonGrace)
			}
			if ev.RemainingPlayers != 1 {
				t.Fatalf("remainingPlayers = %d, want 1", ev.RemainingPlayers)
			}
		case HostChanged:
			hostIdx = i
			if ev.NewHostID != bob.ID || ev.NewHostName != "Bob" {
				t.Fatalf("hostChanged = %+v, want Bob", ev)
			}
		}
	}
	if hostIdx == -1 {
		t.Fatal("hostChanged not emitted")
	}
	if hostIdx < leftIdx {
		t.Fatal("hostChanged emitted before playerLeft")
	}

	st, err := c.RoomSubmissions(r.ID)
	if err != nil {
		t.Fatalf("RoomSubmissions() error = %v", err)
	}
	if st.PlayerCount != 1 {
		t.Fatalf("players = %d, want 1", st.PlayerCount)
	}
	survivor := st.Players[0]
	if !survivor.IsHost || survivor.GameRole != room.RolePlayer1 {
		t.Fatalf("survivor = %+v, want host/player1", survivor)
	}

	// playing reverted to waiting once occupancy dropped.
	dump := c.DebugRooms()
	if dump.Rooms[0].Status != room.StatusWaiting {
		t.Fatalf("status = %q, want waiting", dump.Rooms[0].Status)
	}
}

func TestGraceExpiryDeletesEmptyRoom(t *testing.T) {
	c, rec := newTestCoordinator(t, 30*time.Millisecond)
	r, alice, err := c.CreateRoom("Alice")
	if err != nil {
		t.Fatalf("CreateRoom() error = %v", err)
	}
	c.HandleJoinRoom("conn_alice", r.ID, alice.ID, alice.Name)
	rec.reset()

	c.HandleDisconnect("conn_alice")
	waitFor(t, func() bool { return c.DebugRooms().TotalRooms == 0 }, "room deletion")

	if _, _, err := c.JoinRoom(r.ID, "Bob"); err != room.ErrRoomNotFound {
		t.Fatalf("join after delete: error = %v, want ErrRoomNotFound", err)
	}
}

func TestExplicitLeaveNotifiesAndUnbinds(t *testing.T) {
	c, rec := newTestCoordinator(t, time.Minute)
	r, _, bob := createPair(t, c)
	rec.reset()

	c.HandleLeaveRoom("conn_bob", r.ID, bob.ID, bob.Name)
	if rec.count(isType[PlayerLeft]) != 1 {
		t.Fatal("playerLeft not emitted")
	}
	for _, s := range rec.all() {
		if ev, ok := s.Event.(PlayerLeft); ok {
			if ev.Reason != "" {
				t.Fatalf("explicit leave reason = %q, want empty", ev.Reason)
			}
			if s.Exclude != "conn_bob" {
				t.Fatalf("playerLeft exclude = %q, want conn_bob", s.Exclude)
			}
		}
	}
	// Non-host departure does not migrate.
	if rec.count(isType[HostChanged]) != 0 {
		t.Fatal("hostChanged emitted for non-host leave")
	}

	// Later disconnect of the same connection is a no-op.
	rec.reset()
	c.HandleDisconnect("conn_bob")
	if len(rec.all()) != 0 {
		t.Fatal("disconnect after leave produced events")
	}
}

func TestLeaveMissingFieldsDropsButUnbinds(t *testing.T) {
	c, rec := newTestCoordinator(t, time.Minute)
	r, _, _ := createPair(t, c)
	rec.reset()

	c.HandleLeaveRoom("conn_bob", r.ID, "", "")
	if len(rec.all()) != 0 {
		t.Fatal("malformed leave produced events")
	}
	st, _ := c.RoomSubmissions(r.ID)
	if st.PlayerCount != 2 {
		t.Fatalf("players = %d after malformed leave, want 2", st.PlayerCount)
	}
	// The connection is unbound regardless of outcome.
	c.HandleDisconnect("conn_bob")
	if rec.count(isType[OpponentDisconnected]) != 0 {
		t.Fatal("binding survived a leave event")
	}
}

func TestLegacyLeaveResolvesBinding(t *testing.T) {
	c, rec := newTestCoordinator(t, time.Minute)
	r, _, bob := createPair(t, c)
	rec.reset()

	c.HandleLegacyLeave("conn_bob", r.ID)
	if rec.count(isType[PlayerLeft]) != 1 {
		t.Fatal("legacy leave did not emit playerLeft")
	}
	for _, s := range rec.all() {
		if ev, ok := s.Event.(PlayerLeft); ok {
			if ev.PlayerID != bob.ID || ev.PlayerName != bob.Name {
				t.Fatalf("playerLeft identity = %q/%q, want %q/%q", ev.PlayerID, ev.PlayerName, bob.ID, bob.Name)
			}
		}
	}
	st, _ := c.RoomSubmissions(r.ID)
	if st.PlayerCount != 1 {
		t.Fatalf("players = %d after legacy leave, want 1", st.PlayerCount)
	}
}

func TestLegacyLeaveWithoutBindingIsDropped(t *testing.T) {
	c, rec := newTestCoordinator(t, time.Minute)
	r, _, _ := createPair(t, c)
	rec.reset()

	// A connection the coordinator never bound cannot name a player.
	c.HandleLegacyLeave("conn_stranger", r.ID)
	if len(rec.all()) != 0 {
		t.Fatal("unbound legacy leave produced events")
	}
	st, _ := c.RoomSubmissions(r.ID)
	if st.PlayerCount != 2 {
		t.Fatalf("players = %d after unbound legacy leave, want 2", st.PlayerCount)
	}
}

func TestEventsOnUnknownRoomAreNoOps(t *testing.T) {
	c, rec := newTestCoordinator(t, time.Minute)

	c.HandleGameAction("c1", "NOSUCH", json.RawMessage(`{}`), "p1")
	c.HandleSubmit("c1", "NOSUCH", "p1", "Alice", room.RolePlayer1)
	c.HandleGameState("c1", "NOSUCH", "p1", "Alice", room.RolePlayer1, json.RawMessage(`{}`))
	c.HandleChat("c1", "NOSUCH", "hi", "Alice")
	c.HandleLeaveRoom("c1", "NOSUCH", "p1", "Alice")
	if len(rec.all()) != 0 {
		t.Fatalf("unknown-room events emitted %d messages, want 0", len(rec.all()))
	}
}

func TestSubmitForAbsentRoleIsDropped(t *testing.T) {
	c, rec := newTestCoordinator(t, time.Minute)
	r, alice, err := c.CreateRoom("Alice")
	if err != nil {
		t.Fatalf("CreateRoom() error = %v", err)
	}
	c.HandleJoinRoom("conn_alice", r.ID, alice.ID, alice.Name)
	rec.reset()

	// Nobody holds player2 yet.
	c.HandleSubmit("conn_alice", r.ID, alice.ID, alice.Name, room.RolePlayer2)
	if len(rec.all()) != 0 {
		t.Fatal("submission for an absent role was relayed")
	}
	st, _ := c.RoomSubmissions(r.ID)
	if st.SubmissionCount != 0 {
		t.Fatal("submission for an absent role was tracked")
	}
}

func TestTriggerReplayAndReset(t *testing.T) {
	c, rec := newTestCoordinator(t, time.Minute)
	r, alice, _ := createPair(t, c)

	c.HandleSubmit("conn_alice", r.ID, alice.ID, alice.Name, room.RolePlayer1)
	rec.reset()

	if err := c.TriggerReplay(r.ID, "manual"); err != nil {
		t.Fatalf("TriggerReplay() error = %v", err)
	}
	if rec.count(isType[ReplayPhase]) != 1 {
		t.Fatal("manual replayPhase not broadcast")
	}
	st, _ := c.RoomSubmissions(r.ID)
	if st.SubmissionCount != 0 {
		t.Fatal("trigger did not clear the barrier")
	}

	c.HandleSubmit("conn_alice", r.ID, alice.ID, alice.Name, room.RolePlayer1)
	if err := c.ResetSubmissions(r.ID); err != nil {
		t.Fatalf("ResetSubmissions() error = %v", err)
	}
	st, _ = c.RoomSubmissions(r.ID)
	if st.SubmissionCount != 0 {
		t.Fatal("reset did not clear the barrier")
	}

	if err := c.TriggerReplay("NOSUCH", "manual"); err != room.ErrRoomNotFound {
		t.Fatalf("TriggerReplay(unknown) error = %v, want ErrRoomNotFound", err)
	}
}

func TestDisconnectOfUnboundConnIsNoOp(t *testing.T) {
	c, rec := newTestCoordinator(t, time.Minute)
	c.HandleDisconnect("conn_ghost")
	if len(rec.all()) != 0 {
		t.Fatal("unbound disconnect produced events")
	}
}
