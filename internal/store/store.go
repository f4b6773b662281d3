package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ServerVersion is stamped onto every appended match record.
const ServerVersion = "1.0.0"

var (
	ErrNotFound     = errors.New("match not found")
	ErrDuplicate    = errors.New("duplicate match id")
	ErrInvalidMatch = errors.New("invalid match")
)

// Match is a completed game's record as submitted by a client.
// Timestamps are unix milliseconds. Events and FinalState are kept
// opaque; the server stores and serves them without interpretation.
type Match struct {
	MatchID       string            `json:"matchId"`
	StartTime     int64             `json:"startTime"`
	EndTime       int64             `json:"endTime"`
	Duration      int64             `json:"duration,omitempty"`
	Players       []string          `json:"players"`
	GameMode      string            `json:"gameMode,omitempty"`
	Winner        string            `json:"winner,omitempty"`
	WinCondition  string            `json:"winCondition,omitempty"`
	Events        []json.RawMessage `json:"events"`
	FinalState    json.RawMessage   `json:"finalState,omitempty"`
	LoggedAt      int64             `json:"loggedAt,omitempty"`
	ServerVersion string            `json:"serverVersion,omitempty"`
}

// Summary is the list-endpoint projection of a match.
type Summary struct {
	MatchID      string   `json:"matchId"`
	StartTime    int64    `json:"startTime"`
	EndTime      int64    `json:"endTime"`
	Duration     int64    `json:"duration"`
	Players      []string `json:"players"`
	GameMode     string   `json:"gameMode,omitempty"`
	Winner       string   `json:"winner,omitempty"`
	WinCondition string   `json:"winCondition,omitempty"`
	EventCount   int      `json:"eventCount"`
	TurnCount    int      `json:"turnCount"`
	LoggedAt     int64    `json:"loggedAt"`
}

// MatchStore persists match records keyed by their client-supplied id.
type MatchStore interface {
	// Append stores a new match, stamping LoggedAt and ServerVersion.
	// A match id already present yields ErrDuplicate.
	Append(ctx context.Context, m *Match) error
	Get(ctx context.Context, matchID string) (*Match, error)
	// List returns summaries of all stored matches, newest start first.
	List(ctx context.Context) ([]Summary, error)
	// All returns every full record, used by the text export.
	All(ctx context.Context) ([]*Match, error)
	// DeleteAll removes every record and reports how many went.
	DeleteAll(ctx context.Context) (int, error)
	Close()
}

// ValidateMatch enforces the record shape before anything touches
// disk or the database. The match id doubles as a storage key, so it
// is restricted to a filename-safe charset.
func ValidateMatch(m *Match) error {
	if m.MatchID == "" {
		return fmt.Errorf("%w: matchId is required", ErrInvalidMatch)
	}
	if !validMatchID(m.MatchID) {
		return fmt.Errorf("%w: matchId may only contain letters, digits, '-' and '_'", ErrInvalidMatch)
	}
	if m.StartTime == 0 || m.EndTime == 0 {
		return fmt.Errorf("%w: startTime and endTime are required", ErrInvalidMatch)
	}
	if m.StartTime >= m.EndTime {
		return fmt.Errorf("%w: startTime must be before endTime", ErrInvalidMatch)
	}
	if len(m.Players) == 0 {
		return fmt.Errorf("%w: players array is required and must not be empty", ErrInvalidMatch)
	}
	if m.Events == nil {
		return fmt.Errorf("%w: events array is required", ErrInvalidMatch)
	}
	return nil
}

func validMatchID(id string) bool {
	if len(id) > 128 {
		return false
	}
	for _, c := range id {
		switch {
		case c >= 'a' && c <= 'z':
		case c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9':
		case c == '-' || c == '_':
		default:
			return false
		}
	}
	return true
}

// Summarize projects a full record into its list form. TurnCount
// comes from the final state's turnNumber when present.
func Summarize(m *Match) Summary {
	s := Summary{
		MatchID:      m.MatchID,
		StartTime:    m.StartTime,
		EndTime:      m.EndTime,
		Duration:     m.Duration,
		Players:      m.Players,
		GameMode:     m.GameMode,
		Winner:       m.Winner,
		WinCondition: m.WinCondition,
		EventCount:   len(m.Events),
		LoggedAt:     m.LoggedAt,
	}
	if len(m.FinalState) > 0 {
		var fs struct {
			TurnNumber int `json:"turnNumber"`
		}
		if err := json.Unmarshal(m.FinalState, &fs); err == nil {
			s.TurnCount = fs.TurnNumber
		}
	}
	return s
}

// ExportText renders all matches as the plain-text summary served by
// the download endpoint.
func ExportText(matches []*Match, now time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Echoes Match Data Export\nGenerated: %s\nTotal Matches: %d\n\n",
		now.UTC().Format(time.RFC3339), len(matches))
	for _, m := range matches {
		fmt.Fprintf(&b, "=== %s.json ===\n", m.MatchID)
		fmt.Fprintf(&b, "Match ID: %s\n", m.MatchID)
		fmt.Fprintf(&b, "Start Time: %s\n", time.UnixMilli(m.StartTime).UTC().Format(time.RFC3339))
		fmt.Fprintf(&b, "Duration: %dms\n", m.Duration)
		fmt.Fprintf(&b, "Players: %s\n", strings.Join(m.Players, ", "))
		winner := m.Winner
		if winner == "" {
			winner = "N/A"
		}
		fmt.Fprintf(&b, "Winner: %s\n", winner)
		fmt.Fprintf(&b, "Events: %d\n\n", len(m.Events))
	}
	return b.String()
}

func stamp(m *Match, now time.Time) {
	m.LoggedAt = now.UnixMilli()
	m.ServerVersion = ServerVersion
}
