package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const matchesDDL = `
CREATE TABLE IF NOT EXISTS matches (
    match_id  TEXT PRIMARY KEY,
    data      JSONB NOT NULL,
    logged_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// PGStore keeps match records in Postgres, one JSONB row per match.
// Selected when a DSN is configured; FileStore remains the default.
type PGStore struct {
	pool *pgxpool.Pool
}

func NewPGStore(ctx context.Context, dsn string) (*PGStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if _, err := pool.Exec(ctx, matchesDDL); err != nil {
		pool.Close()
		return nil, err
	}
	return &PGStore{pool: pool}, nil
}

func (s *PGStore) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return s.pool.Ping(ctx)
}

func (s *PGStore) Append(ctx context.Context, m *Match) error {
	if err := ValidateMatch(m); err != nil {
		return err
	}
	stamp(m, time.Now())
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO matches (match_id, data) VALUES ($1, $2) ON CONFLICT (match_id) DO NOTHING`,
		m.MatchID, data)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrDuplicate
	}
	return nil
}

func (s *PGStore) Get(ctx context.Context, matchID string) (*Match, error) {
	var data []byte
	err := s.pool.QueryRow(ctx, `SELECT data FROM matches WHERE match_id = $1`, matchID).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	var m Match
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *PGStore) List(ctx context.Context) ([]Summary, error) {
	matches, err := s.All(ctx)
	if err != nil {
		return nil, err
	}
	summaries := make([]Summary, 0, len(matches))
	for _, m := range matches {
		summaries = append(summaries, Summarize(m))
	}
	return summaries, nil
}

func (s *PGStore) All(ctx context.Context) ([]*Match, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT data FROM matches ORDER BY (data->>'startTime')::bigint DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var matches []*Match
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var m Match
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, err
		}
		matches = append(matches, &m)
	}
	return matches, rows.Err()
}

func (s *PGStore) DeleteAll(ctx context.Context) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM matches`)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (s *PGStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}
