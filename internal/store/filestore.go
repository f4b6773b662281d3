package store

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// FileStore keeps one pretty-printed JSON file per match under a
// directory, named <matchId>.json. It is the default backend.
type FileStore struct {
	dir string
}

func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) path(matchID string) string {
	return filepath.Join(s.dir, matchID+".json")
}

func (s *FileStore) Append(_ context.Context, m *Match) error {
	if err := ValidateMatch(m); err != nil {
		return err
	}
	stamp(m, time.Now())
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	// O_EXCL turns the existence check and the write into one step.
	f, err := os.OpenFile(s.path(m.MatchID), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return ErrDuplicate
		}
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func (s *FileStore) Get(_ context.Context, matchID string) (*Match, error) {
	if !validMatchID(matchID) {
		return nil, ErrNotFound
	}
	data, err := os.ReadFile(s.path(matchID))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
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

func (s *FileStore) List(ctx context.Context) ([]Summary, error) {
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

func (s *FileStore) All(_ context.Context) ([]*Match, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var matches []*Match
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.dir, e.Name()))
		if err != nil {
			log.Warn().Err(err).Str("file", e.Name()).Msg("match_file_read_failed")
			continue
		}
		var m Match
		if err := json.Unmarshal(data, &m); err != nil {
			log.Warn().Err(err).Str("file", e.Name()).Msg("match_file_corrupt")
			continue
		}
		matches = append(matches, &m)
	}
	// Newest start first.
	sort.Slice(matches, func(i, j int) bool { return matches[i].StartTime > matches[j].StartTime })
	return matches, nil
}

func (s *FileStore) DeleteAll(_ context.Context) (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, err
	}
	deleted := 0
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, e.Name())); err != nil {
			log.Warn().Err(err).Str("file", e.Name()).Msg("match_file_delete_failed")
			continue
		}
		deleted++
	}
	return deleted, nil
}

func (s *FileStore) Close() {}
