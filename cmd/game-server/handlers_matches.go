package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"echoes-server/internal/store"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

func appendMatchHandler(matches store.MatchStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var m store.Match
		if err := json.NewDecoder(r.Body).Decode(&m); err != nil {
			writeHTTPError(w, http.StatusBadRequest, "invalid_body")
			return
		}
		if err := matches.Append(r.Context(), &m); err != nil {
			switch {
			case errors.Is(err, store.ErrInvalidMatch):
				writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
			case errors.Is(err, store.ErrDuplicate):
				writeHTTPError(w, http.StatusConflict, "duplicate_match")
			default:
				log.Error().Err(err).Str("match_id", m.MatchID).Msg("match_append_failed")
				writeHTTPError(w, http.StatusInternalServerError, "internal_error")
			}
			return
		}
		log.Info().
			Str("match_id", m.MatchID).
			Int64("duration_ms", m.Duration).
			Strs("players", m.Players).
			Int("events", len(m.Events)).
			Msg("match_logged")
		writeJSON(w, http.StatusOK, map[string]any{
			"success":  true,
			"matchId":  m.MatchID,
			"message":  "Match logged successfully",
			"filepath": m.MatchID + ".json",
		})
	}
}

func listMatchesHandler(matches store.MatchStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		summaries, err := matches.List(r.Context())
		if err != nil {
			log.Error().Err(err).Msg("match_list_failed")
			writeHTTPError(w, http.StatusInternalServerError, "internal_error")
			return
		}
		if summaries == nil {
			summaries = []store.Summary{}
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"matches": summaries,
			"total":   len(summaries),
		})
	}
}

func getMatchHandler(matches store.MatchStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m, err := matches.Get(r.Context(), chi.URLParam(r, "matchID"))
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				writeHTTPError(w, http.StatusNotFound, "match_not_found")
				return
			}
			log.Error().Err(err).Msg("match_get_failed")
			writeHTTPError(w, http.StatusInternalServerError, "internal_error")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "match": m})
	}
}

func downloadMatchesHandler(matches store.MatchStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		all, err := matches.All(r.Context())
		if err != nil {
			log.Error().Err(err).Msg("match_export_failed")
			writeHTTPError(w, http.StatusInternalServerError, "internal_error")
			return
		}
		if len(all) == 0 {
			writeHTTPError(w, http.StatusNotFound, "no_matches")
			return
		}
		now := time.Now()
		w.Header().Set("Content-Type", "text/plain")
		w.Header().Set("Content-Disposition",
			fmt.Sprintf(`attachment; filename="echoes-matches-summary-%d.txt"`, now.UnixMilli()))
		_, _ = w.Write([]byte(store.ExportText(all, now)))
	}
}

func deleteMatchesHandler(matches store.MatchStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n, err := matches.DeleteAll(r.Context())
		if err != nil {
			log.Error().Err(err).Msg("match_delete_all_failed")
			writeHTTPError(w, http.StatusInternalServerError, "internal_error")
			return
		}
		log.Info().Int("deleted", n).Msg("matches_cleared")
		writeJSON(w, http.StatusOK, map[string]any{
			"success":      true,
			"message":      fmt.Sprintf("Successfully cleared %d match files", n),
			"deletedCount": n,
		})
	}
}
