package main

import (
	"encoding/json"
	"errors"
	"net/http"

	"echoes-server/internal/room"
	"echoes-server/internal/session"

	"github.com/go-chi/chi/v5"
)

// Debug endpoints poke the live coordinator state. They are unlocked
// on purpose; operators front them with network policy, not keys.

func debugRoomsHandler(coord *session.Coordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, coord.DebugRooms())
	}
}

func debugSubmissionsHandler(coord *session.Coordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st, err := coord.RoomSubmissions(chi.URLParam(r, "roomID"))
		if err != nil {
			writeRoomError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, st)
	}
}

func debugTriggerReplayHandler(coord *session.Coordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		roomID := chi.URLParam(r, "roomID")
		if err := coord.TriggerReplay(roomID, "Replay phase manually triggered for testing!"); err != nil {
			writeRoomError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"message": "Replay phase triggered",
			"roomId":  roomID,
		})
	}
}

func debugResetSubmissionsHandler(coord *session.Coordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		roomID := chi.URLParam(r, "roomID")
		if err := coord.ResetSubmissions(roomID); err != nil {
			writeRoomError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"message": "Submissions reset",
			"roomId":  roomID,
		})
	}
}

func debugSetStatusHandler(coord *session.Coordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Status room.Status `json:"status"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeHTTPError(w, http.StatusBadRequest, "invalid_body")
			return
		}
		roomID := chi.URLParam(r, "roomID")
		if err := coord.SetRoomStatus(roomID, req.Status); err != nil {
			if errors.Is(err, room.ErrInvalidStatus) {
				writeHTTPError(w, http.StatusBadRequest, "invalid_status")
				return
			}
			writeRoomError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"roomId":  roomID,
			"status":  req.Status,
		})
	}
}
