package main

import (
	"encoding/json"
	"errors"
	"net/http"

	"echoes-server/internal/room"
	"echoes-server/internal/session"

	"github.com/go-chi/chi/v5"
)

func rootHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Echoes Backend API",
		"version": "1.0.0",
		"endpoints": map[string]string{
			"health":  "/api/health",
			"rooms":   "/api/rooms",
			"matches": "/api/matches",
			"ws":      "/ws",
		},
	})
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"message": "Echoes backend is running",
	})
}

func listRoomsHandler(coord *session.Coordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, coord.ListAvailable())
	}
}

type roomRequest struct {
	PlayerName string `json:"playerName"`
}

func createRoomHandler(coord *session.Coordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req roomRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeHTTPError(w, http.StatusBadRequest, "invalid_body")
			return
		}
		rm, player, err := coord.CreateRoom(req.PlayerName)
		if err != nil {
			writeRoomError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"id":       rm.ID,
			"host":     rm.HostName,
			"status":   rm.Status,
			"playerId": player.ID,
		})
	}
}

func joinRoomHandler(coord *session.Coordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req roomRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeHTTPError(w, http.StatusBadRequest, "invalid_body")
			return
		}
		rm, player, err := coord.JoinRoom(chi.URLParam(r, "roomID"), req.PlayerName)
		if err != nil {
			writeRoomError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"success":  true,
			"room":     rm,
			"playerId": player.ID,
		})
	}
}

func writeRoomError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, room.ErrInvalidName):
		writeHTTPError(w, http.StatusBadRequest, "invalid_player_name")
	case errors.Is(err, room.ErrRoomNotFound):
		writeHTTPError(w, http.StatusNotFound, "room_not_found")
	case errors.Is(err, room.ErrRoomNotWaiting):
		writeHTTPError(w, http.StatusBadRequest, "room_not_available")
	case errors.Is(err, room.ErrRoomFull):
		writeHTTPError(w, http.StatusBadRequest, "room_full")
	case errors.Is(err, room.ErrDuplicateName):
		writeHTTPError(w, http.StatusBadRequest, "duplicate_player_name")
	default:
		writeHTTPError(w, http.StatusInternalServerError, "internal_error")
	}
}
