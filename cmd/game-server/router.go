package main

import (
	"net/http"

	"echoes-server/internal/config"
	"echoes-server/internal/session"
	"echoes-server/internal/store"
	"echoes-server/internal/ws"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

func newRouter(coord *session.Coordinator, matches store.MatchStore, wsrv *ws.Server, cfg config.ServerConfig) *chi.Mux {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)

	r.With(apiLogMiddleware()).Get("/", rootHandler)

	r.Route("/api", func(r chi.Router) {
		r.Use(apiLogMiddleware())

		r.Get("/health", healthHandler)

		r.Get("/rooms", listRoomsHandler(coord))
		r.Post("/rooms", createRoomHandler(coord))
		r.Post("/rooms/{roomID}/join", joinRoomHandler(coord))

		r.Get("/matches", listMatchesHandler(matches))
		r.Post("/matches", appendMatchHandler(matches))
		r.Get("/matches/download", downloadMatchesHandler(matches))
		r.Get("/matches/{matchID}", getMatchHandler(matches))
		r.With(adminAuthMiddleware(cfg.AdminAPIKey)).Delete("/matches", deleteMatchesHandler(matches))

		r.Route("/debug", func(r chi.Router) {
			r.Get("/rooms", debugRoomsHandler(coord))
			r.Get("/rooms/{roomID}/submissions", debugSubmissionsHandler(coord))
			r.Post("/rooms/{roomID}/trigger-replay", debugTriggerReplayHandler(coord))
			r.Post("/rooms/{roomID}/reset-submissions", debugResetSubmissionsHandler(coord))
			r.Post("/rooms/{roomID}/status", debugSetStatusHandler(coord))
		})
	})

	// The realtime channel skips the request logger; one upgrade can
	// outlive thousands of requests.
	r.Get("/ws", wsrv.HandleWS)

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		writeHTTPError(w, http.StatusNotFound, "route_not_found")
	})
	return r
}
