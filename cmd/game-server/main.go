package main

import (
	"context"
	"net/http"
	"sort"
	"time"

	"echoes-server/internal/config"
	"echoes-server/internal/logging"
	"echoes-server/internal/room"
	"echoes-server/internal/session"
	"echoes-server/internal/store"
	"echoes-server/internal/ws"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

func main() {
	logCfg, err := config.LoadLog()
	if err != nil {
		panic(err)
	}
	logging.Init(logCfg)
	cfg, err := config.LoadServer()
	if err != nil {
		log.Fatal().Err(err).Msg("load server config failed")
	}

	matches, err := openMatchStore(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("match store init failed")
	}
	defer matches.Close()

	wsrv := ws.NewServer()
	coord := session.NewCoordinator(room.NewRegistry(), wsrv, cfg.GracePeriod)
	wsrv.SetHandler(coord)

	r := newRouter(coord, matches, wsrv, cfg)
	logRoutes(r)

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	log.Info().Str("addr", cfg.HTTPAddr).Dur("grace_period", cfg.GracePeriod).Msg("http listening")
	log.Fatal().Err(server.ListenAndServe()).Msg("server stopped")
}

func openMatchStore(cfg config.ServerConfig) (store.MatchStore, error) {
	if cfg.PostgresDSN != "" {
		st, err := store.NewPGStore(context.Background(), cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		if err := st.Ping(context.Background()); err != nil {
			st.Close()
			return nil, err
		}
		log.Info().Msg("match store: postgres")
		return st, nil
	}
	st, err := store.NewFileStore(cfg.MatchesDir)
	if err != nil {
		return nil, err
	}
	log.Info().Str("dir", cfg.MatchesDir).Msg("match store: files")
	return st, nil
}

func logRoutes(r chi.Router) {
	type routeDef struct {
		Method string
		Path   string
	}
	routes := make([]routeDef, 0, 32)
	err := chi.Walk(r, func(method string, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
		routes = append(routes, routeDef{Method: method, Path: route})
		return nil
	})
	if err != nil {
		log.Error().Err(err).Msg("walk routes failed")
		return
	}
	sort.Slice(routes, func(i, j int) bool {
		if routes[i].Path == routes[j].Path {
			return routes[i].Method < routes[j].Method
		}
		return routes[i].Path < routes[j].Path
	})
	for _, rt := range routes {
		log.Info().Str("method", rt.Method).Str("path", rt.Path).Msg("route")
	}
}
