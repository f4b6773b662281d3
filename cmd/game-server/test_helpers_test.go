package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"echoes-server/internal/config"
	"echoes-server/internal/room"
	"echoes-server/internal/session"
	"echoes-server/internal/store"
	"echoes-server/internal/ws"

	"github.com/go-chi/chi/v5"
)

func newTestRouter(t *testing.T, cfg config.ServerConfig) (*chi.Mux, *session.Coordinator) {
	t.Helper()
	matches, err := store.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}
	wsrv := ws.NewServer()
	coord := session.NewCoordinator(room.NewRegistry(), wsrv, session.DefaultGracePeriod)
	wsrv.SetHandler(coord)
	return newRouter(coord, matches, wsrv, cfg), coord
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}
	return out
}
