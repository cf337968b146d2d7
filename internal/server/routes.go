package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/EliasMarine/bourbonbuddy-sub001/internal/gateway"
	"github.com/EliasMarine/bourbonbuddy-sub001/internal/room"
)

// Routes mounts the transports and the read-only HTTP endpoints.
func Routes(gw *gateway.Gateway, registry *room.Registry, allowedOrigin string, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", healthCheckHandler)
	mux.HandleFunc("/ws", gw.ServeWS)
	mux.HandleFunc("/poll", gw.ServePoll)
	mux.HandleFunc("GET /api/rooms", roomsHandler(registry, logger))
	return withCORS(allowedOrigin, mux)
}

func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("Tasting server is healthy."))
}

func roomsHandler(registry *room.Registry, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-store")
		if err := json.NewEncoder(w).Encode(registry.Stats()); err != nil {
			logger.Warn("failed to write room stats", "error", err)
		}
	}
}

// withCORS allows the configured origin to reach every route, including
// the polling transport's preflight requests.
func withCORS(origin string, next http.Handler) http.Handler {
	if origin == "" {
		origin = "*"
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", origin)
		h.Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type")
		if origin != "*" {
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Add("Vary", "Origin")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
