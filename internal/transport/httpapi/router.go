// Package httpapi exposes the HTTP surface: the websocket endpoint, a
// liveness probe, and a read-only stats endpoint.
package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/blastarena/server/internal/game/room"
)

// StatsResponse is the /api/stats body.
type StatsResponse struct {
	Rooms       int `json:"rooms"`
	Players     int `json:"players"`
	InProgress  int `json:"in_progress"`
	Connections int `json:"connections"`
}

// ConnCounter reports live transport connections; satisfied by ws.Hub.
type ConnCounter interface {
	ConnCount() int
}

// StatsSource reports registry counters; satisfied by room.Registry.
type StatsSource interface {
	Stats() room.Stats
}

// NewRouter builds the HTTP routing table.
func NewRouter(wsHandler http.Handler, stats StatsSource, conns ConnCounter, logger *zap.Logger) *mux.Router {
	r := mux.NewRouter()
	r.Use(corsMiddleware)

	// OPTIONS must match too: mux runs middleware only on matched routes, and
	// preflights would otherwise 405 without CORS headers.
	r.Handle("/ws", wsHandler)
	r.HandleFunc("/healthz", handleHealthz).Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/api/stats", handleStats(stats, conns, logger)).Methods(http.MethodGet, http.MethodOptions)

	return r
}

func handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

func handleStats(stats StatsSource, conns ConnCounter, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		s := stats.Stats()
		body := StatsResponse{
			Rooms:      s.Rooms,
			Players:    s.Players,
			InProgress: s.InProgress,
		}
		if conns != nil {
			body.Connections = conns.ConnCount()
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(body); err != nil {
			logger.Error("writing stats response", zap.Error(err))
		}
	}
}

// corsMiddleware allows browser clients served from any origin to reach the
// read-only endpoints and the websocket upgrade.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
