// Package status serves a minimal JSON health endpoint describing engine
// uptime and fan-out size.
package status

import (
	"encoding/json"
	"net/http"
	"time"
)

// Server reports the engine's health and basic fan-out counts.
type Server struct {
	universeSize   int
	startAt        time.Time
	streamClients  func() int
	gatewayClients func() int
}

// New creates a status Server. streamClients and gatewayClients are called
// on every request to report live connection counts.
func New(universeSize int, streamClients, gatewayClients func() int) *Server {
	return &Server{
		universeSize:   universeSize,
		startAt:        time.Now(),
		streamClients:  streamClients,
		gatewayClients: gatewayClients,
	}
}

// Register attaches the health endpoint to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", s.handleHealthz)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":          "ok",
		"universe_size":   s.universeSize,
		"stream_clients":  s.streamClients(),
		"gateway_clients": s.gatewayClients(),
		"uptime_seconds":  time.Since(s.startAt).Seconds(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
