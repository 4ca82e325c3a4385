package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/Sivarajmuthukumar12/the-chat-server/internal/log"
)

// HealthHandler provides a simple health check endpoint that returns server status.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "Chat server is running!")
}

// RoomsHandler lists the current rooms and their member counts as JSON.
func (s *Server) RoomsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.dir.Rooms()); err != nil {
		s.logger.Warn().Err(err).Msg("failed to encode room list")
	}
}

// WebSocketHandler upgrades the request and serves the connection with the
// same dispatcher as TCP clients. Each text frame is a line.
func (s *Server) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}
	if !s.cfg.WebSocket.Enabled {
		http.NotFound(w, r)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Str(log.FieldRemoteAddr, r.RemoteAddr).Msg("WebSocket upgrade failed")
		return
	}

	lc := newWSConn(conn, r.RemoteAddr, s.cfg.WebSocket)
	s.wg.Add(1)
	go s.serveConn(context.WithoutCancel(r.Context()), lc, transportWebSocket, s.cfg.WebSocket.PingInterval)
}
