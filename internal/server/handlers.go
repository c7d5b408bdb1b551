package server

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Debug("Error writing response", "err", err)
	}
}

// HealthHandler reports that the service is up.
func (s *Server) HealthHandler(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, StatusResponse{Message: "Real-time Chat API is running"})
}

// OnlineUsersHandler returns the current online-user snapshot.
func (s *Server) OnlineUsersHandler(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, OnlineUsersResponse{Users: s.relay.Snapshot()})
}

// WebSocketHandler upgrades /ws/{user_id} and attaches the connection to the
// relay under that identity. A name query parameter, when present, is used
// verbatim as the display name.
func (s *Server) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(mux.Vars(r)["user_id"])
	if userID == "" {
		s.metrics.Upgrades.WithLabelValues("rejected").Inc()
		http.Error(w, "user id is required", http.StatusBadRequest)
		return
	}
	name := r.URL.Query().Get("name")
	if name == "" {
		name = defaultDisplayName(userID)
	}

	if s.isClosing() {
		s.metrics.Upgrades.WithLabelValues("rejected").Inc()
		http.Error(w, "server is shutting down", http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.metrics.Upgrades.WithLabelValues("failed").Inc()
		s.log.Warn("WebSocket upgrade failed", "user_id", userID, "err", err)
		return
	}
	s.metrics.Upgrades.WithLabelValues("ok").Inc()

	c := NewClient(conn, s.relay, s.cfg, s.metrics, s.log, userID, r.RemoteAddr)
	if !s.serve(c, name) {
		// Shutdown began while this request was upgrading.
		msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server is shutting down")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		_ = conn.Close()
	}
}
