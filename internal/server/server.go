package server

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/Tyrowin/pairchat/internal/relay"
)

// Server owns the WebSocket transport in front of a relay.Relay.
type Server struct {
	cfg      *Config
	relay    *relay.Relay
	log      *slog.Logger
	metrics  *Metrics
	registry *prometheus.Registry
	origins  *originPolicy
	upgrader websocket.Upgrader

	// mu guards closing. Once closing is set no connection is registered and
	// wg is not added to.
	mu      sync.Mutex
	closing bool
	// wg tracks client pump goroutines.
	wg sync.WaitGroup
}

// New returns a Server for rl. Transport metrics are registered with reg and
// exposed on /metrics; a nil reg gets a private registry.
func New(cfg *Config, rl *relay.Relay, log *slog.Logger, reg *prometheus.Registry) *Server {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	s := &Server{
		cfg:      cfg,
		relay:    rl,
		log:      log,
		metrics:  NewMetrics(reg),
		registry: reg,
		origins:  newOriginPolicy(cfg.Origins(), log),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.origins.checkOrigin,
	}
	return s
}

func (s *Server) isClosing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closing
}

// serve registers c with the relay and starts its pumps. It reports false,
// leaving c unregistered, once Shutdown has begun.
func (s *Server) serve(c *Client, name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return false
	}

	c.handle = s.relay.Register(c.userID, name, c)

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		c.writePump()
	}()
	go func() {
		defer s.wg.Done()
		c.readPump()
	}()
	return true
}

// Shutdown closes every connection and waits for the client goroutines to
// finish, or until the timeout is reached.
func (s *Server) Shutdown(timeout time.Duration) error {
	s.mu.Lock()
	s.closing = true
	s.mu.Unlock()

	s.log.Info("Closing client connections")
	s.relay.CloseAll()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.log.Info("Client connections closed")
		return nil
	case <-time.After(timeout):
		s.log.Warn("Shutdown timeout reached, some connections may still be open")
		return context.DeadlineExceeded
	}
}
