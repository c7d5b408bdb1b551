package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Tyrowin/pairchat/internal/relay"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Client is one WebSocket connection. It is the relay.Sink for its user:
// Send queues an encoded event for the write pump and never blocks.
type Client struct {
	conn           *websocket.Conn
	relay          *relay.Relay
	log            *slog.Logger
	metrics        *Metrics
	userID         string
	addr           string
	maxMessageSize int64
	rateLimiter    *rateLimiter
	handle         relay.Handle

	mu     sync.Mutex
	send   chan []byte
	closed bool
}

// NewClient creates a Client for conn. The connection's read limit is set from
// cfg.MaxMessageSize.
func NewClient(conn *websocket.Conn, rl *relay.Relay, cfg *Config, m *Metrics, log *slog.Logger, userID, addr string) *Client {
	if conn != nil {
		conn.SetReadLimit(cfg.MaxMessageSize)
	}
	return &Client{
		conn:           conn,
		relay:          rl,
		log:            log.With("user_id", userID, "addr", addr),
		metrics:        m,
		userID:         userID,
		addr:           addr,
		maxMessageSize: cfg.MaxMessageSize,
		rateLimiter:    newRateLimiter(cfg.RateLimit.Burst, cfg.RateLimit.RefillInterval),
		send:           make(chan []byte, cfg.SendBufferSize),
	}
}

// Send implements relay.Sink.
func (c *Client) Send(ev relay.Outbound) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode %s: %w", ev.EventType(), err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return relay.ErrSinkClosed
	}
	select {
	case c.send <- data:
		return nil
	default:
		return relay.ErrSinkFull
	}
}

// Close implements relay.Sink. The write pump sends a close frame once the
// queued events are flushed.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// setupReadConnection configures read deadlines and pong handler for the WebSocket connection
func (c *Client) setupReadConnection() {
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.log.Debug("Error setting initial read deadline", "err", err)
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
}

// handleReadError logs the read failure at a level matching how expected it is.
func (c *Client) handleReadError(err error) {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		c.log.Warn("Message exceeded maximum size", "limit", c.maxMessageSize)
	case websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived):
		c.log.Debug("Client disconnected", "err", err)
	case errors.Is(err, io.EOF) || isExpectedCloseError(err):
		c.log.Debug("Client connection closed", "err", err)
	case websocket.IsUnexpectedCloseError(err,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure,
		websocket.CloseMessageTooBig):
		c.log.Warn("Unexpected WebSocket error", "err", err)
	default:
		c.log.Debug("WebSocket read error", "err", err)
	}
}

// checkRateLimit reports whether the next frame may be processed.
func (c *Client) checkRateLimit() bool {
	if c.rateLimiter == nil || c.rateLimiter.allow() {
		return true
	}
	c.metrics.RateLimited.Inc()
	c.log.Warn("Rate limit exceeded; discarding message")
	return false
}

// processMessage decodes one frame and hands it to the relay.
func (c *Client) processMessage(raw []byte) {
	ev, err := relay.DecodeInbound(raw)
	if err != nil {
		c.relay.Reject(c.handle, err)
		return
	}
	c.relay.Handle(c.handle, ev)
}

func (c *Client) readPump() {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("Recovered panic in read pump", "panic", r)
		}
		c.relay.Disconnect(c.handle)
		if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
			c.log.Debug("Error closing connection in readPump", "err", err)
		}
	}()

	c.setupReadConnection()

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			c.handleReadError(err)
			return
		}
		if !c.checkRateLimit() {
			c.relay.Reject(c.handle, relay.ErrRateLimited)
			continue
		}
		c.processMessage(raw)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
		if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
			c.log.Debug("Error closing connection in writePump", "err", err)
		}
	}()

	for {
		select {
		case message, ok := <-c.send:
			if !c.handleMessage(message, ok) {
				return
			}
		case <-ticker.C:
			if !c.handlePing() {
				return
			}
		}
	}
}

// handleMessage writes one event frame, or the close frame once the queue
// has been closed. It returns false when the pump should stop.
func (c *Client) handleMessage(message []byte, ok bool) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.log.Debug("Error setting write deadline", "err", err)
		return false
	}
	if !ok {
		if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil && !isExpectedCloseError(err) {
			c.log.Debug("Error writing close message", "err", err)
		}
		return false
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
		c.log.Debug("Error writing message", "err", err)
		return false
	}
	return true
}

// handlePing sends a ping message to keep the connection alive
func (c *Client) handlePing() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.log.Debug("Error setting write deadline for ping", "err", err)
		return false
	}
	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		c.log.Debug("Error writing ping message", "err", err)
		return false
	}
	return true
}
