// Package ws carries the persistent channel over gorilla/websocket: one
// read pump and one write pump per authenticated connection.
package ws

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"nexchat/domain"
	"nexchat/domain/event"
	"nexchat/errors"
	"nexchat/observability"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var (
	ErrConnectionClosed = fmt.Errorf("connection closed")
	ErrSlowConsumer     = fmt.Errorf("connection send buffer is full")
)

// Config tunes every connection opened by the Handler.
type Config struct {
	SendBuffer      int
	MaxMessageSize  int64
	RateLimitBurst  int
	RateLimitRefill time.Duration
	PongWait        time.Duration
	PingPeriod      time.Duration
	WriteWait       time.Duration
}

func DefaultConfig() Config {
	return Config{
		SendBuffer:      256,
		MaxMessageSize:  8 << 20,
		RateLimitBurst:  20,
		RateLimitRefill: time.Second,
		PongWait:        60 * time.Second,
		PingPeriod:      54 * time.Second,
		WriteWait:       10 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.SendBuffer <= 0 {
		c.SendBuffer = d.SendBuffer
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = d.MaxMessageSize
	}
	if c.RateLimitBurst <= 0 {
		c.RateLimitBurst = d.RateLimitBurst
	}
	if c.RateLimitRefill <= 0 {
		c.RateLimitRefill = d.RateLimitRefill
	}
	if c.PongWait <= 0 {
		c.PongWait = d.PongWait
	}
	if c.PingPeriod <= 0 || c.PingPeriod >= c.PongWait {
		c.PingPeriod = c.PongWait * 9 / 10
	}
	if c.WriteWait <= 0 {
		c.WriteWait = d.WriteWait
	}
	return c
}

// Connection is a live websocket bound to the identity it authenticated as.
// Frames are queued on a bounded buffer drained by the write pump; a full
// buffer closes the connection instead of blocking the sender.
type Connection struct {
	id       string
	identity domain.Identity
	conn     *websocket.Conn
	config   Config
	log      *slog.Logger
	metrics  *observability.Metrics
	limiter  *rateLimiter

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func newConnection(conn *websocket.Conn, identity domain.Identity, config Config, log *slog.Logger, metrics *observability.Metrics) *Connection {
	id := uuid.NewString()
	conn.SetReadLimit(config.MaxMessageSize)
	return &Connection{
		id:       id,
		identity: identity,
		conn:     conn,
		config:   config,
		log:      log.With("connection_id", id, "user_id", identity.UserID),
		metrics:  metrics,
		limiter:  newRateLimiter(config.RateLimitBurst, config.RateLimitRefill),
		send:     make(chan []byte, config.SendBuffer),
		done:     make(chan struct{}),
	}
}

func (c *Connection) ID() string                { return c.id }
func (c *Connection) Identity() domain.Identity { return c.identity }

// Send encodes evt and queues it without blocking.
func (c *Connection) Send(evt event.ServerEvent) error {
	frame, err := event.Encode(evt)
	if err != nil {
		return err
	}
	select {
	case <-c.done:
		return ErrConnectionClosed
	default:
	}
	select {
	case c.send <- frame:
		return nil
	case <-c.done:
		return ErrConnectionClosed
	default:
		c.metrics.FrameDropped()
		c.log.Warn("Send buffer full, closing connection", "event", evt.EventType())
		_ = c.Close()
		return ErrSlowConsumer
	}
}

// Close stops both pumps. It is safe to call more than once.
func (c *Connection) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	return nil
}

// readPump reads client frames one at a time and hands each one to handle
// before reading the next, so intents of one connection are processed in
// arrival order.
func (c *Connection) readPump(handle func(frame []byte)) {
	defer func() {
		_ = c.Close()
		if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
			c.log.Error("Error closing connection in read pump", "error", err)
		}
	}()

	c.setupReadConnection()
	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			c.logReadError(err)
			return
		}
		if !c.limiter.allow() {
			c.log.Warn("Rate limit exceeded, discarding frame",
				"burst", c.config.RateLimitBurst, "refill", c.config.RateLimitRefill)
			continue
		}
		handle(frame)
	}
}

func (c *Connection) setupReadConnection() {
	if err := c.conn.SetReadDeadline(time.Now().Add(c.config.PongWait)); err != nil {
		c.log.Error("Error setting initial read deadline", "error", err)
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.config.PongWait))
	})
}

func (c *Connection) logReadError(err error) {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		c.log.Warn("Frame exceeded maximum size", "max_bytes", c.config.MaxMessageSize)
	case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseAbnormalClosure),
		errors.Is(err, io.EOF), isExpectedCloseError(err):
		c.log.Debug("Connection closed by peer", "reason", err)
	default:
		c.log.Warn("Unexpected read error", "error", err)
	}
}

// writePump owns every write to the socket. Each frame goes out as its own
// text message because clients decode one envelope per message.
func (c *Connection) writePump() {
	ticker := time.NewTicker(c.config.PingPeriod)
	defer func() {
		ticker.Stop()
		if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
			c.log.Error("Error closing connection in write pump", "error", err)
		}
	}()

	for {
		select {
		case frame := <-c.send:
			if !c.write(websocket.TextMessage, frame) {
				return
			}
		case <-ticker.C:
			if !c.write(websocket.PingMessage, nil) {
				return
			}
		case <-c.done:
			c.flush()
			_ = c.write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// flush writes whatever was queued before the connection was closed.
func (c *Connection) flush() {
	for {
		select {
		case frame := <-c.send:
			if !c.write(websocket.TextMessage, frame) {
				return
			}
		default:
			return
		}
	}
}

func (c *Connection) write(messageType int, data []byte) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteWait)); err != nil {
		c.log.Error("Error setting write deadline", "error", err)
		return false
	}
	if err := c.conn.WriteMessage(messageType, data); err != nil {
		if !isExpectedCloseError(err) {
			c.log.Warn("Error writing frame", "error", err)
		}
		_ = c.Close()
		return false
	}
	return true
}

func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, websocket.ErrCloseSent) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "use of closed network connection") ||
		strings.Contains(msg, "broken pipe")
}
