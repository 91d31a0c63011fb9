package progress

import (
	"errors"
	"hash/fnv"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var (
	ErrNoSession    = errors.New("no live session")
	ErrSlowConsumer = errors.New("session send buffer full")
)

const (
	hubShards = 32

	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	maxInboundMessage = 4096
)

// Hub is the process-wide session id to connection registry. Lookups and
// connect/disconnect on different sessions only contend within a shard.
type Hub struct {
	shards     [hubShards]hubShard
	sendBuffer int
	observer   Observer
}

type hubShard struct {
	mu      sync.RWMutex
	clients map[string]*client
}

type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte

	closeOnce sync.Once
	done      chan struct{}
}

func NewHub(sendBuffer int, observer Observer) *Hub {
	if sendBuffer <= 0 {
		sendBuffer = 256
	}
	if observer == nil {
		observer = nopObserver{}
	}
	h := &Hub{sendBuffer: sendBuffer, observer: observer}
	for i := range h.shards {
		h.shards[i].clients = make(map[string]*client)
	}
	return h
}

func (h *Hub) shard(sessionID string) *hubShard {
	f := fnv.New32a()
	_, _ = f.Write([]byte(sessionID))
	return &h.shards[f.Sum32()%hubShards]
}

// Deliver queues a frame for the session's writer without blocking.
func (h *Hub) Deliver(sessionID string, frame []byte) error {
	s := h.shard(sessionID)
	s.mu.RLock()
	c, ok := s.clients[sessionID]
	s.mu.RUnlock()
	if !ok {
		return ErrNoSession
	}
	select {
	case <-c.done:
		return ErrNoSession
	default:
	}
	select {
	case c.send <- frame:
		return nil
	default:
		return ErrSlowConsumer
	}
}

// Sessions returns the number of registered sessions.
func (h *Hub) Sessions() int {
	n := 0
	for i := range h.shards {
		s := &h.shards[i]
		s.mu.RLock()
		n += len(s.clients)
		s.mu.RUnlock()
	}
	return n
}

// Serve registers conn under sessionID and blocks until the connection ends.
// A newer connection for the same id replaces and closes the older one.
func (h *Hub) Serve(sessionID string, conn *websocket.Conn) {
	c := &client{
		id:   sessionID,
		conn: conn,
		send: make(chan []byte, h.sendBuffer),
		done: make(chan struct{}),
	}
	h.register(c)
	slog.Info("websocket_connected", "session_id", sessionID)

	go c.writeLoop()
	c.readLoop()

	h.unregister(c)
	c.close()
	slog.Info("websocket_disconnected", "session_id", sessionID)
}

// Close disconnects every session.
func (h *Hub) Close() {
	for i := range h.shards {
		s := &h.shards[i]
		s.mu.Lock()
		for id, c := range s.clients {
			delete(s.clients, id)
			c.close()
			h.observer.SessionClosed()
		}
		s.mu.Unlock()
	}
}

func (h *Hub) register(c *client) {
	s := h.shard(c.id)
	s.mu.Lock()
	previous, replaced := s.clients[c.id]
	s.clients[c.id] = c
	s.mu.Unlock()

	if replaced {
		previous.close()
		slog.Info("websocket_replaced", "session_id", c.id)
		return
	}
	h.observer.SessionOpened()
}

func (h *Hub) unregister(c *client) {
	s := h.shard(c.id)
	s.mu.Lock()
	current, ok := s.clients[c.id]
	owned := ok && current == c
	if owned {
		delete(s.clients, c.id)
	}
	s.mu.Unlock()
	if owned {
		h.observer.SessionClosed()
	}
}

func (c *client) close() {
	c.closeOnce.Do(func() { close(c.done) })
}

func (c *client) readLoop() {
	c.conn.SetReadLimit(maxInboundMessage)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		kind, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Debug("websocket_read_failed", "session_id", c.id, "error", err)
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		if kind != websocket.TextMessage {
			continue
		}
		if reply := heartbeatReply(string(data)); reply != "" {
			select {
			case c.send <- []byte(reply):
			default:
			}
		}
	}
}

func (c *client) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
		_ = c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			_ = c.conn.WriteControl(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait),
			)
			return
		case frame := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				slog.Debug("websocket_write_failed", "session_id", c.id, "error", err)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// heartbeatReply answers the client-side text heartbeat.
func heartbeatReply(text string) string {
	switch {
	case text == "ping":
		return "pong"
	case strings.HasPrefix(text, "ping:"):
		return "pongtoken"
	default:
		return ""
	}
}
