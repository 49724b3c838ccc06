package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/afroash/serverroom-monitor/internal/models"
)

// Constants for WebSocket timeouts
const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	// sendBuffer bounds the per-client queue; a client that falls this far
	// behind is dropped
	sendBuffer = 64

	// DefaultRecentEvents is how many events are replayed to a new dashboard
	DefaultRecentEvents = 20
)

// Hub pushes live record events to connected dashboards.
// It implements repository.Notifier.
type Hub struct {
	upgrader       websocket.Upgrader
	logger         zerolog.Logger
	allowedOrigins []string

	mutex     sync.RWMutex
	clients   map[*dashboardClient]struct{}
	recent    []*models.Message
	maxRecent int
}

// dashboardClient represents an active dashboard connection
type dashboardClient struct {
	conn        *websocket.Conn
	send        chan *models.Message
	connectedAt time.Time
}

// NewHub creates a hub that keeps the last recentSize events for replay
func NewHub(logger zerolog.Logger, recentSize int, allowedOrigins ...string) *Hub {
	if recentSize <= 0 {
		recentSize = DefaultRecentEvents
	}
	if recentSize > sendBuffer {
		recentSize = sendBuffer
	}

	h := &Hub{
		logger:         logger,
		allowedOrigins: allowedOrigins,
		clients:        make(map[*dashboardClient]struct{}),
		maxRecent:      recentSize,
	}

	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}

	return h
}

// checkOrigin validates the incoming request's Origin against the configured allowlist
func (h *Hub) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	// No Origin header means same-origin request
	if origin == "" {
		return true
	}

	for _, allowed := range h.allowedOrigins {
		if origin == allowed {
			return true
		}
	}

	h.logger.Warn().Str("origin", origin).Msg("Rejected WebSocket connection: origin not in allowlist")
	return false
}

// Notify records the event and queues it for every connected dashboard
func (h *Hub) Notify(msg *models.Message) {
	if msg == nil {
		return
	}

	h.mutex.Lock()
	defer h.mutex.Unlock()

	h.recent = append(h.recent, msg)
	if len(h.recent) > h.maxRecent {
		h.recent = h.recent[len(h.recent)-h.maxRecent:]
	}

	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			h.logger.Warn().Str("remote", c.conn.RemoteAddr().String()).Msg("Dashboard too slow, dropping connection")
			delete(h.clients, c)
			close(c.send)
		}
	}
}

// ServeHTTP upgrades a dashboard connection and replays recent events to it
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to upgrade connection")
		return
	}

	c := &dashboardClient{
		conn:        conn,
		send:        make(chan *models.Message, sendBuffer),
		connectedAt: time.Now(),
	}

	h.mutex.Lock()
	for _, msg := range h.recent {
		c.send <- msg
	}
	h.clients[c] = struct{}{}
	h.mutex.Unlock()

	h.logger.Info().Str("remote", conn.RemoteAddr().String()).Msg("Dashboard connected")

	go h.writePump(c)
	h.readPump(c)
}

// readPump discards client frames and keeps the read deadline alive
func (h *Hub) readPump(c *dashboardClient) {
	defer h.remove(c)

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Warn().Err(err).Msg("WebSocket error")
			}
			return
		}
	}
}

// writePump sends queued events and pings until the queue is closed
func (h *Hub) writePump(c *dashboardClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				h.logger.Warn().Err(err).Msg("Failed to send event")
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// remove drops a client and closes its queue
func (h *Hub) remove(c *dashboardClient) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
		h.logger.Info().
			Str("remote", c.conn.RemoteAddr().String()).
			Dur("connected_for", time.Since(c.connectedAt)).
			Msg("Dashboard disconnected")
	}
}

// ClientCount returns the number of connected dashboards
func (h *Hub) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// Recent returns the events that would be replayed to a new dashboard, oldest first
func (h *Hub) Recent() []*models.Message {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	out := make([]*models.Message, len(h.recent))
	copy(out, h.recent)
	return out
}

// Close disconnects every dashboard
func (h *Hub) Close() {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}
