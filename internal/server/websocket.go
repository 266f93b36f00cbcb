package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/conneroisu/livepad/internal/diagnostics"
	"github.com/conneroisu/livepad/internal/logging"
	"github.com/conneroisu/livepad/internal/monitoring"
	"github.com/conneroisu/livepad/internal/preview"
	"github.com/conneroisu/livepad/internal/validation"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 512

	// Buffered messages per client before it is dropped as too slow.
	sendBuffer = 64
)

// Event types pushed to the editor.
const (
	EventState      = "state"
	EventReload     = "reload"
	EventDiagnostic = "diagnostic"
)

// Event is one message sent over /ws.
type Event struct {
	Type       string                  `json:"type"`
	State      *preview.RenderState    `json:"state,omitempty"`
	Revision   uint64                  `json:"revision,omitempty"`
	Diagnostic *diagnostics.Diagnostic `json:"diagnostic,omitempty"`
	Timestamp  time.Time               `json:"timestamp"`
}

// Client represents a WebSocket client
type Client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	hub  *Hub
}

// Hub fans events out to every connected editor.
type Hub struct {
	logger  logging.Logger
	metrics *monitoring.Metrics
	origins []string

	mu      sync.RWMutex
	clients map[string]*Client
	closed  bool
}

// NewHub creates a hub accepting connections whose Origin is in origins.
func NewHub(origins []string, logger logging.Logger, metrics *monitoring.Metrics) *Hub {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Hub{
		logger:  logger.WithComponent("websocket"),
		metrics: metrics,
		origins: origins,
		clients: make(map[string]*Client),
	}
}

// ServeHTTP upgrades the request and registers the client.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !h.checkOrigin(r) {
		http.Error(w, "Origin not allowed", http.StatusForbidden)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // origin already checked against our own list
	})
	if err != nil {
		h.logger.Warn(r.Context(), err, "WebSocket upgrade failed")
		return
	}
	conn.SetReadLimit(maxMessageSize)

	client := &Client{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, sendBuffer),
		hub:  h,
	}
	if !h.register(client) {
		conn.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}

	go client.writePump()
	client.readPump(r.Context())
}

// checkOrigin validates the request origin for security
func (h *Hub) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if err := validation.ValidateOrigin(origin); err != nil {
		return false
	}

	for _, allowed := range h.origins {
		if origin == allowed {
			return true
		}
	}
	return false
}

// Broadcast sends ev to every client. Clients whose buffer is full are
// disconnected.
func (h *Hub) Broadcast(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	data, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error(context.Background(), err, "Failed to marshal event", "type", ev.Type)
		return
	}

	h.mu.RLock()
	var slow []*Client
	for _, c := range h.clients {
		select {
		case c.send <- data:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.logger.Warn(context.Background(), nil, "Dropping slow websocket client", "client", c.id)
		h.unregister(c)
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	clients := h.clients
	h.clients = make(map[string]*Client)
	h.mu.Unlock()

	for _, c := range clients {
		close(c.send)
	}
	h.metrics.SetWSClients(0)
}

func (h *Hub) register(c *Client) bool {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return false
	}
	h.clients[c.id] = c
	n := len(h.clients)
	h.mu.Unlock()

	h.metrics.SetWSClients(n)
	h.logger.Debug(context.Background(), "Client connected", "client", c.id, "total", n)
	return true
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c.id]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c.id)
	close(c.send)
	n := len(h.clients)
	h.mu.Unlock()

	h.metrics.SetWSClients(n)
	h.logger.Debug(context.Background(), "Client disconnected", "client", c.id, "total", n)
}

// readPump drains the connection so control frames are processed. Editors
// only listen; anything they send is ignored.
func (c *Client) readPump(ctx context.Context) {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		readCtx, cancel := context.WithTimeout(ctx, pongWait)
		_, _, err := c.conn.Read(readCtx)
		cancel()

		if err != nil {
			status := websocket.CloseStatus(err)
			if status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway {
				c.hub.logger.Debug(ctx, "WebSocket read ended", "client", c.id, "error", err.Error())
			}
			return
		}
	}
}

// writePump pumps messages to the websocket connection
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	ctx := context.Background()

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				return
			}
			writeCtx, cancel := context.WithTimeout(ctx, writeWait)
			err := c.conn.Write(writeCtx, websocket.MessageText, message)
			cancel()
			if err != nil {
				c.hub.logger.Debug(ctx, "WebSocket write failed", "client", c.id, "error", err.Error())
				return
			}

		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, writeWait)
			err := c.conn.Ping(pingCtx)
			cancel()
			if err != nil {
				return
			}
		}
	}
}
