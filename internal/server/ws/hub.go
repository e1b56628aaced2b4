// Package ws relays committed entity changes to websocket clients.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/omenindexer/internal/domain"
	"github.com/alanyoungcy/omenindexer/internal/metrics"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBufferSize = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Read-only feed of public chain data.
	CheckOrigin: func(*http.Request) bool { return true },
}

// envelope is the frame sent to clients.
type envelope struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// subscribeMsg changes the set of entity kinds a client receives. An empty
// set, or "*", means every kind.
type subscribeMsg struct {
	Action string   `json:"action"`
	Kinds  []string `json:"kinds"`
}

type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	mu    sync.RWMutex
	kinds map[domain.EntityKind]bool
}

// Hub fans entity changes from the signal bus out to connected clients,
// filtered by each client's kinds.
type Hub struct {
	bus     domain.EventBus
	pattern string
	mode    string
	metrics *metrics.Metrics
	logger  *slog.Logger

	startedAt  time.Time
	register   chan *client
	unregister chan *client
	broadcast  chan domain.EntityChange
	done       chan struct{}

	mu      sync.RWMutex
	clients map[*client]bool
}

// Config configures a Hub. Pattern is the pub/sub pattern carrying
// domain.EntityChange payloads.
type Config struct {
	Pattern string
	Mode    string
	Metrics *metrics.Metrics
}

// NewHub creates a Hub reading from bus.
func NewHub(bus domain.EventBus, cfg Config, logger *slog.Logger) *Hub {
	return &Hub{
		bus:        bus,
		pattern:    cfg.Pattern,
		mode:       cfg.Mode,
		metrics:    cfg.Metrics,
		logger:     logger.With(slog.String("component", "ws_hub")),
		startedAt:  time.Now().UTC(),
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan domain.EntityChange, 256),
		done:       make(chan struct{}),
		clients:    make(map[*client]bool),
	}
}

// Run subscribes to the bus and serves clients until ctx ends.
func (h *Hub) Run(ctx context.Context) error {
	msgs, err := h.bus.Subscribe(ctx, h.pattern)
	if err != nil {
		return err
	}
	go h.relay(ctx, msgs)
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			h.mu.Unlock()
			h.gauge()
			return ctx.Err()

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			h.mu.Unlock()
			h.gauge()
			h.logger.Info("client connected", slog.Int("clients", h.clientCount()))

		case c := <-h.unregister:
			h.mu.Lock()
			if h.clients[c] {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
			h.gauge()
			h.logger.Info("client disconnected", slog.Int("clients", h.clientCount()))

		case change := <-h.broadcast:
			frame, err := json.Marshal(envelope{Type: "entity_change", Payload: change})
			if err != nil {
				continue
			}
			h.mu.RLock()
			for c := range h.clients {
				if !c.wants(change.Kind) {
					continue
				}
				select {
				case c.send <- frame:
				default:
					h.logger.Warn("dropping change for slow client")
				}
			}
			h.mu.RUnlock()
		}
	}
}

// relay decodes bus payloads into the broadcast channel.
func (h *Hub) relay(ctx context.Context, msgs <-chan []byte) {
	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-msgs:
			if !ok {
				h.logger.Warn("subscription closed", slog.String("pattern", h.pattern))
				return
			}
			var change domain.EntityChange
			if err := json.Unmarshal(data, &change); err != nil {
				h.logger.Warn("malformed entity change", slog.String("error", err.Error()))
				continue
			}
			select {
			case h.broadcast <- change:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (h *Hub) gauge() {
	if h.metrics != nil {
		h.metrics.WebsocketClients.Set(float64(h.clientCount()))
	}
}

func (h *Hub) clientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// HandleWS upgrades the request and registers the client. The optional
// kinds query parameter preselects entity kinds, comma separated.
// GET /ws?kinds=FixedProductMarketMaker,Token
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("upgrade failed", slog.String("error", err.Error()))
		return
	}
	c := &client{
		hub:   h,
		conn:  conn,
		send:  make(chan []byte, sendBufferSize),
		kinds: make(map[domain.EntityKind]bool),
	}
	if q := r.URL.Query().Get("kinds"); q != "" {
		c.subscribe(strings.Split(q, ","))
	}

	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	case <-r.Context().Done():
		conn.Close()
		return
	}
	c.hello()
	go c.writePump()
	go c.readPump()
}

func (c *client) hello() {
	msg, err := json.Marshal(envelope{Type: "hello", Payload: map[string]any{
		"mode":          c.hub.mode,
		"uptimeSeconds": int64(time.Since(c.hub.startedAt).Seconds()),
	}})
	if err != nil {
		return
	}
	select {
	case c.send <- msg:
	default:
	}
}

func (c *client) wants(kind domain.EntityKind) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.kinds) == 0 || c.kinds["*"] || c.kinds[kind]
}

func (c *client) subscribe(kinds []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range kinds {
		if k = strings.TrimSpace(k); k != "" {
			c.kinds[domain.EntityKind(k)] = true
		}
	}
}

func (c *client) unsubscribe(kinds []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range kinds {
		delete(c.kinds, domain.EntityKind(strings.TrimSpace(k)))
	}
}

func (c *client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("unexpected close", slog.String("error", err.Error()))
			}
			return
		}
		var sub subscribeMsg
		if err := json.Unmarshal(message, &sub); err != nil {
			continue
		}
		switch sub.Action {
		case "subscribe":
			c.subscribe(sub.Kinds)
		case "unsubscribe":
			c.unsubscribe(sub.Kinds)
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
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
