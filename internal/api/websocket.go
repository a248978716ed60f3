// Package api provides WebSocket functionality for real-time updates.
package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tyeom/zeroquant-go/internal/events"
)

// MessageType identifies the kind of payload a WSMessage carries.
type MessageType string

const (
	MsgTypeOrderUpdate    MessageType = "order_update"
	MsgTypePositionUpdate MessageType = "position_update"
	MsgTypeRiskAlert      MessageType = "risk_alert"
	MsgTypeSignalAlert    MessageType = "signal_alert"
	MsgTypeDailySummary   MessageType = "daily_summary"
	MsgTypeSystemError    MessageType = "system_error"
	MsgTypeHeartbeat      MessageType = "heartbeat"
)

// WSMessage is the envelope every server -> client push carries.
type WSMessage struct {
	Type      MessageType `json:"type"`
	Symbol    string      `json:"symbol,omitempty"`
	Data      any         `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// client is one connected WebSocket subscriber.
type client struct {
	id   string
	conn *websocket.Conn
	send chan WSMessage
}

// eventToMessage maps an internal/events.Type onto its WebSocket wire
// message type; returns ok=false for event types this hub doesn't forward
// (e.g. raw ticks, which clients poll via their own market-data feed).
func eventToMessage(t events.Type) (MessageType, bool) {
	switch t {
	case events.TypeOrderFilled, events.TypeOrderOpen, events.TypeOrderRejected, events.TypeOrderCancelled, events.TypeOrderExpired:
		return MsgTypeOrderUpdate, true
	case events.TypePositionOpened, events.TypePositionClosed:
		return MsgTypePositionUpdate, true
	case events.TypeRiskAlert, events.TypeStopTriggered:
		return MsgTypeRiskAlert, true
	case events.TypeSignalAlert:
		return MsgTypeSignalAlert, true
	case events.TypeDailySummary:
		return MsgTypeDailySummary, true
	case events.TypeSystemError:
		return MsgTypeSystemError, true
	default:
		return "", false
	}
}

// Hub fans events.Bus publications out to every connected WebSocket client.
// It subscribes once at construction and owns no trading state itself.
type Hub struct {
	logger *zap.Logger
	bus    *events.Bus

	mu      sync.RWMutex
	clients map[string]*client

	register   chan *client
	unregister chan *client
	broadcast  chan WSMessage
	done       chan struct{}
}

// NewHub builds a hub wired to bus; call Run to start its dispatch loop.
func NewHub(logger *zap.Logger, bus *events.Bus) *Hub {
	h := &Hub{
		logger:     logger.Named("api.ws"),
		bus:        bus,
		clients:    make(map[string]*client),
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan WSMessage, 256),
		done:       make(chan struct{}),
	}
	if bus != nil {
		bus.SubscribeAll(h.onEvent)
	}
	return h
}

func (h *Hub) onEvent(evt events.Event) error {
	msgType, ok := eventToMessage(evt.Type)
	if !ok {
		return nil
	}
	select {
	case h.broadcast <- WSMessage{Type: msgType, Symbol: evt.Symbol, Data: evt.Payload, Timestamp: evt.Timestamp}:
	default:
		h.logger.Warn("broadcast queue full, dropping event", zap.String("type", string(evt.Type)))
	}
	return nil
}

// Run drains register/unregister/broadcast until Stop is called.
func (h *Hub) Run() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-h.done:
			return
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c.id] = c
			h.mu.Unlock()
		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c.id]; ok {
				delete(h.clients, c.id)
				close(c.send)
			}
			h.mu.Unlock()
		case msg := <-h.broadcast:
			h.sendAll(msg)
		case <-ticker.C:
			h.sendAll(WSMessage{Type: MsgTypeHeartbeat, Timestamp: time.Now()})
		}
	}
}

// Stop ends the dispatch loop. Connected clients are not force-closed; each
// read loop exits on its next failed read once the server listener stops.
func (h *Hub) Stop() {
	close(h.done)
}

func (h *Hub) sendAll(msg WSMessage) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		select {
		case c.send <- msg:
		default:
			h.logger.Warn("client send buffer full, dropping message", zap.String("client", c.id))
		}
	}
}

// ServeWS upgrades an HTTP connection and registers the client with the hub.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	c := &client{id: uuid.NewString(), conn: conn, send: make(chan WSMessage, 64)}
	h.register <- c

	go h.writePump(c)
	go h.readPump(c)
}

func (h *Hub) writePump(c *client) {
	defer c.conn.Close()
	for msg := range c.send {
		b, err := json.Marshal(msg)
		if err != nil {
			h.logger.Warn("failed to marshal ws message", zap.Error(err))
			continue
		}
		if err := c.conn.WriteMessage(websocket.TextMessage, b); err != nil {
			return
		}
	}
}

// readPump only drains and discards client frames, detecting disconnects;
// this hub is push-only and has no client->server command surface.
func (h *Hub) readPump(c *client) {
	defer func() { h.unregister <- c }()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
