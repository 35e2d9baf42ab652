package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"github.com/username/threadline/internal/domain/ports"
	"github.com/username/threadline/internal/pkg/constants"
	"github.com/username/threadline/internal/pkg/logutil"
)

// Frame types the hub writes on its own behalf. Store events are forwarded
// as published and carry their own type.
const (
	FrameConnected = "connection_established"
	FramePong      = "pong"
)

// Frame is a hub-originated message
type Frame struct {
	Type      string                 `json:"type"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// Hub fans store events out to WebSocket clients
type Hub struct {
	messaging ports.MessagingPort
	logger    *logutil.Logger
	upgrader  websocket.Upgrader

	mu      sync.RWMutex
	clients map[*Client]struct{}
	started bool
	closed  bool
}

// Client is one WebSocket connection. A client opened with a
// conversation_id only receives events for that conversation plus
// store-wide selection changes.
type Client struct {
	id             string
	conversationID string
	conn           *websocket.Conn
	send           chan []byte
	hub            *Hub
}

// NewHub creates a hub bound to the event bus
func NewHub(messaging ports.MessagingPort, logger *logutil.Logger) *Hub {
	if logger == nil {
		logger = logutil.NewNopLogger()
	}
	return &Hub{
		messaging: messaging,
		logger:    logger,
		clients:   make(map[*Client]struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// Start subscribes to conversation and store events
func (h *Hub) Start(ctx context.Context) error {
	h.mu.Lock()
	if h.started {
		h.mu.Unlock()
		return nil
	}
	h.started = true
	h.mu.Unlock()

	for _, subject := range []string{ports.SubjectConversationAll, ports.SubjectStoreAll} {
		if err := h.messaging.Subscribe(ctx, subject, h.handleEvent); err != nil {
			return errors.Wrapf(err, "failed to subscribe to %s", subject)
		}
	}

	h.logger.Info("WebSocket hub started and listening for events")
	return nil
}

// Close disconnects every client. Further upgrades are refused.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		h.remove(c)
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// GetStats returns connection statistics
func (h *Hub) GetStats() map[string]interface{} {
	h.mu.RLock()
	defer h.mu.RUnlock()

	scoped := 0
	for c := range h.clients {
		if c.conversationID != "" {
			scoped++
		}
	}

	return map[string]interface{}{
		"total_connections":  len(h.clients),
		"scoped_connections": scoped,
		"timestamp":          time.Now(),
	}
}

// HandleWebSocket upgrades the request and registers the client
func (h *Hub) HandleWebSocket(c *gin.Context) {
	h.mu.RLock()
	closed := h.closed
	h.mu.RUnlock()
	if closed {
		c.JSON(http.StatusServiceUnavailable, gin.H{"success": false, "error": "websocket hub is closed"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn(constants.ErrMsgWebSocketUpgradeFailed, logutil.Fields{"error": err.Error()})
		return
	}

	client := &Client{
		id:             uuid.NewString(),
		conversationID: c.Query("conversation_id"),
		conn:           conn,
		send:           make(chan []byte, constants.WebSocketSendBuffer),
		hub:            h,
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[client] = struct{}{}
	h.mu.Unlock()

	h.logger.Info("WebSocket client connected", logutil.Fields{
		"client_id":       client.id,
		"conversation_id": client.conversationID,
	})

	client.enqueue(Frame{
		Type:      FrameConnected,
		Data:      map[string]interface{}{"client_id": client.id},
		Timestamp: time.Now(),
	})

	go client.writePump()
	go client.readPump()
}

// handleEvent forwards a published store event to matching clients
func (h *Hub) handleEvent(ctx context.Context, subject string, data []byte) error {
	var head struct {
		ConversationID string `json:"conversation_id"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return errors.Wrapf(err, "failed to decode event on %s", subject)
	}
	storeWide := subject == ports.SubjectStoreSelection

	var slow []*Client
	h.mu.RLock()
	for c := range h.clients {
		if !storeWide && c.conversationID != "" && c.conversationID != head.ConversationID {
			continue
		}
		select {
		case c.send <- data:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.logger.Warn("Dropping slow WebSocket client", logutil.Fields{"client_id": c.id})
		h.remove(c)
	}
	return nil
}

// remove unregisters a client and closes its send channel exactly once
func (h *Hub) remove(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	close(c.send)
	h.mu.Unlock()

	h.logger.Info("WebSocket client disconnected", logutil.Fields{"client_id": c.id})
}

// enqueue queues a hub frame; it is a no-op once the client is removed
func (c *Client) enqueue(frame Frame) {
	data, err := json.Marshal(frame)
	if err != nil {
		return
	}

	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	if _, ok := c.hub.clients[c]; !ok {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.remove(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(constants.WebSocketMaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(constants.WebSocketPongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(constants.WebSocketPongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Warn("WebSocket read error", logutil.Fields{"client_id": c.id, "error": err.Error()})
			}
			return
		}

		var msg struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}
		if msg.Type == "ping" {
			c.enqueue(Frame{
				Type:      FramePong,
				Data:      map[string]interface{}{"client_id": c.id},
				Timestamp: time.Now(),
			})
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(constants.WebSocketPingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(constants.WebSocketWriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(constants.WebSocketWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
