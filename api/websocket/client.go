package websocket

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/OldStager01/resilience-plane/internal/logger"
	"github.com/OldStager01/resilience-plane/pkg/models"
)

type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	mu    sync.RWMutex
	types map[models.EventType]bool
}

func NewClient(hub *Hub, conn *websocket.Conn, types []models.EventType) *Client {
	c := &Client{
		hub:  hub,
		conn: conn,
		send: make(chan []byte, hub.settings.ClientBuffer),
	}
	c.setTypes(types)
	return c
}

func (c *Client) setTypes(types []models.EventType) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.types = make(map[models.EventType]bool, len(types))
	for _, t := range types {
		c.types[t] = true
	}
}

// wants reports whether the client's filter admits t. With no filter every
// event except raw samples is sent.
func (c *Client) wants(t models.EventType) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.types) == 0 {
		return t != models.EventTypeSampleRecorded
	}
	return c.types[t]
}

func (c *Client) subscribed() []models.EventType {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]models.EventType, 0, len(c.types))
	for t := range c.types {
		out = append(out, t)
	}
	return out
}

func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	settings := c.hub.settings
	c.conn.SetReadLimit(settings.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(settings.PongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(settings.PongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.WithComponent("websocket").WithError(err).Warn("WebSocket read failed")
			}
			return
		}

		var msg IncomingMessage
		if err := json.Unmarshal(message, &msg); err == nil {
			c.handleMessage(&msg)
		}
	}
}

func (c *Client) WritePump() {
	settings := c.hub.settings
	ticker := time.NewTicker(settings.PingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(settings.WriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(settings.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) handleMessage(msg *IncomingMessage) {
	switch msg.Action {
	case "subscribe":
		c.setTypes(msg.Types)
	case "unsubscribe":
		c.mu.Lock()
		for _, t := range msg.Types {
			delete(c.types, t)
		}
		c.mu.Unlock()
	default:
		return
	}
	c.sendConfirmation(msg.Action)
}

func (c *Client) sendConfirmation(action string) {
	data, err := json.Marshal(subscriptionUpdate{
		Type:      "subscription_update",
		Action:    action,
		Types:     c.subscribed(),
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		return
	}
	select {
	case c.send <- data:
	default:
		logger.WithComponent("websocket").Warn("Client send channel full, dropping confirmation")
	}
}

// ParseTypes splits a comma separated ?type= value.
func ParseTypes(raw string) []models.EventType {
	var out []models.EventType
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, models.EventType(part))
		}
	}
	return out
}

func ServeWebSocket(hub *Hub) gin.HandlerFunc {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  hub.settings.ReadBufferSize,
		WriteBufferSize: hub.settings.WriteBufferSize,
		// the admin API is meant for operators on trusted networks
		CheckOrigin: func(r *http.Request) bool { return true },
	}

	return func(c *gin.Context) {
		if hub.Full() {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "too many websocket connections"})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.WithComponent("websocket").WithError(err).Warn("WebSocket upgrade failed")
			return
		}

		client := NewClient(hub, conn, ParseTypes(c.Query("type")))
		hub.Register(client)

		go client.WritePump()
		go client.ReadPump()
	}
}
