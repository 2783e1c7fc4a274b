package websocket

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/archives-observability/archives/archerr"
	"github.com/archives-observability/archives/models"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 1024

	sendBuffer = 64
)

// Client is one live tail subscriber.
type Client struct {
	ID   string
	conn *websocket.Conn
	send chan models.StreamMessage
	hub  *Hub

	mu     sync.RWMutex
	filter models.TailFilter
}

// inbound defers decoding of Data until the type is known.
type inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// NewClient creates a subscriber for conn with an initial filter.
func NewClient(conn *websocket.Conn, hub *Hub, filter models.TailFilter) *Client {
	return &Client{
		ID:     uuid.New().String(),
		conn:   conn,
		send:   make(chan models.StreamMessage, sendBuffer),
		hub:    hub,
		filter: filter,
	}
}

// Filter returns the client's current filter.
func (c *Client) Filter() models.TailFilter {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.filter
}

func (c *Client) setFilter(f models.TailFilter) {
	c.mu.Lock()
	c.filter = f
	c.mu.Unlock()
}

// ReadPump reads control frames until the peer goes away.
func (c *Client) ReadPump() {
	logger := c.hub.logger

	defer func() {
		c.hub.UnregisterClient(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Error("Tail read error", err, map[string]interface{}{
					"client_id": c.ID,
				})
			}
			return
		}

		var msg inbound
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.reply(models.StreamError, models.TailError{
				Error:   string(archerr.InvalidRequest),
				Message: "frames must be JSON objects with a type",
			})
			continue
		}
		if !c.handleMessage(msg) {
			return
		}
	}
}

// WritePump writes queued frames and keeps the connection alive with pings.
func (c *Client) WritePump() {
	logger := c.hub.logger
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(message); err != nil {
				logger.Warn("Failed to write tail message", map[string]interface{}{
					"client_id": c.ID,
					"error":     err.Error(),
				})
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

// handleMessage applies one control frame. It returns false when the
// client asked to leave.
func (c *Client) handleMessage(msg inbound) bool {
	switch msg.Type {
	case models.StreamHeartbeat:
		c.reply(models.StreamHeartbeat, map[string]interface{}{"status": "pong"})

	case models.StreamFilter:
		var f models.TailFilter
		if len(msg.Data) > 0 {
			if err := json.Unmarshal(msg.Data, &f); err != nil {
				kind := archerr.KindOf(err)
				if kind == archerr.Internal {
					kind = archerr.InvalidRequest
				}
				c.reply(models.StreamError, models.TailError{
					Error:   string(kind),
					Message: archerr.MessageOf(err),
				})
				return true
			}
		}
		c.setFilter(f)
		c.reply(models.StreamFilter, f)

	case models.StreamDisconnect:
		c.hub.logger.Info("Tail client requested disconnect", map[string]interface{}{
			"client_id": c.ID,
		})
		return false

	default:
		c.reply(models.StreamError, models.TailError{
			Error:   string(archerr.InvalidRequest),
			Message: "unknown frame type " + msg.Type,
		})
	}
	return true
}

// reply queues a frame for this client only. It goes through the hub,
// which owns the send channel.
func (c *Client) reply(msgType string, data interface{}) {
	c.hub.sendTo(c, models.StreamMessage{
		Type:      msgType,
		Data:      data,
		Timestamp: time.Now(),
		ClientID:  c.ID,
	})
}
